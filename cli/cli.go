// Package cli provides the command-line interface of the validation engine.
package cli

import (
	"fmt"
	"io"
	"os"
)

// Version information
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// osExit is a variable for os.Exit to allow testing
var osExit = os.Exit

// stdout and stderr are variables to allow testing
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Run executes the CLI with the given arguments.
// This is the main entry point for the CLI.
func Run(args []string) {
	if len(args) < 2 {
		Usage()
		return
	}

	var code int
	switch command := args[1]; command {
	case "verify":
		code = VerifyCommand(args)
	case "keystore":
		code = KeystoreCommand(args)
	case "archive":
		code = ArchiveCommand(args)
	case "version":
		VersionCommand()
	case "help", "-h", "--help":
		Usage()
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		Usage()
		code = 2
	}
	if code != 0 {
		osExit(code)
	}
}

// Usage prints the CLI usage information.
func Usage() {
	prog := progName()
	fmt.Fprintf(stdout, "adesval - policy-driven AdES signature validation\n\n")
	fmt.Fprintf(stdout, "Usage: %s <command> [options] <args>\n\n", prog)
	fmt.Fprintln(stdout, "Commands:")
	fmt.Fprintln(stdout, "  verify    Validate the signatures described by an evidence file")
	fmt.Fprintln(stdout, "  keystore  Manage a PKCS#12 trust store (list, add, delete, create)")
	fmt.Fprintln(stdout, "  archive   Inspect archived validation reports (list, show)")
	fmt.Fprintln(stdout, "  version   Show version information")
	fmt.Fprintln(stdout, "  help      Show this help message")
	fmt.Fprintln(stdout, "")
	fmt.Fprintf(stdout, "Use '%s <command> -h' for command-specific help\n", prog)
	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "Examples:")
	fmt.Fprintf(stdout, "  %s verify -trust-roots roots.pem evidence.json\n", prog)
	fmt.Fprintf(stdout, "  %s verify -config adesval.yaml -policy-level LTA -json evidence.json\n", prog)
	fmt.Fprintf(stdout, "  %s keystore add -store trust.p12 -password secret root.pem\n", prog)
}

// VersionCommand prints version information.
func VersionCommand() {
	fmt.Fprintf(stdout, "adesval version %s\n", Version)
	fmt.Fprintf(stdout, "Build time: %s\n", BuildTime)
}

func progName() string {
	if len(os.Args) > 0 {
		return os.Args[0]
	}
	return "adesval"
}
