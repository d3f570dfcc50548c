// Command adesval validates AdES signatures against a validation policy.
//
// Usage:
//
//	adesval <command> [options] <args>
//
// Commands:
//
//	verify    Validate the signatures described by an evidence file
//	keystore  Manage a PKCS#12 trust store (list, add, delete, create)
//	archive   Inspect archived validation reports (list, show)
//	version   Show version information
//	help      Show help message
//
// Examples:
//
//	# Validate at the default level B
//	adesval verify -trust-roots roots.pem evidence.json
//
//	# Require LTA and print the reports as JSON
//	adesval verify -policy-level LTA -json -trust-roots roots.pem evidence.json
//
//	# Add a trust anchor to a trust store
//	adesval keystore add -store trust.p12 -password secret root.pem
package main

import (
	"os"

	"github.com/georgepadayatti/adesval/cli"
)

// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/adesval
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cli.Version = version
	cli.BuildTime = buildTime

	cli.Run(os.Args)
}
