package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/georgepadayatti/adesval/config"
	"github.com/georgepadayatti/adesval/evidence"
	"github.com/georgepadayatti/adesval/sign/validation"
	"github.com/georgepadayatti/adesval/sign/validation/archive"
	"github.com/georgepadayatti/adesval/sign/validation/report"
)

// VerifyOptions contains options for the verify command.
type VerifyOptions struct {
	ConfigFile         string
	PolicyLevel        string
	TrustRoots         stringList
	TrustStore         string
	TrustStorePassword string
	ValidationTime     string
	Concurrency        int
	JSON               bool
	Markdown           bool
	Detailed           bool
	ArchiveDSN         string
}

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// VerifyCommand implements the 'verify' command. The exit code is 0 when
// every signature is VALID, 1 when one is not or the run failed.
func VerifyCommand(args []string) int {
	verifyFlags := flag.NewFlagSet("verify", flag.ContinueOnError)
	verifyFlags.SetOutput(stderr)

	var opts VerifyOptions

	verifyFlags.StringVar(&opts.ConfigFile, "config", "", "YAML configuration file")
	verifyFlags.StringVar(&opts.PolicyLevel, "policy-level", "", "Required signature level (B, T or LTA); overrides the configuration")
	verifyFlags.Var(&opts.TrustRoots, "trust-roots", "File containing trusted root certificates (PEM or DER); repeatable")
	verifyFlags.StringVar(&opts.TrustStore, "trust-store", "", "PKCS#12 trust store holding trusted root certificates")
	verifyFlags.StringVar(&opts.TrustStorePassword, "trust-store-password", "", "Password of the trust store")
	verifyFlags.StringVar(&opts.ValidationTime, "at", "", "Validation time (RFC 3339); defaults to now")
	verifyFlags.IntVar(&opts.Concurrency, "concurrency", 0, "Signatures validated in parallel; defaults to GOMAXPROCS")
	verifyFlags.BoolVar(&opts.JSON, "json", false, "Output the reports in JSON format")
	verifyFlags.BoolVar(&opts.Markdown, "markdown", false, "Output the reports in Markdown format")
	verifyFlags.BoolVar(&opts.Detailed, "detailed", false, "Include the basic building blocks in text output")
	verifyFlags.StringVar(&opts.ArchiveDSN, "archive", "", "SQLite database the reports are archived in")

	verifyFlags.Usage = func() {
		prog := progName()
		fmt.Fprintf(stderr, "Usage: %s verify [options] <evidence.json>\n\n", prog)
		fmt.Fprintln(stderr, "Validate the signatures described by a diagnostic data file.")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Options:")
		verifyFlags.PrintDefaults()
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Examples:")
		fmt.Fprintf(stderr, "  %s verify -trust-roots roots.pem evidence.json\n", prog)
		fmt.Fprintf(stderr, "  %s verify -policy-level T -detailed -trust-roots roots.pem evidence.json\n", prog)
		fmt.Fprintf(stderr, "  %s verify -config adesval.yaml -json -archive reports.db evidence.json\n", prog)
	}

	if err := verifyFlags.Parse(args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if len(verifyFlags.Args()) < 1 {
		verifyFlags.Usage()
		return 2
	}

	reports, err := verify(context.Background(), verifyFlags.Arg(0), &opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	format := "text"
	switch {
	case opts.JSON:
		format = "json"
	case opts.Markdown:
		format = "markdown"
	}
	formatter := report.NewFormatter()
	formatter.IncludeBlocks = opts.Detailed
	if err := formatter.WriteTo(stdout, reports, format); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// Exit with non-zero code unless every signature is valid
	if len(reports.Faults) > 0 || reports.Simple.ValidSignaturesCount() != reports.Simple.SignaturesCount() {
		return 1
	}
	return 0
}

// verify runs one validation and archives the reports when requested.
func verify(ctx context.Context, evidencePath string, opts *VerifyOptions) (*report.Reports, error) {
	appConfig := &config.AppConfig{Policy: &config.PolicyConfig{}, Logging: &config.LoggingConfig{}}
	if opts.ConfigFile != "" {
		loaded, err := config.LoadAppConfig(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		appConfig = loaded
	}

	policyConfig := appConfig.Policy
	if opts.PolicyLevel != "" {
		policyConfig.RequiredLevel = opts.PolicyLevel
	}
	if opts.TrustStore != "" {
		policyConfig.TrustStore = &config.TrustStoreConfig{File: opts.TrustStore, Password: opts.TrustStorePassword}
	}
	at := time.Now()
	if opts.ValidationTime != "" {
		parsed, err := time.Parse(time.RFC3339, opts.ValidationTime)
		if err != nil {
			return nil, fmt.Errorf("invalid validation time %q: %w", opts.ValidationTime, err)
		}
		at = parsed
	}

	anchors, err := policyConfig.LoadAnchorsAt(at, opts.TrustRoots...)
	if err != nil {
		return nil, err
	}
	policy, err := policyConfig.ToPolicy(anchors)
	if err != nil {
		return nil, err
	}

	logger, closer, err := appConfig.Logging.NewLogger(stdout, stderr)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	validatorOpts := []validation.Option{validation.WithLogger(logger)}
	if opts.Concurrency > 0 {
		validatorOpts = append(validatorOpts, validation.WithConcurrency(opts.Concurrency))
	}
	if opts.ValidationTime != "" {
		validatorOpts = append(validatorOpts, validation.WithValidationTime(at))
	}

	validator, err := validation.NewValidator(policy, validatorOpts...)
	if err != nil {
		return nil, err
	}

	data, err := evidence.LoadFile(evidencePath)
	if err != nil {
		return nil, err
	}
	if data.DocumentName == "" {
		data.DocumentName = evidencePath
	}

	result, err := validator.Validate(ctx, data)
	if err != nil {
		return nil, err
	}
	reports := report.New(result)

	if opts.ArchiveDSN != "" {
		a, err := archive.Open(ctx, opts.ArchiveDSN)
		if err != nil {
			return nil, err
		}
		defer a.Close()
		if err := a.Save(ctx, reports); err != nil {
			return nil, err
		}
		logger.Info("reports archived", "report", reports.ID, "archive", opts.ArchiveDSN)
	}
	return reports, nil
}
