package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/georgepadayatti/adesval/sign/validation/archive"
	"github.com/georgepadayatti/adesval/sign/validation/report"
)

// ArchiveCommand implements the 'archive' command: list archived reports
// or show one of them.
func ArchiveCommand(args []string) int {
	if len(args) < 3 {
		archiveUsage()
		return 2
	}
	sub := args[2]

	fs := flag.NewFlagSet("archive "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	dsn := fs.String("db", "", "SQLite archive file")
	asJSON := fs.Bool("json", false, "Show the report in JSON format")
	fs.Usage = archiveUsage

	if err := fs.Parse(args[3:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx := context.Background()
	a, err := openArchive(ctx, *dsn)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.Close()

	switch sub {
	case "list":
		err = archiveList(ctx, a)
	case "show":
		if fs.NArg() != 1 {
			archiveUsage()
			return 2
		}
		err = archiveShow(ctx, a, fs.Arg(0), *asJSON)
	default:
		fmt.Fprintf(stderr, "Unknown archive command: %s\n\n", sub)
		archiveUsage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func archiveUsage() {
	prog := progName()
	fmt.Fprintf(stderr, "Usage: %s archive <list|show> -db <file> [-json] [id]\n\n", prog)
	fmt.Fprintln(stderr, "Inspect validation reports archived by 'verify -archive'.")
}

// openArchive refuses to create a new database: inspecting a missing
// archive is an error.
func openArchive(ctx context.Context, dsn string) (*archive.Archive, error) {
	if dsn == "" {
		return nil, errors.New("-db is required")
	}
	if _, err := os.Stat(dsn); err != nil {
		return nil, fmt.Errorf("archive %s: %w", dsn, err)
	}
	return archive.Open(ctx, dsn)
}

func archiveList(ctx context.Context, a *archive.Archive) error {
	entries, err := a.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "Archive is empty")
		return nil
	}
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDOCUMENT\tVALIDATION TIME\tVALID\tFAULTS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\n", e.ID, e.DocumentName,
			e.ValidationTime.Format(time.RFC3339), e.ValidSignatures, e.Signatures, e.Faults)
	}
	return w.Flush()
}

func archiveShow(ctx context.Context, a *archive.Archive, id string, asJSON bool) error {
	r, err := a.Load(ctx, id)
	if err != nil {
		return err
	}
	format := "text"
	if asJSON {
		format = "json"
	}
	return report.NewFormatter().WriteTo(stdout, r, format)
}
