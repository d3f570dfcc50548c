package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/georgepadayatti/adesval/evidence"
	"github.com/georgepadayatti/adesval/keys"
)

// KeystoreCommand implements the 'keystore' command and its list, add,
// delete and create subcommands.
func KeystoreCommand(args []string) int {
	if len(args) < 3 {
		keystoreUsage()
		return 2
	}
	sub := args[2]

	fs := flag.NewFlagSet("keystore "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	storePath := fs.String("store", "", "PKCS#12 trust store file")
	password := fs.String("password", "", "Trust store password")
	fs.Usage = keystoreUsage

	if err := fs.Parse(args[3:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *storePath == "" {
		fmt.Fprintln(stderr, "Error: -store is required")
		return 2
	}

	var err error
	switch sub {
	case "create":
		err = keystoreCreate(*storePath, *password)
	case "list":
		err = keystoreList(*storePath, *password)
	case "add":
		err = keystoreAdd(*storePath, *password, fs.Args())
	case "delete":
		err = keystoreDelete(*storePath, *password, fs.Args())
	default:
		fmt.Fprintf(stderr, "Unknown keystore command: %s\n\n", sub)
		keystoreUsage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func keystoreUsage() {
	prog := progName()
	fmt.Fprintf(stderr, "Usage: %s keystore <list|add|delete|create> -store <file> [-password <pw>] [args]\n\n", prog)
	fmt.Fprintln(stderr, "Manage the PKCS#12 trust store holding trust anchors.")
	fmt.Fprintln(stderr, "")
	fmt.Fprintln(stderr, "Subcommands:")
	fmt.Fprintln(stderr, "  create               Create an empty trust store")
	fmt.Fprintln(stderr, "  list                 List the stored certificates")
	fmt.Fprintln(stderr, "  add <cert>...        Add the certificates of PEM or DER files")
	fmt.Fprintln(stderr, "  delete <id|cert>...  Delete certificates by id or by certificate file")
}

func keystoreCreate(path, password string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := keys.New(password).Save(path); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Created empty trust store %s\n", path)
	return nil
}

func keystoreList(path, password string) error {
	ks, err := keys.Load(path, password)
	if err != nil {
		return err
	}
	if ks.Len() == 0 {
		fmt.Fprintln(stdout, "Trust store is empty")
		return nil
	}
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBJECT\tNOT AFTER")
	for _, id := range ks.IDs() {
		cert, _ := ks.Certificate(id)
		fmt.Fprintf(w, "%s\t%s\t%s\n", id, cert.Subject.String(), cert.NotAfter.UTC().Format("2006-01-02"))
	}
	return w.Flush()
}

func keystoreAdd(path, password string, files []string) error {
	if len(files) == 0 {
		return errors.New("no certificate files given")
	}
	ks, err := keys.Load(path, password)
	if err != nil {
		return err
	}
	certs, err := keys.LoadCertsFromPemDerFiles(files)
	if err != nil {
		return err
	}
	for _, cert := range certs {
		id, added := ks.Add(cert)
		if added {
			fmt.Fprintf(stdout, "Added %s %s\n", id, cert.Subject.String())
		} else {
			fmt.Fprintf(stdout, "Skipped %s (already present)\n", id)
		}
	}
	return ks.Save(path)
}

// certificateRef resolves a delete argument: an existing file must hold
// exactly one certificate, anything else is taken as a certificate id.
func certificateRef(arg string) (string, error) {
	if fi, err := os.Stat(arg); err != nil || fi.IsDir() {
		return arg, nil
	}
	cert, err := keys.LoadCertFromPemDer(arg)
	if err != nil {
		return "", err
	}
	return evidence.CertificateID(cert), nil
}

func keystoreDelete(path, password string, ids []string) error {
	if len(ids) == 0 {
		return errors.New("no certificate ids given")
	}
	ks, err := keys.Load(path, password)
	if err != nil {
		return err
	}
	for _, arg := range ids {
		id, err := certificateRef(arg)
		if err != nil {
			return err
		}
		if err := ks.Delete(id); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Deleted %s\n", id)
	}
	return ks.Save(path)
}
