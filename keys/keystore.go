package keys

import (
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/georgepadayatti/adesval/certvalidator"
	"github.com/georgepadayatti/adesval/evidence"
)

// ErrCertificateNotFound is returned when a certificate id is not in the
// store.
var ErrCertificateNotFound = errors.New("certificate not found in keystore")

// KeyStore is a mutable PKCS#12 trust store. Certificates are identified by
// the hex SHA-256 of their DER encoding.
//
// A KeyStore is not safe for concurrent use. Validators never read it
// directly; they read the immutable source returned by Snapshot.
type KeyStore struct {
	password string
	certs    []*x509.Certificate
	ids      []string
	byID     map[string]int
}

// New creates an empty keystore protected by password.
func New(password string) *KeyStore {
	return &KeyStore{password: password, byID: make(map[string]int)}
}

// Load reads a PKCS#12 trust store from a file.
func Load(path, password string) (*KeyStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore %s: %w", path, err)
	}
	ks, err := LoadData(data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to load keystore %s: %w", path, err)
	}
	return ks, nil
}

// LoadData decodes a PKCS#12 trust store.
func LoadData(data []byte, password string) (*KeyStore, error) {
	certs, err := pkcs12.DecodeTrustStore(data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode trust store: %w", err)
	}
	ks := New(password)
	for _, c := range certs {
		ks.Add(c)
	}
	return ks, nil
}

// Add inserts a certificate and returns its id. Adding a certificate that
// is already present is a no-op reported by added == false.
func (ks *KeyStore) Add(cert *x509.Certificate) (id string, added bool) {
	id = evidence.CertificateID(cert)
	if _, ok := ks.byID[id]; ok {
		return id, false
	}
	ks.byID[id] = len(ks.certs)
	ks.certs = append(ks.certs, cert)
	ks.ids = append(ks.ids, id)
	return id, true
}

// Delete removes the certificate with the given id.
func (ks *KeyStore) Delete(id string) error {
	i, ok := ks.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCertificateNotFound, id)
	}
	ks.certs = append(ks.certs[:i], ks.certs[i+1:]...)
	ks.ids = append(ks.ids[:i], ks.ids[i+1:]...)
	delete(ks.byID, id)
	for j := i; j < len(ks.ids); j++ {
		ks.byID[ks.ids[j]] = j
	}
	return nil
}

// Certificate returns the certificate with the given id.
func (ks *KeyStore) Certificate(id string) (*x509.Certificate, bool) {
	i, ok := ks.byID[id]
	if !ok {
		return nil, false
	}
	return ks.certs[i], true
}

// Certificates returns the stored certificates in insertion order.
func (ks *KeyStore) Certificates() []*x509.Certificate {
	return append([]*x509.Certificate(nil), ks.certs...)
}

// IDs returns the certificate ids in insertion order.
func (ks *KeyStore) IDs() []string {
	return append([]string(nil), ks.ids...)
}

// Len returns the number of stored certificates.
func (ks *KeyStore) Len() int {
	return len(ks.certs)
}

// SetPassword changes the password used by Store and Save.
func (ks *KeyStore) SetPassword(password string) {
	ks.password = password
}

// Store writes the keystore to w as a PKCS#12 trust store.
func (ks *KeyStore) Store(w io.Writer) error {
	entries := make([]pkcs12.TrustStoreEntry, len(ks.certs))
	for i, c := range ks.certs {
		entries[i] = pkcs12.TrustStoreEntry{Cert: c, FriendlyName: ks.ids[i]}
	}
	data, err := pkcs12.Modern.EncodeTrustStoreEntries(entries, ks.password)
	if err != nil {
		return fmt.Errorf("failed to encode trust store: %w", err)
	}
	_, err = io.Copy(w, bytes.NewReader(data))
	return err
}

// Save writes the keystore to path. The file is replaced atomically.
func (ks *KeyStore) Save(path string) error {
	var buf bytes.Buffer
	if err := ks.Store(&buf); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".keystore-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary keystore: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("failed to set keystore permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save keystore %s: %w", path, err)
	}
	return nil
}

// Snapshot returns an immutable trust anchor source holding the current
// certificates. Later changes to the keystore do not affect it.
func (ks *KeyStore) Snapshot() *certvalidator.TrustedSource {
	return certvalidator.NewTrustedSource(evidence.CertificatesFromX509(ks.certs)...)
}
