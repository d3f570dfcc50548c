package timestamps

import (
	"crypto"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ErrUnsupportedDigest is returned for digest algorithms outside the
// registry.
var ErrUnsupportedDigest = errors.New("unsupported digest algorithm")

// DigestAlgorithm describes a registered digest algorithm.
type DigestAlgorithm struct {
	// Name is the canonical name, e.g. "SHA256" or "SHA3-256".
	Name string
	OID  string
	Size int
	New  func() hash.Hash
}

var digestRegistry = []DigestAlgorithm{
	{Name: "SHA1", OID: "1.3.14.3.2.26", Size: crypto.SHA1.Size(), New: sha1.New},
	{Name: "SHA224", OID: "2.16.840.1.101.3.4.2.4", Size: crypto.SHA224.Size(), New: sha256.New224},
	{Name: "SHA256", OID: "2.16.840.1.101.3.4.2.1", Size: crypto.SHA256.Size(), New: sha256.New},
	{Name: "SHA384", OID: "2.16.840.1.101.3.4.2.2", Size: crypto.SHA384.Size(), New: sha512.New384},
	{Name: "SHA512", OID: "2.16.840.1.101.3.4.2.3", Size: crypto.SHA512.Size(), New: sha512.New},
	{Name: "SHA3-256", OID: "2.16.840.1.101.3.4.2.8", Size: 32, New: sha3.New256},
	{Name: "SHA3-384", OID: "2.16.840.1.101.3.4.2.9", Size: 48, New: sha3.New384},
	{Name: "SHA3-512", OID: "2.16.840.1.101.3.4.2.10", Size: 64, New: sha3.New512},
}

// normalizeDigestName folds spellings such as "sha-256", "SHA_256" and
// "sha256" to one key. SHA-3 names keep their family separator.
func normalizeDigestName(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	if rest, ok := sha3Size(n); ok {
		return "SHA3-" + rest
	}
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(n)
}

// sha3Size returns the output size of a SHA-3 name. "SHA384" is SHA-2:
// without a separator, SHA3 must be followed by a full SHA-3 size.
func sha3Size(n string) (string, bool) {
	if !strings.HasPrefix(n, "SHA3") {
		return "", false
	}
	rest := n[len("SHA3"):]
	if trimmed := strings.TrimLeft(rest, "-_ "); trimmed != rest {
		return trimmed, true
	}
	switch rest {
	case "224", "256", "384", "512":
		return rest, true
	}
	return "", false
}

// LookupDigest finds a digest algorithm by name or dotted OID.
func LookupDigest(name string) (DigestAlgorithm, error) {
	key := normalizeDigestName(name)
	for _, d := range digestRegistry {
		if d.Name == key || d.OID == strings.TrimSpace(name) {
			return d, nil
		}
	}
	return DigestAlgorithm{}, fmt.Errorf("%w: %q", ErrUnsupportedDigest, name)
}

// CanonicalDigestName returns the registry name for a digest algorithm, or
// the normalized input when the algorithm is unknown.
func CanonicalDigestName(name string) string {
	if d, err := LookupDigest(name); err == nil {
		return d.Name
	}
	return normalizeDigestName(name)
}

// Digest computes the digest of data with the named algorithm.
func Digest(name string, data []byte) ([]byte, error) {
	d, err := LookupDigest(name)
	if err != nil {
		return nil, err
	}
	h := d.New()
	h.Write(data)
	return h.Sum(nil), nil
}
