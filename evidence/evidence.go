// Package evidence provides the normalized, read-only snapshot of everything
// extracted from a signed document: signatures, certificates, revocation
// entries and timestamps.
//
// Values in this package are produced by format-specific extraction layers
// (XML, CMS or PDF signatures) and are never mutated by the validation
// engine. The engine does not branch on the container format.
package evidence

import (
	"fmt"
	"sync"
	"time"
)

// CertificateToken is an extracted X.509 certificate.
type CertificateToken struct {
	ID                 string    `json:"id"`
	SubjectDN          string    `json:"subjectDN"`
	IssuerDN           string    `json:"issuerDN"`
	SerialNumber       string    `json:"serialNumber"`
	NotBefore          time.Time `json:"notBefore"`
	NotAfter           time.Time `json:"notAfter"`
	PublicKeyAlgorithm string    `json:"publicKeyAlgorithm,omitempty"`
	SelfSigned         bool      `json:"selfSigned,omitempty"`
}

// IsValidAt checks whether t lies in the certificate validity period,
// bounds included.
func (c *CertificateToken) IsValidAt(t time.Time) bool {
	return !t.Before(c.NotBefore) && !t.After(c.NotAfter)
}

// IssuedBy reports whether the certificate's issuer DN matches the subject
// DN of issuer after normalization.
func (c *CertificateToken) IssuedBy(issuer *CertificateToken) bool {
	return issuer != nil && SameDN(c.IssuerDN, issuer.SubjectDN)
}

// String returns a short description of the certificate.
func (c *CertificateToken) String() string {
	return fmt.Sprintf("%s (serial %s)", c.SubjectDN, c.SerialNumber)
}

// CertificateChain is an ordered sequence of certificates from the signing
// certificate towards the trust anchor.
type CertificateChain []*CertificateToken

// LinkedCorrectly reports whether each entry's issuer DN matches the next
// entry's subject DN.
func (c CertificateChain) LinkedCorrectly() bool {
	for i := 0; i+1 < len(c); i++ {
		if !c[i].IssuedBy(c[i+1]) {
			return false
		}
	}
	return true
}

// IDs returns the identifiers of the chain entries.
func (c CertificateChain) IDs() []string {
	ids := make([]string, len(c))
	for i, cert := range c {
		ids[i] = cert.ID
	}
	return ids
}

// ByteRange identifies a region of the signed document.
type ByteRange struct {
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
}

// End returns the offset just past the range.
func (r ByteRange) End() int64 {
	return r.Offset + r.Length
}

// IsZero reports whether the range is empty and unset.
func (r ByteRange) IsZero() bool {
	return r.Offset == 0 && r.Length == 0
}

// Contains reports whether other lies entirely within r.
func (r ByteRange) Contains(other ByteRange) bool {
	return other.Offset >= r.Offset && other.End() <= r.End()
}

// Within reports whether the range fits in a document of the given size.
func (r ByteRange) Within(size int64) bool {
	return r.Offset >= 0 && r.Length >= 0 && r.End() <= size
}

// Slice returns the bytes of doc covered by r. The range must be within doc.
func (r ByteRange) Slice(doc []byte) []byte {
	return doc[r.Offset:r.End()]
}

func (r ByteRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Offset, r.End())
}

// RevocationStatus is the status reported by a revocation entry.
type RevocationStatus string

// Revocation status values.
const (
	StatusGood    RevocationStatus = "good"
	StatusRevoked RevocationStatus = "revoked"
	StatusUnknown RevocationStatus = "unknown"
)

// Severity orders statuses revoked > unknown > good.
func (s RevocationStatus) Severity() int {
	switch s {
	case StatusRevoked:
		return 2
	case StatusUnknown:
		return 1
	default:
		return 0
	}
}

// RevocationSource identifies where a revocation entry came from.
type RevocationSource string

// Revocation sources.
const (
	SourceCRL   RevocationSource = "CRL"
	SourceOCSP  RevocationSource = "OCSP"
	SourceOther RevocationSource = "OTHER"
)

// RevocationEntry is one piece of revocation evidence for a certificate.
type RevocationEntry struct {
	ID             string           `json:"id"`
	CertificateID  string           `json:"certificateId"`
	Status         RevocationStatus `json:"status"`
	ProductionTime time.Time        `json:"productionTime"`
	RevocationTime *time.Time       `json:"revocationTime,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	Source         RevocationSource `json:"source"`
}

// TimestampType is the kind of a timestamp token.
type TimestampType string

// Timestamp types.
const (
	SignatureTimestamp      TimestampType = "SIGNATURE_TIMESTAMP"
	ArchiveTimestamp        TimestampType = "ARCHIVE_TIMESTAMP"
	ContentTimestamp        TimestampType = "CONTENT_TIMESTAMP"
	ValidationDataTimestamp TimestampType = "VALIDATION_DATA_TIMESTAMP"
)

// TimestampToken is an extracted RFC 3161 timestamp.
type TimestampToken struct {
	ID                   string        `json:"id"`
	Type                 TimestampType `json:"type"`
	DigestAlgorithm      string        `json:"digestAlgorithm"`
	MessageImprint       []byte        `json:"messageImprint"`
	ProductionTime       time.Time     `json:"productionTime"`
	SigningCertificateID string        `json:"signingCertificateId,omitempty"`
	CertificateChain     []string      `json:"certificateChain,omitempty"`

	// CoveredRange is the region the message imprint was computed over.
	CoveredRange ByteRange `json:"coveredRange"`
	// TokenRange is where the token itself is stored in the document.
	TokenRange ByteRange `json:"tokenRange"`

	// SignatureIntact is the externally computed verification result of
	// the token's own signature.
	SignatureIntact bool `json:"signatureIntact"`
}

// SignatureEvidence is one signature found in the document.
type SignatureEvidence struct {
	ID                   string     `json:"id"`
	Format               string     `json:"format,omitempty"`
	DeclaredLevel        string     `json:"declaredLevel,omitempty"`
	DigestAlgorithm      string     `json:"digestAlgorithm"`
	EncryptionAlgorithm  string     `json:"encryptionAlgorithm"`
	ClaimedSigningTime   *time.Time `json:"claimedSigningTime,omitempty"`
	SigningCertificateID string     `json:"signingCertificateId,omitempty"`
	CertificateChain     []string   `json:"certificateChain,omitempty"`

	// FormatValid and SignatureIntact are supplied by the container parser.
	FormatValid     bool `json:"formatValid"`
	SignatureIntact bool `json:"signatureIntact"`

	SignatureRange ByteRange         `json:"signatureRange"`
	Timestamps     []*TimestampToken `json:"timestamps,omitempty"`
}

// TimestampsOfType returns the signature's timestamps of type typ, in
// evidence order.
func (s *SignatureEvidence) TimestampsOfType(typ TimestampType) []*TimestampToken {
	var out []*TimestampToken
	for _, ts := range s.Timestamps {
		if ts.Type == typ {
			out = append(out, ts)
		}
	}
	return out
}

// DiagnosticData is the full evidence snapshot for one document. It is
// built once and must not be modified after it has been handed to a
// validator; lookups are safe for concurrent use.
type DiagnosticData struct {
	DocumentName string               `json:"documentName,omitempty"`
	Document     []byte               `json:"document"`
	Signatures   []*SignatureEvidence `json:"signatures"`
	Certificates []*CertificateToken  `json:"certificates"`
	Revocations  []*RevocationEntry   `json:"revocations,omitempty"`

	once       sync.Once
	certs      map[string]*CertificateToken
	sigs       map[string]*SignatureEvidence
	timestamps map[string]*TimestampToken
}

func (d *DiagnosticData) index() {
	d.once.Do(func() {
		d.certs = make(map[string]*CertificateToken, len(d.Certificates))
		for _, c := range d.Certificates {
			if _, dup := d.certs[c.ID]; !dup {
				d.certs[c.ID] = c
			}
		}
		d.sigs = make(map[string]*SignatureEvidence, len(d.Signatures))
		d.timestamps = make(map[string]*TimestampToken)
		for _, s := range d.Signatures {
			if _, dup := d.sigs[s.ID]; !dup {
				d.sigs[s.ID] = s
			}
			for _, ts := range s.Timestamps {
				if _, dup := d.timestamps[ts.ID]; !dup {
					d.timestamps[ts.ID] = ts
				}
			}
		}
	})
}

// Certificate returns the certificate with the given id.
func (d *DiagnosticData) Certificate(id string) (*CertificateToken, bool) {
	d.index()
	c, ok := d.certs[id]
	return c, ok
}

// Signature returns the signature with the given id.
func (d *DiagnosticData) Signature(id string) (*SignatureEvidence, bool) {
	d.index()
	s, ok := d.sigs[id]
	return s, ok
}

// Timestamp returns the timestamp with the given id.
func (d *DiagnosticData) Timestamp(id string) (*TimestampToken, bool) {
	d.index()
	ts, ok := d.timestamps[id]
	return ts, ok
}

// CertificatesByID resolves ids to certificates, skipping unknown ids.
func (d *DiagnosticData) CertificatesByID(ids []string) []*CertificateToken {
	out := make([]*CertificateToken, 0, len(ids))
	for _, id := range ids {
		if c, ok := d.Certificate(id); ok {
			out = append(out, c)
		}
	}
	return out
}
