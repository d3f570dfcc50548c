package evidence

import (
	"sort"
	"time"
)

// SignatureIDs returns the ids of all signatures in evidence order.
func (d *DiagnosticData) SignatureIDs() []string {
	ids := make([]string, len(d.Signatures))
	for i, s := range d.Signatures {
		ids[i] = s.ID
	}
	return ids
}

// FirstSignatureID returns the id of the first signature, or "" if the
// document carries none.
func (d *DiagnosticData) FirstSignatureID() string {
	if len(d.Signatures) == 0 {
		return ""
	}
	return d.Signatures[0].ID
}

// SignatureDigestAlgorithm returns the digest algorithm of a signature.
func (d *DiagnosticData) SignatureDigestAlgorithm(sigID string) string {
	if s, ok := d.Signature(sigID); ok {
		return s.DigestAlgorithm
	}
	return ""
}

// SignatureEncryptionAlgorithm returns the encryption algorithm of a
// signature.
func (d *DiagnosticData) SignatureEncryptionAlgorithm(sigID string) string {
	if s, ok := d.Signature(sigID); ok {
		return s.EncryptionAlgorithm
	}
	return ""
}

// SignatureFormat returns the declared format of a signature.
func (d *DiagnosticData) SignatureFormat(sigID string) string {
	if s, ok := d.Signature(sigID); ok {
		return s.Format
	}
	return ""
}

// SignatureDate returns the claimed signing time of a signature.
func (d *DiagnosticData) SignatureDate(sigID string) (time.Time, bool) {
	s, ok := d.Signature(sigID)
	if !ok || s.ClaimedSigningTime == nil {
		return time.Time{}, false
	}
	return *s.ClaimedSigningTime, true
}

// SigningCertificateID returns the id of the signing certificate.
func (d *DiagnosticData) SigningCertificateID(sigID string) string {
	if s, ok := d.Signature(sigID); ok {
		return s.SigningCertificateID
	}
	return ""
}

// CertificateDN returns the subject DN of a certificate.
func (d *DiagnosticData) CertificateDN(certID string) string {
	if c, ok := d.Certificate(certID); ok {
		return c.SubjectDN
	}
	return ""
}

// CertificateIssuerDN returns the issuer DN of a certificate.
func (d *DiagnosticData) CertificateIssuerDN(certID string) string {
	if c, ok := d.Certificate(certID); ok {
		return c.IssuerDN
	}
	return ""
}

// CertificateSerialNumber returns the serial number of a certificate.
func (d *DiagnosticData) CertificateSerialNumber(certID string) string {
	if c, ok := d.Certificate(certID); ok {
		return c.SerialNumber
	}
	return ""
}

// SignatureCertificateChain returns the certificate ids supplied with a
// signature, signing certificate first. When includeAnchor is false a
// trailing self-signed certificate is dropped.
func (d *DiagnosticData) SignatureCertificateChain(sigID string, includeAnchor bool) []string {
	s, ok := d.Signature(sigID)
	if !ok {
		return nil
	}
	chain := append([]string(nil), s.CertificateChain...)
	if !includeAnchor && len(chain) > 0 {
		if last, ok := d.Certificate(chain[len(chain)-1]); ok && last.SelfSigned {
			chain = chain[:len(chain)-1]
		}
	}
	return chain
}

// TimestampIDs returns the ids of a signature's timestamps.
func (d *DiagnosticData) TimestampIDs(sigID string) []string {
	s, ok := d.Signature(sigID)
	if !ok {
		return nil
	}
	ids := make([]string, len(s.Timestamps))
	for i, ts := range s.Timestamps {
		ids[i] = ts.ID
	}
	return ids
}

// TimestampType returns the type of a timestamp.
func (d *DiagnosticData) TimestampType(tsID string) TimestampType {
	if ts, ok := d.Timestamp(tsID); ok {
		return ts.Type
	}
	return ""
}

// IsThereTLevel reports whether the signature carries a signature
// timestamp.
func (d *DiagnosticData) IsThereTLevel(sigID string) bool {
	s, ok := d.Signature(sigID)
	return ok && len(s.TimestampsOfType(SignatureTimestamp)) > 0
}

// IsThereALevel reports whether the signature carries an archive
// timestamp.
func (d *DiagnosticData) IsThereALevel(sigID string) bool {
	s, ok := d.Signature(sigID)
	return ok && len(s.TimestampsOfType(ArchiveTimestamp)) > 0
}

// IsBLevelTechnicallyValid reports whether the signature is well formed
// and its signature value verified.
func (d *DiagnosticData) IsBLevelTechnicallyValid(sigID string) bool {
	s, ok := d.Signature(sigID)
	return ok && s.FormatValid && s.SignatureIntact
}

// RevocationsFor returns the revocation entries about a certificate, ordered
// by production time then id.
func (d *DiagnosticData) RevocationsFor(certID string) []*RevocationEntry {
	var out []*RevocationEntry
	for _, r := range d.Revocations {
		if r.CertificateID == certID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ProductionTime.Equal(out[j].ProductionTime) {
			return out[i].ProductionTime.Before(out[j].ProductionTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
