package evidence

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/ocsp"
)

// CertificateID returns the identifier used for a certificate: the hex
// SHA-256 digest of its DER encoding.
func CertificateID(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// CertificateFromX509 converts a parsed certificate into a token.
func CertificateFromX509(cert *x509.Certificate) *CertificateToken {
	selfSigned := bytes.Equal(cert.RawSubject, cert.RawIssuer) &&
		cert.CheckSignatureFrom(cert) == nil
	return &CertificateToken{
		ID:                 CertificateID(cert),
		SubjectDN:          cert.Subject.String(),
		IssuerDN:           cert.Issuer.String(),
		SerialNumber:       cert.SerialNumber.String(),
		NotBefore:          cert.NotBefore.UTC(),
		NotAfter:           cert.NotAfter.UTC(),
		PublicKeyAlgorithm: cert.PublicKeyAlgorithm.String(),
		SelfSigned:         selfSigned,
	}
}

// CertificatesFromX509 converts a list of parsed certificates.
func CertificatesFromX509(certs []*x509.Certificate) []*CertificateToken {
	out := make([]*CertificateToken, len(certs))
	for i, c := range certs {
		out[i] = CertificateFromX509(c)
	}
	return out
}

// RevocationFromOCSP converts an already fetched OCSP response about the
// certificate certID into a revocation entry.
func RevocationFromOCSP(resp *ocsp.Response, certID string) *RevocationEntry {
	produced := resp.ProducedAt
	if produced.IsZero() {
		produced = resp.ThisUpdate
	}

	entry := &RevocationEntry{
		CertificateID:  certID,
		ProductionTime: produced.UTC(),
		Source:         SourceOCSP,
	}
	if len(resp.Raw) > 0 {
		sum := sha256.Sum256(resp.Raw)
		entry.ID = "ocsp-" + hex.EncodeToString(sum[:8])
	} else {
		entry.ID = fmt.Sprintf("ocsp-%s-%d", shortID(certID), produced.Unix())
	}

	switch resp.Status {
	case ocsp.Good:
		entry.Status = StatusGood
	case ocsp.Revoked:
		entry.Status = StatusRevoked
		rt := resp.RevokedAt.UTC()
		entry.RevocationTime = &rt
		entry.Reason = crlReasonName(resp.RevocationReason)
	default:
		entry.Status = StatusUnknown
	}
	return entry
}

// RevocationsFromCRL produces one revocation entry for every certificate in
// certs issued by the CRL's issuer. Certificates not listed as revoked are
// reported good as of the CRL's thisUpdate.
func RevocationsFromCRL(crl *x509.RevocationList, certs []*x509.Certificate) []*RevocationEntry {
	sum := sha256.Sum256(crl.Raw)
	crlID := hex.EncodeToString(sum[:8])
	produced := crl.ThisUpdate.UTC()

	var out []*RevocationEntry
	for _, cert := range certs {
		if !bytes.Equal(cert.RawIssuer, crl.RawIssuer) {
			continue
		}
		certID := CertificateID(cert)
		entry := &RevocationEntry{
			ID:             fmt.Sprintf("crl-%s-%s", crlID, shortID(certID)),
			CertificateID:  certID,
			Status:         StatusGood,
			ProductionTime: produced,
			Source:         SourceCRL,
		}
		for _, rc := range crl.RevokedCertificateEntries {
			if rc.SerialNumber != nil && rc.SerialNumber.Cmp(cert.SerialNumber) == 0 {
				entry.Status = StatusRevoked
				rt := rc.RevocationTime.UTC()
				entry.RevocationTime = &rt
				entry.Reason = crlReasonName(rc.ReasonCode)
				break
			}
		}
		out = append(out, entry)
	}
	return out
}

func shortID(id string) string {
	if len(id) > 16 {
		return id[:16]
	}
	return id
}

// crlReasonName returns the RFC 5280 name of a CRL reason code.
func crlReasonName(code int) string {
	switch code {
	case ocsp.Unspecified:
		return "unspecified"
	case ocsp.KeyCompromise:
		return "keyCompromise"
	case ocsp.CACompromise:
		return "cACompromise"
	case ocsp.AffiliationChanged:
		return "affiliationChanged"
	case ocsp.Superseded:
		return "superseded"
	case ocsp.CessationOfOperation:
		return "cessationOfOperation"
	case ocsp.CertificateHold:
		return "certificateHold"
	case ocsp.RemoveFromCRL:
		return "removeFromCRL"
	case ocsp.PrivilegeWithdrawn:
		return "privilegeWithdrawn"
	case ocsp.AACompromise:
		return "aACompromise"
	default:
		return fmt.Sprintf("reason(%d)", code)
	}
}
