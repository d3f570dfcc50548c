package validation

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/georgepadayatti/adesval/certvalidator"
	"github.com/georgepadayatti/adesval/evidence"
	"github.com/georgepadayatti/adesval/sign/ades"
)

var (
	// t0 is the claimed signing time of the fixture signature.
	t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	// runAt is the run instant used by tests.
	runAt = t0.AddDate(0, 0, 30)
)

// fixture document layout:
//
//	[0, 20)  signature value
//	[20, 30) signature timestamp token
//	[30, 40) archive timestamp token
var fixtureDocument = []byte("signature-value-0000STS-token-ATS-token-padding!")

var (
	sigRange   = evidence.ByteRange{Offset: 0, Length: 20}
	stsToken   = evidence.ByteRange{Offset: 20, Length: 10}
	atsToken   = evidence.ByteRange{Offset: 30, Length: 10}
	atsCovered = evidence.ByteRange{Offset: 0, Length: 30}
)

type pki struct {
	root, ca, leaf, tsa *evidence.CertificateToken
}

func newPKI() *pki {
	return &pki{
		root: &evidence.CertificateToken{
			ID: "root", SubjectDN: "CN=Root CA,O=Test", IssuerDN: "CN=Root CA,O=Test", SerialNumber: "1",
			NotBefore: t0.AddDate(-10, 0, 0), NotAfter: t0.AddDate(10, 0, 0), SelfSigned: true,
		},
		ca: &evidence.CertificateToken{
			ID: "ca", SubjectDN: "CN=Issuing CA,O=Test", IssuerDN: "CN=Root CA,O=Test", SerialNumber: "2",
			NotBefore: t0.AddDate(-5, 0, 0), NotAfter: t0.AddDate(5, 0, 0),
		},
		leaf: &evidence.CertificateToken{
			ID: "leaf", SubjectDN: "CN=Signer,O=Test", IssuerDN: "CN=Issuing CA,O=Test", SerialNumber: "3",
			NotBefore: t0.AddDate(-1, 0, 0), NotAfter: t0.AddDate(1, 0, 0), PublicKeyAlgorithm: "ECDSA",
		},
		tsa: &evidence.CertificateToken{
			ID: "tsa", SubjectDN: "CN=TSA,O=Test", IssuerDN: "CN=Issuing CA,O=Test", SerialNumber: "4",
			NotBefore: t0.AddDate(-2, 0, 0), NotAfter: t0.AddDate(3, 0, 0),
		},
	}
}

func imprint(r evidence.ByteRange) []byte {
	sum := sha256.Sum256(r.Slice(fixtureDocument))
	return sum[:]
}

func newTimestamp(id string, typ evidence.TimestampType, covered, token evidence.ByteRange, at time.Time) *evidence.TimestampToken {
	return &evidence.TimestampToken{
		ID:                   id,
		Type:                 typ,
		DigestAlgorithm:      "SHA256",
		MessageImprint:       imprint(covered),
		ProductionTime:       at,
		SigningCertificateID: "tsa",
		CertificateChain:     []string{"tsa", "ca", "root"},
		CoveredRange:         covered,
		TokenRange:           token,
		SignatureIntact:      true,
	}
}

func signatureTimestamp() *evidence.TimestampToken {
	return newTimestamp("STS-1", evidence.SignatureTimestamp, sigRange, stsToken, t0.Add(time.Hour))
}

func archiveTimestamp() *evidence.TimestampToken {
	return newTimestamp("ATS-1", evidence.ArchiveTimestamp, atsCovered, atsToken, t0.AddDate(0, 0, 1))
}

func newSignature(id string, timestamps ...*evidence.TimestampToken) *evidence.SignatureEvidence {
	claimed := t0
	return &evidence.SignatureEvidence{
		ID:                   id,
		Format:               "PAdES-BASELINE-B",
		DigestAlgorithm:      "SHA256",
		EncryptionAlgorithm:  "ECDSA",
		ClaimedSigningTime:   &claimed,
		SigningCertificateID: "leaf",
		CertificateChain:     []string{"leaf", "ca", "root"},
		FormatValid:          true,
		SignatureIntact:      true,
		SignatureRange:       sigRange,
		Timestamps:           timestamps,
	}
}

func newData(p *pki, sigs ...*evidence.SignatureEvidence) *evidence.DiagnosticData {
	return &evidence.DiagnosticData{
		DocumentName: "contract.pdf",
		Document:     fixtureDocument,
		Certificates: []*evidence.CertificateToken{p.root, p.ca, p.leaf, p.tsa},
		Signatures:   sigs,
	}
}

func newPolicy(p *pki, level ades.SignatureLevel) *Policy {
	policy := DefaultPolicy(certvalidator.NewTrustedSource(p.root))
	policy.RequiredLevel = level
	return policy
}

func newTestValidator(t *testing.T, policy *Policy, opts ...Option) *Validator {
	t.Helper()
	opts = append([]Option{WithValidationTime(runAt)}, opts...)
	v, err := NewValidator(policy, opts...)
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	return v
}

// assertConclusion fails the test unless c has the expected indication and
// sub-indication.
func assertConclusion(t *testing.T, what string, c *ades.Conclusion, ind ades.Indication, sub ades.SubIndication) {
	t.Helper()
	if c == nil {
		t.Fatalf("%s conclusion is nil", what)
	}
	if c.Indication != ind || c.SubIndication != sub {
		t.Errorf("%s = %s, want %s (%s)", what, c, ind, sub)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("%s is malformed: %v", what, err)
	}
}
