package timestamps

import (
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/georgepadayatti/adesval/certvalidator"
	"github.com/georgepadayatti/adesval/certvalidator/revinfo"
	"github.com/georgepadayatti/adesval/evidence"
	"github.com/georgepadayatti/adesval/sign/ades"
)

var (
	t0  = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	doc = []byte("signed document bytes followed by signature value")
)

type tsaFixture struct {
	root, tsa  *evidence.CertificateToken
	resolver   *certvalidator.Resolver
	candidates []*evidence.CertificateToken
}

func newTSAFixture() *tsaFixture {
	root := &evidence.CertificateToken{
		ID: "tsa-root", SubjectDN: "CN=TSA Root", IssuerDN: "CN=TSA Root",
		NotBefore: t0.AddDate(-10, 0, 0), NotAfter: t0.AddDate(10, 0, 0), SelfSigned: true,
	}
	tsa := &evidence.CertificateToken{
		ID: "tsa", SubjectDN: "CN=TSA Unit", IssuerDN: "CN=TSA Root",
		NotBefore: t0.AddDate(-1, 0, 0), NotAfter: t0.AddDate(1, 0, 0),
	}
	idx := revinfo.NewIndex([]*evidence.RevocationEntry{{
		ID: "tsa-ocsp", CertificateID: "tsa", Status: evidence.StatusGood,
		ProductionTime: t0.Add(time.Hour), Source: evidence.SourceOCSP,
	}})
	return &tsaFixture{
		root:       root,
		tsa:        tsa,
		resolver:   certvalidator.NewResolver(certvalidator.NewTrustedSource(root), idx),
		candidates: []*evidence.CertificateToken{tsa, root},
	}
}

func newToken(r evidence.ByteRange) *evidence.TimestampToken {
	sum := sha256.Sum256(r.Slice(doc))
	return &evidence.TimestampToken{
		ID:                   "T-1",
		Type:                 evidence.SignatureTimestamp,
		DigestAlgorithm:      "SHA-256",
		MessageImprint:       sum[:],
		ProductionTime:       t0.Add(5 * time.Minute),
		SigningCertificateID: "tsa",
		CertificateChain:     []string{"tsa", "tsa-root"},
		CoveredRange:         r,
		SignatureIntact:      true,
	}
}

type sha1Forbidden struct{}

func (sha1Forbidden) DigestAcceptable(name string, _ time.Time) bool {
	return CanonicalDigestName(name) != "SHA1"
}

func TestValidate(t *testing.T) {
	covered := evidence.ByteRange{Offset: 0, Length: 21}

	tests := []struct {
		name     string
		mutate   func(f *tsaFixture, ts *evidence.TimestampToken)
		policy   AlgorithmPolicy
		wantInd  ades.Indication
		wantSub  ades.SubIndication
		failedAt string
	}{
		{
			name:    "valid",
			wantInd: ades.IndicationValid,
		},
		{
			name:     "imprint mismatch",
			mutate:   func(_ *tsaFixture, ts *evidence.TimestampToken) { ts.MessageImprint[0] ^= 0xff },
			wantInd:  ades.IndicationInvalid,
			wantSub:  ades.SubIndicationHashFailure,
			failedAt: CheckMessageImprint,
		},
		{
			name: "imprint over another range",
			mutate: func(_ *tsaFixture, ts *evidence.TimestampToken) {
				ts.CoveredRange = evidence.ByteRange{Offset: 1, Length: 21}
			},
			wantInd:  ades.IndicationInvalid,
			wantSub:  ades.SubIndicationHashFailure,
			failedAt: CheckMessageImprint,
		},
		{
			name:     "unknown digest",
			mutate:   func(_ *tsaFixture, ts *evidence.TimestampToken) { ts.DigestAlgorithm = "MD2" },
			wantInd:  ades.IndicationIndeterminate,
			wantSub:  ades.SubIndicationCryptoConstraintsFailure,
			failedAt: CheckMessageImprint,
		},
		{
			name:     "broken token signature",
			mutate:   func(_ *tsaFixture, ts *evidence.TimestampToken) { ts.SignatureIntact = false },
			wantInd:  ades.IndicationInvalid,
			wantSub:  ades.SubIndicationCryptographicFailure,
			failedAt: CheckTokenIntegrity,
		},
		{
			name:     "missing signing certificate",
			mutate:   func(_ *tsaFixture, ts *evidence.TimestampToken) { ts.SigningCertificateID = "" },
			wantInd:  ades.IndicationIndeterminate,
			wantSub:  ades.SubIndicationNoSigningCertificate,
			failedAt: CheckSigningCert,
		},
		{
			name: "TSA certificate expired at production time",
			mutate: func(_ *tsaFixture, ts *evidence.TimestampToken) {
				ts.ProductionTime = t0.AddDate(2, 0, 0)
			},
			wantInd:  ades.IndicationIndeterminate,
			wantSub:  ades.SubIndicationExpired,
			failedAt: CheckTSACertificate,
		},
		{
			name: "untrusted TSA",
			mutate: func(f *tsaFixture, _ *evidence.TimestampToken) {
				f.resolver = certvalidator.NewResolver(certvalidator.NewTrustedSource(), nil)
			},
			wantInd:  ades.IndicationIndeterminate,
			wantSub:  ades.SubIndicationNoTrustedChain,
			failedAt: CheckTSACertificate,
		},
		{
			name: "digest not acceptable",
			mutate: func(_ *tsaFixture, ts *evidence.TimestampToken) {
				sum, _ := Digest("SHA1", ts.CoveredRange.Slice(doc))
				ts.DigestAlgorithm = "SHA1"
				ts.MessageImprint = sum
			},
			policy:   sha1Forbidden{},
			wantInd:  ades.IndicationIndeterminate,
			wantSub:  ades.SubIndicationCryptoConstraintsFailure,
			failedAt: CheckDigestAcceptance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTSAFixture()
			ts := newToken(covered)
			if tt.mutate != nil {
				tt.mutate(f, ts)
			}
			res, err := NewValidator(f.resolver, tt.policy).Validate(ts, doc, f.candidates)
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if res.Conclusion.Indication != tt.wantInd || res.Conclusion.SubIndication != tt.wantSub {
				t.Errorf("Validate() = %s, want %s/%s", res.Conclusion, tt.wantInd, tt.wantSub)
			}
			if err := res.Conclusion.Validate(); err != nil {
				t.Errorf("conclusion is malformed: %v", err)
			}
			if len(res.Checks) != 5 {
				t.Fatalf("len(Checks) = %d, want 5", len(res.Checks))
			}
			if tt.failedAt == "" {
				return
			}
			skipping := false
			for _, c := range res.Checks {
				switch {
				case c.Name == tt.failedAt:
					if c.Status != ades.CheckFailed {
						t.Errorf("check %s status = %s, want FAILED", c.Name, c.Status)
					}
					skipping = true
				case skipping && c.Status != ades.CheckSkipped:
					t.Errorf("check %s after failure status = %s, want SKIPPED", c.Name, c.Status)
				case !skipping && c.Status != ades.CheckPassed:
					t.Errorf("check %s before failure status = %s, want PASSED", c.Name, c.Status)
				}
			}
		})
	}
}

func TestValidateReportsTSAChain(t *testing.T) {
	f := newTSAFixture()
	res, err := NewValidator(f.resolver, nil).Validate(newToken(evidence.ByteRange{Offset: 0, Length: 10}), doc, f.candidates)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !res.IsValid() {
		t.Fatalf("Validate() = %s, want VALID", res.Conclusion)
	}
	if got := res.SigningCertificate(); got == nil || got.ID != "tsa" {
		t.Errorf("SigningCertificate() = %v, want tsa", got)
	}
	if !res.ProductionTime.Equal(t0.Add(5 * time.Minute)) {
		t.Errorf("ProductionTime = %v", res.ProductionTime)
	}
}

func TestValidateRangeOutsideDocument(t *testing.T) {
	f := newTSAFixture()
	ts := newToken(evidence.ByteRange{Offset: 0, Length: 10})
	ts.CoveredRange = evidence.ByteRange{Offset: 40, Length: 100}

	_, err := NewValidator(f.resolver, nil).Validate(ts, doc, f.candidates)
	if !errors.Is(err, evidence.ErrMalformedEvidence) {
		t.Errorf("Validate() error = %v, want malformed evidence", err)
	}
}

func TestCovers(t *testing.T) {
	ts := &evidence.TimestampToken{CoveredRange: evidence.ByteRange{Offset: 0, Length: 50}}
	if !Covers(ts, evidence.ByteRange{Offset: 0, Length: 20}, evidence.ByteRange{Offset: 20, Length: 30}) {
		t.Error("expected ranges to be covered")
	}
	if Covers(ts, evidence.ByteRange{Offset: 40, Length: 20}) {
		t.Error("expected range past the end not to be covered")
	}
}
