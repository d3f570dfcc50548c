// Package timestamps validates RFC 3161 timestamp tokens extracted from
// signed documents: message imprint, token integrity and the trust chain of
// the issuing TSA.
package timestamps

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/georgepadayatti/adesval/certvalidator"
	"github.com/georgepadayatti/adesval/evidence"
	"github.com/georgepadayatti/adesval/sign/ades"
)

// Check names recorded in timestamp results.
const (
	CheckMessageImprint   = "MESSAGE_IMPRINT"
	CheckTokenIntegrity   = "TOKEN_SIGNATURE_INTEGRITY"
	CheckSigningCert      = "IDENTIFY_TSA_CERTIFICATE"
	CheckTSACertificate   = "TSA_CERTIFICATE_VALIDATION"
	CheckDigestAcceptance = "DIGEST_ALGORITHM_ACCEPTANCE"
)

// AlgorithmPolicy decides whether a digest algorithm is acceptable at an
// instant.
type AlgorithmPolicy interface {
	DigestAcceptable(name string, at time.Time) bool
}

// Result is the outcome of validating one timestamp.
type Result struct {
	TimestampID    string
	Type           evidence.TimestampType
	Conclusion     *ades.Conclusion
	ProductionTime time.Time
	// Resolution is the TSA chain, nil if it could not be built.
	Resolution *certvalidator.Resolution
	Checks     []ades.CheckResult
}

// IsValid returns true if the timestamp validated.
func (r *Result) IsValid() bool {
	return r != nil && r.Conclusion.IsValid()
}

// SigningCertificate returns the TSA certificate, nil if unresolved.
func (r *Result) SigningCertificate() *evidence.CertificateToken {
	if r == nil || r.Resolution == nil || len(r.Resolution.Chain) == 0 {
		return nil
	}
	return r.Resolution.Chain[0]
}

// Validator validates timestamp tokens. It is safe for concurrent use.
type Validator struct {
	resolver   *certvalidator.Resolver
	algorithms AlgorithmPolicy
}

// NewValidator creates a timestamp validator. A nil algorithms policy
// accepts every registered digest algorithm.
func NewValidator(resolver *certvalidator.Resolver, algorithms AlgorithmPolicy) *Validator {
	return &Validator{resolver: resolver, algorithms: algorithms}
}

// Validate checks ts against the bytes of document it declares to cover.
// Checks run in order and stop at the first failure:
//  1. message imprint recomputed over the covered range
//  2. token signature integrity
//  3. TSA signing certificate identification
//  4. TSA chain resolution at the production time
//  5. digest algorithm acceptability at the production time
//
// A covered range outside the document is an evidence fault and is returned
// as a *evidence.MalformedEvidenceError.
func (v *Validator) Validate(ts *evidence.TimestampToken, document []byte, candidates []*evidence.CertificateToken) (*Result, error) {
	if !ts.CoveredRange.Within(int64(len(document))) {
		return nil, evidence.NewMalformedEvidenceError("",
			"timestamp %s covers range %s outside document of %d bytes", ts.ID, ts.CoveredRange, len(document))
	}

	res := &Result{
		TimestampID:    ts.ID,
		Type:           ts.Type,
		ProductionTime: ts.ProductionTime,
	}
	var signer *evidence.CertificateToken

	checks := []ades.Check{
		{Name: CheckMessageImprint, Run: func() *ades.Conclusion {
			return checkImprint(ts, document)
		}},
		{Name: CheckTokenIntegrity, Run: func() *ades.Conclusion {
			if !ts.SignatureIntact {
				return ades.Invalid(ades.SubIndicationCryptographicFailure).
					AddError("tsp", fmt.Sprintf("signature of timestamp %s does not verify", ts.ID))
			}
			return nil
		}},
		{Name: CheckSigningCert, Run: func() *ades.Conclusion {
			signer = findCertificate(ts.SigningCertificateID, candidates)
			if signer == nil {
				return ades.Indeterminate(ades.SubIndicationNoSigningCertificate).
					AddError("tsp", fmt.Sprintf("signing certificate of timestamp %s not found", ts.ID))
			}
			return nil
		}},
		{Name: CheckTSACertificate, Run: func() *ades.Conclusion {
			resolution, err := v.resolver.Resolve(signer, candidates, ts.ProductionTime)
			res.Resolution = resolution
			if err != nil {
				return ades.Indeterminate(certvalidator.SubIndicationFor(err)).AddError("tsa", err.Error())
			}
			return nil
		}},
		{Name: CheckDigestAcceptance, Run: func() *ades.Conclusion {
			if v.algorithms != nil && !v.algorithms.DigestAcceptable(ts.DigestAlgorithm, ts.ProductionTime) {
				return ades.Indeterminate(ades.SubIndicationCryptoConstraintsFailure).
					AddError("tsp", fmt.Sprintf("digest algorithm %s not acceptable at %s",
						ts.DigestAlgorithm, ts.ProductionTime.Format(time.RFC3339)))
			}
			return nil
		}},
	}

	res.Conclusion, res.Checks = ades.RunChecks(checks)
	if res.Conclusion.IsValid() && res.Resolution != nil {
		for _, w := range res.Resolution.Warnings {
			res.Conclusion.AddWarning("tsa", w)
		}
	}
	return res, nil
}

func checkImprint(ts *evidence.TimestampToken, document []byte) *ades.Conclusion {
	digest, err := Digest(ts.DigestAlgorithm, ts.CoveredRange.Slice(document))
	if err != nil {
		return ades.Indeterminate(ades.SubIndicationCryptoConstraintsFailure).AddError("tsp", err.Error())
	}
	if len(digest) != len(ts.MessageImprint) || subtle.ConstantTimeCompare(digest, ts.MessageImprint) != 1 {
		return ades.Invalid(ades.SubIndicationHashFailure).
			AddError("tsp", fmt.Sprintf("message imprint of timestamp %s does not match range %s", ts.ID, ts.CoveredRange))
	}
	return nil
}

func findCertificate(id string, candidates []*evidence.CertificateToken) *evidence.CertificateToken {
	if id == "" {
		return nil
	}
	for _, c := range candidates {
		if c != nil && c.ID == id {
			return c
		}
	}
	return nil
}

// Covers reports whether ts covers every given range.
func Covers(ts *evidence.TimestampToken, ranges ...evidence.ByteRange) bool {
	for _, r := range ranges {
		if !ts.CoveredRange.Contains(r) {
			return false
		}
	}
	return true
}
