// This file contains the basic building blocks (BBB) of AdES validation.

package validation

import (
	"fmt"
	"time"

	"github.com/georgepadayatti/adesval/certvalidator"
	"github.com/georgepadayatti/adesval/evidence"
	"github.com/georgepadayatti/adesval/sign/ades"
	"github.com/georgepadayatti/adesval/sign/timestamps"
)

// BlockKind identifies what a basic building block was computed for.
type BlockKind string

// Building block kinds.
const (
	BlockSignature BlockKind = "SIGNATURE"
	BlockLongTerm  BlockKind = "LONG_TERM_SIGNATURE"
	BlockTimestamp BlockKind = "TIMESTAMP"
)

// Names of the signature building block checks, in execution order.
const (
	CheckFormat                    = "FORMAT_CHECKING"
	CheckIdentifySigningCert       = "IDENTIFICATION_OF_THE_SIGNING_CERTIFICATE"
	CheckValidationContext         = "VALIDATION_CONTEXT_INITIALIZATION"
	CheckX509Certificate           = "X509_CERTIFICATE_VALIDATION"
	CheckCryptographicVerification = "CRYPTOGRAPHIC_VERIFICATION"
	CheckSignatureAcceptance       = "SIGNATURE_ACCEPTANCE_VALIDATION"
)

// ReferenceSource tells where a building block's reference instant came
// from.
type ReferenceSource string

// Reference instant sources, by precedence.
const (
	ReferenceProvenTime  ReferenceSource = "PROVEN_TIME"
	ReferenceClaimedTime ReferenceSource = "CLAIMED_SIGNING_TIME"
	ReferenceRunInstant  ReferenceSource = "VALIDATION_TIME"
)

// BasicBuildingBlock holds the outcome of every check applied to one
// signature or timestamp.
type BasicBuildingBlock struct {
	ID              string             `json:"id"`
	Kind            BlockKind          `json:"kind"`
	Checks          []ades.CheckResult `json:"checks"`
	ReferenceTime   time.Time          `json:"referenceTime"`
	ReferenceSource ReferenceSource    `json:"referenceSource,omitempty"`
	// Chain lists the certificate ids of the resolved chain, empty when
	// no chain could be built.
	Chain      []string         `json:"chain,omitempty"`
	Conclusion *ades.Conclusion `json:"conclusion"`
}

// IsValid returns true if the block concluded VALID.
func (b *BasicBuildingBlock) IsValid() bool {
	return b != nil && b.Conclusion.IsValid()
}

// Check returns the result of the named check.
func (b *BasicBuildingBlock) Check(name string) (ades.CheckResult, bool) {
	for _, c := range b.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return ades.CheckResult{}, false
}

// referenceInstant picks the instant signature checks are evaluated at: the
// proven time when one exists, else the claimed signing time, else the run
// instant.
func referenceInstant(sig *evidence.SignatureEvidence, proven *time.Time, runInstant time.Time) (time.Time, ReferenceSource) {
	switch {
	case proven != nil:
		return *proven, ReferenceProvenTime
	case sig.ClaimedSigningTime != nil:
		return *sig.ClaimedSigningTime, ReferenceClaimedTime
	default:
		return runInstant, ReferenceRunInstant
	}
}

// signatureCandidates returns the certificates chain building may use for a
// signature: the signing certificate and the supplied chain, or every
// document certificate when no chain was supplied.
func signatureCandidates(data *evidence.DiagnosticData, sig *evidence.SignatureEvidence) []*evidence.CertificateToken {
	return candidates(data, sig.SigningCertificateID, sig.CertificateChain)
}

func timestampCandidates(data *evidence.DiagnosticData, ts *evidence.TimestampToken) []*evidence.CertificateToken {
	return candidates(data, ts.SigningCertificateID, ts.CertificateChain)
}

func candidates(data *evidence.DiagnosticData, signingID string, chain []string) []*evidence.CertificateToken {
	if len(chain) == 0 {
		return append([]*evidence.CertificateToken(nil), data.Certificates...)
	}
	ids := chain
	if signingID != "" && !containsString(chain, signingID) {
		ids = append([]string{signingID}, chain...)
	}
	return data.CertificatesByID(ids)
}

// basicBuildingBlock runs the fixed, fail-fast check sequence for a
// signature. proven, when non-nil, is a time proven by a valid signature
// timestamp and supersedes the claimed signing time.
func (v *run) basicBuildingBlock(data *evidence.DiagnosticData, sig *evidence.SignatureEvidence, proven *time.Time, runInstant time.Time) *BasicBuildingBlock {
	block := &BasicBuildingBlock{ID: sig.ID, Kind: BlockSignature}
	var (
		signingCert *evidence.CertificateToken
		warnings    []string
	)

	checks := []ades.Check{
		{Name: CheckFormat, Run: func() *ades.Conclusion {
			if !sig.FormatValid {
				return ades.Invalid(ades.SubIndicationFormatFailure).
					AddError("format", fmt.Sprintf("signature %s is not well formed", sig.ID))
			}
			return nil
		}},
		{Name: CheckIdentifySigningCert, Run: func() *ades.Conclusion {
			cert, ok := data.Certificate(sig.SigningCertificateID)
			if sig.SigningCertificateID == "" || !ok {
				return ades.Indeterminate(ades.SubIndicationNoSigningCertificate).
					AddError("signingCertificate", fmt.Sprintf("signing certificate of %s not found", sig.ID))
			}
			signingCert = cert
			return nil
		}},
		{Name: CheckValidationContext, Run: func() *ades.Conclusion {
			block.ReferenceTime, block.ReferenceSource = referenceInstant(sig, proven, runInstant)
			return nil
		}},
		{Name: CheckX509Certificate, Run: func() *ades.Conclusion {
			res, err := v.resolver.Resolve(signingCert, signatureCandidates(data, sig), block.ReferenceTime)
			if res != nil {
				block.Chain = res.ChainIDs()
				warnings = res.Warnings
			}
			if err != nil {
				return ades.Indeterminate(certvalidator.SubIndicationFor(err)).AddError("x509", err.Error())
			}
			return nil
		}},
		{Name: CheckCryptographicVerification, Run: func() *ades.Conclusion {
			if !sig.SignatureIntact {
				return ades.Invalid(ades.SubIndicationCryptographicFailure).
					AddError("signatureValue", fmt.Sprintf("signature value of %s does not verify", sig.ID))
			}
			return nil
		}},
		{Name: CheckSignatureAcceptance, Run: func() *ades.Conclusion {
			return v.signatureAcceptance(data, sig, block.ReferenceTime)
		}},
	}

	block.Conclusion, block.Checks = ades.RunChecks(checks)
	for _, w := range warnings {
		block.Conclusion.AddWarning("revocation", w)
	}
	if !block.ReferenceTime.IsZero() {
		block.Conclusion.AddInfo("referenceTime",
			fmt.Sprintf("%s (%s)", block.ReferenceTime.UTC().Format(time.RFC3339), block.ReferenceSource))
	}
	return block
}

// signatureAcceptance checks algorithm acceptability and the policy's
// signature constraints at the reference instant.
func (v *run) signatureAcceptance(data *evidence.DiagnosticData, sig *evidence.SignatureEvidence, at time.Time) *ades.Conclusion {
	if c := v.policy.DigestConstraint(sig.DigestAlgorithm, at); !c.Allowed {
		return ades.Indeterminate(ades.SubIndicationCryptoConstraintsFailure).AddError("digestAlgorithm", c.FailureReason)
	}
	if c := v.policy.EncryptionConstraint(sig.EncryptionAlgorithm, at); !c.Allowed {
		return ades.Indeterminate(ades.SubIndicationCryptoConstraintsFailure).AddError("encryptionAlgorithm", c.FailureReason)
	}
	if violation := v.constraints.evaluate(data, sig, at); violation != nil {
		if violation.Err != nil {
			return ades.Indeterminate(ades.SubIndicationPolicyProcessingError).
				AddError("constraint", fmt.Sprintf("%s: %v", violation.Expr, violation.Err))
		}
		return ades.Invalid(ades.SubIndicationSigConstraintsFailure).
			AddError("constraint", fmt.Sprintf("constraint not satisfied: %s", violation.Expr))
	}
	return nil
}

// timestampBlock renders a timestamp validation result as a building block.
func timestampBlock(res *timestamps.Result) *BasicBuildingBlock {
	block := &BasicBuildingBlock{
		ID:              res.TimestampID,
		Kind:            BlockTimestamp,
		Checks:          res.Checks,
		ReferenceTime:   res.ProductionTime,
		ReferenceSource: ReferenceProvenTime,
		Conclusion:      res.Conclusion,
	}
	if res.Resolution != nil {
		block.Chain = res.Resolution.ChainIDs()
	}
	return block
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
