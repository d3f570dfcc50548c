package report

import (
	"fmt"
	"time"

	"github.com/georgepadayatti/adesval/sign/ades"
	"github.com/georgepadayatti/adesval/sign/validation"
)

// SimpleSignature is the collapsed verdict of one signature.
type SimpleSignature struct {
	ID            string             `json:"id"`
	Indication    ades.Indication    `json:"indication"`
	SubIndication ades.SubIndication `json:"subIndication,omitempty"`
	// SignatureLevel is the highest required level achieved, LevelNone if
	// the basic level failed.
	SignatureLevel ades.SignatureLevel `json:"signatureLevel"`
	RequiredLevel  ades.SignatureLevel `json:"requiredLevel"`
	ValidationTime time.Time           `json:"validationTime"`
	// BestSignatureTime is the proven signing time, nil without a valid
	// signature timestamp.
	BestSignatureTime *time.Time     `json:"bestSignatureTime,omitempty"`
	Errors            []ades.Message `json:"errors,omitempty"`
	Warnings          []ades.Message `json:"warnings,omitempty"`
}

// SimpleReport holds one collapsed verdict per signature.
type SimpleReport struct {
	ValidationTime time.Time          `json:"validationTime"`
	Signatures     []*SimpleSignature `json:"signatures"`
}

func newSimpleReport(res *validation.Result) *SimpleReport {
	required := ades.LevelB
	if res.Policy != nil {
		required = res.Policy.RequiredLevel
	}
	s := &SimpleReport{
		ValidationTime: res.ValidationTime,
		Signatures:     make([]*SimpleSignature, 0, len(res.Signatures)),
	}
	for _, sig := range res.Signatures {
		final, level := sig.Collapse(required)
		s.Signatures = append(s.Signatures, &SimpleSignature{
			ID:                sig.SignatureID,
			Indication:        final.Indication,
			SubIndication:     final.SubIndication,
			SignatureLevel:    level,
			RequiredLevel:     required,
			ValidationTime:    res.ValidationTime,
			BestSignatureTime: sig.ProvenTime,
			Errors:            final.Errors,
			Warnings:          sig.Basic.Conclusion.Warnings,
		})
	}
	return s
}

// SignatureIDs lists the validated signatures in evidence order.
func (s *SimpleReport) SignatureIDs() []string {
	ids := make([]string, len(s.Signatures))
	for i, sig := range s.Signatures {
		ids[i] = sig.ID
	}
	return ids
}

// FirstSignatureID returns the id of the first signature, empty if none.
func (s *SimpleReport) FirstSignatureID() string {
	if len(s.Signatures) == 0 {
		return ""
	}
	return s.Signatures[0].ID
}

// Signature returns the verdict of a signature.
func (s *SimpleReport) Signature(id string) (*SimpleSignature, error) {
	for _, sig := range s.Signatures {
		if sig.ID == id {
			return sig, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSignature, id)
}

// Indication returns the final indication of a signature.
func (s *SimpleReport) Indication(id string) (ades.Indication, error) {
	sig, err := s.Signature(id)
	if err != nil {
		return "", err
	}
	return sig.Indication, nil
}

// SubIndication returns the final sub-indication of a signature,
// SubIndicationNone when it is VALID.
func (s *SimpleReport) SubIndication(id string) (ades.SubIndication, error) {
	sig, err := s.Signature(id)
	if err != nil {
		return "", err
	}
	return sig.SubIndication, nil
}

// SignatureLevel returns the level a signature achieved.
func (s *SimpleReport) SignatureLevel(id string) (ades.SignatureLevel, error) {
	sig, err := s.Signature(id)
	if err != nil {
		return "", err
	}
	return sig.SignatureLevel, nil
}

// IsValid reports whether a signature's final indication is VALID.
func (s *SimpleReport) IsValid(id string) bool {
	ind, err := s.Indication(id)
	return err == nil && ind == ades.IndicationValid
}

// ValidSignaturesCount returns the number of VALID signatures.
func (s *SimpleReport) ValidSignaturesCount() int {
	n := 0
	for _, sig := range s.Signatures {
		if sig.Indication == ades.IndicationValid {
			n++
		}
	}
	return n
}

// SignaturesCount returns the number of validated signatures.
func (s *SimpleReport) SignaturesCount() int {
	return len(s.Signatures)
}
