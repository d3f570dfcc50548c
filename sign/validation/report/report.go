// Package report renders validation results into a detailed report, which
// keeps every building block and per-level outcome, and a simple report,
// which collapses each signature to one verdict.
package report

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/georgepadayatti/adesval/sign/ades"
	"github.com/georgepadayatti/adesval/sign/validation"
)

// ErrUnknownSignature is returned by queries for a signature id absent
// from the report.
var ErrUnknownSignature = errors.New("unknown signature")

// reportNamespace scopes report identifiers.
var reportNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("adesval.report"))

// Fault reports a signature excluded from validation.
type Fault struct {
	SignatureID string `json:"signatureId"`
	Error       string `json:"error"`
}

// Reports bundles the reports derived from one validation run.
type Reports struct {
	// ID is derived from the document digest and the run instant, so
	// re-running identical input yields the same id.
	ID             string          `json:"id"`
	DocumentName   string          `json:"documentName,omitempty"`
	DocumentDigest string          `json:"documentDigest"`
	ValidationTime time.Time       `json:"validationTime"`
	Policy         string          `json:"policy"`
	Detailed       *DetailedReport `json:"detailedReport"`
	Simple         *SimpleReport   `json:"simpleReport"`
	Faults         []Fault         `json:"faults,omitempty"`
}

// New builds the reports of a validation result.
func New(res *validation.Result) *Reports {
	digest := hex.EncodeToString(res.DocumentDigest)
	r := &Reports{
		ID:             reportID(digest, res.ValidationTime),
		DocumentName:   res.DocumentName,
		DocumentDigest: digest,
		ValidationTime: res.ValidationTime,
		Detailed:       newDetailedReport(res),
		Simple:         newSimpleReport(res),
	}
	if res.Policy != nil {
		r.Policy = res.Policy.Description()
	}
	for _, f := range res.Faults {
		r.Faults = append(r.Faults, Fault{SignatureID: f.SignatureID, Error: f.Err.Error()})
	}
	return r
}

func reportID(digest string, at time.Time) string {
	return uuid.NewSHA1(reportNamespace, []byte(digest+"|"+at.UTC().Format(time.RFC3339Nano))).String()
}

// SignatureIDs lists every signature of the document, faulted ones
// included, in evidence order of the validated ones followed by the
// faulted ones.
func (r *Reports) SignatureIDs() []string {
	ids := r.Simple.SignatureIDs()
	for _, f := range r.Faults {
		ids = append(ids, f.SignatureID)
	}
	return ids
}

// Fault returns the fault recorded for a signature.
func (r *Reports) Fault(sigID string) (Fault, bool) {
	for _, f := range r.Faults {
		if f.SignatureID == sigID {
			return f, true
		}
	}
	return Fault{}, false
}

// Validate checks that every conclusion in the reports is well formed: a
// sub-indication is present iff the indication is not VALID.
func (r *Reports) Validate() error {
	for _, sig := range r.Detailed.Signatures {
		for _, lc := range sig.levels() {
			if err := lc.c.Validate(); err != nil {
				return fmt.Errorf("signature %s %s: %w", sig.ID, lc.name, err)
			}
		}
		for _, ts := range sig.Timestamps {
			if err := ts.Conclusion.Validate(); err != nil {
				return fmt.Errorf("timestamp %s: %w", ts.ID, err)
			}
		}
	}
	for _, b := range r.Detailed.BasicBuildingBlocks {
		if err := b.Conclusion.Validate(); err != nil {
			return fmt.Errorf("building block %s: %w", b.ID, err)
		}
	}
	for _, s := range r.Simple.Signatures {
		c := &ades.Conclusion{Indication: s.Indication, SubIndication: s.SubIndication}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("simple report %s: %w", s.ID, err)
		}
	}
	return nil
}

// MarshalIndent renders the reports as indented JSON.
func (r *Reports) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Canonical renders the reports as RFC 8785 canonical JSON. Identical runs
// yield byte-identical output.
func (r *Reports) Canonical() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reports: %w", err)
	}
	out, err := jcs.Transform(data)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize reports: %w", err)
	}
	return out, nil
}
