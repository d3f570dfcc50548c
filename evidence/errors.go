package evidence

import (
	"errors"
	"fmt"
)

// ErrMalformedEvidence is matched by every MalformedEvidenceError.
var ErrMalformedEvidence = errors.New("malformed evidence")

// MalformedEvidenceError reports evidence that is structurally inconsistent:
// dangling references, byte ranges outside the document, duplicate ids.
// It is an engine fault, not a validation outcome.
type MalformedEvidenceError struct {
	// SignatureID is the signature the fault belongs to, empty for
	// document-level faults.
	SignatureID string
	Message     string
	Err         error
}

func (e *MalformedEvidenceError) Error() string {
	prefix := ErrMalformedEvidence.Error()
	if e.SignatureID != "" {
		prefix = fmt.Sprintf("%s in signature %s", prefix, e.SignatureID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error.
func (e *MalformedEvidenceError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrMalformedEvidence) succeed.
func (e *MalformedEvidenceError) Is(target error) bool {
	return target == ErrMalformedEvidence
}

// NewMalformedEvidenceError creates a new MalformedEvidenceError.
func NewMalformedEvidenceError(sigID, format string, args ...interface{}) *MalformedEvidenceError {
	return &MalformedEvidenceError{SignatureID: sigID, Message: fmt.Sprintf(format, args...)}
}
