// Package ades provides the closed vocabularies of AdES validation:
// indications, sub-indications and baseline signature levels, as used by
// ETSI EN 319 102-1 validation reports.
package ades

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	ErrUnknownIndication    = errors.New("unknown indication")
	ErrUnknownSubIndication = errors.New("unknown sub-indication")
	ErrUnknownLevel         = errors.New("unknown signature level")
)

// Indication is the top-level verdict of a validation process.
type Indication string

// Validation indication values.
const (
	IndicationValid         Indication = "VALID"
	IndicationIndeterminate Indication = "INDETERMINATE"
	IndicationInvalid       Indication = "INVALID"
)

// String returns the string representation of the indication.
func (i Indication) String() string {
	return string(i)
}

// IsKnown reports whether i is a member of the closed set of indications.
func (i Indication) IsKnown() bool {
	switch i {
	case IndicationValid, IndicationIndeterminate, IndicationInvalid:
		return true
	}
	return false
}

// ParseIndication parses an indication name.
func ParseIndication(s string) (Indication, error) {
	ind := Indication(strings.ToUpper(strings.TrimSpace(s)))
	if !ind.IsKnown() {
		return "", fmt.Errorf("%w: %q", ErrUnknownIndication, s)
	}
	return ind, nil
}

// SubIndication narrows the reason for a non-VALID indication.
// The empty SubIndication means "none" and is only legal together with
// IndicationValid.
type SubIndication string

// Sub-indication values.
const (
	SubIndicationNone SubIndication = ""

	// INVALID sub-indications
	SubIndicationFormatFailure         SubIndication = "FORMAT_FAILURE"
	SubIndicationHashFailure           SubIndication = "HASH_FAILURE"
	SubIndicationCryptographicFailure  SubIndication = "CRYPTOGRAPHIC_FAILURE"
	SubIndicationSigConstraintsFailure SubIndication = "SIG_CONSTRAINTS_FAILURE"

	// INDETERMINATE sub-indications
	SubIndicationNoSigningCertificate     SubIndication = "NO_SIGNING_CERTIFICATE"
	SubIndicationNoTrustedChain           SubIndication = "NO_TRUSTED_CHAIN"
	SubIndicationExpired                  SubIndication = "EXPIRED"
	SubIndicationNotYetValid              SubIndication = "NOT_YET_VALID"
	SubIndicationRevoked                  SubIndication = "REVOKED"
	SubIndicationRevocationUnavailable    SubIndication = "REVOCATION_UNAVAILABLE"
	SubIndicationCryptoConstraintsFailure SubIndication = "CRYPTO_CONSTRAINTS_FAILURE"
	SubIndicationPolicyProcessingError    SubIndication = "POLICY_PROCESSING_ERROR"
	SubIndicationNoTimestamp              SubIndication = "NO_TIMESTAMP"
	SubIndicationNoValidTimestamp         SubIndication = "NO_VALID_TIMESTAMP"
	SubIndicationTimestampOrderFailure    SubIndication = "TIMESTAMP_ORDER_FAILURE"
)

var knownSubIndications = map[SubIndication]struct{}{
	SubIndicationFormatFailure:            {},
	SubIndicationHashFailure:              {},
	SubIndicationCryptographicFailure:     {},
	SubIndicationSigConstraintsFailure:    {},
	SubIndicationNoSigningCertificate:     {},
	SubIndicationNoTrustedChain:           {},
	SubIndicationExpired:                  {},
	SubIndicationNotYetValid:              {},
	SubIndicationRevoked:                  {},
	SubIndicationRevocationUnavailable:    {},
	SubIndicationCryptoConstraintsFailure: {},
	SubIndicationPolicyProcessingError:    {},
	SubIndicationNoTimestamp:              {},
	SubIndicationNoValidTimestamp:         {},
	SubIndicationTimestampOrderFailure:    {},
}

// String returns the string representation of the sub-indication.
func (s SubIndication) String() string {
	return string(s)
}

// IsKnown reports whether s is a member of the closed set (the empty value
// excluded).
func (s SubIndication) IsKnown() bool {
	_, ok := knownSubIndications[s]
	return ok
}

// ParseSubIndication parses a sub-indication name. The empty string parses
// to SubIndicationNone.
func ParseSubIndication(s string) (SubIndication, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return SubIndicationNone, nil
	}
	sub := SubIndication(s)
	if !sub.IsKnown() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSubIndication, s)
	}
	return sub, nil
}

// SignatureLevel is a baseline conformance level.
type SignatureLevel string

// Baseline levels, ordered B < T < LTA. LevelNone is reported when not even
// the basic level was achieved.
const (
	LevelNone SignatureLevel = "NONE"
	LevelB    SignatureLevel = "B"
	LevelT    SignatureLevel = "T"
	LevelLTA  SignatureLevel = "LTA"
)

// String returns the string representation of the level.
func (l SignatureLevel) String() string {
	return string(l)
}

// Rank returns the position of the level in the B < T < LTA order.
// LevelNone and unknown levels rank 0.
func (l SignatureLevel) Rank() int {
	switch l {
	case LevelB:
		return 1
	case LevelT:
		return 2
	case LevelLTA:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether l is at or above other.
func (l SignatureLevel) AtLeast(other SignatureLevel) bool {
	return l.Rank() >= other.Rank()
}

// ParseSignatureLevel parses a level name. Baseline prefixes such as
// "XAdES-BASELINE-" or "PAdES-" are accepted and stripped.
func ParseSignatureLevel(s string) (SignatureLevel, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if i := strings.LastIndexAny(name, "-_"); i >= 0 {
		name = name[i+1:]
	}
	switch SignatureLevel(name) {
	case LevelB, LevelT, LevelLTA:
		return SignatureLevel(name), nil
	case "BES", "EPES":
		return LevelB, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// RequiredLevels returns the levels that must be achieved, lowest first,
// for a policy requiring level l.
func RequiredLevels(l SignatureLevel) []SignatureLevel {
	all := []SignatureLevel{LevelB, LevelT, LevelLTA}
	var out []SignatureLevel
	for _, lvl := range all {
		if lvl.Rank() <= l.Rank() {
			out = append(out, lvl)
		}
	}
	return out
}
