// Package validation implements policy-driven AdES validation: the basic
// building blocks of a signature and the orchestration of the B, T, LTV and
// LTA validation levels.
// This file contains the validation policy declaration.
package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/georgepadayatti/adesval/certvalidator"
	"github.com/georgepadayatti/adesval/sign/ades"
	"github.com/georgepadayatti/adesval/sign/timestamps"
)

// ErrInvalidPolicyConfiguration is matched by every PolicyConfigurationError.
var ErrInvalidPolicyConfiguration = errors.New("invalid policy configuration")

// PolicyConfigurationError reports a policy the engine cannot run with.
type PolicyConfigurationError struct {
	Field   string
	Message string
	Err     error
}

func (e *PolicyConfigurationError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", ErrInvalidPolicyConfiguration, e.Field, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *PolicyConfigurationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrInvalidPolicyConfiguration) succeed.
func (e *PolicyConfigurationError) Is(target error) bool {
	return target == ErrInvalidPolicyConfiguration
}

// AlgorithmConstraint expresses whether an algorithm may be used at a given
// moment.
type AlgorithmConstraint struct {
	Allowed       bool
	FailureReason string
}

// Policy is the validation policy applied to every signature of a run.
type Policy struct {
	// Name identifies the policy in reports.
	Name string

	// RequiredLevel is the baseline level a signature must reach.
	RequiredLevel ades.SignatureLevel

	// AcceptableDigestAlgorithms maps digest algorithm names to an optional
	// expiry. An empty map accepts every algorithm.
	AcceptableDigestAlgorithms map[string]*time.Time

	// AcceptableEncryptionAlgorithms maps encryption algorithm names to an
	// optional expiry. An empty map accepts every algorithm.
	AcceptableEncryptionAlgorithms map[string]*time.Time

	// TrustAnchors terminates chain building. Must not be empty.
	TrustAnchors certvalidator.CertificateSource

	// IncludeAnchorInChain controls whether reported chains end with the
	// trust anchor.
	IncludeAnchorInChain bool

	// RequireRevocation makes missing revocation evidence fail certificate
	// validation instead of producing a warning.
	RequireRevocation bool

	// SignatureConstraints are CEL expressions that must all evaluate to
	// true during signature acceptance validation.
	SignatureConstraints []string
}

// DefaultPolicy returns a policy requiring level B that accepts the SHA-2
// and SHA-3 families with RSA, RSASSA-PSS, ECDSA and Ed25519.
func DefaultPolicy(anchors certvalidator.CertificateSource) *Policy {
	return &Policy{
		Name:          "default",
		RequiredLevel: ades.LevelB,
		AcceptableDigestAlgorithms: map[string]*time.Time{
			"SHA224": nil, "SHA256": nil, "SHA384": nil, "SHA512": nil,
			"SHA3-256": nil, "SHA3-384": nil, "SHA3-512": nil,
		},
		AcceptableEncryptionAlgorithms: map[string]*time.Time{
			"RSA": nil, "RSASSA-PSS": nil, "ECDSA": nil, "Ed25519": nil,
		},
		TrustAnchors: anchors,
	}
}

// Validate checks that the policy can be run.
func (p *Policy) Validate() error {
	if p.TrustAnchors == nil || len(p.TrustAnchors.Certificates()) == 0 {
		return &PolicyConfigurationError{Field: "trustAnchors", Message: "trust anchor set is empty"}
	}
	switch p.RequiredLevel {
	case ades.LevelB, ades.LevelT, ades.LevelLTA:
	default:
		return &PolicyConfigurationError{
			Field:   "requiredLevel",
			Message: fmt.Sprintf("unsupported level %q", p.RequiredLevel),
		}
	}
	for name := range p.AcceptableDigestAlgorithms {
		if _, err := timestamps.LookupDigest(name); err != nil {
			return &PolicyConfigurationError{Field: "acceptableDigestAlgorithms", Message: name, Err: err}
		}
	}
	return nil
}

// DigestConstraint evaluates a digest algorithm at an instant.
func (p *Policy) DigestConstraint(name string, at time.Time) AlgorithmConstraint {
	key := timestamps.CanonicalDigestName(name)
	return algorithmConstraint("digest", name, key, p.AcceptableDigestAlgorithms, timestamps.CanonicalDigestName, at)
}

// EncryptionConstraint evaluates an encryption algorithm at an instant.
func (p *Policy) EncryptionConstraint(name string, at time.Time) AlgorithmConstraint {
	key := canonicalEncryptionName(name)
	return algorithmConstraint("encryption", name, key, p.AcceptableEncryptionAlgorithms, canonicalEncryptionName, at)
}

// DigestAcceptable reports whether a digest algorithm may be used at an
// instant.
func (p *Policy) DigestAcceptable(name string, at time.Time) bool {
	return p.DigestConstraint(name, at).Allowed
}

// EncryptionAcceptable reports whether an encryption algorithm may be used
// at an instant.
func (p *Policy) EncryptionAcceptable(name string, at time.Time) bool {
	return p.EncryptionConstraint(name, at).Allowed
}

// Description renders a one-line summary of the policy.
func (p *Policy) Description() string {
	name := p.Name
	if name == "" {
		name = "custom"
	}
	return fmt.Sprintf("%s (level %s, digests %s)", name, p.RequiredLevel,
		strings.Join(sortedKeys(p.AcceptableDigestAlgorithms), ","))
}

func algorithmConstraint(kind, name, key string, table map[string]*time.Time, canon func(string) string, at time.Time) AlgorithmConstraint {
	if len(table) == 0 {
		return AlgorithmConstraint{Allowed: true}
	}
	for configured, expiry := range table {
		if canon(configured) != key {
			continue
		}
		if expiry != nil && at.After(*expiry) {
			return AlgorithmConstraint{
				FailureReason: fmt.Sprintf("%s algorithm %s is not acceptable after %s",
					kind, name, expiry.Format(time.RFC3339)),
			}
		}
		return AlgorithmConstraint{Allowed: true}
	}
	return AlgorithmConstraint{FailureReason: fmt.Sprintf("%s algorithm %s is not allowed", kind, name)}
}

// canonicalEncryptionName folds spellings such as "ecdsa", "EC-DSA" and
// "RSASSA_PSS".
func canonicalEncryptionName(name string) string {
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToUpper(strings.TrimSpace(name)))
}

func sortedKeys(m map[string]*time.Time) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
