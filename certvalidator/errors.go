// Package certvalidator builds certificate chains from extracted evidence to
// configured trust anchors and evaluates validity and revocation status at
// a reference instant.
// This file contains error types for certificate validation.
package certvalidator

import (
	"errors"
	"fmt"
	"time"

	"github.com/georgepadayatti/adesval/evidence"
	"github.com/georgepadayatti/adesval/sign/ades"
)

// PathError is the base error type for path-related errors.
type PathError struct {
	Message string
}

func (e *PathError) Error() string {
	return e.Message
}

// PathValidationError occurs when a chain cannot be validated. Certificate
// is the first certificate that failed, nil if none could be singled out.
type PathValidationError struct {
	PathError
	Certificate *evidence.CertificateToken
}

// NewPathValidationError creates a new PathValidationError.
func NewPathValidationError(message string, cert *evidence.CertificateToken) *PathValidationError {
	return &PathValidationError{PathError: PathError{Message: message}, Certificate: cert}
}

// NoTrustedChainError occurs when no chain to a trust anchor exists: the
// issuer is missing, a cycle was detected, the hop bound was exceeded, or a
// self-signed certificate is not trusted.
type NoTrustedChainError struct {
	PathValidationError
	// Partial holds the ids of the certificates walked before giving up.
	Partial []string
}

// NewNoTrustedChainError creates a new NoTrustedChainError.
func NewNoTrustedChainError(message string, cert *evidence.CertificateToken, partial []string) *NoTrustedChainError {
	return &NoTrustedChainError{
		PathValidationError: *NewPathValidationError(message, cert),
		Partial:             partial,
	}
}

// ExpiredError indicates a certificate has expired.
type ExpiredError struct {
	PathValidationError
	ExpiredAt time.Time
}

// FormatExpiredError creates a formatted ExpiredError.
func FormatExpiredError(cert *evidence.CertificateToken, at time.Time) *ExpiredError {
	msg := fmt.Sprintf("certificate %s expired at %s, before %s",
		cert.SubjectDN, cert.NotAfter.Format(time.RFC3339), at.Format(time.RFC3339))
	return &ExpiredError{
		PathValidationError: *NewPathValidationError(msg, cert),
		ExpiredAt:           cert.NotAfter,
	}
}

// NotYetValidError indicates a certificate is not yet valid.
type NotYetValidError struct {
	PathValidationError
	ValidFrom time.Time
}

// FormatNotYetValidError creates a formatted NotYetValidError.
func FormatNotYetValidError(cert *evidence.CertificateToken, at time.Time) *NotYetValidError {
	msg := fmt.Sprintf("certificate %s is not valid until %s, after %s",
		cert.SubjectDN, cert.NotBefore.Format(time.RFC3339), at.Format(time.RFC3339))
	return &NotYetValidError{
		PathValidationError: *NewPathValidationError(msg, cert),
		ValidFrom:           cert.NotBefore,
	}
}

// RevokedError indicates a certificate has been revoked.
type RevokedError struct {
	PathValidationError
	Reason         string
	RevocationTime time.Time
	Source         evidence.RevocationSource
}

// FormatRevokedError creates a formatted RevokedError.
func FormatRevokedError(cert *evidence.CertificateToken, entry *evidence.RevocationEntry) *RevokedError {
	var rt time.Time
	if entry.RevocationTime != nil {
		rt = *entry.RevocationTime
	}
	reason := entry.Reason
	if reason == "" {
		reason = "unspecified"
	}
	msg := fmt.Sprintf("%s indicates %s was revoked at %s on %s, due to %s",
		entry.Source, cert.SubjectDN, rt.Format("15:04:05"), rt.Format("2006-01-02"), reason)
	return &RevokedError{
		PathValidationError: *NewPathValidationError(msg, cert),
		Reason:              reason,
		RevocationTime:      rt,
		Source:              entry.Source,
	}
}

// RevocationUnavailableError indicates that no usable revocation evidence
// exists for a certificate at the reference instant.
type RevocationUnavailableError struct {
	PathValidationError
}

// NewRevocationUnavailableError creates a new RevocationUnavailableError.
func NewRevocationUnavailableError(message string, cert *evidence.CertificateToken) *RevocationUnavailableError {
	return &RevocationUnavailableError{PathValidationError: *NewPathValidationError(message, cert)}
}

// SubIndicationFor maps a resolver error to the sub-indication reported for
// it. Unrecognized errors map to NO_TRUSTED_CHAIN.
func SubIndicationFor(err error) ades.SubIndication {
	var (
		revoked     *RevokedError
		expired     *ExpiredError
		notYetValid *NotYetValidError
		unavailable *RevocationUnavailableError
	)
	switch {
	case err == nil:
		return ades.SubIndicationNone
	case errors.As(err, &revoked):
		return ades.SubIndicationRevoked
	case errors.As(err, &expired):
		return ades.SubIndicationExpired
	case errors.As(err, &notYetValid):
		return ades.SubIndicationNotYetValid
	case errors.As(err, &unavailable):
		return ades.SubIndicationRevocationUnavailable
	default:
		return ades.SubIndicationNoTrustedChain
	}
}
