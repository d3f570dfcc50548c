// This file contains the trusted certificate sources used as trust anchors.

package certvalidator

import (
	"errors"
	"sort"

	"github.com/georgepadayatti/adesval/evidence"
)

// Common errors for registry operations.
var (
	ErrCertNotFound = errors.New("certificate not found")
	ErrEmptySource  = errors.New("certificate source is empty")
)

// CertificateSource is a read-only view of a set of certificates.
type CertificateSource interface {
	// Certificates returns all certificates in the source.
	Certificates() []*evidence.CertificateToken

	// Certificate retrieves a certificate by identifier.
	Certificate(id string) (*evidence.CertificateToken, bool)
}

// TrustedSource is an immutable snapshot of trusted certificates, indexed
// by id and by normalized subject DN. It is safe for concurrent use.
type TrustedSource struct {
	certs   []*evidence.CertificateToken
	byID    map[string]*evidence.CertificateToken
	subject map[string][]*evidence.CertificateToken
}

// NewTrustedSource creates a snapshot from certificates. Duplicate ids are
// registered once.
func NewTrustedSource(certs ...*evidence.CertificateToken) *TrustedSource {
	s := &TrustedSource{
		byID:    make(map[string]*evidence.CertificateToken, len(certs)),
		subject: make(map[string][]*evidence.CertificateToken),
	}
	for _, c := range certs {
		if c == nil {
			continue
		}
		if _, exists := s.byID[c.ID]; exists {
			continue
		}
		s.byID[c.ID] = c
		s.certs = append(s.certs, c)
		key := evidence.NormalizeDN(c.SubjectDN)
		s.subject[key] = append(s.subject[key], c)
	}
	for _, list := range s.subject {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return s
}

// SnapshotOf copies any certificate source into a TrustedSource.
func SnapshotOf(src CertificateSource) *TrustedSource {
	if ts, ok := src.(*TrustedSource); ok {
		return ts
	}
	if src == nil {
		return NewTrustedSource()
	}
	return NewTrustedSource(src.Certificates()...)
}

// Certificates returns all certificates in registration order.
func (s *TrustedSource) Certificates() []*evidence.CertificateToken {
	return append([]*evidence.CertificateToken(nil), s.certs...)
}

// Certificate retrieves a certificate by identifier.
func (s *TrustedSource) Certificate(id string) (*evidence.CertificateToken, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// BySubject returns the certificates whose subject matches dn, ordered by id.
func (s *TrustedSource) BySubject(dn string) []*evidence.CertificateToken {
	return s.subject[evidence.NormalizeDN(dn)]
}

// Contains reports whether a certificate with the given id is trusted.
func (s *TrustedSource) Contains(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// Len returns the number of certificates in the source.
func (s *TrustedSource) Len() int {
	return len(s.certs)
}
