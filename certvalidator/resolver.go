package certvalidator

import (
	"fmt"
	"time"

	"github.com/georgepadayatti/adesval/certvalidator/revinfo"
	"github.com/georgepadayatti/adesval/evidence"
)

// CertificateStatus is the revocation verdict for one chain certificate.
type CertificateStatus struct {
	CertificateID string
	Outcome       revinfo.Outcome
	// RevocationID is the id of the evidence the verdict was derived from,
	// empty when no evidence was usable.
	RevocationID string
}

// Resolution is a chain resolved to a trust anchor at an instant.
type Resolution struct {
	// Chain runs from the resolved certificate towards the anchor. The
	// anchor is included only when the resolver is configured to.
	Chain    evidence.CertificateChain
	Anchor   *evidence.CertificateToken
	Statuses []CertificateStatus
	Warnings []string
}

// ChainIDs returns the ids of the chain certificates.
func (r *Resolution) ChainIDs() []string {
	if r == nil {
		return nil
	}
	return r.Chain.IDs()
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithAnchorInChain sets whether resolved chains end with the trust anchor.
func WithAnchorInChain(include bool) ResolverOption {
	return func(r *Resolver) {
		r.includeAnchor = include
	}
}

// WithRequiredRevocation sets whether certificates without usable
// revocation evidence fail validation. When unset, missing evidence only
// produces a warning.
func WithRequiredRevocation(required bool) ResolverOption {
	return func(r *Resolver) {
		r.requireRevocation = required
	}
}

// Resolver builds certificate chains to trust anchors and evaluates them at
// a reference instant. A Resolver holds only read-only snapshots and is safe
// for concurrent use.
type Resolver struct {
	anchors           *TrustedSource
	revocations       *revinfo.Index
	includeAnchor     bool
	requireRevocation bool
}

// NewResolver creates a resolver over a trust anchor source and a revocation
// snapshot.
func NewResolver(anchors CertificateSource, revocations *revinfo.Index, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		anchors:     SnapshotOf(anchors),
		revocations: revocations,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Anchors returns the trust anchor snapshot.
func (r *Resolver) Anchors() *TrustedSource {
	return r.anchors
}

// BuildChain walks issuer links from cert through candidates until a trust
// anchor is reached. The walk is bounded to len(candidates)+1 hops; a
// revisited certificate, a missing issuer or an untrusted self-signed
// certificate ends it with a *NoTrustedChainError.
func (r *Resolver) BuildChain(cert *evidence.CertificateToken, candidates []*evidence.CertificateToken) (evidence.CertificateChain, *evidence.CertificateToken, error) {
	if cert == nil {
		return nil, nil, NewNoTrustedChainError("no certificate to build a chain for", nil, nil)
	}

	var chain evidence.CertificateChain
	visited := make(map[string]bool)
	current := cert
	maxHops := len(candidates) + 1

	for hop := 0; hop <= maxHops; hop++ {
		if visited[current.ID] {
			return nil, nil, NewNoTrustedChainError(
				fmt.Sprintf("certificate chain of %s contains a cycle at %s", cert.SubjectDN, current.SubjectDN),
				current, chain.IDs())
		}
		visited[current.ID] = true

		if anchor, ok := r.anchors.Certificate(current.ID); ok {
			if len(chain) == 0 || r.includeAnchor {
				chain = append(chain, anchor)
			}
			return chain, anchor, nil
		}
		chain = append(chain, current)

		if anchor := r.anchorIssuer(current); anchor != nil {
			if r.includeAnchor {
				chain = append(chain, anchor)
			}
			return chain, anchor, nil
		}

		if current.SelfSigned || evidence.SameDN(current.SubjectDN, current.IssuerDN) {
			return nil, nil, NewNoTrustedChainError(
				fmt.Sprintf("self-signed certificate %s is not a trust anchor", current.SubjectDN),
				current, chain.IDs())
		}

		issuer, cyclic := findIssuer(current, candidates, visited)
		if issuer == nil {
			msg := fmt.Sprintf("no issuer certificate found for %s", current.SubjectDN)
			if cyclic {
				msg = fmt.Sprintf("certificate chain of %s contains a cycle at %s", cert.SubjectDN, current.SubjectDN)
			}
			return nil, nil, NewNoTrustedChainError(msg, current, chain.IDs())
		}
		current = issuer
	}

	return nil, nil, NewNoTrustedChainError(
		fmt.Sprintf("no trust anchor reached for %s within %d hops", cert.SubjectDN, maxHops),
		cert, chain.IDs())
}

// anchorIssuer returns the trust anchor that issued cert, if any.
func (r *Resolver) anchorIssuer(cert *evidence.CertificateToken) *evidence.CertificateToken {
	for _, a := range r.anchors.BySubject(cert.IssuerDN) {
		if a.ID != cert.ID {
			return a
		}
	}
	return nil
}

// findIssuer returns the first candidate whose subject matches the issuer of
// cert and that has not been visited yet. cyclic reports that only visited
// issuers were found.
func findIssuer(cert *evidence.CertificateToken, candidates []*evidence.CertificateToken, visited map[string]bool) (issuer *evidence.CertificateToken, cyclic bool) {
	issuerDN := evidence.NormalizeDN(cert.IssuerDN)
	for _, c := range candidates {
		if c == nil || c.ID == cert.ID {
			continue
		}
		if evidence.NormalizeDN(c.SubjectDN) != issuerDN {
			continue
		}
		if visited[c.ID] {
			cyclic = true
			continue
		}
		return c, false
	}
	return nil, cyclic
}

// Resolve builds the chain of cert and validates every certificate below
// the anchor at the instant at: validity period first, then revocation.
// Anchor validity is not checked.
//
// When the chain could be built, the returned resolution is non-nil even if
// validation failed, so that callers can report the chain.
func (r *Resolver) Resolve(cert *evidence.CertificateToken, candidates []*evidence.CertificateToken, at time.Time) (*Resolution, error) {
	chain, anchor, err := r.BuildChain(cert, candidates)
	if err != nil {
		return nil, err
	}
	res := &Resolution{Chain: chain, Anchor: anchor}

	for _, c := range chain {
		if c.ID == anchor.ID {
			continue
		}
		if at.Before(c.NotBefore) {
			return res, FormatNotYetValidError(c, at)
		}
		if at.After(c.NotAfter) {
			return res, FormatExpiredError(c, at)
		}

		verdict := r.revocations.Lookup(c.ID, at)
		status := CertificateStatus{CertificateID: c.ID, Outcome: verdict.Outcome}
		if verdict.Entry != nil {
			status.RevocationID = verdict.Entry.ID
		}
		res.Statuses = append(res.Statuses, status)

		switch verdict.Outcome {
		case revinfo.OutcomeRevoked:
			return res, FormatRevokedError(c, verdict.Entry)
		case revinfo.OutcomeUnknown:
			return res, NewRevocationUnavailableError(
				fmt.Sprintf("revocation status of %s is unknown", c.SubjectDN), c)
		case revinfo.OutcomeMissing:
			msg := fmt.Sprintf("no revocation evidence for %s at %s", c.SubjectDN, at.Format(time.RFC3339))
			if r.requireRevocation {
				return res, NewRevocationUnavailableError(msg, c)
			}
			res.Warnings = append(res.Warnings, msg)
		}
	}
	return res, nil
}
