// Package revinfo provides revocation lookups over an immutable snapshot of
// already fetched revocation evidence.
package revinfo

import (
	"sort"
	"time"

	"github.com/georgepadayatti/adesval/evidence"
)

// Outcome is the result of a revocation lookup at an instant.
type Outcome int

const (
	// OutcomeMissing means no usable evidence exists: either none was
	// supplied or all of it predates the instant.
	OutcomeMissing Outcome = iota
	// OutcomeGood means the certificate was not revoked at the instant.
	OutcomeGood
	// OutcomeRevoked means the certificate was revoked at or before the
	// instant.
	OutcomeRevoked
	// OutcomeUnknown means the selected evidence reports an unknown status.
	OutcomeUnknown
)

// String returns the string representation of an outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeGood:
		return "good"
	case OutcomeRevoked:
		return "revoked"
	case OutcomeUnknown:
		return "unknown"
	default:
		return "missing"
	}
}

// Verdict is the outcome of a lookup together with the entry it was derived
// from. Entry is nil for OutcomeMissing.
type Verdict struct {
	Outcome Outcome
	Entry   *evidence.RevocationEntry
}

// Index is a read-only revocation snapshot keyed by certificate id. It is
// safe for concurrent use once built.
type Index struct {
	byCert map[string][]*evidence.RevocationEntry
}

// NewIndex builds an index from revocation entries. Entries for each
// certificate are ordered by production time, then id.
func NewIndex(entries []*evidence.RevocationEntry) *Index {
	idx := &Index{byCert: make(map[string][]*evidence.RevocationEntry)}
	for _, e := range entries {
		if e == nil {
			continue
		}
		idx.byCert[e.CertificateID] = append(idx.byCert[e.CertificateID], e)
	}
	for _, list := range idx.byCert {
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].ProductionTime.Equal(list[j].ProductionTime) {
				return list[i].ProductionTime.Before(list[j].ProductionTime)
			}
			return list[i].ID < list[j].ID
		})
	}
	return idx
}

// Entries returns the ordered entries about a certificate.
func (idx *Index) Entries(certID string) []*evidence.RevocationEntry {
	if idx == nil {
		return nil
	}
	return idx.byCert[certID]
}

// Lookup determines the revocation status of a certificate at the instant
// at.
//
// The closest entry produced at or after at is selected. Entries sharing
// that production time are ranked revoked, then unknown, then good, then by
// id. When every entry predates at, only an earlier entry proving revocation
// at or before at is used.
func (idx *Index) Lookup(certID string, at time.Time) Verdict {
	list := idx.Entries(certID)
	if len(list) == 0 {
		return Verdict{Outcome: OutcomeMissing}
	}

	first := sort.Search(len(list), func(i int) bool {
		return !list[i].ProductionTime.Before(at)
	})
	if first < len(list) {
		chosen := list[first]
		for _, e := range list[first+1:] {
			if !e.ProductionTime.Equal(chosen.ProductionTime) {
				break
			}
			if e.Status.Severity() > chosen.Status.Severity() {
				chosen = e
			}
		}
		return Verdict{Outcome: statusAt(chosen, at), Entry: chosen}
	}

	for i := len(list) - 1; i >= 0; i-- {
		e := list[i]
		if e.Status == evidence.StatusRevoked && revokedBy(e, at) {
			return Verdict{Outcome: OutcomeRevoked, Entry: e}
		}
	}
	return Verdict{Outcome: OutcomeMissing}
}

func statusAt(e *evidence.RevocationEntry, at time.Time) Outcome {
	switch e.Status {
	case evidence.StatusRevoked:
		if revokedBy(e, at) {
			return OutcomeRevoked
		}
		return OutcomeGood
	case evidence.StatusGood:
		return OutcomeGood
	default:
		return OutcomeUnknown
	}
}

// revokedBy reports whether a revoked entry's revocation time is at or
// before at. An entry without a revocation time always proves revocation.
func revokedBy(e *evidence.RevocationEntry, at time.Time) bool {
	if e.RevocationTime == nil {
		return true
	}
	return !e.RevocationTime.After(at)
}
