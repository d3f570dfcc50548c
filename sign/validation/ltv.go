// This file contains the timestamped, long-term and archive levels.

package validation

import (
	"fmt"
	"sort"
	"time"

	"github.com/georgepadayatti/adesval/evidence"
	"github.com/georgepadayatti/adesval/sign/ades"
	"github.com/georgepadayatti/adesval/sign/timestamps"
)

// validOfType returns the valid timestamps of a type, ordered by production
// time then id.
func validOfType(sig *evidence.SignatureEvidence, res *SignatureResult, typ evidence.TimestampType) []*evidence.TimestampToken {
	var out []*evidence.TimestampToken
	for _, ts := range sig.TimestampsOfType(typ) {
		if res.Timestamp(ts.ID).IsValid() {
			out = append(out, ts)
		}
	}
	sortTimestamps(out)
	return out
}

func sortTimestamps(list []*evidence.TimestampToken) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].ProductionTime.Equal(list[j].ProductionTime) {
			return list[i].ProductionTime.Before(list[j].ProductionTime)
		}
		return list[i].ID < list[j].ID
	})
}

// noValidTimestamp builds the conclusion reported when every timestamp of a
// type failed, carrying the reason of each.
func noValidTimestamp(sig *evidence.SignatureEvidence, res *SignatureResult, typ evidence.TimestampType) *ades.Conclusion {
	c := ades.Indeterminate(ades.SubIndicationNoValidTimestamp)
	for _, ts := range sig.TimestampsOfType(typ) {
		c.AddError(ts.ID, res.Timestamp(ts.ID).Conclusion.String())
	}
	return c
}

// timestampedLevel computes the T level. The production time of the
// earliest valid signature timestamp becomes the proven signing time unless
// it precedes the claimed signing time.
func (r *run) timestampedLevel(sig *evidence.SignatureEvidence, res *SignatureResult) (*ades.Conclusion, *time.Time) {
	if len(sig.TimestampsOfType(evidence.SignatureTimestamp)) == 0 {
		return ades.Indeterminate(ades.SubIndicationNoTimestamp).
			AddError("signatureTimestamp", fmt.Sprintf("signature %s has no signature timestamp", sig.ID)), nil
	}
	valid := validOfType(sig, res, evidence.SignatureTimestamp)
	if len(valid) == 0 {
		return noValidTimestamp(sig, res, evidence.SignatureTimestamp), nil
	}

	earliest := valid[0]
	orderFailure := sig.ClaimedSigningTime != nil && earliest.ProductionTime.Before(*sig.ClaimedSigningTime)
	var proven *time.Time
	if !orderFailure {
		t := earliest.ProductionTime
		proven = &t
	}

	if !res.Basic.IsValid() {
		return res.Basic.Conclusion.Copy(), proven
	}
	if orderFailure {
		return ades.Indeterminate(ades.SubIndicationTimestampOrderFailure).
			AddError(earliest.ID, fmt.Sprintf("timestamp produced at %s precedes claimed signing time %s",
				earliest.ProductionTime.UTC().Format(time.RFC3339),
				sig.ClaimedSigningTime.UTC().Format(time.RFC3339))), nil
	}
	return ades.Passed().
		AddInfo("provenTime", fmt.Sprintf("%s (%s)", proven.UTC().Format(time.RFC3339), earliest.ID)), proven
}

// LongTermBlockSuffix is appended to the signature id to name its
// long-term building block.
const LongTermBlockSuffix = "-LTV"

// longTermLevel re-runs the building block at the proven signing time. A
// basic INVALID verdict is final and no proven time leaves the basic verdict
// unchanged.
func (r *run) longTermLevel(sig *evidence.SignatureEvidence, res *SignatureResult) (*ades.Conclusion, *BasicBuildingBlock) {
	if res.Basic.Conclusion.IsInvalid() || res.ProvenTime == nil {
		return res.Basic.Conclusion.Copy(), nil
	}
	block := r.basicBuildingBlock(r.data, sig, res.ProvenTime, r.instant)
	block.ID = sig.ID + LongTermBlockSuffix
	block.Kind = BlockLongTerm
	return block.Conclusion.Copy(), block
}

// archiveLevel computes the LTA level. At least one valid archive timestamp
// must cover the signature and every timestamp produced before it, each
// archive timestamp must be produced while its predecessor's TSA
// certificate was valid, and the latest TSA certificate must still be valid
// at the run instant.
func (r *run) archiveLevel(sig *evidence.SignatureEvidence, res *SignatureResult) *ades.Conclusion {
	if t := res.LevelConclusion(ades.LevelT); !t.IsValid() {
		return t.Copy()
	}
	if len(sig.TimestampsOfType(evidence.ArchiveTimestamp)) == 0 {
		return ades.Indeterminate(ades.SubIndicationNoTimestamp).
			AddError("archiveTimestamp", fmt.Sprintf("signature %s has no archive timestamp", sig.ID))
	}
	archives := validOfType(sig, res, evidence.ArchiveTimestamp)
	if len(archives) == 0 {
		return noValidTimestamp(sig, res, evidence.ArchiveTimestamp)
	}

	var covering []*evidence.TimestampToken
	for _, ats := range archives {
		if ranges, ok := priorRanges(sig, ats); ok && timestamps.Covers(ats, ranges...) {
			covering = append(covering, ats)
		}
	}
	if len(covering) == 0 {
		return ades.Indeterminate(ades.SubIndicationTimestampOrderFailure).
			AddError("archiveTimestamp", fmt.Sprintf("no archive timestamp of %s covers the signature and all prior timestamps", sig.ID))
	}

	chain := make([]*evidence.TimestampToken, 0, len(covering)+1)
	chain = append(chain, validOfType(sig, res, evidence.SignatureTimestamp)[0])
	chain = append(chain, covering...)
	for i := 1; i < len(chain); i++ {
		prev := res.Timestamp(chain[i-1].ID).SigningCertificate()
		cur := chain[i]
		if prev != nil && cur.ProductionTime.After(prev.NotAfter) {
			return ades.Indeterminate(ades.SubIndicationTimestampOrderFailure).
				AddError(cur.ID, fmt.Sprintf("produced at %s after TSA certificate of %s expired at %s",
					cur.ProductionTime.UTC().Format(time.RFC3339), chain[i-1].ID,
					prev.NotAfter.UTC().Format(time.RFC3339)))
		}
	}

	latest := chain[len(chain)-1]
	tsa := res.Timestamp(latest.ID).SigningCertificate()
	if tsa == nil || !tsa.IsValidAt(r.instant) {
		return ades.Indeterminate(ades.SubIndicationTimestampOrderFailure).
			AddError(latest.ID, fmt.Sprintf("TSA certificate of latest archive timestamp is not valid at %s",
				r.instant.Format(time.RFC3339)))
	}
	return ades.Passed().AddInfo("archiveTimestamp", latest.ID)
}

// priorRanges lists the ranges an archive timestamp must cover: the
// signature and the token of every other timestamp produced not after it.
// ok is false when one of those tokens was not located in the document, in
// which case coverage cannot be established.
func priorRanges(sig *evidence.SignatureEvidence, ats *evidence.TimestampToken) (ranges []evidence.ByteRange, ok bool) {
	ranges = []evidence.ByteRange{sig.SignatureRange}
	for _, ts := range sig.Timestamps {
		if ts.ID == ats.ID || ts.ProductionTime.After(ats.ProductionTime) {
			continue
		}
		if ts.TokenRange.IsZero() {
			return nil, false
		}
		ranges = append(ranges, ts.TokenRange)
	}
	return ranges, true
}
