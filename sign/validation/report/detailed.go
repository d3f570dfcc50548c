package report

import (
	"fmt"
	"time"

	"github.com/georgepadayatti/adesval/evidence"
	"github.com/georgepadayatti/adesval/sign/ades"
	"github.com/georgepadayatti/adesval/sign/validation"
)

// TimestampOutcome is the validation outcome of one timestamp.
type TimestampOutcome struct {
	ID             string                 `json:"id"`
	Type           evidence.TimestampType `json:"type"`
	ProductionTime time.Time              `json:"productionTime"`
	Conclusion     *ades.Conclusion       `json:"conclusion"`
}

// SignatureOutcome holds every level outcome of one signature.
type SignatureOutcome struct {
	ID         string             `json:"id"`
	Basic      *ades.Conclusion   `json:"basic"`
	Timestamps []TimestampOutcome `json:"timestamps,omitempty"`
	// Timestamped is the outcome of the T level.
	Timestamped *ades.Conclusion `json:"timestamped"`
	ProvenTime  *time.Time       `json:"provenTime,omitempty"`
	LongTerm    *ades.Conclusion `json:"longTerm"`
	Archive     *ades.Conclusion `json:"archive"`
}

type levelConclusion struct {
	name string
	c    *ades.Conclusion
}

func (s *SignatureOutcome) levels() []levelConclusion {
	return []levelConclusion{
		{"basic", s.Basic},
		{"timestamped", s.Timestamped},
		{"long-term", s.LongTerm},
		{"archive", s.Archive},
	}
}

// DetailedReport is the lossless report of a run: every building block and
// every per-level outcome, keyed by signature and timestamp id.
type DetailedReport struct {
	Signatures          []*SignatureOutcome              `json:"signatures"`
	BasicBuildingBlocks []*validation.BasicBuildingBlock `json:"basicBuildingBlocks"`

	// Levels holds the conclusion reported for each baseline level, keyed
	// by signature id.
	Levels map[string]map[ades.SignatureLevel]*ades.Conclusion `json:"levels"`
}

func newDetailedReport(res *validation.Result) *DetailedReport {
	d := &DetailedReport{
		Signatures:          make([]*SignatureOutcome, 0, len(res.Signatures)),
		BasicBuildingBlocks: []*validation.BasicBuildingBlock{},
		Levels:              make(map[string]map[ades.SignatureLevel]*ades.Conclusion, len(res.Signatures)),
	}
	for _, sig := range res.Signatures {
		out := &SignatureOutcome{
			ID:          sig.SignatureID,
			Basic:       sig.Basic.Conclusion,
			Timestamped: sig.Timestamped,
			ProvenTime:  sig.ProvenTime,
			LongTerm:    sig.LongTerm,
			Archive:     sig.Archive,
		}
		for _, ts := range sig.Timestamps {
			out.Timestamps = append(out.Timestamps, TimestampOutcome{
				ID:             ts.TimestampID,
				Type:           ts.Type,
				ProductionTime: ts.ProductionTime,
				Conclusion:     ts.Conclusion,
			})
		}
		d.Signatures = append(d.Signatures, out)
		d.BasicBuildingBlocks = append(d.BasicBuildingBlocks, sig.BuildingBlocks()...)
		d.Levels[sig.SignatureID] = map[ades.SignatureLevel]*ades.Conclusion{
			ades.LevelB:   sig.LevelConclusion(ades.LevelB),
			ades.LevelT:   sig.LevelConclusion(ades.LevelT),
			ades.LevelLTA: sig.LevelConclusion(ades.LevelLTA),
		}
	}
	return d
}

// Signature returns the outcome of a signature.
func (d *DetailedReport) Signature(id string) (*SignatureOutcome, error) {
	for _, s := range d.Signatures {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSignature, id)
}

// LevelConclusion returns the conclusion of a signature at a baseline level.
func (d *DetailedReport) LevelConclusion(sigID string, level ades.SignatureLevel) (*ades.Conclusion, error) {
	levels, ok := d.Levels[sigID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSignature, sigID)
	}
	c, ok := levels[level]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ades.ErrUnknownLevel, level)
	}
	return c, nil
}

// BasicBuildingBlockCount returns the number of building blocks.
func (d *DetailedReport) BasicBuildingBlockCount() int {
	return len(d.BasicBuildingBlocks)
}

// BasicBuildingBlockByIndex returns the id and indication of the i-th
// building block.
func (d *DetailedReport) BasicBuildingBlockByIndex(i int) (string, ades.Indication, error) {
	if i < 0 || i >= len(d.BasicBuildingBlocks) {
		return "", "", fmt.Errorf("building block index %d out of range [0, %d)", i, len(d.BasicBuildingBlocks))
	}
	b := d.BasicBuildingBlocks[i]
	return b.ID, b.Conclusion.Indication, nil
}

// BasicBuildingBlock returns the building block with the given id.
func (d *DetailedReport) BasicBuildingBlock(id string) (*validation.BasicBuildingBlock, bool) {
	for _, b := range d.BasicBuildingBlocks {
		if b.ID == id {
			return b, true
		}
	}
	return nil, false
}

// Timestamp returns the outcome of a timestamp.
func (d *DetailedReport) Timestamp(id string) (*TimestampOutcome, bool) {
	for _, s := range d.Signatures {
		for i := range s.Timestamps {
			if s.Timestamps[i].ID == id {
				return &s.Timestamps[i], true
			}
		}
	}
	return nil, false
}

// TimestampIDs lists the timestamps of a signature.
func (d *DetailedReport) TimestampIDs(sigID string) []string {
	var ids []string
	if s, err := d.Signature(sigID); err == nil {
		for _, ts := range s.Timestamps {
			ids = append(ids, ts.ID)
		}
	}
	return ids
}
