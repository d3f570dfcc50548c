// This file contains the validation orchestrator.

package validation

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/georgepadayatti/adesval/certvalidator"
	"github.com/georgepadayatti/adesval/certvalidator/revinfo"
	"github.com/georgepadayatti/adesval/evidence"
	"github.com/georgepadayatti/adesval/sign/ades"
	"github.com/georgepadayatti/adesval/sign/timestamps"
)

// ErrNoEvidence is returned when Validate is called without evidence.
var ErrNoEvidence = errors.New("no diagnostic data")

// SignatureResult holds every level outcome computed for one signature.
type SignatureResult struct {
	SignatureID string

	// Basic is the building block evaluated at the claimed signing time.
	Basic *BasicBuildingBlock

	// Timestamps holds the result of every timestamp of the signature, in
	// evidence order.
	Timestamps []*timestamps.Result

	// Timestamped is the T level outcome.
	Timestamped *ades.Conclusion

	// ProvenTime is the production time of the earliest valid signature
	// timestamp, nil when no time could be proven.
	ProvenTime *time.Time

	// LongTerm is the LTV outcome. LongTermBlock is the building block
	// re-evaluated at the proven time, nil when none was computed.
	LongTerm      *ades.Conclusion
	LongTermBlock *BasicBuildingBlock

	// Archive is the LTA outcome.
	Archive *ades.Conclusion
}

// Timestamp returns the result of the timestamp with the given id.
func (s *SignatureResult) Timestamp(id string) *timestamps.Result {
	for _, ts := range s.Timestamps {
		if ts.TimestampID == id {
			return ts
		}
	}
	return nil
}

// BuildingBlocks lists every building block computed for the signature:
// the basic block, the long-term block when one exists, then one block per
// timestamp in evidence order.
func (s *SignatureResult) BuildingBlocks() []*BasicBuildingBlock {
	blocks := []*BasicBuildingBlock{s.Basic}
	if s.LongTermBlock != nil {
		blocks = append(blocks, s.LongTermBlock)
	}
	for _, ts := range s.Timestamps {
		blocks = append(blocks, timestampBlock(ts))
	}
	return blocks
}

// LevelConclusion returns the outcome reported for a baseline level. The T
// level reports the long-term outcome once its timestamps validated.
func (s *SignatureResult) LevelConclusion(level ades.SignatureLevel) *ades.Conclusion {
	switch level {
	case ades.LevelB:
		return s.Basic.Conclusion
	case ades.LevelT:
		if s.Timestamped.IsValid() && s.LongTerm != nil {
			return s.LongTerm
		}
		return s.Timestamped
	case ades.LevelLTA:
		return s.Archive
	default:
		return nil
	}
}

// Collapse walks the levels required up to required, lowest first. The
// first level that is not VALID supplies the returned conclusion; achieved
// is the highest VALID level walked, LevelNone if the basic level failed.
func (s *SignatureResult) Collapse(required ades.SignatureLevel) (*ades.Conclusion, ades.SignatureLevel) {
	achieved := ades.LevelNone
	for _, lvl := range ades.RequiredLevels(required) {
		c := s.LevelConclusion(lvl)
		if !c.IsValid() {
			return c, achieved
		}
		achieved = lvl
	}
	return ades.Passed(), achieved
}

// SignatureFault reports a signature whose evidence could not be validated.
// No level outcome exists for it.
type SignatureFault struct {
	SignatureID string
	Err         error
}

// Result is the outcome of one validation run.
type Result struct {
	DocumentName   string
	DocumentDigest []byte
	// ValidationTime is the run instant every check of the run agreed on.
	ValidationTime time.Time
	Policy         *Policy
	// Signatures holds the results in evidence order. Faulted signatures
	// are absent and listed in Faults instead.
	Signatures []*SignatureResult
	Faults     []*SignatureFault
}

// Signature returns the result for a signature id.
func (r *Result) Signature(id string) *SignatureResult {
	for _, s := range r.Signatures {
		if s.SignatureID == id {
			return s
		}
	}
	return nil
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock sets the clock the run instant is read from.
func WithClock(clock clockwork.Clock) Option {
	return func(v *Validator) {
		v.clock = clock
	}
}

// WithValidationTime fixes the run instant instead of reading the clock.
func WithValidationTime(t time.Time) Option {
	return func(v *Validator) {
		v.validationTime = &t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithConcurrency bounds the number of signatures validated in parallel.
func WithConcurrency(n int) Option {
	return func(v *Validator) {
		v.concurrency = n
	}
}

// WithMeter sets the meter validation metrics are recorded with. The global
// meter provider is used by default.
func WithMeter(meter metric.Meter) Option {
	return func(v *Validator) {
		v.meter = meter
	}
}

// Validator runs a validation policy over diagnostic data. It holds no
// per-run state and may be reused and shared between goroutines.
type Validator struct {
	policy         *Policy
	anchors        *certvalidator.TrustedSource
	constraints    *constraintSet
	clock          clockwork.Clock
	validationTime *time.Time
	logger         *slog.Logger
	concurrency    int
	meter          metric.Meter
	metrics        *validationMetrics
}

// NewValidator creates a validator for a policy. Policies with an empty
// trust anchor set or invalid constraints are rejected with a
// *PolicyConfigurationError.
func NewValidator(policy *Policy, opts ...Option) (*Validator, error) {
	if policy == nil {
		return nil, &PolicyConfigurationError{Field: "policy", Message: "policy is nil"}
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	constraints, err := compileConstraints(policy.SignatureConstraints)
	if err != nil {
		return nil, err
	}

	v := &Validator{
		policy:      policy,
		anchors:     certvalidator.SnapshotOf(policy.TrustAnchors),
		constraints: constraints,
		clock:       clockwork.NewRealClock(),
		logger:      slog.Default(),
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.concurrency < 1 {
		v.concurrency = 1
	}
	v.logger = v.logger.With("component", "validation")

	v.metrics, err = newValidationMetrics(v.meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation metrics: %w", err)
	}
	return v, nil
}

// Policy returns the policy the validator runs.
func (v *Validator) Policy() *Policy {
	return v.policy
}

// run carries the state shared by the signature pipelines of one
// validation run. Everything in it is read-only.
type run struct {
	*Validator
	data        *evidence.DiagnosticData
	resolver    *certvalidator.Resolver
	tsValidator *timestamps.Validator
	instant     time.Time
}

// Validate validates every signature of data. The run instant is captured
// once and used by every check of the run. Signatures are validated in
// parallel and independently: a signature with malformed evidence is
// reported as a SignatureFault without affecting the others.
//
// The context only bounds scheduling; checks already started complete.
func (v *Validator) Validate(ctx context.Context, data *evidence.DiagnosticData) (*Result, error) {
	if data == nil {
		return nil, ErrNoEvidence
	}
	if err := data.CheckDocument(); err != nil {
		return nil, err
	}

	start := v.clock.Now()
	instant := start
	if v.validationTime != nil {
		instant = *v.validationTime
	}
	instant = instant.UTC()

	resolver := certvalidator.NewResolver(v.anchors, revinfo.NewIndex(data.Revocations),
		certvalidator.WithAnchorInChain(v.policy.IncludeAnchorInChain),
		certvalidator.WithRequiredRevocation(v.policy.RequireRevocation),
	)
	r := &run{
		Validator:   v,
		data:        data,
		resolver:    resolver,
		tsValidator: timestamps.NewValidator(resolver, v.policy),
		instant:     instant,
	}

	logger := v.logger.With("document", data.DocumentName)
	logger.InfoContext(ctx, "validating document",
		"signatures", len(data.Signatures),
		"required_level", v.policy.RequiredLevel,
		"validation_time", instant)

	results := make([]*SignatureResult, len(data.Signatures))
	faults := make([]*SignatureFault, len(data.Signatures))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, sig := range data.Signatures {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			res, err := r.validateSignature(sig)
			if err != nil {
				faults[i] = &SignatureFault{SignatureID: sig.ID, Err: err}
				logger.WarnContext(ctx, "signature evidence rejected", "signature", sig.ID, "error", err)
				v.metrics.recordFault(ctx)
				return nil
			}
			results[i] = res
			final, level := res.Collapse(v.policy.RequiredLevel)
			logger.DebugContext(ctx, "signature validated",
				"signature", sig.ID,
				"indication", final.Indication,
				"sub_indication", final.SubIndication,
				"level", level)
			v.metrics.recordSignature(ctx, v.policy.RequiredLevel, final.Indication)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("validation abandoned: %w", err)
	}

	digest := sha256.Sum256(data.Document)
	out := &Result{
		DocumentName:   data.DocumentName,
		DocumentDigest: digest[:],
		ValidationTime: instant,
		Policy:         v.policy,
	}
	for i := range data.Signatures {
		if results[i] != nil {
			out.Signatures = append(out.Signatures, results[i])
		}
		if faults[i] != nil {
			out.Faults = append(out.Faults, faults[i])
		}
	}

	v.metrics.recordDuration(ctx, v.clock.Since(start))
	logger.InfoContext(ctx, "document validated",
		"validated", len(out.Signatures),
		"faulted", len(out.Faults))
	return out, nil
}

// validateSignature runs the sequential pipeline of one signature.
func (r *run) validateSignature(sig *evidence.SignatureEvidence) (*SignatureResult, error) {
	if err := r.data.CheckConsistency(sig.ID); err != nil {
		return nil, err
	}

	res := &SignatureResult{SignatureID: sig.ID}
	res.Basic = r.basicBuildingBlock(r.data, sig, nil, r.instant)

	for _, ts := range sig.Timestamps {
		tr, err := r.tsValidator.Validate(ts, r.data.Document, timestampCandidates(r.data, ts))
		if err != nil {
			var me *evidence.MalformedEvidenceError
			if errors.As(err, &me) && me.SignatureID == "" {
				me.SignatureID = sig.ID
			}
			return nil, err
		}
		res.Timestamps = append(res.Timestamps, tr)
	}

	res.Timestamped, res.ProvenTime = r.timestampedLevel(sig, res)
	res.LongTerm, res.LongTermBlock = r.longTermLevel(sig, res)
	res.Archive = r.archiveLevel(sig, res)
	return res, nil
}
