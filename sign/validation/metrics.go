package validation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/georgepadayatti/adesval/sign/ades"
)

const meterName = "github.com/georgepadayatti/adesval/sign/validation"

// validationMetrics holds the instruments recorded by a Validator.
type validationMetrics struct {
	validated metric.Int64Counter
	faulted   metric.Int64Counter
	duration  metric.Float64Histogram
}

func newValidationMetrics(meter metric.Meter) (*validationMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	m := &validationMetrics{}
	var err error

	m.validated, err = meter.Int64Counter("adesval.signatures.validated",
		metric.WithDescription("Signatures validated, by final indication"),
		metric.WithUnit("{signature}"),
	)
	if err != nil {
		return nil, err
	}

	m.faulted, err = meter.Int64Counter("adesval.signatures.faulted",
		metric.WithDescription("Signatures whose evidence could not be validated"),
		metric.WithUnit("{signature}"),
	)
	if err != nil {
		return nil, err
	}

	m.duration, err = meter.Float64Histogram("adesval.validation.duration",
		metric.WithDescription("Document validation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *validationMetrics) recordSignature(ctx context.Context, level ades.SignatureLevel, ind ades.Indication) {
	m.validated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("indication", string(ind)),
		attribute.String("required_level", string(level)),
	))
}

func (m *validationMetrics) recordFault(ctx context.Context) {
	m.faulted.Add(ctx, 1)
}

func (m *validationMetrics) recordDuration(ctx context.Context, d time.Duration) {
	m.duration.Record(ctx, d.Seconds())
}
