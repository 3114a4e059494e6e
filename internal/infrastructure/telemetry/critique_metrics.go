package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// Invocation outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

// CritiqueMetrics records orchestrator activity: runs, per-persona model
// invocations, their latency and how many are in flight.
type CritiqueMetrics struct {
	runsTotal          *Counter
	invocationsTotal   *Counter
	invocationDuration *Histogram
	inFlight           *UpDownCounter
}

// NewCritiqueMetrics creates the orchestrator instruments on meter.
func NewCritiqueMetrics(meter metric.Meter) (*CritiqueMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &CritiqueMetrics{}
	var err error

	m.runsTotal, err = NewCounter(meter,
		"critique_runs_total",
		"Total number of critique runs started",
		"{runs}",
	)
	if err != nil {
		return nil, err
	}

	m.invocationsTotal, err = NewCounter(meter,
		"critique_persona_invocations_total",
		"Total number of persona model invocations by outcome",
		"{invocations}",
	)
	if err != nil {
		return nil, err
	}

	m.invocationDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "critique_persona_invocation_duration_seconds",
		Description: "Latency of a single persona model invocation",
		Unit:        "s",
		Boundaries:  ModelCallBuckets,
	})
	if err != nil {
		return nil, err
	}

	m.inFlight, err = NewUpDownCounter(meter,
		"critique_persona_invocations_in_flight",
		"Persona model invocations currently running",
		"{invocations}",
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RunStarted counts a run.
func (m *CritiqueMetrics) RunStarted(ctx context.Context, mode string, _ int) {
	m.runsTotal.Inc(ctx, AttrRunMode.String(mode))
}

// InvocationStarted marks an invocation as in flight.
func (m *CritiqueMetrics) InvocationStarted(ctx context.Context, personaID string) {
	m.inFlight.Add(ctx, 1, AttrPersonaID.String(personaID))
}

// InvocationFinished records the outcome and latency of an invocation.
func (m *CritiqueMetrics) InvocationFinished(ctx context.Context, personaID string, err error, d time.Duration) {
	outcome := OutcomeSuccess
	switch {
	case errors.Is(err, context.Canceled):
		outcome = OutcomeCanceled
	case err != nil:
		outcome = OutcomeError
	}

	// The caller's context may already be cancelled; metrics must still land.
	ctx = context.WithoutCancel(ctx)
	m.inFlight.Add(ctx, -1, AttrPersonaID.String(personaID))
	m.invocationsTotal.Inc(ctx, AttrPersonaID.String(personaID), AttrOutcome.String(outcome))
	m.invocationDuration.RecordDuration(ctx, d, AttrPersonaID.String(personaID), AttrOutcome.String(outcome))
}
