// Package critique runs one model invocation per requested persona
// concurrently and gathers the results, either as a single ordered batch or
// as a stream of lifecycle events.
package critique

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/critique/backend/internal/domain/feedback"
	"github.com/critique/backend/internal/domain/persona"
	"github.com/critique/backend/internal/infrastructure/logger"
	"github.com/critique/backend/internal/infrastructure/telemetry"
)

// ErrNoFeedback is returned for an invocation whose gateway reported neither
// feedback nor an error.
var ErrNoFeedback = errors.New("gateway returned no feedback")

// Run modes, used as log fields and metric attributes.
const (
	ModeBatch  = "batch"
	ModeStream = "stream"
)

// Recorder receives invocation measurements. telemetry.CritiqueMetrics
// implements it.
type Recorder interface {
	RunStarted(ctx context.Context, mode string, personas int)
	InvocationStarted(ctx context.Context, personaID string)
	InvocationFinished(ctx context.Context, personaID string, err error, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RunStarted(context.Context, string, int)                           {}
func (nopRecorder) InvocationStarted(context.Context, string)                         {}
func (nopRecorder) InvocationFinished(context.Context, string, error, time.Duration) {}

// Orchestrator fans a request out to its personas and fans the results back in.
// It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	registry *persona.Registry
	gateway  feedback.Gateway
	logger   *zap.Logger
	recorder Recorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// NewOrchestrator creates an orchestrator over an immutable registry and a
// model gateway.
func NewOrchestrator(registry *persona.Registry, gateway feedback.Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		gateway:  gateway,
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry returns the registry personas are resolved from.
func (o *Orchestrator) Registry() *persona.Registry {
	return o.registry
}

// RunBatch invokes every resolved persona concurrently and returns the
// successful feedback in request order. Unknown ids are dropped; failed
// invocations are logged and omitted.
func (o *Orchestrator) RunBatch(ctx context.Context, req feedback.Request) []feedback.Feedback {
	personas := o.registry.Resolve(req.Personas)
	if len(personas) == 0 {
		return []feedback.Feedback{}
	}

	runID := uuid.NewString()
	log := logger.WithLogger(ctx, o.logger).With(
		zap.String("run_id", runID),
		zap.String("mode", ModeBatch),
	)
	ctx, span := telemetry.StartServiceSpan(ctx, "critique", "run_batch",
		telemetry.WithAttribute(telemetry.SpanAttrRunID, runID),
		telemetry.WithAttribute(telemetry.SpanAttrPersonaCount, len(personas)),
		telemetry.WithAttribute(telemetry.SpanAttrFrameCount, len(req.Frames)),
	)
	defer span.End()

	o.recorder.RunStarted(ctx, ModeBatch, len(personas))
	log.Info("Batch run started", zap.Int("personas", len(personas)), zap.Int("frames", len(req.Frames)))

	type indexed struct {
		idx     int
		outcome feedback.Outcome
	}
	results := make(chan indexed, len(personas))

	var wg sync.WaitGroup
	for i, p := range personas {
		wg.Add(1)
		go func(idx int, p persona.Persona) {
			defer wg.Done()
			results <- indexed{idx: idx, outcome: o.invoke(ctx, p, req)}
		}(i, p)
	}
	wg.Wait()
	close(results)

	outcomes := make([]feedback.Outcome, len(personas))
	for r := range results {
		outcomes[r.idx] = r.outcome
	}

	collected := make([]feedback.Feedback, 0, len(personas))
	for _, out := range outcomes {
		if !out.OK() {
			log.Error("Persona invocation failed",
				zap.String("persona_id", out.Persona.ID),
				zap.Error(out.Err),
			)
			continue
		}
		collected = append(collected, *out.Feedback)
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrSucceeded, len(collected))
	log.Info("Batch run finished",
		zap.Int("succeeded", len(collected)),
		zap.Int("failed", len(personas)-len(collected)),
	)
	return collected
}

// invoke performs one gateway call. Panics are converted to failures so that
// one persona can never take down its siblings.
func (o *Orchestrator) invoke(ctx context.Context, p persona.Persona, req feedback.Request) (out feedback.Outcome) {
	start := time.Now()
	ctx, span := telemetry.StartServiceSpan(ctx, "critique", "invoke_persona",
		telemetry.WithAttribute(telemetry.SpanAttrPersonaID, p.ID),
	)
	defer span.End()

	o.recorder.InvocationStarted(ctx, p.ID)
	defer func() {
		if r := recover(); r != nil {
			out = feedback.Failed(p, fmt.Errorf("persona %s panicked: %v", p.ID, r))
		}
		telemetry.RecordError(span, out.Err)
		o.recorder.InvocationFinished(ctx, p.ID, out.Err, time.Since(start))
	}()

	var (
		fb  *feedback.Feedback
		err error
	)
	telemetry.WithProfilingLabels(ctx, map[string]string{telemetry.ProfilingLabelPersona: p.ID}, func(ctx context.Context) {
		fb, err = o.gateway.Invoke(ctx, p, req.Frames, req.Context)
	})
	if err != nil {
		return feedback.Failed(p, err)
	}
	if fb == nil {
		return feedback.Failed(p, ErrNoFeedback)
	}
	return feedback.Succeeded(p, fb)
}
