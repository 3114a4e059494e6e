package critique

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/critique/backend/internal/domain/feedback"
	"github.com/critique/backend/internal/domain/persona"
	"github.com/critique/backend/internal/infrastructure/logger"
	"github.com/critique/backend/internal/infrastructure/telemetry"
)

// Stream is a running streaming critique. Events yields one PersonaStart per
// persona, then one terminal event per persona in completion order, then a
// single Done. The channel is closed after Done, or without Done when the
// run is cancelled.
type Stream struct {
	ID     string
	events chan feedback.StreamEvent
	cancel context.CancelFunc
	done   chan struct{}
}

// Events returns the event channel.
func (s *Stream) Events() <-chan feedback.StreamEvent {
	return s.events
}

// Close cancels every outstanding invocation and blocks until all of them
// have returned. It is safe to call more than once and after the stream has
// finished on its own.
func (s *Stream) Close() {
	s.cancel()
	<-s.done
}

// Wait blocks until the stream has finished, normally or by cancellation.
func (s *Stream) Wait() {
	<-s.done
}

// send delivers ev unless the run has been cancelled.
func (s *Stream) send(ctx context.Context, ev feedback.StreamEvent) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case s.events <- ev:
		return true
	}
}

// RunStream starts a streaming run and returns immediately. Cancelling ctx
// has the same effect as calling Close.
func (o *Orchestrator) RunStream(ctx context.Context, req feedback.Request) *Stream {
	personas := o.registry.Resolve(req.Personas)
	runCtx, cancel := context.WithCancel(ctx)

	s := &Stream{
		ID:     uuid.NewString(),
		events: make(chan feedback.StreamEvent, 2*len(personas)+1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if len(personas) == 0 {
		cancel()
		close(s.events)
		close(s.done)
		return s
	}

	go o.pump(runCtx, s, personas, req)
	return s
}

// pump owns the events channel: it emits the start events, launches one
// worker per persona and relays their terminal events until 2n events have
// been yielded.
func (o *Orchestrator) pump(ctx context.Context, s *Stream, personas []persona.Persona, req feedback.Request) {
	n := len(personas)
	log := logger.WithLogger(ctx, o.logger).With(
		zap.String("run_id", s.ID),
		zap.String("mode", ModeStream),
	)
	ctx, span := telemetry.StartServiceSpan(ctx, "critique", "run_stream",
		telemetry.WithAttribute(telemetry.SpanAttrRunID, s.ID),
		telemetry.WithAttribute(telemetry.SpanAttrPersonaCount, n),
		telemetry.WithAttribute(telemetry.SpanAttrFrameCount, len(req.Frames)),
	)

	results := make(chan feedback.StreamEvent, n)
	var wg sync.WaitGroup

	defer close(s.done)
	defer close(s.events)
	defer span.End()
	defer func() {
		// Workers only stop once ctx is cancelled.
		s.cancel()
		wg.Wait()
	}()

	o.recorder.RunStarted(ctx, ModeStream, n)
	log.Info("Stream run started", zap.Int("personas", n), zap.Int("frames", len(req.Frames)))

	yielded := 0
	for _, p := range personas {
		if !s.send(ctx, feedback.PersonaStart(p.ID, p.Label)) {
			log.Info("Stream run cancelled before start", zap.Int("yielded", yielded))
			return
		}
		yielded++
	}

	for _, p := range personas {
		wg.Add(1)
		go func(p persona.Persona) {
			defer wg.Done()
			results <- o.terminalEvent(ctx, log, p, req)
		}(p)
	}

	for yielded < 2*n {
		select {
		case <-ctx.Done():
			log.Info("Stream run cancelled", zap.Int("yielded", yielded))
			telemetry.AddEvent(span, "stream_cancelled", "yielded", yielded)
			return
		case ev := <-results:
			if !s.send(ctx, ev) {
				log.Info("Stream run cancelled", zap.Int("yielded", yielded))
				return
			}
			yielded++
		}
	}

	if s.send(ctx, feedback.Done()) {
		log.Info("Stream run finished", zap.Int("events", yielded+1))
	}
}

func (o *Orchestrator) terminalEvent(ctx context.Context, log *logger.ContextLogger, p persona.Persona, req feedback.Request) feedback.StreamEvent {
	out := o.invoke(ctx, p, req)
	if out.OK() {
		ev := feedback.PersonaResult(out.Feedback)
		ev.PersonaID, ev.PersonaLabel = p.ID, p.Label
		return ev
	}
	if ctx.Err() == nil {
		log.Error("Persona invocation failed",
			zap.String("persona_id", p.ID),
			zap.Error(out.Err),
		)
	}
	return feedback.PersonaError(p.ID, out.Err.Error())
}
