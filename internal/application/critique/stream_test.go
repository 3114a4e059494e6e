package critique

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/critique/backend/internal/domain/feedback"
	"github.com/critique/backend/internal/domain/persona"
)

func collect(t *testing.T, s *Stream) []feedback.StreamEvent {
	t.Helper()
	var events []feedback.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("stream did not finish")
			return nil
		}
	}
}

func kinds(events []feedback.StreamEvent) []feedback.EventKind {
	out := make([]feedback.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestRunStream_CompletionOrder(t *testing.T) {
	gw := &scriptedGateway{delays: map[string]time.Duration{
		"A": 50 * time.Millisecond,
		"B": 10 * time.Millisecond,
	}}
	o := NewOrchestrator(testRegistry(), gw)

	events := collect(t, o.RunStream(context.Background(), testRequest("A", "B")))

	require.Len(t, events, 5)
	assert.Equal(t, []feedback.EventKind{
		feedback.KindPersonaStart,
		feedback.KindPersonaStart,
		feedback.KindPersonaResult,
		feedback.KindPersonaResult,
		feedback.KindDone,
	}, kinds(events))
	assert.Equal(t, "A", events[0].PersonaID)
	assert.Equal(t, "Persona A", events[0].PersonaLabel)
	assert.Equal(t, "B", events[1].PersonaID)
	assert.Equal(t, "B", events[2].Feedback.Persona, "faster persona surfaces first")
	assert.Equal(t, "A", events[3].Feedback.Persona)
}

func TestRunStream_EventAccounting(t *testing.T) {
	gw := &scriptedGateway{
		delays: map[string]time.Duration{"A": 5 * time.Millisecond, "C": 15 * time.Millisecond},
		fail:   map[string]error{"B": errors.New("invalid json from model")},
	}
	o := NewOrchestrator(testRegistry(), gw)

	events := collect(t, o.RunStream(context.Background(), testRequest("A", "B", "C")))

	require.Len(t, events, 2*3+1)
	starts := map[string]int{}
	terminals := map[string]int{}
	for _, ev := range events[:len(events)-1] {
		switch ev.Kind {
		case feedback.KindPersonaStart:
			assert.Zero(t, terminals[ev.PersonaID], "start must precede terminal")
			starts[ev.PersonaID]++
		case feedback.KindPersonaResult, feedback.KindPersonaError:
			terminals[ev.PersonaID]++
		default:
			t.Fatalf("unexpected event %s before done", ev.Kind)
		}
	}
	for _, id := range []string{"A", "B", "C"} {
		assert.Equal(t, 1, starts[id], id)
		assert.Equal(t, 1, terminals[id], id)
	}
	assert.Equal(t, feedback.KindDone, events[len(events)-1].Kind)

	for _, ev := range events {
		if ev.Kind == feedback.KindPersonaError {
			assert.Equal(t, "B", ev.PersonaID)
			assert.Equal(t, "invalid json from model", ev.Detail)
		}
	}
}

func TestRunStream_EmptyResolvedSet(t *testing.T) {
	gw := &scriptedGateway{}
	o := NewOrchestrator(testRegistry(), gw)

	s := o.RunStream(context.Background(), testRequest("nope"))
	events := collect(t, s)

	assert.Empty(t, events, "no done event for an empty run")
	assert.Equal(t, int32(0), gw.calls.Load())
	s.Close()
}

func TestRunStream_DropsUnknownIDs(t *testing.T) {
	gw := &scriptedGateway{}
	o := NewOrchestrator(testRegistry(), gw)

	events := collect(t, o.RunStream(context.Background(), testRequest("A", "ghost")))

	assert.Len(t, events, 3)
	assert.Equal(t, int32(1), gw.calls.Load())
}

func TestRunStream_PanicBecomesErrorEvent(t *testing.T) {
	gw := &scriptedGateway{panics: map[string]bool{"C": true}}
	o := NewOrchestrator(testRegistry(), gw)

	events := collect(t, o.RunStream(context.Background(), testRequest("C")))

	require.Len(t, events, 3)
	assert.Equal(t, feedback.KindPersonaError, events[1].Kind)
	assert.Contains(t, events[1].Detail, "panicked")
	assert.Equal(t, feedback.KindDone, events[2].Kind)
}

func TestRunStream_CloseCancelsOutstanding(t *testing.T) {
	gw := &scriptedGateway{delays: map[string]time.Duration{
		"A": 10 * time.Second,
		"B": 10 * time.Second,
		"C": 10 * time.Millisecond,
	}}
	o := NewOrchestrator(testRegistry(), gw)
	s := o.RunStream(context.Background(), testRequest("A", "B", "C"))

	var seen []feedback.StreamEvent
	for ev := range s.Events() {
		seen = append(seen, ev)
		if ev.IsTerminal() {
			break
		}
	}
	require.Len(t, seen, 4)
	assert.Equal(t, "C", seen[3].PersonaID)

	start := time.Now()
	s.Close()
	assert.Less(t, time.Since(start), time.Second)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), gw.active.Load(), "no invocation may outlive Close")

	for ev := range s.Events() {
		assert.NotEqual(t, feedback.KindDone, ev.Kind, "done must not follow cancellation")
	}
}

func TestRunStream_ParentContextCancel(t *testing.T) {
	gw := &scriptedGateway{delays: map[string]time.Duration{"A": 10 * time.Second}}
	o := NewOrchestrator(testRegistry(), gw)
	ctx, cancel := context.WithCancel(context.Background())

	s := o.RunStream(ctx, testRequest("A"))
	first := <-s.Events()
	assert.Equal(t, feedback.KindPersonaStart, first.Kind)

	cancel()
	s.Wait()

	assert.Equal(t, int32(0), gw.active.Load())
	for ev := range s.Events() {
		assert.NotEqual(t, feedback.KindDone, ev.Kind)
	}
}

func TestRunStream_CloseAfterFinishIsSafe(t *testing.T) {
	o := NewOrchestrator(testRegistry(), &scriptedGateway{})
	s := o.RunStream(context.Background(), testRequest("A"))

	collect(t, s)
	s.Close()
	s.Close()
}

func TestRunStream_FinishReleasesRunContext(t *testing.T) {
	scripted := &scriptedGateway{}
	invoked := make(chan context.Context, 2)
	gw := feedback.GatewayFunc(func(ctx context.Context, p persona.Persona, frames []feedback.Frame, text string) (*feedback.Feedback, error) {
		invoked <- ctx
		return scripted.Invoke(ctx, p, frames, text)
	})
	o := NewOrchestrator(testRegistry(), gw)

	s := o.RunStream(context.Background(), testRequest("A", "B"))
	events := collect(t, s)
	s.Wait()

	require.Len(t, events, 5)
	assert.Equal(t, feedback.KindDone, events[4].Kind)
	assert.Equal(t, int32(0), scripted.active.Load())

	close(invoked)
	for ctx := range invoked {
		assert.ErrorIs(t, ctx.Err(), context.Canceled, "run context is cancelled once the stream finishes")
	}
}
