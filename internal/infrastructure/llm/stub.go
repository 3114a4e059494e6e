package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/critique/backend/internal/domain/feedback"
	"github.com/critique/backend/internal/domain/persona"
)

// StubGateway returns canned feedback without calling a model. It is used
// for local development without credentials and for end-to-end tests.
type StubGateway struct {
	// Delay simulates model latency.
	Delay time.Duration
}

var _ feedback.Gateway = (*StubGateway)(nil)

// NewStubGateway creates a stub gateway.
func NewStubGateway(delay time.Duration) *StubGateway {
	return &StubGateway{Delay: delay}
}

// Invoke returns one medium issue and one annotation per frame.
func (s *StubGateway) Invoke(ctx context.Context, p persona.Persona, frames []feedback.Frame, _ string) (*feedback.Feedback, error) {
	if len(frames) == 0 {
		return nil, feedback.ErrNoFrames
	}
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	fb := &feedback.Feedback{
		Persona:           p.ID,
		PersonaLabel:      p.Label,
		OverallImpression: fmt.Sprintf("%s reviewed %d screen(s).", p.Label, len(frames)),
		Positives:         []string{"Clear visual hierarchy"},
		Score:             7,
	}
	for i, f := range frames {
		fb.Issues = append(fb.Issues, feedback.Issue{
			Severity:    feedback.SeverityMedium,
			Area:        f.Metadata.FrameName,
			Description: fmt.Sprintf("Primary action on %q is easy to miss.", f.Metadata.FrameName),
			Suggestion:  "Increase contrast and size of the primary button.",
		})
		a, err := feedback.NewAnnotation(i, 10, 70, 80, 10, i, "Primary action")
		if err != nil {
			return nil, err
		}
		fb.Annotations = append(fb.Annotations, a)
	}
	return fb, nil
}
