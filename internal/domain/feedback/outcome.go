package feedback

import (
	"context"

	"github.com/critique/backend/internal/domain/persona"
)

// Gateway performs one model call for one persona over the given frames.
type Gateway interface {
	Invoke(ctx context.Context, p persona.Persona, frames []Frame, contextText string) (*Feedback, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, p persona.Persona, frames []Frame, contextText string) (*Feedback, error)

// Invoke calls f.
func (f GatewayFunc) Invoke(ctx context.Context, p persona.Persona, frames []Frame, contextText string) (*Feedback, error) {
	return f(ctx, p, frames, contextText)
}

// Outcome is the result of one persona invocation: exactly one of Feedback
// or Err is set.
type Outcome struct {
	Persona  persona.Persona
	Feedback *Feedback
	Err      error
}

// Succeeded builds a successful outcome.
func Succeeded(p persona.Persona, fb *Feedback) Outcome {
	return Outcome{Persona: p, Feedback: fb}
}

// Failed builds a failed outcome.
func Failed(p persona.Persona, err error) Outcome {
	return Outcome{Persona: p, Err: err}
}

// OK reports whether the invocation produced feedback.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Feedback != nil
}
