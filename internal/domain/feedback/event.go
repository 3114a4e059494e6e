package feedback

// EventKind tags a StreamEvent.
type EventKind string

const (
	KindPersonaStart  EventKind = "persona-start"
	KindPersonaResult EventKind = "persona-result"
	KindPersonaError  EventKind = "persona-error"
	KindDone          EventKind = "done"
)

// StreamEvent is one item of a streaming run. Which fields are set depends
// on Kind: start and error carry the persona, result carries Feedback, done
// carries nothing.
type StreamEvent struct {
	Kind         EventKind
	PersonaID    string
	PersonaLabel string
	Feedback     *Feedback
	Detail       string
}

// PersonaStart builds a start event.
func PersonaStart(id, label string) StreamEvent {
	return StreamEvent{Kind: KindPersonaStart, PersonaID: id, PersonaLabel: label}
}

// PersonaResult builds a result event.
func PersonaResult(fb *Feedback) StreamEvent {
	return StreamEvent{Kind: KindPersonaResult, PersonaID: fb.Persona, PersonaLabel: fb.PersonaLabel, Feedback: fb}
}

// PersonaError builds an error event.
func PersonaError(id, detail string) StreamEvent {
	return StreamEvent{Kind: KindPersonaError, PersonaID: id, Detail: detail}
}

// Done builds the terminal event of a run.
func Done() StreamEvent {
	return StreamEvent{Kind: KindDone}
}

// IsTerminal reports whether e closes out a persona.
func (e StreamEvent) IsTerminal() bool {
	return e.Kind == KindPersonaResult || e.Kind == KindPersonaError
}
