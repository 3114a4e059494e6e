package handler

import (
	"fmt"
	"io"
)

// SSEMessage is one server-sent event.
type SSEMessage struct {
	Event string
	Data  string
	ID    string
}

// sendEvent writes an SSE event. An empty Event produces a data-only
// message, which browsers dispatch as "message".
func sendEvent(w io.Writer, msg SSEMessage) error {
	if msg.Event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", msg.Event); err != nil {
			return err
		}
	}
	if msg.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", msg.ID); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", msg.Data)
	return err
}

// sendComment writes an SSE comment line, used as a keep-alive.
func sendComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}
