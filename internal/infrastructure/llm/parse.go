package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/critique/backend/internal/domain/feedback"
	"github.com/critique/backend/internal/domain/persona"
)

// ErrEmptyCompletion is returned when the model produced no content.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// ParseFeedback decodes a model completion into validated feedback for p.
// Markdown code fences around the JSON are tolerated. The persona fields are
// always set from p, whatever the model wrote. Annotations pointing past the
// last frame or issue are discarded.
func ParseFeedback(raw string, p persona.Persona, frameCount int) (*feedback.Feedback, error) {
	body := extractJSON(raw)
	if body == "" {
		return nil, ErrEmptyCompletion
	}

	var fb feedback.Feedback
	if err := json.Unmarshal([]byte(body), &fb); err != nil {
		return nil, fmt.Errorf("llm: decode feedback: %w", err)
	}

	fb.Persona = p.ID
	fb.PersonaLabel = p.Label
	if fb.Issues == nil {
		fb.Issues = []feedback.Issue{}
	}
	if fb.Positives == nil {
		fb.Positives = []string{}
	}
	for i := range fb.Issues {
		fb.Issues[i].Severity = feedback.Severity(strings.ToLower(strings.TrimSpace(string(fb.Issues[i].Severity))))
	}

	if err := fb.Validate(); err != nil {
		return nil, err
	}
	fb.DropDanglingAnnotations(frameCount)
	return &fb, nil
}

// extractJSON strips code fences and any prose around the outermost object.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
