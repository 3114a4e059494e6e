package feedback

import (
	"encoding/json"
	"fmt"

	"github.com/critique/backend/internal/domain/shared"
)

// Severity grades an issue.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// IsValid reports whether s is one of the known severities.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Issue is a single problem a persona found.
type Issue struct {
	Severity    Severity `json:"severity"`
	Area        string   `json:"area"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion"`
}

const (
	MinScore = 1
	MaxScore = 10
)

var (
	ErrInvalidAnnotation = shared.NewDomainError("INVALID_ANNOTATION", "annotation out of bounds")
	ErrInvalidFeedback   = shared.NewDomainError("INVALID_FEEDBACK", "feedback failed validation")
)

// Annotation is a bounding box on a frame pointing at one issue. Coordinates
// are percentages of the frame's width and height.
type Annotation struct {
	FrameIndex int     `json:"frame_index"`
	XPct       float64 `json:"x_pct"`
	YPct       float64 `json:"y_pct"`
	WidthPct   float64 `json:"width_pct"`
	HeightPct  float64 `json:"height_pct"`
	IssueIndex int     `json:"issue_index"`
	Label      string  `json:"label"`
}

// NewAnnotation builds a validated annotation.
func NewAnnotation(frameIndex int, x, y, w, h float64, issueIndex int, label string) (Annotation, error) {
	a := Annotation{
		FrameIndex: frameIndex,
		XPct:       x,
		YPct:       y,
		WidthPct:   w,
		HeightPct:  h,
		IssueIndex: issueIndex,
		Label:      label,
	}
	if err := a.Validate(); err != nil {
		return Annotation{}, err
	}
	return a, nil
}

// Validate checks the coordinate and index bounds.
func (a Annotation) Validate() error {
	if a.FrameIndex < 0 {
		return fmt.Errorf("frame_index %d: %w", a.FrameIndex, ErrInvalidAnnotation)
	}
	if a.IssueIndex < 0 {
		return fmt.Errorf("issue_index %d: %w", a.IssueIndex, ErrInvalidAnnotation)
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"x_pct", a.XPct},
		{"y_pct", a.YPct},
		{"width_pct", a.WidthPct},
		{"height_pct", a.HeightPct},
	} {
		if f.v < 0 || f.v > 100 {
			return fmt.Errorf("%s %g not in [0,100]: %w", f.name, f.v, ErrInvalidAnnotation)
		}
	}
	return nil
}

// UnmarshalJSON decodes and validates, so an out-of-range annotation can
// never be constructed from model output.
func (a *Annotation) UnmarshalJSON(data []byte) error {
	type plain Annotation
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if err := Annotation(p).Validate(); err != nil {
		return err
	}
	*a = Annotation(p)
	return nil
}

// Feedback is one persona's structured critique.
type Feedback struct {
	Persona           string       `json:"persona"`
	PersonaLabel      string       `json:"persona_label"`
	OverallImpression string       `json:"overall_impression"`
	Issues            []Issue      `json:"issues"`
	Positives         []string     `json:"positives"`
	Score             int          `json:"score"`
	Annotations       []Annotation `json:"annotations,omitempty"`
}

// Validate checks score, severities and annotation bounds.
func (f *Feedback) Validate() error {
	if f.Score < MinScore || f.Score > MaxScore {
		return fmt.Errorf("score %d not in [%d,%d]: %w", f.Score, MinScore, MaxScore, ErrInvalidFeedback)
	}
	for i, issue := range f.Issues {
		if !issue.Severity.IsValid() {
			return fmt.Errorf("issue %d severity %q: %w", i, issue.Severity, ErrInvalidFeedback)
		}
	}
	for i, a := range f.Annotations {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("annotation %d: %w", i, err)
		}
	}
	return nil
}

// DropDanglingAnnotations removes annotations that point past the last frame
// or the last issue. It returns how many were removed.
func (f *Feedback) DropDanglingAnnotations(frameCount int) int {
	if len(f.Annotations) == 0 {
		return 0
	}
	kept := f.Annotations[:0]
	for _, a := range f.Annotations {
		if a.FrameIndex < frameCount && a.IssueIndex < len(f.Issues) {
			kept = append(kept, a)
		}
	}
	dropped := len(f.Annotations) - len(kept)
	f.Annotations = kept
	return dropped
}
