package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/critique/backend/internal/domain/feedback"
	"github.com/critique/backend/internal/domain/persona"
)

// SystemPrompt combines the persona's role with the analysis framing for a
// single screen or a multi-screen flow.
func SystemPrompt(p persona.Persona, isFlow bool) string {
	framing := "You are evaluating a UI design screenshot. Analyze the visual design, " +
		"layout, typography, color usage, and user experience. "
	if isFlow {
		framing = "You are evaluating a multi-screen user flow. Analyze transitions, " +
			"consistency, and the overall user journey across all screens. "
	}
	return p.SystemPrompt + "\n\n" + framing +
		"Be specific and actionable in your feedback. " +
		"Rate severity of issues as 'high', 'medium', or 'low'."
}

// UserPrompt builds the text part of the user message. Screenshots are
// attached separately, in frame order.
func UserPrompt(p persona.Persona, frames []feedback.Frame, contextText string) string {
	var parts []string

	if len(frames) > 1 {
		parts = append(parts, "You are analyzing a user flow consisting of multiple screens. "+
			"Analyze the complete user journey.\n")
		for i, f := range frames {
			parts = append(parts, fmt.Sprintf("Frame %d: %q (%dx%d)",
				i+1, f.Metadata.FrameName, f.Metadata.Dimensions.Width, f.Metadata.Dimensions.Height))
		}
		parts = append(parts, "\nThe screenshots are attached in order. Focus on:\n"+
			"- Transitions between screens (is the flow logical?)\n"+
			"- Visual consistency across screens\n"+
			"- Overall user journey and experience\n"+
			"- Individual screen issues that affect the flow")
	} else {
		parts = append(parts,
			"Analyze the attached design screenshot.",
			"\nDesign metadata:\n"+metadataJSON(frames[0].Metadata),
		)
	}

	if contextText != "" {
		parts = append(parts, "\nDesigner's context: "+contextText)
	}

	parts = append(parts, fmt.Sprintf("\nProvide your feedback as the '%s' persona. "+
		"Your persona ID is '%s'. "+
		"Return a single JSON object with: persona, persona_label, overall_impression, "+
		"issues (array of {severity, area, description, suggestion}), "+
		"positives (array of strings), score (integer 1-10), and annotations.\n\n"+
		"For annotations: provide bounding boxes highlighting where each issue "+
		"is located in the screenshot. Each annotation has:\n"+
		"- frame_index: 0-based index of which frame (0-%d)\n"+
		"- x_pct, y_pct: top-left corner as percentage (0-100) of image width/height\n"+
		"- width_pct, height_pct: box size as percentage (0-100) of image width/height\n"+
		"- issue_index: 0-based index into the issues array\n"+
		"- label: short label for the area\n"+
		"Estimate the regions visually. It's OK to be approximate.",
		p.Label, p.ID, len(frames)-1))

	return strings.Join(parts, "\n")
}

func metadataJSON(m feedback.DesignMetadata) string {
	if m.TextContent == nil {
		m.TextContent = []string{}
	}
	if m.Colors == nil {
		m.Colors = []string{}
	}
	if m.ComponentNames == nil {
		m.ComponentNames = []string{}
	}
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(out)
}
