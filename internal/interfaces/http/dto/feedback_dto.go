package dto

import (
	"github.com/critique/backend/internal/domain/feedback"
	"github.com/critique/backend/internal/domain/persona"
)

// DimensionsRequest is the pixel size of a frame.
type DimensionsRequest struct {
	Width  int `json:"width" binding:"min=0"`
	Height int `json:"height" binding:"min=0"`
}

// DesignMetadataRequest is the metadata exported with a frame.
type DesignMetadataRequest struct {
	FrameName      string            `json:"frame_name"`
	Dimensions     DimensionsRequest `json:"dimensions"`
	TextContent    []string          `json:"text_content"`
	Colors         []string          `json:"colors"`
	ComponentNames []string          `json:"component_names"`
}

// FrameRequest is one entry of FeedbackRequest.Frames.
type FrameRequest struct {
	Image    string                `json:"image" binding:"required"`
	Metadata DesignMetadataRequest `json:"metadata"`
}

// FeedbackRequest is the body of both feedback endpoints. Either Frames or
// Image plus Metadata must be present.
type FeedbackRequest struct {
	Image    string                 `json:"image"`
	Metadata *DesignMetadataRequest `json:"metadata"`
	Frames   []FrameRequest         `json:"frames" binding:"omitempty,dive"`
	Personas []string               `json:"personas" binding:"required,min=1,dive,required"`
	Context  string                 `json:"context"`
}

// ToFrames normalizes both input shapes into the ordered frame list.
// A non-empty Frames wins over the single-frame fields.
func (r *FeedbackRequest) ToFrames() ([]feedback.Frame, error) {
	if len(r.Frames) > 0 {
		frames := make([]feedback.Frame, len(r.Frames))
		for i, f := range r.Frames {
			frames[i] = feedback.Frame{Image: f.Image, Metadata: f.Metadata.toDomain()}
		}
		return frames, nil
	}
	if r.Image != "" && r.Metadata != nil {
		return []feedback.Frame{{Image: r.Image, Metadata: r.Metadata.toDomain()}}, nil
	}
	return nil, feedback.ErrNoFrames
}

// ToDomain builds the orchestrator request.
func (r *FeedbackRequest) ToDomain() (feedback.Request, error) {
	frames, err := r.ToFrames()
	if err != nil {
		return feedback.Request{}, err
	}
	req := feedback.Request{
		Personas: r.Personas,
		Frames:   frames,
		Context:  r.Context,
	}
	return req, req.Validate()
}

func (m DesignMetadataRequest) toDomain() feedback.DesignMetadata {
	return feedback.DesignMetadata{
		FrameName:      m.FrameName,
		Dimensions:     feedback.Dimensions{Width: m.Dimensions.Width, Height: m.Dimensions.Height},
		TextContent:    nonNil(m.TextContent),
		Colors:         nonNil(m.Colors),
		ComponentNames: nonNil(m.ComponentNames),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// FeedbackResponse is the batch endpoint's body.
type FeedbackResponse struct {
	Feedback []feedback.Feedback `json:"feedback"`
}

// PersonaResponse is a persona without its system prompt.
type PersonaResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// PersonaListResponse is the persona catalogue.
type PersonaListResponse struct {
	Personas []PersonaResponse `json:"personas"`
}

// NewPersonaListResponse converts registry entries for the wire.
func NewPersonaListResponse(personas []persona.Persona) PersonaListResponse {
	out := make([]PersonaResponse, len(personas))
	for i, p := range personas {
		out[i] = PersonaResponse{ID: p.ID, Label: p.Label}
	}
	return PersonaListResponse{Personas: out}
}

// PersonaStartPayload is the data of a persona-start event.
type PersonaStartPayload struct {
	Event        string `json:"event"`
	PersonaID    string `json:"persona_id"`
	PersonaLabel string `json:"persona_label"`
}

// PersonaErrorPayload is the data of a persona-error event.
type PersonaErrorPayload struct {
	Error   bool   `json:"error"`
	Persona string `json:"persona"`
	Detail  string `json:"detail"`
}
