// Package feedback holds the design-critique data model: the frames under
// review, the structured critique each persona returns, and the events a
// streaming run emits.
package feedback

import (
	"github.com/critique/backend/internal/domain/shared"
)

// Dimensions is the pixel size of a frame.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DesignMetadata describes a frame as exported from the design tool.
type DesignMetadata struct {
	FrameName      string     `json:"frame_name"`
	Dimensions     Dimensions `json:"dimensions"`
	TextContent    []string   `json:"text_content"`
	Colors         []string   `json:"colors"`
	ComponentNames []string   `json:"component_names"`
}

// Frame is one screenshot plus its metadata. Image is base64 encoded.
type Frame struct {
	Image    string
	Metadata DesignMetadata
}

var (
	ErrNoPersonas = shared.NewDomainError("NO_PERSONAS", "at least one persona is required")
	ErrNoFrames   = shared.NewDomainError("NO_FRAMES", "Provide either 'image'+'metadata' or 'frames'")
)

// Request is everything a single run needs. Frame order is the user flow
// order; persona ids keep request order and duplicates.
type Request struct {
	Personas []string
	Frames   []Frame
	Context  string
}

// Validate checks the request minimums.
func (r Request) Validate() error {
	if len(r.Personas) == 0 {
		return ErrNoPersonas
	}
	if len(r.Frames) == 0 {
		return ErrNoFrames
	}
	return nil
}

// IsFlow reports whether the request covers more than one screen.
func (r Request) IsFlow() bool {
	return len(r.Frames) > 1
}
