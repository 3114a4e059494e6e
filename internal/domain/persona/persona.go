// Package persona defines the simulated reviewers that critique a design and
// the immutable registry the orchestrator resolves them from.
package persona

import (
	"fmt"

	"github.com/critique/backend/internal/domain/shared"
)

// Persona is a simulated reviewer with a fixed point of view.
type Persona struct {
	ID           string `json:"id" yaml:"id"`
	Label        string `json:"label" yaml:"label"`
	SystemPrompt string `json:"-" yaml:"system_prompt"`
}

var (
	ErrEmptyID     = shared.NewDomainError("PERSONA_ID_REQUIRED", "persona id must not be empty")
	ErrEmptyLabel  = shared.NewDomainError("PERSONA_LABEL_REQUIRED", "persona label must not be empty")
	ErrDuplicateID = shared.NewDomainError("DUPLICATE_PERSONA", "persona id already registered")
)

// Registry maps persona ids to personas. It is built once and never mutated,
// so it can be shared between concurrent requests without locking.
type Registry struct {
	order []Persona
	byID  map[string]Persona
}

// NewRegistry builds a registry from the given personas, preserving their order.
func NewRegistry(personas ...Persona) (*Registry, error) {
	r := &Registry{
		order: make([]Persona, 0, len(personas)),
		byID:  make(map[string]Persona, len(personas)),
	}
	for _, p := range personas {
		if p.ID == "" {
			return nil, ErrEmptyID
		}
		if p.Label == "" {
			return nil, fmt.Errorf("persona %q: %w", p.ID, ErrEmptyLabel)
		}
		if _, exists := r.byID[p.ID]; exists {
			return nil, fmt.Errorf("persona %q: %w", p.ID, ErrDuplicateID)
		}
		r.byID[p.ID] = p
		r.order = append(r.order, p)
	}
	return r, nil
}

// MustNewRegistry is NewRegistry that panics on error. Intended for
// package-level defaults and tests.
func MustNewRegistry(personas ...Persona) *Registry {
	r, err := NewRegistry(personas...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the persona registered under id. Ids are case-sensitive.
func (r *Registry) Lookup(id string) (Persona, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Unknown returns the ids that are not registered, in request order.
func (r *Registry) Unknown(ids []string) []string {
	var unknown []string
	for _, id := range ids {
		if !r.Has(id) {
			unknown = append(unknown, id)
		}
	}
	return unknown
}

// Resolve maps ids to personas, dropping ids that are not registered.
// Duplicates are kept.
func (r *Registry) Resolve(ids []string) []Persona {
	resolved := make([]Persona, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.byID[id]; ok {
			resolved = append(resolved, p)
		}
	}
	return resolved
}

// List returns all personas in registration order.
func (r *Registry) List() []Persona {
	out := make([]Persona, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered personas.
func (r *Registry) Len() int {
	return len(r.order)
}
