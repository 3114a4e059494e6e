// Package personas loads the persona catalogue from a YAML file.
package personas

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/critique/backend/internal/domain/persona"
)

type file struct {
	Personas []persona.Persona `yaml:"personas"`
}

// Load returns the built-in personas when path is empty, otherwise the
// personas defined in the file at path.
func Load(path string) (*persona.Registry, error) {
	if path == "" {
		return persona.DefaultRegistry(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a document of the form
//
//	personas:
//	  - id: power_user
//	    label: Power User
//	    system_prompt: |
//	      ...
func LoadFile(path string) (*persona.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personas file: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML bytes.
func Parse(data []byte) (*persona.Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse personas file: %w", err)
	}
	if len(f.Personas) == 0 {
		return nil, fmt.Errorf("personas file defines no personas")
	}
	reg, err := persona.NewRegistry(f.Personas...)
	if err != nil {
		return nil, fmt.Errorf("invalid personas file: %w", err)
	}
	return reg, nil
}
