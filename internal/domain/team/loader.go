package team

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads and validates a Team from a YAML file.
func LoadFromFile(path string) (*Team, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read team file %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("team file %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a Team from YAML. Unknown fields are rejected
// so typos in rule keys do not silently disable a rule.
func Parse(data []byte) (*Team, error) {
	var t Team
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	return &t, nil
}
