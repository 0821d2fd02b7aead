package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/devusermeta/nubankx-sub000/internal/domain/intent"
)

//go:embed routing.yaml
var defaultRouting []byte

// LoadRouting parses and validates the intent routing table at path.
// An empty path returns the built-in BankX table.
func LoadRouting(path string) (*intent.Table, error) {
	data := defaultRouting
	if path != "" {
		b, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied routing path
		if err != nil {
			return nil, fmt.Errorf("read routing %s: %w", path, err)
		}
		data = b
	}
	return ParseRouting(data)
}

// ParseRouting decodes a YAML routing table and validates it.
func ParseRouting(data []byte) (*intent.Table, error) {
	var t intent.Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse routing: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("routing: %w", err)
	}
	return &t, nil
}
