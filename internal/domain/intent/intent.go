// Package intent defines intent labels, keyword routing rules and the
// intent to capability table used by the classifier.
package intent

import (
	"fmt"
	"strings"

	"github.com/devusermeta/nubankx-sub000/internal/domain"
)

// Label names a classified user intent.
type Label string

// Unknown is returned when no rule matches.
const Unknown Label = "UNKNOWN"

// Rule matches when any of its keywords occurs in the text.
type Rule struct {
	Label    Label    `yaml:"label" json:"label"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Table is an ordered rule list together with the capability mapping.
type Table struct {
	Rules        []Rule           `yaml:"rules" json:"rules"`
	Capabilities map[Label]string `yaml:"capabilities" json:"capabilities"`
}

// Validate rejects tables with empty rules or labels that have no capability.
func (t *Table) Validate() error {
	if len(t.Rules) == 0 {
		return fmt.Errorf("routing table has no rules: %w", domain.ErrValidation)
	}
	for i, r := range t.Rules {
		if r.Label == "" || r.Label == Unknown {
			return fmt.Errorf("rule %d: invalid label %q: %w", i, r.Label, domain.ErrValidation)
		}
		if len(r.Keywords) == 0 {
			return fmt.Errorf("rule %d (%s): no keywords: %w", i, r.Label, domain.ErrValidation)
		}
		for _, k := range r.Keywords {
			if strings.TrimSpace(k) == "" {
				return fmt.Errorf("rule %d (%s): blank keyword: %w", i, r.Label, domain.ErrValidation)
			}
		}
		if t.Capabilities[r.Label] == "" {
			return fmt.Errorf("label %q has no capability mapping: %w", r.Label, domain.ErrValidation)
		}
	}
	return nil
}

// Capability returns the capability mapped to label.
func (t *Table) Capability(label Label) (string, bool) {
	c, ok := t.Capabilities[label]
	return c, ok && c != ""
}
