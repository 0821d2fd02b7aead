package service

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/devusermeta/nubankx-sub000/internal/domain/intent"
)

// compiledRule holds lowercased keywords.
type compiledRule struct {
	label    intent.Label
	keywords []string
}

type routingTable struct {
	rules        []compiledRule
	capabilities map[intent.Label]string
	source       *intent.Table
}

// Classifier maps free text to an intent label using an ordered keyword
// table. The table can be swapped atomically while classifications run.
type Classifier struct {
	table atomic.Pointer[routingTable]
}

// NewClassifier validates t and builds a classifier over it.
func NewClassifier(t *intent.Table) (*Classifier, error) {
	c := &Classifier{}
	if err := c.Reload(t); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload replaces the routing table. An invalid table leaves the current one in place.
func (c *Classifier) Reload(t *intent.Table) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("reload routing: %w", err)
	}
	rt := &routingTable{
		rules:        make([]compiledRule, len(t.Rules)),
		capabilities: make(map[intent.Label]string, len(t.Capabilities)),
		source:       t,
	}
	for i, r := range t.Rules {
		kws := make([]string, len(r.Keywords))
		for j, k := range r.Keywords {
			kws[j] = strings.ToLower(strings.TrimSpace(k))
		}
		rt.rules[i] = compiledRule{label: r.Label, keywords: kws}
	}
	for l, capability := range t.Capabilities {
		rt.capabilities[l] = capability
	}
	c.table.Store(rt)
	slog.Info("routing table loaded", "rules", len(rt.rules), "capabilities", len(rt.capabilities))
	return nil
}

// Classify returns the label of the first rule with a keyword contained in
// text, compared case-insensitively, or intent.Unknown.
func (c *Classifier) Classify(text string) intent.Label {
	label, _ := c.Route(text)
	return label
}

// Route classifies text and resolves the capability from the same table
// snapshot. The capability is empty for intent.Unknown and for labels
// missing from the table.
func (c *Classifier) Route(text string) (intent.Label, string) {
	rt := c.table.Load()
	if strings.TrimSpace(text) == "" {
		return intent.Unknown, ""
	}
	lower := strings.ToLower(text)
	for _, r := range rt.rules {
		for _, k := range r.keywords {
			if strings.Contains(lower, k) {
				return r.label, rt.capabilities[r.label]
			}
		}
	}
	return intent.Unknown, ""
}

// Capability looks up the capability for label in the current table.
func (c *Classifier) Capability(label intent.Label) (string, bool) {
	capability, ok := c.table.Load().capabilities[label]
	return capability, ok && capability != ""
}

// Table returns the routing table currently in effect.
func (c *Classifier) Table() *intent.Table {
	return c.table.Load().source
}
