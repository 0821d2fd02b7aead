// Package a2a publishes the supervisor's A2A agent card and reads the cards
// of specialist agents.
package a2a

import (
	"slices"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/devusermeta/nubankx-sub000/internal/config"
	"github.com/devusermeta/nubankx-sub000/internal/domain/intent"
)

const (
	cardVersion     = "1.0.0"
	protocolVersion = "0.3.0"
)

// BuildSupervisorCard describes the supervisor: one dispatch skill tagged
// with every capability it can route to.
func BuildSupervisorCard(cfg config.A2A, table *intent.Table) a2a.AgentCard {
	caps := make([]string, 0, len(table.Capabilities))
	for _, c := range table.Capabilities {
		caps = append(caps, c)
	}
	slices.Sort(caps)
	caps = slices.Compact(caps)

	examples := make([]string, 0, len(table.Rules))
	for _, r := range table.Rules {
		if len(r.Keywords) > 0 {
			examples = append(examples, r.Keywords[0])
		}
	}

	return a2a.AgentCard{
		Name:               cfg.Name,
		Description:        cfg.Description,
		URL:                cfg.PublicURL + "/api/v1/dispatch",
		Version:            cardVersion,
		ProtocolVersion:    protocolVersion,
		Capabilities:       a2a.AgentCapabilities{Streaming: false},
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"application/json"},
		Skills: []a2a.AgentSkill{
			{
				ID:          "dispatch",
				Name:        "Customer support dispatch",
				Description: "Classifies a banking question and forwards it to the specialist agent for its capability.",
				Tags:        caps,
				Examples:    examples,
				InputModes:  []string{"text/plain"},
				OutputModes: []string{"application/json"},
			},
		},
	}
}

// Capabilities extracts directory capabilities from a specialist's card:
// the skill ids, plus skill tags when includeTags is set.
func Capabilities(card *a2a.AgentCard, includeTags bool) []string {
	out := make([]string, 0, len(card.Skills))
	for _, s := range card.Skills {
		out = append(out, s.ID)
		if includeTags {
			out = append(out, s.Tags...)
		}
	}
	return out
}
