package service

import (
	"context"
	"fmt"

	"github.com/a2aproject/a2a-go/a2a"

	bxa2a "github.com/devusermeta/nubankx-sub000/internal/adapter/a2a"
	"github.com/devusermeta/nubankx-sub000/internal/domain"
	"github.com/devusermeta/nubankx-sub000/internal/domain/agent"
)

// CardFetcher reads a remote agent card.
type CardFetcher interface {
	Fetch(ctx context.Context, cardURL string) (*a2a.AgentCard, error)
}

// Discovery registers agents from their A2A cards.
type Discovery struct {
	fetcher CardFetcher
	dir     *Directory
}

// NewDiscovery creates a discovery service.
func NewDiscovery(f CardFetcher, dir *Directory) *Discovery {
	return &Discovery{fetcher: f, dir: dir}
}

// Discover fetches the card at cardURL and registers its skills as
// capabilities, served at the card's URL. An empty agentID uses the card name.
func (s *Discovery) Discover(ctx context.Context, agentID, cardURL string) (agent.Record, error) {
	if cardURL == "" {
		return agent.Record{}, fmt.Errorf("card_url is required: %w", domain.ErrValidation)
	}
	card, err := s.fetcher.Fetch(ctx, cardURL)
	if err != nil {
		return agent.Record{}, fmt.Errorf("discover %s: %w", cardURL, err)
	}
	if agentID == "" {
		agentID = card.Name
	}
	return s.dir.Register(agent.Registration{
		ID:           agentID,
		Capabilities: bxa2a.Capabilities(card, true),
		Endpoint:     card.URL,
	})
}
