package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
)

// WellKnownPath is where agents serve their card.
const WellKnownPath = "/.well-known/agent.json"

const maxCardBytes = 1 << 20

// Resolver fetches agent cards over HTTP.
type Resolver struct {
	client *http.Client
}

// NewResolver creates a resolver using client.
func NewResolver(client *http.Client) *Resolver {
	return &Resolver{client: client}
}

// Fetch reads the card at cardURL. A bare base URL gets the well-known path appended.
func (r *Resolver) Fetch(ctx context.Context, cardURL string) (*a2a.AgentCard, error) {
	if !strings.HasSuffix(cardURL, ".json") {
		cardURL = strings.TrimRight(cardURL, "/") + WellKnownPath
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("card request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch card %s: %w", cardURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch card %s: status %d", cardURL, resp.StatusCode)
	}
	var card a2a.AgentCard
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCardBytes)).Decode(&card); err != nil {
		return nil, fmt.Errorf("decode card %s: %w", cardURL, err)
	}
	if card.URL == "" {
		return nil, fmt.Errorf("card %s has no url", cardURL)
	}
	return &card, nil
}
