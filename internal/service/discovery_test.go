package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/devusermeta/nubankx-sub000/internal/domain"
)

type staticCards map[string]*a2a.AgentCard

func (s staticCards) Fetch(_ context.Context, u string) (*a2a.AgentCard, error) {
	if c, ok := s[u]; ok {
		return c, nil
	}
	return nil, errors.New("not found")
}

func TestDiscoveryRegistersSkills(t *testing.T) {
	dir := NewDirectory(time.Hour)
	cards := staticCards{"http://coach": {
		Name:   "coach-agent",
		URL:    "http://coach:8000/invoke",
		Skills: []a2a.AgentSkill{{ID: "coaching.advice"}},
	}}
	rec, err := NewDiscovery(cards, dir).Discover(context.Background(), "", "http://coach")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != "coach-agent" || rec.Endpoint != "http://coach:8000/invoke" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(dir.Resolve("coaching.advice")) != 1 {
		t.Fatal("discovered agent should resolve")
	}
}

func TestDiscoveryErrors(t *testing.T) {
	d := NewDiscovery(staticCards{"http://empty": {Name: "empty", URL: "http://e"}}, NewDirectory(time.Hour))
	if _, err := d.Discover(context.Background(), "x", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := d.Discover(context.Background(), "x", "http://missing"); err == nil {
		t.Fatal("expected fetch error")
	}
	if _, err := d.Discover(context.Background(), "x", "http://empty"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("card without skills should fail validation, got %v", err)
	}
}
