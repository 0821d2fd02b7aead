// Package agent defines the registered agent entity of the directory.
package agent

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/devusermeta/nubankx-sub000/internal/domain"
)

// Status represents the liveness state of a registered agent.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspected Status = "SUSPECTED"
	StatusRemoved   Status = "REMOVED"
)

// ErrDuplicate is returned when registering an id that is already live.
var ErrDuplicate = fmt.Errorf("agent already registered: %w", domain.ErrConflict)

// ErrUnknown is returned for operations on an id the directory does not hold.
var ErrUnknown = errors.New("unknown agent")

// Record is a registered agent endpoint advertising a set of capabilities.
type Record struct {
	ID            string    `json:"agent_id"`
	Capabilities  []string  `json:"capabilities"`
	Endpoint      string    `json:"endpoint"`
	Status        Status    `json:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	RegisteredAt  time.Time `json:"registered_at"`
	RemovedAt     time.Time `json:"removed_at,omitzero"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() Record {
	c := *r
	c.Capabilities = slices.Clone(r.Capabilities)
	return c
}

// HasCapability reports whether the record advertises capability.
func (r *Record) HasCapability(capability string) bool {
	_, found := slices.BinarySearch(r.Capabilities, capability)
	return found
}

// Registration is the input for adding an agent to the directory.
type Registration struct {
	ID           string   `json:"agent_id"`
	Capabilities []string `json:"capabilities"`
	Endpoint     string   `json:"endpoint"`
}

// Validate checks the registration and normalizes its capability set.
func (r *Registration) Validate() error {
	r.ID = strings.TrimSpace(r.ID)
	r.Endpoint = strings.TrimSpace(r.Endpoint)
	if r.ID == "" {
		return fmt.Errorf("agent_id is required: %w", domain.ErrValidation)
	}
	if r.Endpoint == "" {
		return fmt.Errorf("endpoint is required: %w", domain.ErrValidation)
	}
	r.Capabilities = NormalizeCapabilities(r.Capabilities)
	if len(r.Capabilities) == 0 {
		return fmt.Errorf("at least one capability is required: %w", domain.ErrValidation)
	}
	return nil
}

// NormalizeCapabilities trims, drops empties, sorts and de-duplicates.
func NormalizeCapabilities(caps []string) []string {
	out := make([]string, 0, len(caps))
	for _, c := range caps {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
