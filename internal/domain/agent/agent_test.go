package agent

import (
	"errors"
	"slices"
	"testing"

	"github.com/devusermeta/nubankx-sub000/internal/domain"
)

func TestRegistrationValidate(t *testing.T) {
	tests := []struct {
		name    string
		reg     Registration
		wantErr bool
	}{
		{"valid", Registration{ID: "acct-1", Endpoint: "http://a", Capabilities: []string{"account.balance"}}, false},
		{"missing id", Registration{Endpoint: "http://a", Capabilities: []string{"x"}}, true},
		{"blank id", Registration{ID: "  ", Endpoint: "http://a", Capabilities: []string{"x"}}, true},
		{"missing endpoint", Registration{ID: "a", Capabilities: []string{"x"}}, true},
		{"no capabilities", Registration{ID: "a", Endpoint: "http://a"}, true},
		{"only blank capabilities", Registration{ID: "a", Endpoint: "http://a", Capabilities: []string{" ", ""}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reg.Validate()
			if tt.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNormalizeCapabilities(t *testing.T) {
	got := NormalizeCapabilities([]string{"b", " a ", "b", "", "c"})
	want := []string{"a", "b", "c"}
	if !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := Record{ID: "x", Capabilities: []string{"a", "b"}}
	c := r.Clone()
	c.Capabilities[0] = "z"
	if r.Capabilities[0] != "a" {
		t.Fatal("clone shares capability slice with original")
	}
	if !r.HasCapability("b") || r.HasCapability("z") {
		t.Fatal("HasCapability mismatch")
	}
}

func TestErrDuplicateIsConflict(t *testing.T) {
	if !errors.Is(ErrDuplicate, domain.ErrConflict) {
		t.Fatal("ErrDuplicate should wrap domain.ErrConflict")
	}
}
