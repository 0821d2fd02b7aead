package tiered_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/devusermeta/nubankx-sub000/internal/adapter/tiered"
	"github.com/devusermeta/nubankx-sub000/internal/port/cache/cachetest"
)

var errDown = errors.New("kv unreachable")

// fakeTier records TTLs and can be switched into a failing mode.
type fakeTier struct {
	mu   sync.Mutex
	vals map[string][]byte
	ttls map[string]time.Duration
	down bool
}

func newTier() *fakeTier {
	return &fakeTier{vals: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeTier) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, false, errDown
	}
	v, ok := f.vals[key]
	return v, ok, nil
}

func (f *fakeTier) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errDown
	}
	f.vals[key], f.ttls[key] = value, ttl
	return nil
}

func (f *fakeTier) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errDown
	}
	delete(f.vals, key)
	return nil
}

func (f *fakeTier) setDown(v bool) {
	f.mu.Lock()
	f.down = v
	f.mu.Unlock()
}

func TestCompliance(t *testing.T) {
	cachetest.Run(t, tiered.New(newTier(), newTier(), time.Minute), nil)
}

func TestGetPrefersLocalAndBackfills(t *testing.T) {
	ctx := context.Background()
	local, shared := newTier(), newTier()
	c := tiered.New(local, shared, time.Minute)

	local.vals["idem:a"] = []byte("local")
	shared.vals["idem:a"] = []byte("shared")
	if v, ok, _ := c.Get(ctx, "idem:a"); !ok || string(v) != "local" {
		t.Fatalf("got %q/%v, want local copy", v, ok)
	}

	shared.vals["idem:b"] = []byte("from-peer")
	if v, ok, _ := c.Get(ctx, "idem:b"); !ok || string(v) != "from-peer" {
		t.Fatalf("got %q/%v, want shared copy", v, ok)
	}
	if string(local.vals["idem:b"]) != "from-peer" || local.ttls["idem:b"] != time.Minute {
		t.Fatalf("backfill missing or wrong ttl: %v", local.ttls["idem:b"])
	}
}

func TestSetCapsLocalTTL(t *testing.T) {
	ctx := context.Background()
	local, shared := newTier(), newTier()
	c := tiered.New(local, shared, time.Minute)

	for _, tt := range []struct {
		key       string
		ttl       time.Duration
		wantLocal time.Duration
	}{
		{"short", 10 * time.Second, 10 * time.Second},
		{"long", time.Hour, time.Minute},
		{"forever", 0, time.Minute},
	} {
		if err := c.Set(ctx, tt.key, []byte("x"), tt.ttl); err != nil {
			t.Fatalf("set %s: %v", tt.key, err)
		}
		if got := local.ttls[tt.key]; got != tt.wantLocal {
			t.Errorf("%s: local ttl %v, want %v", tt.key, got, tt.wantLocal)
		}
		if got := shared.ttls[tt.key]; got != tt.ttl {
			t.Errorf("%s: shared ttl %v, want %v", tt.key, got, tt.ttl)
		}
	}
}

func TestSharedOutageDegradesAndRecovers(t *testing.T) {
	ctx := context.Background()
	local, shared := newTier(), newTier()
	c := tiered.New(local, shared, time.Minute)

	shared.setDown(true)
	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set must survive shared outage: %v", err)
	}
	if !c.Degraded() {
		t.Fatal("expected degraded after shared failure")
	}
	if v, ok, err := c.Get(ctx, "k"); err != nil || !ok || string(v) != "v" {
		t.Fatalf("local copy lost: %q %v %v", v, ok, err)
	}
	if _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("shared get failure should read as a miss, got %v %v", ok, err)
	}
	if err := c.Delete(ctx, "k"); !errors.Is(err, errDown) {
		t.Fatalf("delete should surface shared error, got %v", err)
	}

	shared.setDown(false)
	if _, _, err := c.Get(ctx, "missing"); err != nil {
		t.Fatal(err)
	}
	if c.Degraded() {
		t.Fatal("expected recovery after a successful shared call")
	}
}
