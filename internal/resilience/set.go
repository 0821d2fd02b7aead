package resilience

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// Key identifies a breaker by capability and agent.
type Key struct {
	Capability string `json:"capability"`
	AgentID    string `json:"agent_id"`
}

// KeyedSnapshot is a breaker snapshot with its key.
type KeyedSnapshot struct {
	Key
	Snapshot
}

// BreakerSet lazily creates one Breaker per Key with shared settings.
type BreakerSet struct {
	mu          sync.Mutex
	breakers    map[Key]*Breaker
	maxFailures int
	timeout     time.Duration
	opts        []BreakerOption
	hook        func(Key, State, State)
}

// NewBreakerSet creates an empty set. opts apply to every breaker it creates.
func NewBreakerSet(maxFailures int, timeout time.Duration, opts ...BreakerOption) *BreakerSet {
	return &BreakerSet{
		breakers:    make(map[Key]*Breaker),
		maxFailures: maxFailures,
		timeout:     timeout,
		opts:        opts,
	}
}

// OnTransition registers fn to observe state changes of every breaker created
// after the call.
func (s *BreakerSet) OnTransition(fn func(k Key, from, to State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// Get returns the breaker for (capability, agentID), creating it if needed.
func (s *BreakerSet) Get(capability, agentID string) *Breaker {
	k := Key{Capability: capability, AgentID: agentID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.breakers[k]; ok {
		return b
	}
	opts := slices.Clone(s.opts)
	if hook := s.hook; hook != nil {
		opts = append(opts, WithTransitionHook(func(from, to State) { hook(k, from, to) }))
	}
	b := NewBreaker(s.maxFailures, s.timeout, opts...)
	s.breakers[k] = b
	return b
}

// Snapshots returns the state of every breaker, ordered by key.
func (s *BreakerSet) Snapshots() []KeyedSnapshot {
	s.mu.Lock()
	keys := make([]Key, 0, len(s.breakers))
	bs := make([]*Breaker, 0, len(s.breakers))
	for k, b := range s.breakers {
		keys = append(keys, k)
		bs = append(bs, b)
	}
	s.mu.Unlock()

	out := make([]KeyedSnapshot, len(keys))
	for i := range keys {
		out[i] = KeyedSnapshot{Key: keys[i], Snapshot: bs[i].Snapshot()}
	}
	slices.SortFunc(out, func(a, b KeyedSnapshot) int {
		if c := cmp.Compare(a.Capability, b.Capability); c != 0 {
			return c
		}
		return cmp.Compare(a.AgentID, b.AgentID)
	})
	return out
}
