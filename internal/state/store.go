// Package state keeps the live values of registered controls: the current
// dataset used for change detection and the replay snapshot sent to clients
// that connect later.
//
// Values are keyed by effective id. Every key also belongs to an owner, the
// id of the control that produced it, so that dropping a control drops its
// per-instance entries too.
package state

import (
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultGracePeriod is how long state outlives its control after removal.
const DefaultGracePeriod = time.Second

// Snapshot is the last payload emitted for a key.
type Snapshot map[string]any

// Clone returns a shallow copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

type purge struct {
	timer *clock.Timer
	gen   uint64
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	clock   clock.Clock
	grace   time.Duration
	current map[string]any
	replay  map[string]Snapshot
	order   []string
	owners  map[string]map[string]struct{}
	purges  map[string]*purge
	gen     uint64
	onPurge func(owner string, keys int)
}

// Config defines Store configuration.
type Config struct {
	Clock       clock.Clock
	GracePeriod time.Duration
	// OnPurge is called after a deferred purge ran, outside the store lock.
	OnPurge func(owner string, keys int)
}

// New creates a Store. A nil config uses the wall clock and
// DefaultGracePeriod.
func New(config *Config) *Store {
	if config == nil {
		config = &Config{}
	}
	s := &Store{
		clock:   config.Clock,
		grace:   config.GracePeriod,
		current: make(map[string]any),
		replay:  make(map[string]Snapshot),
		owners:  make(map[string]map[string]struct{}),
		purges:  make(map[string]*purge),
		onPurge: config.OnPurge,
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.grace <= 0 {
		s.grace = DefaultGracePeriod
	}
	return s
}

func (s *Store) own(owner, key string) {
	keys := s.owners[owner]
	if keys == nil {
		keys = make(map[string]struct{})
		s.owners[owner] = keys
	}
	keys[key] = struct{}{}
}

// Current returns the dataset stored under key.
func (s *Store) Current(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.current[key]
	return v, ok
}

// SetCurrent stores the dataset for key on behalf of owner.
func (s *Store) SetCurrent(owner, key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[key] = v
	s.own(owner, key)
}

// Replay returns the snapshot stored under key. Callers must not modify it.
func (s *Store) Replay(key string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.replay[key]
	return snap, ok
}

// SetReplay stores the snapshot for key on behalf of owner. A key keeps its
// replay position when it is overwritten.
func (s *Store) SetReplay(owner, key string, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.replay[key]; !ok {
		s.order = append(s.order, key)
	}
	s.replay[key] = snap
	s.own(owner, key)
}

// Snapshots returns every replay snapshot in first-stored order.
func (s *Store) Snapshots() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.replay[key])
	}
	return out
}

// Len returns the number of current values and replay snapshots.
func (s *Store) Len() (current, replay int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.current), len(s.replay)
}

// SchedulePurge drops everything owned by owner once the grace period has
// passed. A pending purge for the same owner is replaced.
func (s *Store) SchedulePurge(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel(owner)
	s.gen++
	gen := s.gen
	p := &purge{gen: gen}
	p.timer = s.clock.AfterFunc(s.grace, func() { s.runPurge(owner, gen) })
	s.purges[owner] = p
}

// CancelPurge stops a pending purge and reports whether one was pending.
func (s *Store) CancelPurge(owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel(owner)
}

func (s *Store) cancel(owner string) bool {
	p, ok := s.purges[owner]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.purges, owner)
	return true
}

// PendingPurges returns the number of scheduled purges.
func (s *Store) PendingPurges() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.purges)
}

func (s *Store) runPurge(owner string, gen uint64) {
	s.mu.Lock()
	// A stopped timer may still fire; only the latest schedule counts.
	if p, ok := s.purges[owner]; !ok || p.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.purges, owner)
	keys := s.owners[owner]
	delete(s.owners, owner)
	for key := range keys {
		delete(s.current, key)
		delete(s.replay, key)
	}
	s.order = slices.DeleteFunc(s.order, func(key string) bool {
		_, gone := keys[key]
		return gone
	})
	onPurge := s.onPurge
	s.mu.Unlock()

	if onPurge != nil {
		onPurge(owner, len(keys))
	}
}
