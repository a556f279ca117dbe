package realtime

import (
	"sync/atomic"
	"time"

	geojson "github.com/paulmach/go.geojson"
)

// Snapshot is everything derived from one refresh of a target. It is never
// mutated after publication.
type Snapshot struct {
	Target    string                     `json:"target"`
	FetchedAt time.Time                  `json:"fetched_at"`
	Routes    DepartureIndex             `json:"-"`
	Trips     DepartureIndex             `json:"-"`
	Positions map[string]Position        `json:"positions"`
	Vehicles  *geojson.FeatureCollection `json:"-"`
	Alerts    AlertMatch                 `json:"alerts"`
	Status    Status                     `json:"status"`
	Errors    []string                   `json:"errors,omitempty"`
}

// Store publishes the latest snapshot of every configured target.
// The set of targets is fixed at construction, so lookups need no lock.
type Store struct {
	targets map[string]*atomic.Pointer[Snapshot]
}

func NewStore(targets []string) *Store {
	s := &Store{targets: make(map[string]*atomic.Pointer[Snapshot], len(targets))}
	for _, name := range targets {
		s.targets[name] = &atomic.Pointer[Snapshot]{}
	}
	return s
}

// Has reports whether target is configured.
func (s *Store) Has(target string) bool {
	_, ok := s.targets[target]
	return ok
}

// Get returns the latest snapshot of target, nil before the first refresh.
func (s *Store) Get(target string) *Snapshot {
	p, ok := s.targets[target]
	if !ok {
		return nil
	}
	return p.Load()
}

// Publish atomically replaces the snapshot of its target.
func (s *Store) Publish(snap *Snapshot) bool {
	p, ok := s.targets[snap.Target]
	if !ok {
		return false
	}
	p.Store(snap)
	return true
}
