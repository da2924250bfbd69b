package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

// EntityStore keeps artist and track rows keyed by id with last-write-wins upserts.
type EntityStore struct {
	mu      sync.RWMutex
	artists map[string]catalog.NormalizedArtist
	tracks  map[string]catalog.NormalizedTrack
	writes  int
}

// NewEntityStore constructs an empty EntityStore.
func NewEntityStore() *EntityStore {
	return &EntityStore{
		artists: make(map[string]catalog.NormalizedArtist),
		tracks:  make(map[string]catalog.NormalizedTrack),
	}
}

// UpsertGraph writes every artist and track row.
func (s *EntityStore) UpsertGraph(_ context.Context, graph catalog.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, artist := range graph.Artists {
		s.artists[artist.ID] = artist
	}
	for _, track := range graph.Tracks {
		ids := append([]string(nil), track.ArtistIDs...)
		track.ArtistIDs = ids
		s.tracks[track.ID] = track
	}
	s.writes++
	return nil
}

// Artist returns a stored artist row.
func (s *EntityStore) Artist(id string) (catalog.NormalizedArtist, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artists[id]
	return a, ok
}

// Track returns a stored track row.
func (s *EntityStore) Track(id string) (catalog.NormalizedTrack, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracks[id]
	return t, ok
}

// Snapshot copies every stored row.
func (s *EntityStore) Snapshot() catalog.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var g catalog.Graph
	for _, a := range s.artists {
		g.Artists = append(g.Artists, a)
	}
	for _, t := range s.tracks {
		g.Tracks = append(g.Tracks, t)
	}
	return g
}

// Writes counts UpsertGraph calls.
func (s *EntityStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
