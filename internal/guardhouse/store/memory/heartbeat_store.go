package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mfeltz/guardhouse/internal/guardhouse/store"
)

type HeartbeatStore struct {
	mu   sync.Mutex
	recs []heartbeatEntry
}

type heartbeatEntry struct {
	gateID string
	rec    store.HeartbeatRecord
}

func NewHeartbeatStore() *HeartbeatStore {
	return &HeartbeatStore{}
}

func (s *HeartbeatStore) Insert(_ context.Context, gateID string, rec store.HeartbeatRecord) error {
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, heartbeatEntry{gateID: gateID, rec: rec})
	return nil
}

func (s *HeartbeatStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.recs[:0]
	var deleted int64
	for _, e := range s.recs {
		if e.rec.ReceivedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.recs = kept
	return deleted, nil
}

// Count returns the number of stored heartbeats. Test-only helper.
func (s *HeartbeatStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}
