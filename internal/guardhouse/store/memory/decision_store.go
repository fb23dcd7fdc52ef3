package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

// DecisionStore is an in-memory append-only decision log. FailWrites lets
// tests simulate a storage outage on the audit path.
type DecisionStore struct {
	mu         sync.Mutex
	decisions  []types.AccessDecision
	failWrites bool
}

var errWritesFailing = errors.New("decision store unavailable")

func NewDecisionStore() *DecisionStore {
	return &DecisionStore{}
}

func (s *DecisionStore) Record(_ context.Context, dec types.AccessDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites {
		return errWritesFailing
	}
	s.decisions = append(s.decisions, dec)
	return nil
}

func (s *DecisionStore) ListUnsynced(_ context.Context, limit int) ([]types.AccessDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.AccessDecision
	for _, d := range s.decisions {
		if d.Synced {
			continue
		}
		out = append(out, d)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *DecisionStore) MarkSynced(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for i := range s.decisions {
		if _, ok := set[s.decisions[i].ID]; ok {
			s.decisions[i].Synced = true
		}
	}
	return nil
}

// Decisions returns a copy of all recorded decisions. Test-only helper.
func (s *DecisionStore) Decisions() []types.AccessDecision {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.AccessDecision, len(s.decisions))
	copy(out, s.decisions)
	return out
}

// SetFailWrites toggles simulated write failures. Test-only helper.
func (s *DecisionStore) SetFailWrites(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = fail
}
