package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mfeltz/guardhouse/internal/guardhouse/store"
	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

type GateStore struct {
	mu    sync.RWMutex
	gates map[string]types.Gate
}

func NewGateStore(gates ...types.Gate) *GateStore {
	s := &GateStore{gates: make(map[string]types.Gate, len(gates))}
	for _, g := range gates {
		s.gates[g.ID] = g
	}
	return s
}

func (s *GateStore) Get(_ context.Context, gateID string) (types.Gate, error) {
	gateID = strings.TrimSpace(gateID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	gate, ok := s.gates[gateID]
	if !ok {
		return types.Gate{}, store.ErrNotFound
	}
	return gate, nil
}

func (s *GateStore) Upsert(_ context.Context, gate types.Gate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gates[gate.ID] = gate
	return nil
}

func (s *GateStore) List(_ context.Context) ([]types.Gate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Gate, 0, len(s.gates))
	for _, g := range s.gates {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
