// Package memory holds in-memory store implementations used in tests and dev
// environments. Each mirrors the behavior of its sqlite twin.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mfeltz/guardhouse/internal/guardhouse/store"
	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

type CredentialStore struct {
	mu          sync.RWMutex
	byExternal  map[uuid.UUID]types.Credential
	byPresented map[string]uuid.UUID
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		byExternal:  make(map[uuid.UUID]types.Credential),
		byPresented: make(map[string]uuid.UUID),
	}
}

func (s *CredentialStore) Lookup(_ context.Context, presentedID string) (types.Credential, error) {
	presentedID = strings.TrimSpace(presentedID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPresented[presentedID]
	if !ok {
		return types.Credential{}, store.ErrNotFound
	}
	return s.byExternal[id], nil
}

func (s *CredentialStore) Upsert(_ context.Context, cred types.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Drop a stale presented-id index entry if the card was re-encoded.
	if old, ok := s.byExternal[cred.ExternalID]; ok && old.PresentedID != cred.PresentedID {
		delete(s.byPresented, old.PresentedID)
	}
	s.byExternal[cred.ExternalID] = cred
	s.byPresented[cred.PresentedID] = cred.ExternalID
	return nil
}

func (s *CredentialStore) Deactivate(_ context.Context, externalID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byExternal[externalID]
	if !ok {
		return nil
	}
	cred.Active = false
	s.byExternal[externalID] = cred
	return nil
}

func (s *CredentialStore) ListActive(_ context.Context) ([]types.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Credential
	for _, cred := range s.byExternal {
		if cred.Active {
			out = append(out, cred)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PresentedID < out[j].PresentedID })
	return out, nil
}

// Seed inserts a credential with LastSyncedAt defaulted to now. Test helper.
func (s *CredentialStore) Seed(cred types.Credential) {
	if cred.LastSyncedAt.IsZero() {
		cred.LastSyncedAt = time.Now().UTC()
	}
	_ = s.Upsert(context.Background(), cred)
}
