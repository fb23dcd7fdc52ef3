package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/mfeltz/guardhouse/internal/guardhouse/store"
	"github.com/mfeltz/guardhouse/internal/upstream"
)

// pullCursorKey is where the credential delta cursor lives in sync_state.
const pullCursorKey = "credentials_pull_cursor"

type SyncConfig struct {
	PullInterval  time.Duration
	PushInterval  time.Duration
	PushBatchSize int

	// CallTimeout bounds each individual upstream call.
	CallTimeout time.Duration
}

// SyncService reconciles with the upstream registry: the pull duty brings
// credential deltas into the cache, the push duty ships unsynced decisions
// up. The duties run on independent timers and share nothing with the
// validation hot path except the stores' transactional write path.
type SyncService struct {
	registry  upstream.Registry
	creds     store.CredentialStore
	decisions store.DecisionStore
	state     store.SyncStateStore
	cfg       SyncConfig
	logger    *log.Logger

	mu          sync.RWMutex
	online      bool
	lastContact time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSyncService(
	registry upstream.Registry,
	creds store.CredentialStore,
	decisions store.DecisionStore,
	state store.SyncStateStore,
	cfg SyncConfig,
	logger *log.Logger,
) *SyncService {
	return &SyncService{
		registry:  registry,
		creds:     creds,
		decisions: decisions,
		state:     state,
		cfg:       cfg,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Online reports whether the last upstream contact succeeded. False until
// the first successful call after startup.
func (s *SyncService) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// LastContact is the instant of the last successful upstream exchange.
func (s *SyncService) LastContact() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastContact
}

// Start launches the pull and push loops. Stop cancels them and waits.
func (s *SyncService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.pullLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.pushLoop(ctx)
	}()
	go func() {
		wg.Wait()
		close(s.done)
	}()

	s.logger.Printf("sync started (pull=%s, push=%s, batch=%d)",
		s.cfg.PullInterval, s.cfg.PushInterval, s.cfg.PushBatchSize)
}

func (s *SyncService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

// pullLoop pulls immediately on startup, then on the configured interval.
// While pulls fail the wait backs off exponentially instead; a success
// resets to the normal cadence.
func (s *SyncService) pullLoop(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	bo.MaxInterval = s.cfg.PullInterval

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		n, err := s.PullOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Printf("sync pull: %v", err)
			timer.Reset(bo.NextBackOff())
			continue
		}
		if n > 0 {
			s.logger.Printf("sync pull: applied %d credential deltas", n)
		}
		bo.Reset()
		timer.Reset(s.cfg.PullInterval)
	}
}

func (s *SyncService) pushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := s.PushOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Unsynced rows stay unsynced; the next tick retries them.
			s.logger.Printf("sync push: %v", err)
			continue
		}
		if n > 0 {
			s.logger.Printf("sync push: %d decisions confirmed upstream", n)
		}
	}
}

// PullOnce fetches one page of credential deltas and applies it. The cursor
// only advances after every delta in the page is durably applied, so a crash
// mid-page re-applies the page — harmless, because upserts are idempotent.
func (s *SyncService) PullOnce(ctx context.Context) (int, error) {
	cursor, err := s.state.Cursor(ctx, pullCursorKey)
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	res, err := s.registry.PullCredentials(callCtx, cursor)
	cancel()
	if err != nil {
		s.markOffline()
		return 0, err
	}
	s.markOnline()

	for _, delta := range res.Credentials {
		if delta.Removed {
			err = s.creds.Deactivate(ctx, delta.Credential.ExternalID)
		} else {
			err = s.creds.Upsert(ctx, delta.Credential)
		}
		if err != nil {
			return 0, fmt.Errorf("apply delta %s: %w", delta.Credential.ExternalID, err)
		}
	}

	if res.Cursor != "" && res.Cursor != cursor {
		if err := s.state.SetCursor(ctx, pullCursorKey, res.Cursor); err != nil {
			return 0, fmt.Errorf("advance cursor: %w", err)
		}
	}
	return len(res.Credentials), nil
}

// PushOnce transmits one bounded batch of unsynced decisions. Only upstream-
// confirmed IDs get their flag set; everything else stays unsynced for the
// next attempt. Push is at-least-once: the upstream dedupes by decision ID,
// and a duplicate rejection counts as confirmation (it means an earlier
// attempt landed, we just never saw the reply).
func (s *SyncService) PushOnce(ctx context.Context) (int, error) {
	batch, err := s.decisions.ListUnsynced(ctx, s.cfg.PushBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list unsynced: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	res, err := s.registry.PushDecisions(callCtx, batch)
	cancel()
	if err != nil {
		s.markOffline()
		return 0, err
	}
	s.markOnline()

	confirmed := res.Accepted
	for _, rej := range res.Rejected {
		if rej.Reason == "duplicate" {
			confirmed = append(confirmed, rej.ID)
			continue
		}
		s.logger.Printf("sync push: decision %s rejected upstream: %s", rej.ID, rej.Reason)
	}

	if err := s.markSynced(ctx, confirmed); err != nil {
		return 0, err
	}
	return len(confirmed), nil
}

func (s *SyncService) markSynced(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.decisions.MarkSynced(ctx, ids); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

func (s *SyncService) markOnline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = true
	s.lastContact = time.Now().UTC()
}

func (s *SyncService) markOffline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = false
}
