package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfeltz/guardhouse/internal/guardhouse/store"
	"github.com/mfeltz/guardhouse/internal/guardhouse/store/sqlite"
	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

func TestHeartbeatStore_InsertAndPrune(t *testing.T) {
	db, worker := openTestDB(t)
	s := sqlite.NewHeartbeatStore(db, worker)
	ctx := context.Background()

	now := time.Now().UTC()
	doorClosed := true
	for _, age := range []time.Duration{40 * 24 * time.Hour, time.Hour, 0} {
		require.NoError(t, s.Insert(ctx, "G1", store.HeartbeatRecord{
			ReceivedAt: now.Add(-age),
			Request: types.HeartbeatRequest{
				GateID:          "G1",
				FirmwareVersion: "1.4.2",
				UptimeSeconds:   3600,
				DoorClosed:      &doorClosed,
				IP:              "10.0.4.20",
			},
		}))
	}

	deleted, err := s.PruneOlderThan(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// A second prune at the same cutoff finds nothing.
	deleted, err = s.PruneOlderThan(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestHeartbeatStore_InsertIgnoresBlankGateID(t *testing.T) {
	db, worker := openTestDB(t)
	s := sqlite.NewHeartbeatStore(db, worker)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, "   ", store.HeartbeatRecord{}))

	deleted, err := s.PruneOlderThan(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
