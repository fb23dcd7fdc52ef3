package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfeltz/guardhouse/internal/guardhouse/store/sqlite"
	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

func sampleDecision(decidedAt time.Time) types.AccessDecision {
	return types.AccessDecision{
		ID:          uuid.New(),
		PresentedID: "RF100",
		GateID:      "G1",
		Granted:     true,
		Holder: &types.HolderSnapshot{
			Name:     "A. Holder",
			Ref:      "REG-100",
			Category: types.CategoryPrimary,
		},
		DecidedAt: decidedAt.UTC().Truncate(time.Millisecond),
	}
}

func TestDecisionStore_RecordAndListUnsynced(t *testing.T) {
	db, worker := openTestDB(t)
	s := sqlite.NewDecisionStore(db, worker)
	ctx := context.Background()

	dec := sampleDecision(time.Now())
	require.NoError(t, s.Record(ctx, dec))

	got, err := s.ListUnsynced(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, dec, got[0])
}

func TestDecisionStore_DenialWithoutHolder(t *testing.T) {
	db, worker := openTestDB(t)
	s := sqlite.NewDecisionStore(db, worker)
	ctx := context.Background()

	dec := sampleDecision(time.Now())
	dec.Granted = false
	dec.Reason = "unknown_credential"
	dec.Holder = nil
	require.NoError(t, s.Record(ctx, dec))

	got, err := s.ListUnsynced(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Granted)
	assert.Equal(t, "unknown_credential", got[0].Reason)
	assert.Nil(t, got[0].Holder)
}

func TestDecisionStore_ListUnsyncedOldestFirstWithLimit(t *testing.T) {
	db, worker := openTestDB(t)
	s := sqlite.NewDecisionStore(db, worker)
	ctx := context.Background()

	base := time.Now().UTC()
	newest := sampleDecision(base)
	middle := sampleDecision(base.Add(-time.Minute))
	oldest := sampleDecision(base.Add(-time.Hour))

	for _, d := range []types.AccessDecision{newest, middle, oldest} {
		require.NoError(t, s.Record(ctx, d))
	}

	got, err := s.ListUnsynced(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, oldest.ID, got[0].ID)
	assert.Equal(t, middle.ID, got[1].ID)
}

func TestDecisionStore_MarkSynced(t *testing.T) {
	db, worker := openTestDB(t)
	s := sqlite.NewDecisionStore(db, worker)
	ctx := context.Background()

	first := sampleDecision(time.Now().Add(-time.Minute))
	second := sampleDecision(time.Now())
	require.NoError(t, s.Record(ctx, first))
	require.NoError(t, s.Record(ctx, second))

	require.NoError(t, s.MarkSynced(ctx, []uuid.UUID{first.ID}))

	got, err := s.ListUnsynced(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, second.ID, got[0].ID)

	// Re-marking an already synced ID is harmless.
	require.NoError(t, s.MarkSynced(ctx, []uuid.UUID{first.ID}))
	require.NoError(t, s.MarkSynced(ctx, nil))
}
