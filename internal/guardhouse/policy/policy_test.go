package policy_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfeltz/guardhouse/internal/guardhouse/policy"
	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

var noon = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func validCredential() types.Credential {
	return types.Credential{
		ExternalID:   uuid.MustParse("6f1b0c5e-9a68-4f2e-b1df-6f3f6f6f0001"),
		PresentedID:  "RF001",
		HolderName:   "A. Holder",
		HolderRef:    "REG-001",
		Category:     types.CategoryPrimary,
		Active:       true,
		AccessLevel:  1,
		LastSyncedAt: noon.Add(-time.Hour),
	}
}

func activeGate() types.Gate {
	return types.Gate{
		ID:            "G1",
		Name:          "Main Entrance",
		Direction:     types.DirectionEntry,
		RequiredLevel: 1,
		Active:        true,
	}
}

func input(cred *types.Credential, gate types.Gate) policy.Input {
	return policy.Input{
		Credential:     cred,
		Gate:           gate,
		Now:            noon,
		Hours:          policy.HoursTable{},
		OfflineGrace:   24 * time.Hour,
		UpstreamOnline: true,
	}
}

func TestEvaluate_AllChecksPass_Grants(t *testing.T) {
	cred := validCredential()

	dec := policy.Evaluate(input(&cred, activeGate()))

	assert.True(t, dec.Granted)
	assert.Empty(t, dec.Reason)
}

func TestEvaluate_NilCredential_UnknownCredential(t *testing.T) {
	dec := policy.Evaluate(input(nil, activeGate()))

	assert.False(t, dec.Granted)
	assert.Equal(t, policy.ReasonUnknownCredential, dec.Reason)
}

func TestEvaluate_Inactive_DeniesRegardlessOfOtherFields(t *testing.T) {
	// Even a credential that would fail several later checks reports
	// inactive_credential: the first failing check wins.
	past := noon.Add(-48 * time.Hour)
	cred := validCredential()
	cred.Active = false
	cred.AccessLevel = 0
	cred.ValidUntil = &past

	dec := policy.Evaluate(input(&cred, activeGate()))

	assert.False(t, dec.Granted)
	assert.Equal(t, policy.ReasonInactive, dec.Reason)
}

func TestEvaluate_ValidityWindow(t *testing.T) {
	future := noon.Add(time.Hour)
	past := noon.Add(-time.Hour)

	t.Run("not yet valid", func(t *testing.T) {
		cred := validCredential()
		cred.ValidFrom = &future

		dec := policy.Evaluate(input(&cred, activeGate()))
		assert.Equal(t, policy.ReasonExpired, dec.Reason)
	})

	t.Run("expired", func(t *testing.T) {
		cred := validCredential()
		cred.ValidUntil = &past

		dec := policy.Evaluate(input(&cred, activeGate()))
		assert.Equal(t, policy.ReasonExpired, dec.Reason)
	})

	t.Run("inside window", func(t *testing.T) {
		cred := validCredential()
		cred.ValidFrom = &past
		cred.ValidUntil = &future

		dec := policy.Evaluate(input(&cred, activeGate()))
		assert.True(t, dec.Granted)
	})
}

func TestEvaluate_StaleOfflineData(t *testing.T) {
	cred := validCredential()
	cred.LastSyncedAt = noon.Add(-25 * time.Hour)

	t.Run("upstream offline past grace denies", func(t *testing.T) {
		in := input(&cred, activeGate())
		in.UpstreamOnline = false

		dec := policy.Evaluate(in)
		assert.False(t, dec.Granted)
		assert.Equal(t, policy.ReasonStaleOfflineData, dec.Reason)
	})

	t.Run("upstream online ignores age", func(t *testing.T) {
		in := input(&cred, activeGate())
		in.UpstreamOnline = true

		dec := policy.Evaluate(in)
		assert.True(t, dec.Granted)
	})

	t.Run("zero grace disables the check", func(t *testing.T) {
		in := input(&cred, activeGate())
		in.UpstreamOnline = false
		in.OfflineGrace = 0

		dec := policy.Evaluate(in)
		assert.True(t, dec.Granted)
	})

	t.Run("offline but within grace grants", func(t *testing.T) {
		fresh := validCredential()
		fresh.LastSyncedAt = noon.Add(-23 * time.Hour)
		in := input(&fresh, activeGate())
		in.UpstreamOnline = false

		dec := policy.Evaluate(in)
		assert.True(t, dec.Granted)
	})
}

func TestEvaluate_InactiveGate_GateUnavailable(t *testing.T) {
	cred := validCredential()
	gate := activeGate()
	gate.Active = false

	dec := policy.Evaluate(input(&cred, gate))

	assert.False(t, dec.Granted)
	assert.Equal(t, policy.ReasonGateUnavailable, dec.Reason)
}

func TestEvaluate_InsufficientLevel(t *testing.T) {
	cred := validCredential()
	cred.AccessLevel = 1
	gate := activeGate()
	gate.RequiredLevel = 2

	dec := policy.Evaluate(input(&cred, gate))

	assert.False(t, dec.Granted)
	assert.Equal(t, policy.ReasonInsufficientLevel, dec.Reason)
}

func TestEvaluate_LevelAtThreshold_Grants(t *testing.T) {
	cred := validCredential()
	cred.AccessLevel = 2
	gate := activeGate()
	gate.RequiredLevel = 2

	dec := policy.Evaluate(input(&cred, gate))
	assert.True(t, dec.Granted)
}

func TestEvaluate_HoursPolicy(t *testing.T) {
	table, err := policy.ParseHours([]byte(`
categories:
  primary: {from: "06:00", to: "22:00"}
  security: unrestricted
`))
	require.NoError(t, err)

	midnight := time.Date(2026, 3, 10, 0, 30, 0, 0, time.UTC)

	t.Run("restricted category outside window", func(t *testing.T) {
		cred := validCredential()
		in := input(&cred, activeGate())
		in.Hours = table
		in.Now = midnight

		dec := policy.Evaluate(in)
		assert.False(t, dec.Granted)
		assert.Equal(t, policy.ReasonOutsideHours, dec.Reason)
	})

	t.Run("restricted category inside window", func(t *testing.T) {
		cred := validCredential()
		in := input(&cred, activeGate())
		in.Hours = table

		dec := policy.Evaluate(in)
		assert.True(t, dec.Granted)
	})

	t.Run("unrestricted category at any hour", func(t *testing.T) {
		cred := validCredential()
		cred.Category = types.CategorySecurity
		in := input(&cred, activeGate())
		in.Hours = table
		in.Now = midnight

		dec := policy.Evaluate(in)
		assert.True(t, dec.Granted)
	})

	t.Run("unlisted category is unrestricted", func(t *testing.T) {
		cred := validCredential()
		cred.Category = types.Category("contractor")
		in := input(&cred, activeGate())
		in.Hours = table
		in.Now = midnight

		dec := policy.Evaluate(in)
		assert.True(t, dec.Granted)
	})
}

// Evaluate must be deterministic: identical inputs, identical outcomes. This
// is what keeps offline decisions in parity with online ones.
func TestEvaluate_Deterministic(t *testing.T) {
	cred := validCredential()
	in := input(&cred, activeGate())

	first := policy.Evaluate(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, policy.Evaluate(in))
	}
}
