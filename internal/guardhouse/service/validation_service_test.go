package service_test

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfeltz/guardhouse/internal/actuator"
	"github.com/mfeltz/guardhouse/internal/guardhouse/policy"
	"github.com/mfeltz/guardhouse/internal/guardhouse/service"
	"github.com/mfeltz/guardhouse/internal/guardhouse/store/memory"
	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type upstreamStub struct{ online bool }

func (u *upstreamStub) Online() bool { return u.online }

type actuationCall struct {
	GateID     string
	Action     actuator.Action
	Duration   time.Duration
	DecisionID uuid.UUID
}

// captureActuator records every dispatch and signals on a channel so tests
// can wait for the asynchronous hardware call without sleeping.
type captureActuator struct {
	mu    sync.Mutex
	calls []actuationCall
	ch    chan actuationCall
	err   error
}

func newCaptureActuator() *captureActuator {
	return &captureActuator{ch: make(chan actuationCall, 8)}
}

func (a *captureActuator) Actuate(_ context.Context, gateID string, action actuator.Action, d time.Duration, decisionID uuid.UUID) error {
	call := actuationCall{GateID: gateID, Action: action, Duration: d, DecisionID: decisionID}

	a.mu.Lock()
	a.calls = append(a.calls, call)
	err := a.err
	a.mu.Unlock()

	a.ch <- call
	return err
}

func (a *captureActuator) waitForCall(t *testing.T) actuationCall {
	t.Helper()
	select {
	case call := <-a.ch:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for actuation")
		return actuationCall{}
	}
}

func (a *captureActuator) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type validationFixture struct {
	svc       *service.ValidationService
	creds     *memory.CredentialStore
	gates     *memory.GateStore
	decisions *memory.DecisionStore
	backlog   *service.DecisionBacklog
	act       *captureActuator
	upstream  *upstreamStub
	health    *service.HealthTracker
}

func newValidationFixture(t *testing.T, hours policy.HoursTable) *validationFixture {
	t.Helper()

	creds := memory.NewCredentialStore()
	gates := memory.NewGateStore(
		types.Gate{ID: "G1", Name: "Main Entrance", Direction: types.DirectionEntry, RequiredLevel: 1, Active: true},
		types.Gate{ID: "G2", Name: "Server Room", Direction: types.DirectionEntry, RequiredLevel: 3, Active: true},
		types.Gate{ID: "G3", Name: "Loading Dock", Direction: types.DirectionExit, RequiredLevel: 1, Active: false},
	)
	decisions := memory.NewDecisionStore()
	backlog := service.NewDecisionBacklog(decisions, testLogger())
	act := newCaptureActuator()
	up := &upstreamStub{online: true}
	health := service.NewHealthTracker(90 * time.Second)

	cfg := service.ValidationConfig{
		OfflineGrace:    24 * time.Hour,
		DecisionCeiling: 250 * time.Millisecond,
		ActuatorOpenFor: 5 * time.Second,
	}
	svc := service.NewValidationService(gates, creds, decisions, backlog, act, health, up, hours, cfg, testLogger())

	creds.Seed(types.Credential{
		ExternalID:  uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		PresentedID: "RF001",
		HolderName:  "A. Holder",
		HolderRef:   "REG-001",
		Category:    types.CategoryPrimary,
		Active:      true,
		AccessLevel: 1,
	})

	return &validationFixture{
		svc: svc, creds: creds, gates: gates, decisions: decisions,
		backlog: backlog, act: act, upstream: up, health: health,
	}
}

func TestValidate_KnownActiveCredential_Grants(t *testing.T) {
	fx := newValidationFixture(t, policy.HoursTable{})

	res, err := fx.svc.Validate(context.Background(), types.ValidationRequest{
		PresentedID: "RF001",
		GateID:      "G1",
	})
	require.NoError(t, err)

	assert.True(t, res.Granted)
	assert.Empty(t, res.Reason)
	require.NotNil(t, res.Holder)
	assert.Equal(t, "A. Holder", res.Holder.Name)
	assert.NotEmpty(t, res.DecisionID)

	// Persisted with the holder snapshot.
	recs := fx.decisions.Decisions()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Granted)
	assert.Equal(t, "RF001", recs[0].PresentedID)
	assert.Equal(t, "G1", recs[0].GateID)
	require.NotNil(t, recs[0].Holder)
	assert.Equal(t, "REG-001", recs[0].Holder.Ref)

	// Exactly one hardware dispatch for the grant.
	call := fx.act.waitForCall(t)
	assert.Equal(t, "G1", call.GateID)
	assert.Equal(t, actuator.ActionOpen, call.Action)
	assert.Equal(t, 5*time.Second, call.Duration)
	assert.Equal(t, recs[0].ID, call.DecisionID)
	assert.Equal(t, 1, fx.act.callCount())
}

func TestValidate_UnknownCredential_Denies(t *testing.T) {
	fx := newValidationFixture(t, policy.HoursTable{})

	res, err := fx.svc.Validate(context.Background(), types.ValidationRequest{
		PresentedID: "RF999",
		GateID:      "G1",
	})
	require.NoError(t, err)

	assert.False(t, res.Granted)
	assert.Equal(t, policy.ReasonUnknownCredential, res.Reason)
	assert.Nil(t, res.Holder)

	// Denials are audited too, with no holder snapshot to record.
	recs := fx.decisions.Decisions()
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Granted)
	assert.Nil(t, recs[0].Holder)
	assert.Equal(t, 0, fx.act.callCount())
}

func TestValidate_InactiveCredential_Denies(t *testing.T) {
	fx := newValidationFixture(t, policy.HoursTable{})
	fx.creds.Seed(types.Credential{
		ExternalID:  uuid.MustParse("00000000-0000-0000-0000-000000000002"),
		PresentedID: "RF002",
		HolderName:  "B. Former",
		Category:    types.CategoryPrimary,
		Active:      false,
		AccessLevel: 1,
	})

	res, err := fx.svc.Validate(context.Background(), types.ValidationRequest{
		PresentedID: "RF002",
		GateID:      "G1",
	})
	require.NoError(t, err)

	assert.False(t, res.Granted)
	assert.Equal(t, policy.ReasonInactive, res.Reason)
	// Result hides the holder on denial, but the audit record keeps it.
	assert.Nil(t, res.Holder)
	recs := fx.decisions.Decisions()
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].Holder)
	assert.Equal(t, "B. Former", recs[0].Holder.Name)
}

func TestValidate_InsufficientLevel_Denies(t *testing.T) {
	fx := newValidationFixture(t, policy.HoursTable{})

	res, err := fx.svc.Validate(context.Background(), types.ValidationRequest{
		PresentedID: "RF001",
		GateID:      "G2", // requires level 3
	})
	require.NoError(t, err)

	assert.False(t, res.Granted)
	assert.Equal(t, policy.ReasonInsufficientLevel, res.Reason)
}

func TestValidate_GateChecks(t *testing.T) {
	t.Run("unknown gate", func(t *testing.T) {
		fx := newValidationFixture(t, policy.HoursTable{})

		res, err := fx.svc.Validate(context.Background(), types.ValidationRequest{
			PresentedID: "RF001",
			GateID:      "G404",
		})
		require.NoError(t, err)
		assert.False(t, res.Granted)
		assert.Equal(t, policy.ReasonGateUnavailable, res.Reason)
		// No credential data leaks through an invalid gate.
		recs := fx.decisions.Decisions()
		require.Len(t, recs, 1)
		assert.Nil(t, recs[0].Holder)
	})

	t.Run("inactive gate", func(t *testing.T) {
		fx := newValidationFixture(t, policy.HoursTable{})

		res, err := fx.svc.Validate(context.Background(), types.ValidationRequest{
			PresentedID: "RF001",
			GateID:      "G3",
		})
		require.NoError(t, err)
		assert.False(t, res.Granted)
		assert.Equal(t, policy.ReasonGateUnavailable, res.Reason)
	})
}

func TestValidate_StaleOfflineData_Denies(t *testing.T) {
	fx := newValidationFixture(t, policy.HoursTable{})
	fx.upstream.online = false
	fx.creds.Seed(types.Credential{
		ExternalID:   uuid.MustParse("00000000-0000-0000-0000-000000000003"),
		PresentedID:  "RF003",
		HolderName:   "C. Stale",
		Category:     types.CategoryPrimary,
		Active:       true,
		AccessLevel:  1,
		LastSyncedAt: time.Now().UTC().Add(-25 * time.Hour),
	})

	res, err := fx.svc.Validate(context.Background(), types.ValidationRequest{
		PresentedID: "RF003",
		GateID:      "G1",
	})
	require.NoError(t, err)

	assert.False(t, res.Granted)
	assert.Equal(t, policy.ReasonStaleOfflineData, res.Reason)

	// The same record grants once the upstream is back.
	fx.upstream.online = true
	res, err = fx.svc.Validate(context.Background(), types.ValidationRequest{
		PresentedID: "RF003",
		GateID:      "G1",
	})
	require.NoError(t, err)
	assert.True(t, res.Granted)
}

func TestValidate_OutsideAllowedHours_Denies(t *testing.T) {
	hours, err := policy.ParseHours([]byte(`
categories:
  primary: {from: "06:00", to: "22:00"}
`))
	require.NoError(t, err)

	fx := newValidationFixture(t, hours)

	// A device-reported timestamp in the dead of night is the evaluation time.
	res, err := fx.svc.Validate(context.Background(), types.ValidationRequest{
		PresentedID: "RF001",
		GateID:      "G1",
		RequestedAt: "2026-03-10T02:30:00Z",
	})
	require.NoError(t, err)

	assert.False(t, res.Granted)
	assert.Equal(t, policy.ReasonOutsideHours, res.Reason)
}

func TestValidate_MalformedRequests(t *testing.T) {
	fx := newValidationFixture(t, policy.HoursTable{})

	_, err := fx.svc.Validate(context.Background(), types.ValidationRequest{PresentedID: "RF001"})
	assert.ErrorIs(t, err, service.ErrInvalidGateID)

	_, err = fx.svc.Validate(context.Background(), types.ValidationRequest{GateID: "G1"})
	assert.ErrorIs(t, err, service.ErrInvalidPresentedID)

	_, err = fx.svc.Validate(context.Background(), types.ValidationRequest{PresentedID: "   ", GateID: "G1"})
	assert.ErrorIs(t, err, service.ErrInvalidPresentedID)
}

func TestValidate_PersistenceFailure_StillAnswersAndBacklogs(t *testing.T) {
	fx := newValidationFixture(t, policy.HoursTable{})
	fx.decisions.SetFailWrites(true)

	res, err := fx.svc.Validate(context.Background(), types.ValidationRequest{
		PresentedID: "RF001",
		GateID:      "G1",
	})
	require.NoError(t, err)

	// The caller still gets a grant, the hardware still fires, and the
	// decision waits in the backlog rather than vanishing.
	assert.True(t, res.Granted)
	fx.act.waitForCall(t)
	assert.Empty(t, fx.decisions.Decisions())
	assert.Equal(t, 1, fx.backlog.Pending())

	// Once storage recovers, a flush lands the audit record.
	fx.decisions.SetFailWrites(false)
	require.NoError(t, fx.backlog.Flush(context.Background()))
	assert.Equal(t, 0, fx.backlog.Pending())
	recs := fx.decisions.Decisions()
	require.Len(t, recs, 1)
	assert.Equal(t, res.DecisionID, recs[0].ID.String())
}

func TestValidate_ActuatorFailure_MarksGateDegraded(t *testing.T) {
	fx := newValidationFixture(t, policy.HoursTable{})
	fx.act.err = assert.AnError

	res, err := fx.svc.Validate(context.Background(), types.ValidationRequest{
		PresentedID: "RF001",
		GateID:      "G1",
	})
	require.NoError(t, err)
	assert.True(t, res.Granted) // the decision stands; hardware failure is health, not policy

	fx.act.waitForCall(t)
	require.Eventually(t, func() bool {
		return fx.health.Status("G1").State == service.StateDegraded
	}, 2*time.Second, 10*time.Millisecond)
}

func TestValidate_RecordsGateActivity(t *testing.T) {
	fx := newValidationFixture(t, policy.HoursTable{})

	_, err := fx.svc.Validate(context.Background(), types.ValidationRequest{
		PresentedID: "RF999",
		GateID:      "G1",
	})
	require.NoError(t, err)

	assert.Equal(t, service.StateOnline, fx.health.Status("G1").State)
}
