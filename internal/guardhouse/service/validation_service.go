package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mfeltz/guardhouse/internal/actuator"
	"github.com/mfeltz/guardhouse/internal/guardhouse/policy"
	"github.com/mfeltz/guardhouse/internal/guardhouse/store"
	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

// UpstreamStatus is the sync service's view of the registry, consumed by the
// stale-data check.
type UpstreamStatus interface {
	Online() bool
}

// actuateTimeout bounds one hardware dispatch. Detached from the request
// context: the caller already has its answer by the time this runs.
const actuateTimeout = 10 * time.Second

type ValidationConfig struct {
	// OfflineGrace is the maximum cached-credential age trusted while the
	// upstream registry is unreachable. 0 disables the stale check.
	OfflineGrace time.Duration

	// DecisionCeiling is the hard bound on total decision latency. Past it
	// the request fails closed with system_error.
	DecisionCeiling time.Duration

	// ActuatorOpenFor is how long a grant holds the gate open.
	ActuatorOpenFor time.Duration
}

// ValidationService is the hot path: gate resolution, cache lookup, policy
// evaluation, audit persistence, hardware dispatch.
type ValidationService struct {
	gates     store.GateStore
	creds     store.CredentialStore
	decisions store.DecisionStore
	backlog   *DecisionBacklog
	act       actuator.Actuator
	health    *HealthTracker
	upstream  UpstreamStatus
	hours     policy.HoursTable
	cfg       ValidationConfig
	logger    *log.Logger

	now func() time.Time
}

func NewValidationService(
	gates store.GateStore,
	creds store.CredentialStore,
	decisions store.DecisionStore,
	backlog *DecisionBacklog,
	act actuator.Actuator,
	health *HealthTracker,
	upstream UpstreamStatus,
	hours policy.HoursTable,
	cfg ValidationConfig,
	logger *log.Logger,
) *ValidationService {
	return &ValidationService{
		gates:     gates,
		creds:     creds,
		decisions: decisions,
		backlog:   backlog,
		act:       act,
		health:    health,
		upstream:  upstream,
		hours:     hours,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Validate decides whether the presented credential may pass the gate.
// Denials come back as granted=false results, never as errors; the only
// errors out of here are malformed requests.
func (s *ValidationService) Validate(ctx context.Context, req types.ValidationRequest) (types.ValidationResult, error) {
	presentedID := strings.TrimSpace(req.PresentedID)
	gateID := strings.TrimSpace(req.GateID)

	if gateID == "" {
		return types.ValidationResult{}, ErrInvalidGateID
	}
	if presentedID == "" {
		return types.ValidationResult{}, ErrInvalidPresentedID
	}

	now := s.now()
	at := now
	if t := parseOptionalTimestamp(req.RequestedAt); t != nil {
		at = *t
	}

	// The hardware is waiting on this response; bound the whole decision.
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DecisionCeiling)
	defer cancel()

	s.health.RecordActivity(gateID, now)

	outcome, cred := s.decide(ctx, presentedID, gateID, at)

	dec := types.AccessDecision{
		ID:          uuid.New(),
		PresentedID: presentedID,
		GateID:      gateID,
		Granted:     outcome.Granted,
		Reason:      outcome.Reason,
		DecidedAt:   now,
	}
	if cred != nil {
		snap := cred.Snapshot()
		dec.Holder = &snap
	}

	// Durability comes before the hardware action so a crash in between never
	// loses the audit trail — but a persistence failure must not withhold the
	// decision from the gate (operational continuity over audit completeness).
	s.persist(ctx, dec)

	if dec.Granted {
		s.dispatchActuation(dec)
	}

	result := types.ValidationResult{
		DecisionID: dec.ID.String(),
		Granted:    dec.Granted,
		Reason:     dec.Reason,
		DecidedAt:  dec.DecidedAt.Format(time.RFC3339Nano),
		ServerTime: s.now().Format(time.RFC3339Nano),
	}
	if dec.Granted {
		result.Holder = dec.Holder
	}
	return result, nil
}

// decide resolves the gate and credential and runs the evaluator. The gate
// comes first: an unknown or inactive gate denies without touching the
// credential cache, so an invalid gate can't probe whether a card exists.
func (s *ValidationService) decide(ctx context.Context, presentedID, gateID string, at time.Time) (policy.Decision, *types.Credential) {
	gate, err := s.gates.Get(ctx, gateID)
	if errors.Is(err, store.ErrNotFound) {
		return policy.Decision{Reason: policy.ReasonGateUnavailable}, nil
	}
	if err != nil {
		s.logger.Printf("validate: gate lookup %s: %v", gateID, err)
		return policy.Decision{Reason: policy.ReasonSystemError}, nil
	}
	if !gate.Active {
		return policy.Decision{Reason: policy.ReasonGateUnavailable}, nil
	}

	var cred *types.Credential
	c, err := s.creds.Lookup(ctx, presentedID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Valid outcome, not an error: unknown scans are rejected, never
		// auto-registered.
	case err != nil:
		s.logger.Printf("validate: credential lookup %s: %v", presentedID, err)
		return policy.Decision{Reason: policy.ReasonSystemError}, nil
	default:
		cred = &c
	}

	outcome := policy.Evaluate(policy.Input{
		Credential:     cred,
		Gate:           gate,
		Now:            at,
		Hours:          s.hours,
		OfflineGrace:   s.cfg.OfflineGrace,
		UpstreamOnline: s.upstream.Online(),
	})
	return outcome, cred
}

func (s *ValidationService) persist(ctx context.Context, dec types.AccessDecision) {
	if err := s.decisions.Record(ctx, dec); err != nil {
		s.logger.Printf("validate: persist decision %s: %v", dec.ID, err)
		s.backlog.Add(dec)
	}
}

// dispatchActuation opens the gate asynchronously. At most one actuation per
// granted decision; the response to the caller does not wait on hardware.
func (s *ValidationService) dispatchActuation(dec types.AccessDecision) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), actuateTimeout)
		defer cancel()

		if err := s.act.Actuate(ctx, dec.GateID, actuator.ActionOpen, s.cfg.ActuatorOpenFor, dec.ID); err != nil {
			s.logger.Printf("actuate gate %s (decision %s): %v", dec.GateID, dec.ID, err)
			s.health.RecordError(dec.GateID, err.Error())
		}
	}()
}

// parseOptionalTimestamp parses a device-reported timestamp, nil if absent or
// unparseable (a gate module with a drifted clock should not break validation).
func parseOptionalTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		u := t.UTC()
		return &u
	}
	return nil
}
