// Package upstream implements the client side of the sync contract with the
// card registry: credential deltas flow down, access decisions flow up.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

// Registry is what the sync service needs from the upstream system.
type Registry interface {
	// PullCredentials returns credential records changed since the cursor,
	// plus the cursor to use next time. Records are full replace-by-identity
	// snapshots; Removed entries deactivate the local row.
	PullCredentials(ctx context.Context, cursor string) (PullResult, error)

	// PushDecisions transmits a batch of decision records. The upstream
	// dedupes by decision ID and may accept a batch partially.
	PushDecisions(ctx context.Context, batch []types.AccessDecision) (PushResult, error)
}

type PullResult struct {
	Credentials []CredentialDelta
	Cursor      string
}

// CredentialDelta is one entry of a pull response.
type CredentialDelta struct {
	Credential types.Credential
	Removed    bool
}

type PushResult struct {
	Accepted []uuid.UUID
	Rejected []RejectedDecision
}

type RejectedDecision struct {
	ID     uuid.UUID
	Reason string
}

// maxResponseBody caps upstream response size. A pull page tops out at a few
// hundred credential records; 4 MiB is generous.
const maxResponseBody = 4 << 20

// Client talks JSON over HTTP to the registry.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Wire shapes.

type credentialWire struct {
	ExternalID  string  `json:"external_id"`
	PresentedID string  `json:"presented_id"`
	HolderName  string  `json:"holder_name"`
	HolderRef   string  `json:"holder_ref"`
	Category    string  `json:"category"`
	Active      bool    `json:"active"`
	AccessLevel int     `json:"access_level"`
	ValidFrom   *string `json:"valid_from,omitempty"`
	ValidUntil  *string `json:"valid_until,omitempty"`
	Removed     bool    `json:"removed,omitempty"`
}

type pullResponseWire struct {
	Credentials []credentialWire `json:"credentials"`
	Cursor      string           `json:"cursor"`
}

type decisionWire struct {
	DecisionID  string `json:"decision_id"`
	PresentedID string `json:"presented_id"`
	GateID      string `json:"gate_id"`
	Granted     bool   `json:"granted"`
	Reason      string `json:"reason,omitempty"`
	DecidedAt   string `json:"decided_at"`
}

type pushRequestWire struct {
	Decisions []decisionWire `json:"decisions"`
}

type pushResponseWire struct {
	Accepted []string `json:"accepted"`
	Rejected []struct {
		ID     string `json:"id"`
		Reason string `json:"reason"`
	} `json:"rejected"`
}

func (c *Client) PullCredentials(ctx context.Context, cursor string) (PullResult, error) {
	u := c.baseURL + "/api/v1/credentials/delta"
	if cursor != "" {
		u += "?cursor=" + url.QueryEscape(cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return PullResult{}, fmt.Errorf("pull request: %w", err)
	}

	var wire pullResponseWire
	if err := c.do(req, &wire); err != nil {
		return PullResult{}, fmt.Errorf("pull credentials: %w", err)
	}

	now := time.Now().UTC()
	out := PullResult{Credentials: reserveDeltas(len(wire.Credentials)), Cursor: wire.Cursor}
	for _, cw := range wire.Credentials {
		delta, err := deltaFromWire(cw, now)
		if err != nil {
			return PullResult{}, fmt.Errorf("pull credentials: %w", err)
		}
		out.Credentials = append(out.Credentials, delta)
	}
	return out, nil
}

func (c *Client) PushDecisions(ctx context.Context, batch []types.AccessDecision) (PushResult, error) {
	body := pushRequestWire{Decisions: make([]decisionWire, 0, len(batch))}
	for _, d := range batch {
		body.Decisions = append(body.Decisions, decisionWire{
			DecisionID:  d.ID.String(),
			PresentedID: d.PresentedID,
			GateID:      d.GateID,
			Granted:     d.Granted,
			Reason:      d.Reason,
			DecidedAt:   d.DecidedAt.UTC().Format(time.RFC3339Nano),
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return PushResult{}, fmt.Errorf("push marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/access-logs", bytes.NewReader(payload))
	if err != nil {
		return PushResult{}, fmt.Errorf("push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var wire pushResponseWire
	if err := c.do(req, &wire); err != nil {
		return PushResult{}, fmt.Errorf("push decisions: %w", err)
	}

	var out PushResult
	for _, s := range wire.Accepted {
		id, err := uuid.Parse(s)
		if err != nil {
			return PushResult{}, fmt.Errorf("push decisions: bad accepted id %q: %w", s, err)
		}
		out.Accepted = append(out.Accepted, id)
	}
	for _, r := range wire.Rejected {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return PushResult{}, fmt.Errorf("push decisions: bad rejected id %q: %w", r.ID, err)
		}
		out.Rejected = append(out.Rejected, RejectedDecision{ID: id, Reason: r.Reason})
	}
	return out, nil
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little for the error message, discard the rest.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("upstream status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func deltaFromWire(cw credentialWire, syncedAt time.Time) (CredentialDelta, error) {
	id, err := uuid.Parse(cw.ExternalID)
	if err != nil {
		return CredentialDelta{}, fmt.Errorf("bad external_id %q: %w", cw.ExternalID, err)
	}

	cred := types.Credential{
		ExternalID:   id,
		PresentedID:  cw.PresentedID,
		HolderName:   cw.HolderName,
		HolderRef:    cw.HolderRef,
		Category:     types.Category(cw.Category),
		Active:       cw.Active,
		AccessLevel:  cw.AccessLevel,
		LastSyncedAt: syncedAt,
	}
	if cred.ValidFrom, err = parseWireTime(cw.ValidFrom); err != nil {
		return CredentialDelta{}, fmt.Errorf("credential %s: valid_from: %w", id, err)
	}
	if cred.ValidUntil, err = parseWireTime(cw.ValidUntil); err != nil {
		return CredentialDelta{}, fmt.Errorf("credential %s: valid_until: %w", id, err)
	}
	return CredentialDelta{Credential: cred, Removed: cw.Removed}, nil
}

func parseWireTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	u := t.UTC()
	return &u, nil
}

func reserveDeltas(n int) []CredentialDelta {
	if n == 0 {
		return nil
	}
	return make([]CredentialDelta, 0, n)
}
