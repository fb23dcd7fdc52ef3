package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/mfeltz/guardhouse/internal/guardhouse/service"
	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

// UpstreamInfo is what the health surface reports about registry
// connectivity.
type UpstreamInfo interface {
	Online() bool
	LastContact() time.Time
}

type Dependencies struct {
	Logger            *log.Logger
	Addr              string
	ValidationService *service.ValidationService
	HeartbeatService  *service.HeartbeatService
	Health            *service.HealthTracker
	Backlog           *service.DecisionBacklog
	Upstream          UpstreamInfo
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	mux        *http.ServeMux
	validation *service.ValidationService
	heartbeats *service.HeartbeatService
	health     *service.HealthTracker
	backlog    *service.DecisionBacklog
	upstream   UpstreamInfo
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:     d.Logger,
		mux:        mux,
		validation: d.ValidationService,
		heartbeats: d.HeartbeatService,
		health:     d.Health,
		backlog:    d.Backlog,
		upstream:   d.Upstream,
	}

	mux.HandleFunc("POST /v1/validate", s.handleValidate)
	mux.HandleFunc("POST /v1/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("GET /v1/gates/{gate_id}/status", s.handleGateStatus)
	mux.HandleFunc("GET /v1/healthz", s.handleHealthz)

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req types.ValidationRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	resp, err := s.validation.Validate(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidGateID):
			writeError(w, http.StatusBadRequest, "invalid_gate_id", err.Error())
		case errors.Is(err, service.ErrInvalidPresentedID):
			writeError(w, http.StatusBadRequest, "invalid_presented_id", err.Error())
		default:
			s.logger.Printf("validate error: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req types.HeartbeatRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	resp, err := s.heartbeats.Record(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidGateID) {
			writeError(w, http.StatusBadRequest, "invalid_gate_id", err.Error())
			return
		}
		s.logger.Printf("heartbeat error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGateStatus(w http.ResponseWriter, r *http.Request) {
	gateID := r.PathValue("gate_id")

	status := s.health.Status(gateID)

	resp := types.GateStatusResponse{
		GateID:    gateID,
		State:     status.State,
		LastError: status.LastError,
	}
	if !status.LastSeen.IsZero() {
		resp.LastSeen = status.LastSeen.Format(time.RFC3339Nano)
	}

	writeJSON(w, http.StatusOK, resp)
}

type healthzResponse struct {
	OK                  bool   `json:"ok"`
	UpstreamOnline      bool   `json:"upstream_online"`
	LastUpstreamContact string `json:"last_upstream_contact,omitempty"`
	DecisionBacklog     int    `json:"decision_backlog"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthzResponse{
		OK:              true,
		UpstreamOnline:  s.upstream.Online(),
		DecisionBacklog: s.backlog.Pending(),
	}
	if t := s.upstream.LastContact(); !t.IsZero() {
		resp.LastUpstreamContact = t.Format(time.RFC3339Nano)
	}

	writeJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}
