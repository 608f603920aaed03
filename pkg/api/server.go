package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mindwell-health/sentinel/pkg/casestore"
	"github.com/mindwell-health/sentinel/pkg/escalation"
	"github.com/mindwell-health/sentinel/pkg/session"
)

// AuditVerifier exposes the audit trail's integrity check.
// *audit.Recorder satisfies it.
type AuditVerifier interface {
	Len() int
	VerifyChain() (bool, error)
}

// Server wires the HTTP surface to the session coordinator, the
// escalation engine, and the case store.
type Server struct {
	coord  *session.Coordinator
	engine *escalation.Engine
	cases  casestore.Store
	audit  AuditVerifier
	logger *slog.Logger
}

// NewServer creates the API server. audit may be nil, in which case the
// verify endpoint reports an empty trail.
func NewServer(coord *session.Coordinator, engine *escalation.Engine, cases casestore.Store, audit AuditVerifier, logger *slog.Logger) *Server {
	return &Server{
		coord:  coord,
		engine: engine,
		cases:  cases,
		audit:  audit,
		logger: logger.With("component", "api"),
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleSessionStatus)
	mux.HandleFunc("POST /v1/sessions/{id}/input", s.handleSessionInput)
	mux.HandleFunc("POST /v1/sessions/{id}/end", s.handleEndSession)
	mux.HandleFunc("POST /v1/sessions/{id}/crisis/resolve", s.handleResolveSessionCrisis)
	mux.HandleFunc("POST /v1/sessions/{id}/interventions/{iid}/effectiveness", s.handleEffectiveness)
	mux.HandleFunc("POST /v1/crisis", s.handleCrisis)
	mux.HandleFunc("GET /v1/cases/{id}", s.handleGetCase)
	mux.HandleFunc("POST /v1/cases/{id}/resolve", s.handleResolveCase)
	mux.HandleFunc("GET /v1/audit/verify", s.handleAuditVerify)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		s.logger.Debug("request handled",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return false
	}
	return true
}

type createSessionRequest struct {
	SessionID   string            `json:"session_id"`
	ClientID    string            `json:"client_id"`
	TherapistID string            `json:"therapist_id"`
	Factors     map[string]string `json:"factors,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SessionID == "" || req.ClientID == "" {
		WriteBadRequest(w, "Missing required fields: session_id, client_id")
		return
	}

	sess := s.coord.Initialize(req.SessionID, req.ClientID, req.TherapistID, req.Factors)
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.coord.Status(r.PathValue("id"))
	if err != nil {
		WriteNotFound(w, "Unknown session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type sessionInputRequest struct {
	Input string `json:"input"`
}

func (s *Server) handleSessionInput(w http.ResponseWriter, r *http.Request) {
	var req sessionInputRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Input == "" {
		WriteBadRequest(w, "Missing required field: input")
		return
	}

	res, err := s.coord.ProcessInput(r.Context(), r.PathValue("id"), req.Input)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			WriteNotFound(w, "Unknown session")
			return
		}
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	summary, err := s.coord.EndSession(r.PathValue("id"))
	if err != nil {
		WriteNotFound(w, "Unknown session")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleResolveSessionCrisis(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.ResolveCrisis(r.PathValue("id")); err != nil {
		WriteNotFound(w, "Unknown session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type effectivenessRequest struct {
	Score float64 `json:"score"`
}

func (s *Server) handleEffectiveness(w http.ResponseWriter, r *http.Request) {
	var req effectivenessRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Score < 0 || req.Score > 1 {
		WriteBadRequest(w, "score must be in [0,1]")
		return
	}

	err := s.coord.RecordEffectiveness(r.PathValue("id"), r.PathValue("iid"), req.Score)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		WriteNotFound(w, "Unknown session")
	case errors.Is(err, session.ErrInterventionNotFound):
		WriteNotFound(w, "Unknown intervention")
	case err != nil:
		WriteInternal(w, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type crisisRequest struct {
	PatientID  string   `json:"patient_id"`
	SessionID  string   `json:"session_id"`
	TextSample string   `json:"text_sample"`
	Score      float64  `json:"score"`
	Risks      []string `json:"risks,omitempty"`
}

// handleCrisis is the direct escalation entry point for callers outside
// the session flow (intake forms, triage tools).
func (s *Server) handleCrisis(w http.ResponseWriter, r *http.Request) {
	var req crisisRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := s.engine.HandleCrisis(r.Context(), req.PatientID, req.SessionID, req.TextSample, req.Score, req.Risks)
	if err != nil {
		var verr *escalation.ValidationError
		if errors.As(err, &verr) {
			WriteUnprocessable(w, verr.Error())
			return
		}
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.cases.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, casestore.ErrCaseNotFound) {
			WriteNotFound(w, "Unknown case")
			return
		}
		WriteInternal(w, err)
		return
	}

	// The stored patient reference is one-way encrypted but still not
	// for display; respond with the mask only.
	c.PatientRef = ""
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleResolveCase(w http.ResponseWriter, r *http.Request) {
	err := s.engine.ResolveCase(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, casestore.ErrCaseNotFound):
		WriteNotFound(w, "Unknown case")
	case err != nil:
		WriteInternal(w, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type auditVerifyResponse struct {
	Entries int    `json:"entries"`
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, _ *http.Request) {
	resp := auditVerifyResponse{Valid: true}
	if s.audit != nil {
		resp.Entries = s.audit.Len()
		ok, err := s.audit.VerifyChain()
		resp.Valid = ok
		if err != nil {
			resp.Error = err.Error()
		}
	}

	status := http.StatusOK
	if !resp.Valid {
		status = http.StatusConflict
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
