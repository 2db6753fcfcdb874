package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"huddle/pkg/interfaces"
	"huddle/pkg/types"
)

// HealthChecker reports backend reachability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionCounter reports the number of open push connections.
type ConnectionCounter interface {
	Count() int
}

// Server is the REST surface. It only decodes requests, calls the
// orchestrator and maps errors to statuses.
type Server struct {
	sessions    interfaces.SessionOrchestrator
	health      HealthChecker
	connections ConnectionCounter
	limiter     *RateLimiter
	log         *slog.Logger
	handler     http.Handler
}

func NewServer(sessions interfaces.SessionOrchestrator, health HealthChecker, connections ConnectionCounter, limiter *RateLimiter, log *slog.Logger) *Server {
	s := &Server{
		sessions:    sessions,
		health:      health,
		connections: connections,
		limiter:     limiter,
		log:         log,
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)
	s.handler = s.corsMiddleware(s.jsonMiddleware(mux))
	return s
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.Handle("POST /api/sessions", s.rateLimited(s.createSession))
	mux.HandleFunc("GET /api/sessions/{id}", s.getSession)
	mux.HandleFunc("GET /api/sessions/{id}/users", s.getSessionUsers)
	mux.HandleFunc("GET /api/sessions/{id}/activities", s.getSessionActivities)
	mux.Handle("POST /api/sessions/{id}/start", s.rateLimited(s.startSession))
	mux.Handle("POST /api/sessions/{id}/join", s.rateLimited(s.joinSession))
	mux.Handle("POST /api/sessions/{id}/stop", s.rateLimited(s.stopSession))
	mux.HandleFunc("GET /health", s.healthCheck)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Request/Response types for JSON serialization
type CreateSessionRequest struct {
	SessionName string `json:"sessionName"`
	UserName    string `json:"userName"`
}

type JoinSessionRequest struct {
	UserName string `json:"userName"`
}

// UserActionRequest identifies the acting user of start and stop.
type UserActionRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Database    string    `json:"database"`
	Connections int       `json:"connections"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !s.decode(w, r, &req) {
		return
	}

	session, err := s.sessions.CreateSession(r.Context(), req.SessionName, req.UserName)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, session)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, session)
}

func (s *Server) getSessionUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.sessions.GetSessionUsers(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	if users == nil {
		users = []*types.User{}
	}
	s.sendJSON(w, http.StatusOK, users)
}

func (s *Server) getSessionActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := s.sessions.GetSessionActivities(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	if activities == nil {
		activities = []*types.Activity{}
	}
	s.sendJSON(w, http.StatusOK, activities)
}

func (s *Server) joinSession(w http.ResponseWriter, r *http.Request) {
	var req JoinSessionRequest
	if !s.decode(w, r, &req) {
		return
	}

	user, err := s.sessions.JoinSession(r.Context(), r.PathValue("id"), req.UserName)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, user)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req UserActionRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	session, err := s.sessions.StartSession(r.Context(), r.PathValue("id"), req.UserID)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, session)
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	var req UserActionRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	session, err := s.sessions.StopSession(r.Context(), r.PathValue("id"), req.UserID)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, session)
}

// GET /health - store reachability and open push connections
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now(),
		Database:    "healthy",
		Connections: s.connections.Count(),
	}
	code := http.StatusOK

	if err := s.health.HealthCheck(ctx); err != nil {
		response.Status = "unhealthy"
		response.Database = "error: " + err.Error()
		code = http.StatusServiceUnavailable
	}

	s.sendJSON(w, code, response)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.sendJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON"})
		return false
	}
	return true
}

// decodeValid decodes and then applies the struct's validate tags.
func (s *Server) decodeValid(w http.ResponseWriter, r *http.Request, v any) bool {
	if !s.decode(w, r, v) {
		return false
	}
	if err := types.ValidateRequest(v); err != nil {
		s.sendError(w, r, err)
		return false
	}
	return true
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("Failed to encode response", "error", err)
	}
}

// sendError maps the error taxonomy to a status. Unexpected errors are
// logged and hidden from the caller.
func (s *Server) sendError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case types.IsValidationError(err):
		s.sendJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	case types.IsNotFoundError(err):
		s.sendJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		s.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.sendJSON(w, http.StatusInternalServerError, ErrorResponse{Error: http.StatusText(http.StatusInternalServerError)})
	}
}

func (s *Server) rateLimited(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(clientKey(r)) {
			s.sendJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: http.StatusText(http.StatusTooManyRequests)})
			return
		}
		next(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Open CORS; clients are trusted.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
