package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"learnhub/internal/servicetoken"
	"learnhub/internal/util"
	"learnhub/services/chat/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// ServiceTokens guards /chat; nil disables the check.
	ServiceTokens *servicetoken.Verifier
}

// Server exposes the completion proxy.
type Server struct {
	app           *app.App
	serviceTokens *servicetoken.Verifier
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:           cfg.App,
		serviceTokens: cfg.ServiceTokens,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithRequestID(util.WithRequestLog("chat", s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.Handle("/chat", servicetoken.Require(s.serviceTokens, http.HandlerFunc(s.handleChat)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req app.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reply, err := s.app.Complete(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "rate limited")
		case errors.Is(err, app.ErrEmptyReply):
			writeError(w, http.StatusBadGateway, app.ErrEmptyReply.Error())
		default:
			writeError(w, http.StatusBadGateway, app.ErrUpstream.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": reply})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
