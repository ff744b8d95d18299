package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"learnhub/internal/servicetoken"
	"learnhub/internal/util"
	"learnhub/pkg/payment"
	"learnhub/services/checkout/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	ServiceTokens *servicetoken.Verifier
}

// Server exposes the hosted checkout proxy.
type Server struct {
	app           *app.App
	serviceTokens *servicetoken.Verifier
	mux           *http.ServeMux
}

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
	return util.WithSecurityHeaders(util.WithRequestID(util.WithRequestLog("checkout", s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.Handle("/create-checkout-session", servicetoken.Require(s.serviceTokens, http.HandlerFunc(s.handleCreateSession)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "provider": s.app.Provider()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req payment.CheckoutRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	session, err := s.app.CreateSession(r.Context(), req)
	if err != nil {
		if errors.Is(err, app.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, app.ErrProvider.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": session.URL, "id": session.ID})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
