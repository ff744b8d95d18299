package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"learnhub/internal/ratelimit"
	"learnhub/internal/servicetoken"
	"learnhub/internal/usertoken"
	"learnhub/internal/util"
	"learnhub/pkg/domain"
	"learnhub/pkg/payment"
	"learnhub/services/learn/internal/app"
)

const maxBodyBytes = 1 << 20

// TokenVerifier resolves a session token into an identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (usertoken.Identity, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                        *app.App
	TokenVerifier              TokenVerifier
	RedisAddr                  string
	RedisPassword              string
	ChatRateLimitPerMinute     int
	PurchaseRateLimitPerMinute int
	AllowedOrigins             []string
	TrustedProxies             *util.TrustedProxies
}

// Server exposes the marketplace HTTP API.
type Server struct {
	app             *app.App
	tokenVerifier   TokenVerifier
	mux             *http.ServeMux
	allowedOrigins  []string
	trustedProxies  *util.TrustedProxies
	chatLimiter     ratelimit.Limiter
	purchaseLimiter ratelimit.Limiter
	closers         []func() error
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("token verifier required")
	}
	chatLimit := cfg.ChatRateLimitPerMinute
	if chatLimit <= 0 {
		chatLimit = 20
	}
	purchaseLimit := cfg.PurchaseRateLimitPerMinute
	if purchaseLimit <= 0 {
		purchaseLimit = 10
	}
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		mux:            http.NewServeMux(),
		allowedOrigins: cfg.AllowedOrigins,
		trustedProxies: cfg.TrustedProxies,
	}
	newLimiter := func(name string, limit int) (ratelimit.Limiter, error) {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			slog.Warn("rate limiting disabled: redisAddr not set", "limiter", name)
			return ratelimit.Unlimited{}, nil
		}
		prefix := "learnhub:learn:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		s.closers = append(s.closers, limiter.Close)
		return limiter, nil
	}
	var err error
	if s.chatLimiter, err = newLimiter("chat", chatLimit); err != nil {
		return nil, err
	}
	if s.purchaseLimiter, err = newLimiter("purchase", purchaseLimit); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(s.allowedOrigins, util.WithRequestID(util.WithRequestLog("learn", s.mux))))
}

// Close releases limiter connections.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())

	// catalog
	s.mux.HandleFunc("/api/courses", s.handleCourses)
	s.mux.HandleFunc("/api/courses/{id}", s.handleCourse)

	// enrollment gate and payment flow
	s.mux.Handle("/api/courses/{id}/enrollment", s.withUser(s.handleEnrollment))
	s.mux.Handle("/api/courses/{id}/demo", s.withUser(s.handleDemo))
	s.mux.Handle("/api/courses/{id}/purchase", s.withUser(s.handlePurchase))
	s.mux.Handle("/api/courses/{id}/materials", s.withUser(s.handleMaterials))

	// reviews
	s.mux.Handle("/api/courses/{id}/reviews", s.withUser(s.handleReviews))

	// chat relay
	s.mux.Handle("/api/chat", s.withUser(s.handleChat))
	s.mux.Handle("/api/chat/history", s.withUser(s.handleChatHistory))

	s.mux.Handle("/api/me/profile", s.withUser(s.handleProfile))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// user resolution
type userHandler func(http.ResponseWriter, *http.Request, domain.User)

// withUser resolves the optional session. No Authorization header means an
// anonymous caller; a present but invalid token is rejected.
func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := servicetoken.BearerToken(r)
		if !ok {
			if strings.TrimSpace(r.Header.Get("Authorization")) != "" {
				s.audit(r, "learn.token.verify", "fail", "reason", "malformed_header")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next(w, r, domain.User{})
			return
		}
		identity, err := s.tokenVerifier.Verify(r.Context(), token)
		if err != nil {
			s.audit(r, "learn.token.verify", "fail", "reason", "invalid_signature_or_claims")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user := domain.User{ID: identity.Subject, Email: identity.Email, DisplayName: identity.Name}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("user_id", user.ID))
		next(w, r.WithContext(ctx), user)
	})
}

// catalog handlers
func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	courses, err := s.app.ListCourses(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

func (s *Server) handleCourse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	course, err := s.app.GetCourse(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

// enrollment handlers
func (s *Server) handleEnrollment(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	status, err := s.app.CheckEnrollment(r.Context(), user, r.PathValue("id"))
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("enrollment check failed", "course_id", r.PathValue("id"), "err", err)
		writeError(w, http.StatusBadGateway, "failed to check enrollment")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDemo(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.RecordDemoView(r.Context(), user, r.PathValue("id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"recorded": true})
}

type purchaseRequest struct {
	Method    string              `json:"method"`
	Card      payment.CardDetails `json:"card"`
	Reference string              `json:"reference"`
}

type purchaseResponse struct {
	State           app.PurchaseState `json:"state"`
	Enrolled        bool              `json:"enrolled"`
	AlreadyEnrolled bool              `json:"alreadyEnrolled"`
	CheckoutURL     string            `json:"checkoutUrl,omitempty"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if user.Anonymous() {
		writeAppError(w, r, app.ErrUnauthenticated)
		return
	}
	if !s.allowRate(w, r, s.purchaseLimiter, user, "too many purchase attempts") {
		return
	}
	var req purchaseRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	method := strings.ToLower(strings.TrimSpace(req.Method))

	p := s.app.NewPurchase(user, r.PathValue("id"), func(courseID string) {
		util.LoggerFromContext(r.Context()).Info("purchase completed", "course_id", courseID)
	})
	if err := p.Open(r.Context()); err != nil {
		writeAppError(w, r, err)
		return
	}
	if p.State() != app.StateGranted {
		var err error
		switch method {
		case "", "free":
		case "card":
			err = p.PayWithCard(r.Context(), req.Card)
		case "upi":
			err = p.ConfirmManualPayment(r.Context(), req.Reference)
		case "checkout":
			_, err = p.BeginCheckout(r.Context())
		default:
			writeError(w, http.StatusBadRequest, "method must be card, upi, checkout or free")
			return
		}
		if err != nil {
			s.audit(r, "learn.purchase", "fail", "course_id", r.PathValue("id"), "method", method, "reason", err.Error())
			writeAppError(w, r, err)
			return
		}
	}
	state := p.State()
	if state == app.StateGranted {
		s.audit(r, "learn.purchase", "success", "course_id", r.PathValue("id"), "method", method)
	}
	writeJSON(w, http.StatusOK, purchaseResponse{
		State:           state,
		Enrolled:        state == app.StateGranted,
		AlreadyEnrolled: p.AlreadyEnrolled(),
		CheckoutURL:     p.CheckoutURL(),
	})
}

func (s *Server) handleMaterials(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	link, err := s.app.MaterialLink(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// review handlers
func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		reviews, err := s.app.ListReviews(r.Context(), r.PathValue("id"), queryInt(r, "limit"))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, reviews)
	case http.MethodPost:
		var in app.ReviewInput
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		review, err := s.app.SubmitReview(r.Context(), user, r.PathValue("id"), in)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, review)
	default:
		methodNotAllowed(w)
	}
}

// chat handlers
type chatRequest struct {
	Messages []domain.ChatTurn `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.chatLimiter, user, "too many chat messages") {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reply, err := s.app.SendTurn(r.Context(), user, req.Messages)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	msgs, err := s.app.ChatHistory(r.Context(), user, queryInt(r, "limit"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	profile, err := s.app.GetProfile(r.Context(), user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(name)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"client_ip", util.ClientIP(r, s.trustedProxies),
		"request_id", util.RequestIDFromRequest(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

// allowRate keys signed-in callers by user id and anonymous callers by IP.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, user domain.User, msg string) bool {
	key := "ip:" + util.ClientIP(r, s.trustedProxies)
	if !user.Anonymous() {
		key = "user:" + user.ID
	}
	decision := limiter.Allow(r.Context(), key)
	if decision.Allowed {
		return true
	}
	retry := int(decision.RetryAfter.Round(time.Second) / time.Second)
	if retry < 1 {
		retry = 1
	}
	s.audit(r, "learn.ratelimit", "blocked", "key", key)
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrCourseNotFound), errors.Is(err, app.ErrNoMaterial):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrAlreadyReviewed), errors.Is(err, app.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInvalidReview), errors.Is(err, app.ErrInvalidPayment), errors.Is(err, app.ErrInvalidTranscript):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNotEnrolled), errors.Is(err, app.ErrPaymentMethodBlocked):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrPaymentFailed):
		writeError(w, http.StatusBadGateway, app.ErrPaymentFailed.Error())
	case errors.Is(err, app.ErrCheckoutFailed):
		writeError(w, http.StatusBadGateway, app.ErrCheckoutFailed.Error())
	case errors.Is(err, app.ErrMaterialsUnavailable):
		writeError(w, http.StatusServiceUnavailable, app.ErrMaterialsUnavailable.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
