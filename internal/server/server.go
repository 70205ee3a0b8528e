// Package server exposes the ordering system over HTTP and WebSocket:
// session issue and verification under /auth, the stateless order
// endpoints under /order, the voice stream at /ws/voice, plus health
// and metrics.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xxgiasonxx/voice-ordering-system/internal/health"
	"github.com/xxgiasonxx/voice-ordering-system/internal/observe"
	"github.com/xxgiasonxx/voice-ordering-system/internal/order"
	"github.com/xxgiasonxx/voice-ordering-system/internal/session"
	"github.com/xxgiasonxx/voice-ordering-system/internal/stream"
)

// CookieName is the session credential cookie.
const CookieName = "ordering_token"

// maxFrameBytes caps a single inbound WebSocket frame.
const maxFrameBytes = 1 << 20

// Option configures a Server during construction.
type Option func(*Server)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth sets the health handler, typically carrying Redis and
// Postgres pingers. Defaults to an empty checker set.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithCookieTTL sets the session cookie lifetime. Should match the
// session TTL. Default 30 minutes.
func WithCookieTTL(ttl time.Duration) Option {
	return func(s *Server) { s.cookieTTL = ttl }
}

// WithSecureCookies marks session cookies Secure. Enable whenever the
// server terminates TLS.
func WithSecureCookies(secure bool) Option {
	return func(s *Server) { s.secureCookies = secure }
}

// Server wires the session service and the turn orchestrator into an
// HTTP surface.
type Server struct {
	sessions *session.Service
	orch     *stream.Orchestrator
	health   *health.Handler

	cookieTTL     time.Duration
	secureCookies bool

	metrics *observe.Metrics
	log     *slog.Logger
}

// New constructs a Server. Options are applied after defaults.
func New(sessions *session.Service, orch *stream.Orchestrator, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		orch:      orch,
		health:    health.New(),
		cookieTTL: session.DefaultTTL,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Router builds the chi router with all endpoints mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(observe.Middleware(s.metrics))

	s.health.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Get("/token", s.handleToken)
		r.Get("/me", s.handleMe)
	})
	r.Route("/order", func(r chi.Router) {
		r.Post("/", s.handleOrderTurn)
		r.Get("/state", s.handleOrderState)
		r.Post("/reset", s.handleOrderReset)
		r.Post("/payment", s.handleOrderPayment)
	})
	r.Get("/ws/voice", s.handleVoice)

	return r
}

// ─── Auth endpoints ─────────────────────────────────────────────────────────

type tokenResponse struct {
	Token   string `json:"token"`
	Created bool   `json:"created"`
}

// handleToken issues the session credential. A valid cookie comes back
// unchanged with any lapsed session keys re-seeded; a stale or missing
// cookie gets a fresh session.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	presented := ""
	if c, err := r.Cookie(CookieName); err == nil {
		presented = c.Value
	}

	token, created, err := s.sessions.Create(r.Context(), presented)
	if err != nil && (errors.Is(err, session.ErrInvalidToken) || errors.Is(err, session.ErrExpiredSession)) {
		token, created, err = s.sessions.Create(r.Context(), "")
	}
	if err != nil {
		s.log.Error("session create failed", "err", err)
		respondError(w, http.StatusInternalServerError, "session_unavailable", "could not create session")
		return
	}
	if created {
		s.metrics.SessionsCreated.Add(r.Context(), 1)
	}

	http.SetCookie(w, s.sessionCookie(token))
	respondJSON(w, http.StatusOK, tokenResponse{Token: token, Created: created})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired session")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

// ─── Order endpoints ────────────────────────────────────────────────────────

type orderTurnRequest struct {
	Query string `json:"query"`
}

type orderTurnResponse struct {
	Response string         `json:"response"`
	Intent   string         `json:"intent,omitempty"`
	Diff     order.Changes  `json:"diff"`
	Order    order.Document `json:"order"`
}

// handleOrderTurn runs one ordering turn on a typed query. Same
// pipeline as a voice turn, without the audio leg.
func (s *Server) handleOrderTurn(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired session")
		return
	}

	var req orderTurnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query must not be empty")
		return
	}

	res, err := s.orch.TextTurn(r.Context(), id, req.Query)
	if err != nil {
		s.log.Error("order turn failed", "session_id", id, "err", err)
		respondError(w, http.StatusBadGateway, "turn_failed", "could not process the order request")
		return
	}

	respondJSON(w, http.StatusOK, orderTurnResponse{
		Response: res.Reply,
		Intent:   res.Intent,
		Diff:     res.Changes,
		Order:    res.Document,
	})
}

func (s *Server) handleOrderState(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired session")
		return
	}
	doc, err := s.sessions.OrderState(r.Context(), id)
	if err != nil {
		s.log.Error("order state load failed", "session_id", id, "err", err)
		respondError(w, http.StatusInternalServerError, "state_unavailable", "could not load order state")
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleOrderReset(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired session")
		return
	}
	if err := s.sessions.Reset(r.Context(), id); err != nil {
		s.log.Error("order reset failed", "session_id", id, "err", err)
		respondError(w, http.StatusInternalServerError, "reset_failed", "could not reset the order")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleOrderPayment(w http.ResponseWriter, r *http.Request) {
	id, err := s.authenticate(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired session")
		return
	}
	doc, err := s.sessions.SubmitPayment(r.Context(), id)
	if err != nil {
		s.log.Error("payment failed", "session_id", id, "err", err)
		respondError(w, http.StatusInternalServerError, "payment_failed", "could not submit payment")
		return
	}
	s.metrics.PaymentsSubmitted.Add(r.Context(), 1)
	respondJSON(w, http.StatusOK, doc)
}

// ─── Voice endpoint ─────────────────────────────────────────────────────────

// handleVoice accepts the voice WebSocket and hands it to the
// orchestrator. The credential comes from the session cookie or, for
// clients that cannot send cookies on WebSocket, a token query
// parameter. Verification happens inside Run so that auth failures
// close the socket with the policy-violation code instead of failing
// the HTTP upgrade.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(CookieName); err == nil {
		token = c.Value
	}
	if q := r.URL.Query().Get("token"); q != "" {
		token = q
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug("websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	if err := s.orch.Run(r.Context(), &wsConn{conn: conn}, token); err != nil {
		observe.Logger(r.Context()).Info("voice stream ended", "err", err)
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// authenticate resolves the session id from the request cookie.
func (s *Server) authenticate(r *http.Request) (string, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", session.ErrInvalidToken
	}
	return s.sessions.Verify(r.Context(), c.Value)
}

func (s *Server) sessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
}

func decodeJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"error": code, "msg": message})
}
