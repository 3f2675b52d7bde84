package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/stakeport/stakeport/internal/authz"
	"github.com/stakeport/stakeport/internal/config"
	"github.com/stakeport/stakeport/internal/logging"
	"github.com/stakeport/stakeport/internal/metrics"
	"github.com/stakeport/stakeport/internal/notify"
	"github.com/stakeport/stakeport/pkg/types"
)

// SessionSource exposes the current wallet session.
type SessionSource interface {
	Session() types.Session
}

// BalanceSource exposes the last published balance snapshot.
type BalanceSource interface {
	Snapshot() *types.BalanceSnapshot
}

// AccessChecker decides dashboard access for an address.
type AccessChecker interface {
	CheckAccess(ctx context.Context, address string) authz.Access
}

// RegistrationNotifier forwards member registrations to the administrators.
type RegistrationNotifier interface {
	NotifyRegistration(ctx context.Context, m notify.Member) error
}

// Server is the dashboard HTTP API server
type Server struct {
	config     *ServerConfig
	httpServer *http.Server
	mu         sync.RWMutex
	running    bool
	startedAt  time.Time

	sessions SessionSource
	balances BalanceSource
	access   AccessChecker
	notifier RegistrationNotifier

	wsHub            *WebSocketHub
	metricsCollector *metrics.Collector

	// Per-IP rate limiters
	rateLimiters sync.Map

	rateLimitCtx    context.Context
	rateLimitCancel context.CancelFunc
}

// rateLimiterEntry holds a rate limiter and the last time it was used
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ServerConfig configures the HTTP API server
type ServerConfig struct {
	HTTPAddr string

	// Rate limiting
	RateLimit      int // Requests per minute
	RateLimitBurst int

	// Proxy trust (only enable behind a trusted reverse proxy)
	TrustProxy bool

	AllowedOrigins []string

	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration

	EnableWebSocket bool
}

// DefaultServerConfig returns the default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		HTTPAddr:          "127.0.0.1:8787",
		RateLimit:         120,
		RateLimitBurst:    20,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		EnableWebSocket:   true,
	}
}

// ServerConfigFromConfig maps the api section of the application config.
func ServerConfigFromConfig(cfg config.APIConfig) *ServerConfig {
	sc := DefaultServerConfig()
	if cfg.ListenAddr != "" {
		sc.HTTPAddr = cfg.ListenAddr
	}
	sc.RateLimit = cfg.RateLimitRequests
	sc.RateLimitBurst = cfg.RateLimitBurst
	sc.AllowedOrigins = cfg.AllowedOrigins
	return sc
}

// NewServer creates a new HTTP API server. Any of the sources may be nil;
// the matching routes then answer 503.
func NewServer(cfg *ServerConfig, sessions SessionSource, balances BalanceSource, access AccessChecker) *Server {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	s := &Server{
		config:   cfg,
		sessions: sessions,
		balances: balances,
		access:   access,
	}
	if cfg.EnableWebSocket {
		s.wsHub = NewWebSocketHub()
	}
	return s
}

// SetMetricsCollector sets the collector served at /metrics.
func (s *Server) SetMetricsCollector(collector *metrics.Collector) {
	s.metricsCollector = collector
}

// SetNotifier enables POST /v1/register.
func (s *Server) SetNotifier(n RegistrationNotifier) {
	s.notifier = n
}

// Start starts the HTTP API server
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	if s.config.RateLimit > 0 {
		s.rateLimitCtx, s.rateLimitCancel = context.WithCancel(ctx)
		s.startRateLimiterCleanup()
	}

	if s.wsHub != nil {
		go s.wsHub.Run(ctx)
	}

	ln, err := net.Listen("tcp", s.config.HTTPAddr)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if s.rateLimitCancel != nil {
			s.rateLimitCancel()
		}
		return fmt.Errorf("listen %s: %w", s.config.HTTPAddr, err)
	}

	// ReadHeaderTimeout only, so long-lived websocket connections survive.
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	go func() {
		logging.Info("HTTP API server starting",
			"addr", ln.Addr().String(),
			logging.Component("api"))

		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP server error",
				"error", err.Error(),
				logging.Component("api"))
		}
	}()

	return nil
}

// Stop stops the HTTP API server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	var err error
	if s.httpServer != nil {
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("HTTP server shutdown: %w", shutdownErr)
		}
	}
	if s.rateLimitCancel != nil {
		s.rateLimitCancel()
	}

	logging.Info("API server stopped", logging.Component("api"))
	return err
}

// Handler builds the HTTP router with all handlers
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/session", s.withMiddleware("session", s.handleSession))
	mux.HandleFunc("GET /v1/balances", s.withMiddleware("balances", s.handleBalances))
	mux.HandleFunc("GET /v1/access/{address}", s.withMiddleware("access", s.handleAccess))
	mux.HandleFunc("POST /v1/register", s.withMiddleware("register", s.handleRegister))

	if s.wsHub != nil {
		mux.HandleFunc("GET /v1/ws", s.withMiddleware("ws", s.handleWebSocket))
	}

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.metricsCollector != nil {
		mux.Handle("GET /metrics", s.metricsCollector.Handler())
	}

	return s.globalCORSMiddleware(mux)
}

// globalCORSMiddleware wraps an entire handler tree with CORS headers so
// preflight requests to unknown paths still carry them.
func (s *Server) globalCORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes the connection through for websocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

// withMiddleware applies rate limiting and request metrics.
func (s *Server) withMiddleware(route string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			s.metricsCollector.RecordAPIRequest(route, strconv.Itoa(rec.code))
		}()

		if s.config.RateLimit > 0 {
			ip := s.extractClientIP(r)
			if !s.getRateLimiter(ip).Allow() {
				logging.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
					"method", r.Method,
					logging.Component("api"))
				rec.Header().Set("Retry-After", "60")
				s.writeJSON(rec, http.StatusTooManyRequests, map[string]any{
					"error":       "rate limit exceeded",
					"retry_after": 60,
				})
				return
			}
		}

		handler(rec, r)
	}
}

// getRateLimiter returns the rate limiter for the given IP address.
func (s *Server) getRateLimiter(ip string) *rate.Limiter {
	now := time.Now()

	if val, ok := s.rateLimiters.Load(ip); ok {
		entry := val.(*rateLimiterEntry)
		entry.lastSeen = now
		return entry.limiter
	}

	rps := rate.Limit(float64(s.config.RateLimit) / 60.0)
	burst := s.config.RateLimitBurst
	if burst < 1 {
		burst = 1
	}
	entry := &rateLimiterEntry{
		limiter:  rate.NewLimiter(rps, burst),
		lastSeen: now,
	}
	actual, _ := s.rateLimiters.LoadOrStore(ip, entry)
	return actual.(*rateLimiterEntry).limiter
}

// extractClientIP extracts the client IP address from the request. Proxy
// headers are only trusted when TrustProxy is enabled.
func (s *Server) extractClientIP(r *http.Request) string {
	if s.config.TrustProxy {
		if cfIP := r.Header.Get("CF-Connecting-IP"); cfIP != "" {
			return strings.TrimSpace(cfIP)
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.IndexByte(xff, ','); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// startRateLimiterCleanup starts a goroutine that periodically removes stale rate limiters
func (s *Server) startRateLimiterCleanup() {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-s.rateLimitCtx.Done():
				return
			case <-ticker.C:
				s.cleanupRateLimiters()
			}
		}
	}()
}

// cleanupRateLimiters removes rate limiter entries that have not been seen recently
func (s *Server) cleanupRateLimiters() {
	staleThreshold := time.Now().Add(-10 * time.Minute)
	var cleaned int

	s.rateLimiters.Range(func(key, value any) bool {
		entry := value.(*rateLimiterEntry)
		if entry.lastSeen.Before(staleThreshold) {
			s.rateLimiters.Delete(key)
			cleaned++
		}
		return true
	})

	if cleaned > 0 {
		logging.Debug("cleaned up stale rate limiters",
			"count", cleaned,
			logging.Component("api"))
	}
}

// originAllowed reports whether origin is in the allow list.
func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// setCORSHeaders sets CORS headers on the response
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || !s.originAllowed(origin) {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.Header().Add("Vary", "Origin")
}

// BroadcastEvent broadcasts an event to WebSocket clients subscribed to channel.
func (s *Server) BroadcastEvent(channel, eventType string, data any) {
	if s.wsHub != nil {
		s.wsHub.BroadcastToChannel(channel, eventType, data)
	}
}
