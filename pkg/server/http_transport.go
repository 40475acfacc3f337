package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/co2mcp/pkg/core"
	"github.com/NERVsystems/co2mcp/pkg/monitoring"
)

// HTTPTransportConfig holds configuration for the HTTP transport
type HTTPTransportConfig struct {
	Addr           string        `json:"addr"`             // HTTP server address (e.g., ":8080")
	BaseURL        string        `json:"base_url"`         // Base URL for service discovery
	AuthType       core.AuthType `json:"auth_type"`        // Authentication type: "bearer", "basic", "none"
	AuthToken      string        `json:"auth_token"`       // Bearer token, or "user:password" for basic
	SSEEndpoint    string        `json:"sse_endpoint"`     // SSE endpoint path (default: "/sse")
	MsgEndpoint    string        `json:"msg_endpoint"`     // Message endpoint path (default: "/message")
	RateLimit      float64       `json:"rate_limit"`       // Requests per second per IP (0 = disabled)
	RateBurst      int           `json:"rate_burst"`       // Burst size for rate limiter
	MaxRequestSize int64         `json:"max_request_size"` // Maximum request body size in bytes
	MaxHeaderBytes int           `json:"max_header_bytes"` // Maximum header size in bytes
	TLSCertFile    string        `json:"tls_cert_file"`    // Path to TLS certificate file
	TLSKeyFile     string        `json:"tls_key_file"`     // Path to TLS private key file
	ForceHTTPS     bool          `json:"force_https"`      // Force HTTPS redirect for HTTP requests
}

// DefaultHTTPTransportConfig returns sensible defaults
func DefaultHTTPTransportConfig() HTTPTransportConfig {
	return HTTPTransportConfig{
		Addr:           ":7082",
		AuthType:       core.AuthNone,
		SSEEndpoint:    "/sse",
		MsgEndpoint:    "/message",
		RateLimit:      10,
		RateBurst:      20,
		MaxRequestSize: 1 << 20,
		MaxHeaderBytes: 1 << 20,
	}
}

// HTTPTransport serves MCP over HTTP+SSE alongside the JSON API
type HTTPTransport struct {
	config        HTTPTransportConfig
	logger        *slog.Logger
	sseServer     *mcpserver.SSEServer
	api           http.Handler
	mux           *http.ServeMux
	httpSrv       *http.Server
	rateLimiter   *RateLimiter
	healthChecker *monitoring.HealthChecker
	mu            sync.RWMutex
}

// NewHTTPTransport creates a new HTTP transport instance. api may be nil,
// in which case /api/ is not mounted.
func NewHTTPTransport(mcpServer *mcpserver.MCPServer, api http.Handler, config HTTPTransportConfig, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	if config.AuthType == "" {
		config.AuthType = core.AuthNone
	}

	if config.AuthType != core.AuthNone && config.AuthToken != "" {
		if err := core.ValidateAuthToken(config.AuthToken); err != nil {
			logger.Warn("weak authentication token detected", "error", err.Error())
		}
	}

	sseServer := mcpserver.NewSSEServer(
		mcpServer,
		mcpserver.WithSSEEndpoint(config.SSEEndpoint),
		mcpserver.WithMessageEndpoint(config.MsgEndpoint),
		mcpserver.WithBaseURL(config.BaseURL),
	)

	transport := &HTTPTransport{
		config:    config,
		logger:    logger,
		sseServer: sseServer,
		api:       api,
		mux:       http.NewServeMux(),
	}
	transport.setupRoutes()

	return transport
}

// SetHealthChecker sets the health checker for the HTTP transport
func (t *HTTPTransport) SetHealthChecker(hc *monitoring.HealthChecker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.healthChecker = hc
}

// setupRoutes configures all HTTP routes
func (t *HTTPTransport) setupRoutes() {
	t.mux.HandleFunc("/", t.httpsEnforcement(t.handleServiceDiscovery))

	// Health and debug endpoints (no auth required)
	t.mux.HandleFunc("/health", t.handleHealth)
	t.mux.HandleFunc("/ready", t.handleReady)
	t.mux.HandleFunc("/live", t.handleLive)
	t.mux.HandleFunc(t.config.SSEEndpoint+"/debug", t.handleSSEDebug)
	t.mux.HandleFunc(t.config.MsgEndpoint+"/debug", t.handleMessageDebug)

	t.mux.Handle(t.config.SSEEndpoint, t.httpsEnforcement(t.authMiddleware(t.sseServer.SSEHandler()).ServeHTTP))
	t.mux.Handle(t.config.SSEEndpoint+"/", t.httpsEnforcement(t.authMiddleware(t.sseServer.SSEHandler()).ServeHTTP))
	t.mux.Handle(t.config.MsgEndpoint, t.httpsEnforcement(t.authMiddleware(t.sseServer.MessageHandler()).ServeHTTP))
	t.mux.Handle(t.config.MsgEndpoint+"/", t.httpsEnforcement(t.authMiddleware(t.sseServer.MessageHandler()).ServeHTTP))

	if t.api != nil {
		t.mux.Handle(APIPrefix, t.httpsEnforcement(t.authMiddleware(t.api).ServeHTTP))
	}
}

// httpsEnforcement redirects HTTP requests to HTTPS if ForceHTTPS is enabled
func (t *HTTPTransport) httpsEnforcement(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if t.config.ForceHTTPS && r.TLS == nil {
			httpsURL := "https://" + r.Host + r.URL.RequestURI()

			t.logger.Info("redirecting HTTP request to HTTPS",
				"client_ip", r.RemoteAddr,
				"original_url", r.URL.String(),
				"redirect_url", httpsURL)

			http.Redirect(w, r, httpsURL, http.StatusMovedPermanently)
			return
		}

		next(w, r)
	}
}

// authMiddleware authenticates MCP and API requests
func (t *HTTPTransport) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := core.Authenticate(r, t.config.AuthType, t.config.AuthToken)
		if result.Authorized {
			next.ServeHTTP(w, r)
			return
		}

		t.logger.Warn("authentication failed",
			"remote_addr", getIP(r),
			"path", r.URL.Path,
			"auth_type", t.config.AuthType,
			"error", result.Reason)
		monitoring.RecordError("http", "auth")

		if t.config.AuthType == core.AuthBasic {
			w.Header().Set("WWW-Authenticate", `Basic realm="co2mcp"`)
		} else {
			w.Header().Set("WWW-Authenticate", "Bearer")
		}

		if strings.HasPrefix(r.URL.Path, APIPrefix) {
			e := core.NewError(core.ErrInvalidParameter, "authentication required").
				WithGuidance("Send the configured credentials in the Authorization header")
			if err := writeJSON(w, http.StatusUnauthorized, e); err != nil {
				t.logger.Error("failed to encode auth error", "error", err)
			}
			return
		}
		t.writeJSONRPCError(w, http.StatusUnauthorized, nil, -32600, "Authentication required")
	})
}

// handleServiceDiscovery provides service discovery for MCP clients
func (t *HTTPTransport) handleServiceDiscovery(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	baseURL := t.config.BaseURL
	if baseURL == "" {
		scheme := "http"
		if r.TLS != nil || t.config.ForceHTTPS || (t.config.TLSCertFile != "" && t.config.TLSKeyFile != "") {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, r.Host)
	}

	endpoints := map[string]string{
		"sse":     baseURL + t.config.SSEEndpoint,
		"message": baseURL + t.config.MsgEndpoint,
	}
	if t.api != nil {
		endpoints["api"] = baseURL + strings.TrimSuffix(APIPrefix, "/")
	}

	discovery := map[string]any{
		"service":   "mcp-server",
		"transport": "HTTP+SSE",
		"endpoints": endpoints,
		"capabilities": map[string]any{
			"tools": true,
		},
		"auth": map[string]any{
			"required": t.config.AuthType != core.AuthNone,
		},
	}

	if err := writeJSON(w, http.StatusOK, discovery); err != nil {
		t.logger.Error("failed to encode service discovery response", "error", err)
	}
}

func (t *HTTPTransport) health() *monitoring.HealthChecker {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.healthChecker
}

// handleHealth provides comprehensive health check endpoint
func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if hc := t.health(); hc != nil {
		hc.HealthHandler()(w, r)
		return
	}
	if err := writeJSON(w, http.StatusOK, map[string]any{"status": "ok"}); err != nil {
		t.logger.Error("failed to encode health response", "error", err)
	}
}

// handleReady provides Kubernetes-style readiness check
func (t *HTTPTransport) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if hc := t.health(); hc != nil {
		hc.ReadinessHandler()(w, r)
		return
	}
	if err := writeJSON(w, http.StatusOK, map[string]any{"ready": true, "status": "ok"}); err != nil {
		t.logger.Error("failed to encode ready response", "error", err)
	}
}

// handleLive provides Kubernetes-style liveness check
func (t *HTTPTransport) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if hc := t.health(); hc != nil {
		hc.LivenessHandler()(w, r)
		return
	}
	if err := writeJSON(w, http.StatusOK, map[string]any{"alive": true}); err != nil {
		t.logger.Error("failed to encode liveness response", "error", err)
	}
}

// handleSSEDebug provides debug information for SSE endpoint
func (t *HTTPTransport) handleSSEDebug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	debug := map[string]any{
		"endpoint":    t.config.SSEEndpoint,
		"description": "Server-Sent Events endpoint for MCP communication",
		"usage":       "Connect with Accept: text/event-stream header",
		"transport":   "HTTP+SSE",
	}
	if err := writeJSON(w, http.StatusOK, debug); err != nil {
		t.logger.Error("failed to encode SSE debug response", "error", err)
	}
}

// handleMessageDebug provides debug information for message endpoint
func (t *HTTPTransport) handleMessageDebug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	debug := map[string]any{
		"endpoint":    t.config.MsgEndpoint,
		"description": "JSON-RPC message endpoint for MCP communication",
		"usage":       "POST JSON-RPC messages with sessionId query parameter",
		"transport":   "HTTP+SSE",
	}
	if err := writeJSON(w, http.StatusOK, debug); err != nil {
		t.logger.Error("failed to encode message debug response", "error", err)
	}
}

// writeJSONRPCError writes a JSON-RPC error response
func (t *HTTPTransport) writeJSONRPCError(w http.ResponseWriter, status int, id any, code int, message string) {
	response := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		t.logger.Error("failed to encode JSON-RPC error", "error", err)
	}
}

// Handler returns the full middleware chain around the route mux
func (t *HTTPTransport) Handler() http.Handler {
	t.mu.Lock()
	defer t.mu.Unlock()

	handler := http.Handler(t.mux)
	if t.config.RateLimit > 0 {
		if t.rateLimiter == nil {
			t.rateLimiter = NewRateLimiter(rate.Limit(t.config.RateLimit), t.config.RateBurst)
		}
		handler = t.rateLimiter.Middleware(handler)
	}
	if t.config.MaxRequestSize > 0 {
		handler = RequestSizeLimiter(t.config.MaxRequestSize)(handler)
	}
	handler = SecurityHeaders(handler)
	handler = LoggingMiddleware(t.logger)(handler)
	handler = TracingMiddleware()(handler)
	return handler
}

// Start begins serving HTTP requests
func (t *HTTPTransport) Start() error {
	handler := t.Handler()

	t.mu.Lock()
	if t.httpSrv != nil {
		t.mu.Unlock()
		return core.NewError(core.ErrInternalError, "HTTP transport already started").
			WithGuidance("The HTTP transport is already running. Stop it before starting again.")
	}

	t.httpSrv = &http.Server{
		Addr:              t.config.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// SSE streams stay open, so no write timeout
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: t.config.MaxHeaderBytes,
	}
	srv := t.httpSrv
	t.mu.Unlock()

	tlsEnabled := t.config.TLSCertFile != "" && t.config.TLSKeyFile != ""
	t.logger.Info("starting HTTP transport",
		"addr", t.config.Addr,
		"sse_endpoint", t.config.SSEEndpoint,
		"message_endpoint", t.config.MsgEndpoint,
		"api", t.api != nil,
		"auth_type", t.config.AuthType,
		"rate_limit", t.config.RateLimit,
		"tls_enabled", tlsEnabled,
		"force_https", t.config.ForceHTTPS)

	if tlsEnabled {
		return srv.ListenAndServeTLS(t.config.TLSCertFile, t.config.TLSKeyFile)
	}
	if t.config.ForceHTTPS {
		t.logger.Warn("HTTPS enforcement enabled but no TLS certificates provided - HTTP requests will be redirected")
	}
	return srv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP transport
func (t *HTTPTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rateLimiter != nil {
		t.rateLimiter.Stop()
		t.rateLimiter = nil
	}

	if t.httpSrv == nil {
		return nil
	}

	t.logger.Info("shutting down HTTP transport")

	if err := t.sseServer.Shutdown(ctx); err != nil {
		t.logger.Error("failed to shutdown SSE server", "error", err)
	}

	err := t.httpSrv.Shutdown(ctx)
	t.httpSrv = nil
	return err
}

// GetBaseURL returns the configured base URL
func (t *HTTPTransport) GetBaseURL() string {
	return t.config.BaseURL
}

// GetConfig returns the transport configuration
func (t *HTTPTransport) GetConfig() HTTPTransportConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.config
}
