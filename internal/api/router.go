package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/verdantio/growgate-core/internal/gateway"
)

// upgrader configures the WebSocket upgrader. Origin checking is left
// to the deployment's reverse proxy.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleMetrics returns resilience and gateway counters.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"gateway": s.gateway.Snapshot(),
	}
	if s.resilience != nil {
		payload["resilience"] = s.resilience.Snapshot()
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleWebSocket authenticates a tenant and attaches the browser
// connection to the gateway. The token comes from the token query
// parameter or a bearer Authorization header; the tenant id is the
// token subject.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" {
		writeUnauthorized(w, "token is required")
		return
	}
	tenantID, err := ParseTenantToken(token, s.secCfg.JWT.Secret)
	if err != nil {
		writeUnauthorized(w, "invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "tenant_id", tenantID, "error", err)
		return
	}

	sock := gateway.NewWSSocket(s.gateway, conn, s.wsCfg, tenantID, s.logger)
	if err := s.gateway.ConnectBrowserSocket(r.Context(), tenantID, sock); err != nil {
		s.logger.Warn("browser connection rejected", "tenant_id", tenantID, "error", err)
		//nolint:errcheck // Connection is being discarded
		sock.Close()
		return
	}
	go sock.Run()
}

// bearerToken extracts a bearer token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
