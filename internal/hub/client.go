package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	defaultRequestTimeout   = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultCacheTTL         = 300 * time.Second
	defaultRateLimit        = 10 // requests per second

	defaultMaxReconnectAttempts = 10
	defaultReconnectBaseDelay   = time.Second
	defaultReconnectMaxDelay    = 5 * time.Minute
)

// Proxy access-control headers attached uniformly to REST and WebSocket
// requests when proxy credentials are configured.
const (
	proxyClientIDHeader     = "CF-Access-Client-Id"
	proxyClientSecretHeader = "CF-Access-Client-Secret"
)

// Logger is the minimal logging interface the client needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds one credential set's hub connection settings.
type Config struct {
	// BaseURL is the hub's HTTP base URL, e.g. "http://hub.local:8123".
	BaseURL string

	// Token is the long-lived bearer token for this credential set.
	Token string

	// WSURL optionally overrides the WebSocket URL derived from BaseURL.
	WSURL string

	// ProxyClientID and ProxyClientSecret are optional reverse-proxy
	// access-control credentials sent as headers on every request.
	ProxyClientID     string
	ProxyClientSecret string

	RequestTimeout   time.Duration
	HandshakeTimeout time.Duration

	// CacheTTL is how long a cached entity state stays fresh.
	CacheTTL time.Duration

	// RateLimit is the REST token-bucket rate in requests per second.
	RateLimit float64

	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration

	// ConnectReporter, when set, receives the outcome of every WebSocket
	// connection cycle: nil once a connection is authenticated and
	// subscribed, the failure otherwise. Lets a caller feed breaker and
	// health state without owning the reconnect loop.
	ConnectReporter func(err error)
}

// Stats is a snapshot of the client's counters.
type Stats struct {
	RESTRequests    uint64
	EventsReceived  uint64
	EventsDropped   uint64
	Reconnects      uint64
	CachedEntities  int
	Subscriptions   int
	WebSocketOnline bool
}

// Health is the result of a HealthCheck call.
type Health struct {
	Healthy                 bool `json:"healthy"`
	RESTAPIOk               bool `json:"rest_api_ok"`
	WebSocketOk             bool `json:"websocket_ok"`
	CachedEntityCount       int  `json:"cached_entity_count"`
	ActiveSubscriptionCount int  `json:"active_subscription_count"`
}

// Client is one authenticated hub session: a rate-limited REST surface
// plus a self-maintaining WebSocket for state-change events.
type Client struct {
	cfg    Config
	logger Logger

	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *entityCache
	subs       *subscriptionRegistry
	now        func() time.Time

	initialized     atomic.Bool
	wsOnline        atomic.Bool
	wsEverConnected atomic.Bool

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup

	connMu sync.Mutex
	conn   *websocket.Conn

	// Statistics (atomic, read by Stats and HealthCheck)
	restRequests    atomic.Uint64
	eventsRx        atomic.Uint64
	reconnectsTotal atomic.Uint64
	nextCommandID   atomic.Int64
}

// New creates a Client. It performs no I/O; call Initialize to open the
// session.
func New(cfg Config, logger Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("hub: base URL required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("hub: access token required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("hub: invalid base URL: %w", err)
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = defaultReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = defaultReconnectMaxDelay
	}

	now := time.Now
	burst := int(cfg.RateLimit)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		cache:      newEntityCache(cfg.CacheTTL, now),
		subs:       newSubscriptionRegistry(),
		now:        now,
		done:       make(chan struct{}),
	}, nil
}

// Initialize probes the REST API with the configured credentials and, on
// success, starts the WebSocket-maintaining goroutine. A 401 from the
// probe surfaces as an authentication error, a transport failure as a
// connection error.
func (c *Client) Initialize(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}

	if _, err := c.doRequest(ctx, http.MethodGet, "/api/", nil); err != nil {
		return classifyRequestError(err)
	}

	if c.initialized.CompareAndSwap(false, true) {
		c.wg.Add(1)
		go c.maintainWebSocket()
	}

	c.logInfo("hub session initialized", "base_url", c.cfg.BaseURL)
	return nil
}

// GetEntity returns one entity's state. With useCache, a fresh cached
// entry is returned without touching the hub. A 404 returns (nil, nil).
func (c *Client) GetEntity(ctx context.Context, entityID string, useCache bool) (*EntityState, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}

	if useCache {
		if state, ok := c.cache.get(entityID); ok {
			return state, nil
		}
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/api/states/"+url.PathEscape(entityID), nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var state EntityState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("hub: decoding entity state: %w", err)
	}
	c.cache.set(&state)
	return &state, nil
}

// GetEntities returns all entity states, optionally filtered by domain
// (the part of the entity id before the dot, e.g. "light"). The cache is
// refreshed with every returned entity.
func (c *Client) GetEntities(ctx context.Context, typeFilter string) ([]EntityState, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/api/states", nil)
	if err != nil {
		return nil, err
	}

	var states []EntityState
	if err := json.Unmarshal(body, &states); err != nil {
		return nil, fmt.Errorf("hub: decoding entity states: %w", err)
	}

	var out []EntityState
	for i := range states {
		c.cache.set(&states[i])
		if typeFilter == "" || strings.HasPrefix(states[i].EntityID, typeFilter+".") {
			out = append(out, states[i])
		}
	}
	return out, nil
}

// CallService invokes a hub service, e.g. ("light", "turn_on",
// "light.grow_1", {"brightness": 180}). HTTP failures propagate with their
// status preserved; retry and breaker wrapping is the caller's job.
func (c *Client) CallService(ctx context.Context, domain, service, entityID string, data map[string]any) error {
	if c.isClosed() {
		return ErrClosed
	}

	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	if entityID != "" {
		payload["entity_id"] = entityID
	}

	path := fmt.Sprintf("/api/services/%s/%s", url.PathEscape(domain), url.PathEscape(service))
	_, err := c.doRequest(ctx, http.MethodPost, path, payload)
	return err
}

// GetServices returns the hub's service registry as raw JSON.
func (c *Client) GetServices(ctx context.Context) (json.RawMessage, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	return c.doRequest(ctx, http.MethodGet, "/api/services", nil)
}

// GetConfig returns the hub's configuration as raw JSON.
func (c *Client) GetConfig(ctx context.Context) (json.RawMessage, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	return c.doRequest(ctx, http.MethodGet, "/api/config", nil)
}

// Subscribe registers interest in one entity's state changes. The hub-side
// event subscription is global, so this is purely in-memory and never
// fails while the client is open.
func (c *Client) Subscribe(entityID string) (*Subscription, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	return c.subs.add(entityID), nil
}

// Unsubscribe removes a subscription and closes its channel.
func (c *Client) Unsubscribe(sub *Subscription) error {
	return c.subs.remove(sub)
}

// HealthCheck probes the REST API and reports current session health. It
// never returns an error; failures show up as false flags.
func (c *Client) HealthCheck(ctx context.Context) Health {
	h := Health{
		WebSocketOk:             c.wsOnline.Load(),
		CachedEntityCount:       c.cache.len(),
		ActiveSubscriptionCount: c.subs.count(),
	}
	if c.isClosed() {
		return h
	}

	if _, err := c.doRequest(ctx, http.MethodGet, "/api/", nil); err == nil {
		h.RESTAPIOk = true
	}
	h.Healthy = h.RESTAPIOk
	return h
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() Stats {
	return Stats{
		RESTRequests:    c.restRequests.Load(),
		EventsReceived:  c.eventsRx.Load(),
		EventsDropped:   c.subs.dropped.Load(),
		Reconnects:      c.reconnectsTotal.Load(),
		CachedEntities:  c.cache.len(),
		Subscriptions:   c.subs.count(),
		WebSocketOnline: c.wsOnline.Load(),
	}
}

// Close shuts down the WebSocket goroutine, closes all subscription
// channels, and releases HTTP resources. Idempotent.
func (c *Client) Close() error {
	c.stopOnce.Do(func() {
		close(c.done)
		c.closeConn()
		c.wg.Wait()
		c.subs.closeAll()
		c.httpClient.CloseIdleConnections()
		c.logInfo("hub session closed")
	})
	return nil
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// doRequest executes one rate-limited REST call and returns the response
// body. Non-2xx responses return *HTTPError.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("hub: rate limiter: %w", err)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("hub: encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, body)
	if err != nil {
		return nil, fmt.Errorf("hub: building request: %w", err)
	}
	c.setHeaders(req.Header)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.restRequests.Add(1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hub: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read side only

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("hub: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Status: resp.StatusCode,
			Method: method,
			Path:   path,
			Body:   truncate(string(data), 200),
		}
	}
	return data, nil
}

// setHeaders attaches the bearer token and optional proxy credentials.
// Used for both REST requests and the WebSocket dial.
func (c *Client) setHeaders(h http.Header) {
	h.Set("Authorization", "Bearer "+c.cfg.Token)
	if c.cfg.ProxyClientID != "" {
		h.Set(proxyClientIDHeader, c.cfg.ProxyClientID)
		h.Set(proxyClientSecretHeader, c.cfg.ProxyClientSecret)
	}
}

func isNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusNotFound
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (c *Client) logDebug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Client) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func (c *Client) logError(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}
