package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// maintainWebSocket keeps the event WebSocket alive for the life of the
// client. Each connection attempt performs the full auth handshake and
// event subscription; on connection loss it retries with exponential
// backoff (base * 2^(attempt-1), capped) up to MaxReconnectAttempts.
// Exhausting the attempts, or an auth_invalid reply, ends WebSocket
// support; REST access stays usable either way.
func (c *Client) maintainWebSocket() {
	defer c.wg.Done()

	attempt := 0
	for {
		if c.isClosed() {
			return
		}

		err := c.runWebSocket()
		c.wsOnline.Store(false)

		if c.isClosed() {
			return
		}
		if err != nil {
			c.reportConnect(err)
		}
		if errors.Is(err, ErrAuthInvalid) {
			c.logError("hub rejected websocket credentials, not retrying", "error", err)
			return
		}
		if err == nil {
			// Connection was established and later lost: start a fresh
			// backoff sequence.
			attempt = 0
		}

		attempt++
		if attempt > c.cfg.MaxReconnectAttempts {
			c.logError("websocket reconnect attempts exhausted, events disabled",
				"attempts", c.cfg.MaxReconnectAttempts)
			return
		}

		backoff := c.reconnectDelay(attempt)
		c.logWarn("websocket disconnected, reconnecting",
			"attempt", attempt, "backoff", backoff.String(), "error", err)

		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}
	}
}

// reconnectDelay computes base * 2^(attempt-1) capped at the configured
// maximum.
func (c *Client) reconnectDelay(attempt int) time.Duration {
	d := c.cfg.ReconnectBaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.cfg.ReconnectMaxDelay {
			return c.cfg.ReconnectMaxDelay
		}
	}
	if d > c.cfg.ReconnectMaxDelay {
		d = c.cfg.ReconnectMaxDelay
	}
	return d
}

// runWebSocket performs one full connection cycle: dial, auth handshake,
// event subscription, then the read loop until the connection drops.
// Returns nil when a previously healthy connection was lost, an error when
// the cycle failed before becoming healthy.
func (c *Client) runWebSocket() error {
	conn, err := c.dialWebSocket()
	if err != nil {
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer c.closeConn()

	if err := c.handshake(conn); err != nil {
		return err
	}
	if err := c.subscribeEvents(conn); err != nil {
		return err
	}

	c.wsOnline.Store(true)
	// The first successful connect of a session is not a reconnect.
	if !c.wsEverConnected.CompareAndSwap(false, true) {
		c.reconnectsTotal.Add(1)
	}
	c.reportConnect(nil)
	c.logInfo("websocket connected and subscribed")

	c.readLoop(conn)
	return nil
}

// dialWebSocket opens the socket with the same auth headers as REST calls.
func (c *Client) dialWebSocket() (*websocket.Conn, error) {
	header := http.Header{}
	c.setHeaders(header)

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, resp, err := dialer.Dial(c.websocketURL(), header)
	if err != nil {
		if resp != nil {
			return nil, &HTTPError{Status: resp.StatusCode, Method: "GET", Path: "/api/websocket"}
		}
		return nil, fmt.Errorf("hub: websocket dial: %w", err)
	}
	return conn, nil
}

// websocketURL derives the event socket URL from the configured base URL
// unless an explicit override is set.
func (c *Client) websocketURL() string {
	if c.cfg.WSURL != "" {
		return c.cfg.WSURL
	}
	u := strings.TrimRight(c.cfg.BaseURL, "/")
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + "/api/websocket"
}

// handshake performs the hub's auth exchange: auth_required -> auth ->
// auth_ok. The whole exchange must finish within HandshakeTimeout.
func (c *Client) handshake(conn *websocket.Conn) error {
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("hub: setting handshake deadline: %w", err)
	}
	defer conn.SetReadDeadline(time.Time{}) //nolint:errcheck // Reset, best effort

	frame, err := readFrame(conn)
	if err != nil {
		return handshakeError(err)
	}
	if frame.Type != frameAuthRequired {
		return fmt.Errorf("hub: unexpected handshake frame %q", frame.Type)
	}

	if err := conn.WriteJSON(wsAuth{Type: "auth", AccessToken: c.cfg.Token}); err != nil {
		return fmt.Errorf("hub: sending auth: %w", err)
	}

	frame, err = readFrame(conn)
	if err != nil {
		return handshakeError(err)
	}
	switch frame.Type {
	case frameAuthOK:
		return nil
	case frameAuthInvalid:
		return ErrAuthInvalid
	default:
		return fmt.Errorf("hub: unexpected auth reply %q", frame.Type)
	}
}

// subscribeEvents sends the single global state_changed subscription and
// waits for its result frame.
func (c *Client) subscribeEvents(conn *websocket.Conn) error {
	id := c.nextCommandID.Add(1)
	if err := conn.WriteJSON(wsSubscribe{
		ID:        id,
		Type:      "subscribe_events",
		EventType: eventTypeStateChanged,
	}); err != nil {
		return fmt.Errorf("hub: sending subscribe_events: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout)); err != nil {
		return fmt.Errorf("hub: setting subscribe deadline: %w", err)
	}
	defer conn.SetReadDeadline(time.Time{}) //nolint:errcheck // Reset, best effort

	// Events may start arriving before the subscription result; keep
	// processing them while waiting for the matching result frame.
	for {
		frame, err := readFrame(conn)
		if err != nil {
			return fmt.Errorf("hub: awaiting subscribe result: %w", err)
		}
		switch frame.Type {
		case frameResult:
			if frame.ID != id {
				continue
			}
			if frame.Success != nil && !*frame.Success {
				if frame.Error != nil {
					return fmt.Errorf("hub: subscribe_events rejected: %s", frame.Error.Message)
				}
				return fmt.Errorf("hub: subscribe_events rejected")
			}
			return nil
		case frameEvent:
			c.handleEvent(frame.Event)
		}
	}
}

// readLoop consumes frames until the connection drops. Event frames update
// the cache and fan out to subscribers; everything else is logged at debug
// and ignored.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		frame, err := readFrame(conn)
		if err != nil {
			if !c.isClosed() {
				c.logDebug("websocket read ended", "error", err)
			}
			return
		}

		switch frame.Type {
		case frameEvent:
			c.handleEvent(frame.Event)
		case frameResult:
			if frame.Success != nil && !*frame.Success && frame.Error != nil {
				c.logWarn("hub command failed", "id", frame.ID, "error", frame.Error.Message)
			}
		default:
			c.logDebug("ignoring websocket frame", "type", frame.Type)
		}
	}
}

// handleEvent applies one state_changed event: cache first, then fan-out,
// so no subscriber observes a state older than a concurrent GetEntity.
func (c *Client) handleEvent(event *wsEvent) {
	if event == nil || event.EventType != eventTypeStateChanged {
		return
	}
	data := event.Data
	if data.EntityID == "" || data.NewState == nil {
		return
	}

	c.eventsRx.Add(1)

	if data.NewState.EntityID == "" {
		data.NewState.EntityID = data.EntityID
	}

	oldState := data.OldState
	if oldState == nil {
		oldState, _ = c.cache.peek(data.EntityID)
	}
	c.cache.set(data.NewState)

	c.subs.dispatch(StateChange{
		EntityID: data.EntityID,
		OldState: oldState,
		NewState: data.NewState,
	})
}

// reportConnect forwards one connection-cycle outcome to the configured
// reporter, if any.
func (c *Client) reportConnect(err error) {
	if c.cfg.ConnectReporter != nil {
		c.cfg.ConnectReporter(err)
	}
}

// closeConn closes the current socket, if any. Safe to call repeatedly and
// from Close while the read loop is blocked.
func (c *Client) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		c.conn.Close() //nolint:errcheck // Best effort teardown
		c.conn = nil
	}
}

func readFrame(conn *websocket.Conn) (*wsFrame, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("hub: decoding frame: %w", err)
	}
	return &frame, nil
}

func handshakeError(err error) error {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrHandshakeTimeout, err)
	}
	return fmt.Errorf("hub: handshake read: %w", err)
}
