package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/verdantio/growgate-core/internal/infrastructure/config"
)

// commandTimeout bounds device commands issued from a browser socket.
const commandTimeout = 30 * time.Second

// WSSocket is a browser WebSocket connection implementing Socket.
// Outbound messages flow through a buffered send channel drained by
// writePump; a full buffer or closed socket fails the Send and the
// gateway drops the socket.
type WSSocket struct {
	gw       *Gateway
	conn     *websocket.Conn
	cfg      config.WebSocketConfig
	tenantID string
	logger   Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewWSSocket wraps an upgraded connection. The caller attaches it via
// ConnectBrowserSocket and then calls Run.
func NewWSSocket(gw *Gateway, conn *websocket.Conn, cfg config.WebSocketConfig, tenantID string, logger Logger) *WSSocket {
	bufSize := cfg.SendBufferSize
	if bufSize <= 0 {
		bufSize = 256
	}
	return &WSSocket{
		gw:       gw,
		conn:     conn,
		cfg:      cfg,
		tenantID: tenantID,
		logger:   logger,
		send:     make(chan []byte, bufSize),
		done:     make(chan struct{}),
	}
}

// Send queues one message for delivery. It never blocks: a closed
// socket or full buffer returns ErrSocketClosed so the gateway treats
// the socket as dead.
func (s *WSSocket) Send(data []byte) error {
	select {
	case <-s.done:
		return ErrSocketClosed
	default:
	}
	select {
	case s.send <- data:
		return nil
	default:
		return ErrSocketClosed
	}
}

// Close shuts the socket down. Idempotent.
func (s *WSSocket) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
	return nil
}

// Run drives the socket's pumps and blocks until the connection drops.
// It detaches the socket from the gateway on the way out.
func (s *WSSocket) Run() {
	go s.writePump()
	s.readPump()

	//nolint:errcheck // Socket may already be detached by a failed broadcast
	s.gw.DisconnectBrowserSocket(s.tenantID, s)
	s.Close()
}

// readPump reads browser messages until the connection drops. Any
// client message resets the read deadline, keeping the connection
// alive even if the browser never answers protocol-level pings.
func (s *WSSocket) readPump() {
	if s.cfg.MaxMessageSize > 0 {
		s.conn.SetReadLimit(int64(s.cfg.MaxMessageSize))
	}
	wait := s.readWait()
	//nolint:errcheck // Best-effort deadline on connection setup
	s.conn.SetReadDeadline(time.Now().Add(wait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logWarn("browser socket read error", "tenant_id", s.tenantID, "error", err)
			} else {
				s.logDebug("browser socket closed", "tenant_id", s.tenantID)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		s.conn.SetReadDeadline(time.Now().Add(wait))
		s.handleMessage(message)
	}
}

// writePump drains the send channel onto the wire and keeps the
// connection alive with protocol pings.
func (s *WSSocket) writePump() {
	ticker := time.NewTicker(s.pingInterval())
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	writeWait := s.pongWait()
	for {
		select {
		case <-s.done:
			//nolint:errcheck // Best-effort close message
			s.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case message := <-s.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one inbound browser message.
func (s *WSSocket) handleMessage(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logDebug("invalid browser message", "tenant_id", s.tenantID, "error", err)
		return
	}

	switch env.Type {
	case MsgPing:
		if payload := marshalEnvelope(MsgPong, nil); payload != nil {
			//nolint:errcheck // Pong is best-effort
			s.Send(payload)
		}
	case MsgControlDevice:
		var req controlRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			s.logDebug("invalid control payload", "tenant_id", s.tenantID, "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		s.gw.ControlDevice(ctx, s.tenantID, req.EntityID, req.Action)
		cancel()
	case MsgEmergencyStop:
		var req stopRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			s.logDebug("invalid emergency stop payload", "tenant_id", s.tenantID, "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		if _, err := s.gw.EmergencyStop(ctx, s.tenantID, req.Locations, req.Categories); err != nil {
			s.logWarn("emergency stop failed", "tenant_id", s.tenantID, "error", err)
		}
		cancel()
	default:
		s.logDebug("unknown browser message type", "tenant_id", s.tenantID, "type", env.Type)
	}
}

func (s *WSSocket) readWait() time.Duration {
	return s.pingInterval() + s.pongWait()
}

func (s *WSSocket) pingInterval() time.Duration {
	if s.cfg.PingInterval > 0 {
		return time.Duration(s.cfg.PingInterval) * time.Second
	}
	return 30 * time.Second
}

func (s *WSSocket) pongWait() time.Duration {
	if s.cfg.PongTimeout > 0 {
		return time.Duration(s.cfg.PongTimeout) * time.Second
	}
	return 10 * time.Second
}

func (s *WSSocket) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *WSSocket) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
