package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/verdantio/growgate-core/internal/audit"
	"github.com/verdantio/growgate-core/internal/hub"
	"github.com/verdantio/growgate-core/internal/resilience"
	"github.com/verdantio/growgate-core/internal/tenant"
)

// Resilience service names the gateway executes hub operations under.
const (
	ServiceHubREST      = "hub-rest"
	ServiceHubWebSocket = "hub-websocket"
)

// auditTimeout bounds audit writes made from event pump goroutines,
// which have no caller context.
const auditTimeout = 5 * time.Second

// Logger is the minimal logging interface the gateway needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Socket is one browser connection. Send must be safe for concurrent
// use; a Send error marks the socket dead and the gateway drops it.
type Socket interface {
	Send(data []byte) error
	Close() error
}

// EventStream delivers state changes for a single entity. The channel
// closes when the underlying subscription is torn down.
type EventStream interface {
	Events() <-chan hub.StateChange
	EntityID() string
}

// HubClient is the slice of the hub client the gateway depends on.
type HubClient interface {
	Initialize(ctx context.Context) error
	GetEntity(ctx context.Context, entityID string, useCache bool) (*hub.EntityState, error)
	CallService(ctx context.Context, domain, service, entityID string, data map[string]any) error
	Subscribe(entityID string) (EventStream, error)
	Unsubscribe(stream EventStream) error
	HealthCheck(ctx context.Context) hub.Health
	Stats() hub.Stats
	Close() error
}

// HubFactory builds a hub client for one tenant's credentials. The
// gateway calls it lazily, on the first browser connection.
type HubFactory func(ctx context.Context, creds *tenant.Credentials) (HubClient, error)

// StatePublisher receives every state change, typically for MQTT
// fan-out. Optional.
type StatePublisher interface {
	PublishState(tenantID, entityID, state string) error
}

// MetricWriter receives every state change as a time-series point.
// Optional.
type MetricWriter interface {
	WriteEntityMetric(tenantID, entityID, state string, attributes map[string]any)
}

// TenantState is a tenant's monitoring lifecycle state.
type TenantState string

const (
	TenantDisconnected TenantState = "DISCONNECTED"
	TenantMonitoring   TenantState = "MONITORING"
)

// Options wires the gateway's collaborators. Credentials, Assignments,
// Audit, Resilience, and HubFactory are required.
type Options struct {
	Credentials tenant.CredentialStore
	Assignments tenant.AssignmentStore
	Audit       audit.Repository
	Resilience  *resilience.Controller
	HubFactory  HubFactory
	Logger      Logger
	Publisher   StatePublisher
	Telemetry   MetricWriter
}

// Metrics is a snapshot of gateway counters.
type Metrics struct {
	ActiveTenants  int    `json:"active_tenants"`
	ActiveSockets  int    `json:"active_sockets"`
	StateUpdates   uint64 `json:"state_updates"`
	Controls       uint64 `json:"controls"`
	EmergencyStops uint64 `json:"emergency_stops"`
}

// tenantMonitor is one tenant's live session: a shared hub client,
// the entity subscriptions feeding it, and the browser sockets it
// fans out to.
type tenantMonitor struct {
	tenantID string
	client   HubClient
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu      sync.Mutex
	sockets map[Socket]struct{}
	streams []EventStream
}

func (m *tenantMonitor) addSocket(s Socket) {
	m.mu.Lock()
	m.sockets[s] = struct{}{}
	m.mu.Unlock()
}

// removeSocket reports whether the socket was present and whether the
// monitor is now empty.
func (m *tenantMonitor) removeSocket(s Socket) (found, empty bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sockets[s]; !ok {
		return false, len(m.sockets) == 0
	}
	delete(m.sockets, s)
	return true, len(m.sockets) == 0
}

func (m *tenantMonitor) snapshotSockets() []Socket {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Socket, 0, len(m.sockets))
	for s := range m.sockets {
		out = append(out, s)
	}
	return out
}

// Gateway mediates between browser sockets and per-tenant hub
// sessions. Tenants are DISCONNECTED until their first browser socket
// arrives, MONITORING while at least one socket is attached, and torn
// down back to DISCONNECTED when the last socket leaves.
type Gateway struct {
	opts   Options
	logger Logger

	mu       sync.Mutex
	monitors map[string]*tenantMonitor
	closed   bool

	stateUpdates atomic.Uint64
	controls     atomic.Uint64
	stops        atomic.Uint64
}

// New creates a Gateway. It performs no I/O.
func New(opts Options) (*Gateway, error) {
	if opts.Credentials == nil {
		return nil, errors.New("gateway: credential store is required")
	}
	if opts.Assignments == nil {
		return nil, errors.New("gateway: assignment store is required")
	}
	if opts.Audit == nil {
		return nil, errors.New("gateway: audit repository is required")
	}
	if opts.Resilience == nil {
		return nil, errors.New("gateway: resilience controller is required")
	}
	if opts.HubFactory == nil {
		return nil, errors.New("gateway: hub factory is required")
	}
	return &Gateway{
		opts:     opts,
		logger:   opts.Logger,
		monitors: make(map[string]*tenantMonitor),
	}, nil
}

// TenantState reports the lifecycle state of a tenant.
func (g *Gateway) TenantState(tenantID string) TenantState {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.monitors[tenantID]; ok {
		return TenantMonitoring
	}
	return TenantDisconnected
}

// ConnectBrowserSocket attaches a browser socket to a tenant, starting
// the tenant's hub session first if this is the tenant's first socket.
// On success the socket immediately receives a connection_status
// message.
func (g *Gateway) ConnectBrowserSocket(ctx context.Context, tenantID string, sock Socket) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	if mon, ok := g.monitors[tenantID]; ok {
		mon.addSocket(sock)
		g.mu.Unlock()
		g.sendConnectionStatus(mon, sock)
		return nil
	}
	g.mu.Unlock()

	// Build the session outside the gateway lock; hub initialization
	// can take the full request timeout.
	mon, err := g.startMonitor(ctx, tenantID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.teardown(mon)
		return ErrClosed
	}
	if existing, ok := g.monitors[tenantID]; ok {
		// Lost a race with another first connection for this tenant.
		existing.addSocket(sock)
		g.mu.Unlock()
		g.teardown(mon)
		g.sendConnectionStatus(existing, sock)
		return nil
	}
	mon.addSocket(sock)
	g.monitors[tenantID] = mon
	g.mu.Unlock()

	g.logInfo("tenant monitoring started", "tenant_id", tenantID, "entities", len(mon.streams))
	g.sendConnectionStatus(mon, sock)
	return nil
}

// DisconnectBrowserSocket detaches a socket. When the tenant's last
// socket leaves, the hub session is torn down and the tenant returns
// to DISCONNECTED.
func (g *Gateway) DisconnectBrowserSocket(tenantID string, sock Socket) error {
	g.mu.Lock()
	mon, ok := g.monitors[tenantID]
	if !ok {
		g.mu.Unlock()
		return ErrTenantNotMonitored
	}
	found, empty := mon.removeSocket(sock)
	if empty {
		delete(g.monitors, tenantID)
	}
	g.mu.Unlock()

	if !found {
		return ErrSocketClosed
	}
	if empty {
		g.teardown(mon)
		g.logInfo("tenant monitoring stopped", "tenant_id", tenantID)
	}
	return nil
}

// ControlDevice executes one device action for a tenant. Authorization
// is checked before any hub traffic; a denied request never reaches the
// hub. The outcome is audited and broadcast to the tenant's sockets as
// a device_control_response, and returned to the caller.
func (g *Gateway) ControlDevice(ctx context.Context, tenantID, entityID string, action DeviceAction) ControlResult {
	g.controls.Add(1)
	result := ControlResult{EntityID: entityID, Action: string(action.Type)}

	g.mu.Lock()
	mon, ok := g.monitors[tenantID]
	g.mu.Unlock()
	if !ok {
		result.Error = ErrTenantNotMonitored.Error()
		return result
	}

	if err := action.Validate(); err != nil {
		result.Error = err.Error()
		g.finishControl(ctx, mon, tenantID, result, "", "")
		return result
	}

	allowed, err := g.opts.Assignments.HasAccess(ctx, tenantID, entityID)
	if err != nil {
		result.Error = fmt.Sprintf("authorization check failed: %v", err)
		g.finishControl(ctx, mon, tenantID, result, "", "")
		return result
	}
	if !allowed {
		result.Error = "not authorized to control this device"
		g.logWarn("device control denied", "tenant_id", tenantID, "entity_id", entityID, "action", action.Type)
		g.finishControl(ctx, mon, tenantID, result, "", "")
		return result
	}

	oldState := ""
	if prev, err := mon.client.GetEntity(ctx, entityID, true); err == nil && prev != nil {
		oldState = prev.State
	}

	domain, service, data := action.serviceCall(entityID)
	err = g.opts.Resilience.Execute(ctx, ServiceHubREST, func(ctx context.Context) error {
		return mon.client.CallService(ctx, domain, service, entityID, data)
	})
	if err != nil {
		result.Error = err.Error()
		g.finishControl(ctx, mon, tenantID, result, oldState, "")
		return result
	}

	newState := ""
	if cur, err := mon.client.GetEntity(ctx, entityID, false); err == nil && cur != nil {
		newState = cur.State
	}
	result.Success = true
	g.finishControl(ctx, mon, tenantID, result, oldState, newState)
	return result
}

// finishControl audits a control outcome and broadcasts the response.
func (g *Gateway) finishControl(ctx context.Context, mon *tenantMonitor, tenantID string, result ControlResult, oldState, newState string) {
	action := audit.ActionControlFailure
	if result.Success {
		action = audit.ActionControlSuccess
	}
	entry := &audit.Entry{
		TenantID: tenantID,
		EntityID: result.EntityID,
		Action:   action,
		OldState: oldState,
		NewState: newState,
		Error:    result.Error,
	}
	if err := g.opts.Audit.Record(ctx, entry); err != nil {
		g.logWarn("audit write failed", "tenant_id", tenantID, "entity_id", result.EntityID, "error", err)
	}
	g.broadcast(mon, MsgDeviceControlResponse, result)
}

// EmergencyStop turns off every assigned device matching the location
// and category filters, sequentially, tolerating per-device failures.
// Each device is audited individually and a single summary is
// broadcast when the sweep completes.
func (g *Gateway) EmergencyStop(ctx context.Context, tenantID string, locations, categories []string) (StopSummary, error) {
	g.stops.Add(1)
	var summary StopSummary

	g.mu.Lock()
	mon, ok := g.monitors[tenantID]
	g.mu.Unlock()
	if !ok {
		return summary, ErrTenantNotMonitored
	}

	assignments, err := g.opts.Assignments.List(ctx, tenantID, tenant.AssignmentFilter{
		Locations:  locations,
		Categories: categories,
	})
	if err != nil {
		return summary, fmt.Errorf("list assignments: %w", err)
	}

	g.logWarn("emergency stop initiated", "tenant_id", tenantID, "devices", len(assignments))
	summary.Total = len(assignments)
	for _, a := range assignments {
		result := ControlResult{EntityID: a.EntityID, Action: string(ActionTurnOff)}
		domain, service, data := DeviceAction{Type: ActionTurnOff}.serviceCall(a.EntityID)
		err := g.opts.Resilience.Execute(ctx, ServiceHubREST, func(ctx context.Context) error {
			return mon.client.CallService(ctx, domain, service, a.EntityID, data)
		})
		if err != nil {
			result.Error = err.Error()
			summary.Failed++
			g.logError("emergency stop device failed", "tenant_id", tenantID, "entity_id", a.EntityID, "error", err)
		} else {
			result.Success = true
			summary.Stopped++
		}
		entry := &audit.Entry{
			TenantID: tenantID,
			EntityID: a.EntityID,
			Action:   audit.ActionEmergencyStop,
			NewState: "off",
			Error:    result.Error,
		}
		if auditErr := g.opts.Audit.Record(ctx, entry); auditErr != nil {
			g.logWarn("audit write failed", "tenant_id", tenantID, "entity_id", a.EntityID, "error", auditErr)
		}
		summary.Results = append(summary.Results, result)
	}

	g.broadcast(mon, MsgEmergencyStopComplete, summary)
	return summary, nil
}

// Snapshot returns current gateway counters.
func (g *Gateway) Snapshot() Metrics {
	g.mu.Lock()
	tenants := len(g.monitors)
	sockets := 0
	for _, mon := range g.monitors {
		mon.mu.Lock()
		sockets += len(mon.sockets)
		mon.mu.Unlock()
	}
	g.mu.Unlock()
	return Metrics{
		ActiveTenants:  tenants,
		ActiveSockets:  sockets,
		StateUpdates:   g.stateUpdates.Load(),
		Controls:       g.controls.Load(),
		EmergencyStops: g.stops.Load(),
	}
}

// RecoverHubSessions rebuilds the hub session of every tenant whose
// WebSocket is down, keeping the browser sockets attached. Registered
// as the hub-websocket recovery callback: it runs when the health
// monitor sees the service persistently failing. Healthy tenants are
// left alone.
func (g *Gateway) RecoverHubSessions(ctx context.Context) error {
	g.mu.Lock()
	monitors := make([]*tenantMonitor, 0, len(g.monitors))
	for _, mon := range g.monitors {
		monitors = append(monitors, mon)
	}
	g.mu.Unlock()

	var lastErr error
	for _, mon := range monitors {
		if mon.client.HealthCheck(ctx).WebSocketOk {
			continue
		}
		g.logWarn("rebuilding hub session", "tenant_id", mon.tenantID)
		if err := g.restartMonitor(ctx, mon); err != nil {
			g.logError("hub session rebuild failed", "tenant_id", mon.tenantID, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// restartMonitor replaces a monitor with a freshly built session,
// migrating its sockets. The old session is torn down after its sockets
// have moved, so teardown closes nothing the browsers still use.
func (g *Gateway) restartMonitor(ctx context.Context, old *tenantMonitor) error {
	fresh, err := g.startMonitor(ctx, old.tenantID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if g.closed || g.monitors[old.tenantID] != old {
		g.mu.Unlock()
		g.teardown(fresh)
		return nil
	}
	old.mu.Lock()
	moved := make([]Socket, 0, len(old.sockets))
	for s := range old.sockets {
		moved = append(moved, s)
	}
	old.sockets = make(map[Socket]struct{})
	old.mu.Unlock()
	for _, s := range moved {
		fresh.addSocket(s)
	}
	g.monitors[old.tenantID] = fresh
	g.mu.Unlock()

	g.teardown(old)
	g.logInfo("hub session rebuilt", "tenant_id", old.tenantID, "sockets", len(moved))
	return nil
}

// Sweep tears down any session left with no attached sockets. The
// last-disconnect path already does this; the sweep catches sessions
// orphaned by a socket that died without a clean disconnect. Returns
// the number of sessions removed.
func (g *Gateway) Sweep() int {
	g.mu.Lock()
	var orphans []*tenantMonitor
	for id, mon := range g.monitors {
		mon.mu.Lock()
		empty := len(mon.sockets) == 0
		mon.mu.Unlock()
		if empty {
			delete(g.monitors, id)
			orphans = append(orphans, mon)
		}
	}
	g.mu.Unlock()

	for _, mon := range orphans {
		g.teardown(mon)
		g.logInfo("tenant monitoring stopped", "tenant_id", mon.tenantID, "reason", "sweep")
	}
	return len(orphans)
}

// StartSweep runs Sweep every interval until ctx is cancelled.
func (g *Gateway) StartSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.Sweep()
			}
		}
	}()
}

// Stop tears down every tenant session. Safe to call more than once.
func (g *Gateway) Stop() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	monitors := make([]*tenantMonitor, 0, len(g.monitors))
	for _, mon := range g.monitors {
		monitors = append(monitors, mon)
	}
	g.monitors = make(map[string]*tenantMonitor)
	g.mu.Unlock()

	for _, mon := range monitors {
		g.teardown(mon)
	}
	g.logInfo("gateway stopped", "tenants", len(monitors))
}

// startMonitor builds a tenant's hub session: credentials, client,
// initialization, and one subscription per assigned entity.
func (g *Gateway) startMonitor(ctx context.Context, tenantID string) (*tenantMonitor, error) {
	creds, err := g.opts.Credentials.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, err)
	}

	client, err := g.opts.HubFactory(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: create hub client: %w", tenantID, err)
	}

	err = g.opts.Resilience.Execute(ctx, ServiceHubREST, func(ctx context.Context) error {
		return client.Initialize(ctx)
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("tenant %s: initialize hub: %w", tenantID, err)
	}

	assignments, err := g.opts.Assignments.List(ctx, tenantID, tenant.AssignmentFilter{})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("tenant %s: list assignments: %w", tenantID, err)
	}

	monCtx, cancel := context.WithCancel(context.Background())
	mon := &tenantMonitor{
		tenantID: tenantID,
		client:   client,
		cancel:   cancel,
		sockets:  make(map[Socket]struct{}),
	}
	for _, a := range assignments {
		stream, err := client.Subscribe(a.EntityID)
		if err != nil {
			g.logWarn("subscribe failed", "tenant_id", tenantID, "entity_id", a.EntityID, "error", err)
			continue
		}
		mon.streams = append(mon.streams, stream)
		mon.wg.Add(1)
		go g.pumpEvents(monCtx, mon, stream)
	}
	return mon, nil
}

// teardown closes a monitor's hub session and any sockets still
// attached. Must not be called from a pump goroutine.
func (g *Gateway) teardown(mon *tenantMonitor) {
	mon.cancel()
	for _, stream := range mon.streams {
		if err := mon.client.Unsubscribe(stream); err != nil && !errors.Is(err, hub.ErrClosed) {
			g.logDebug("unsubscribe failed", "tenant_id", mon.tenantID, "entity_id", stream.EntityID(), "error", err)
		}
	}
	if err := mon.client.Close(); err != nil {
		g.logWarn("hub client close failed", "tenant_id", mon.tenantID, "error", err)
	}
	mon.wg.Wait()
	for _, s := range mon.snapshotSockets() {
		s.Close()
	}
}

// pumpEvents drains one entity's event stream into the tenant's
// sockets until the stream closes or the monitor is torn down.
func (g *Gateway) pumpEvents(ctx context.Context, mon *tenantMonitor, stream EventStream) {
	defer mon.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-stream.Events():
			if !ok {
				return
			}
			g.handleStateChange(mon, change)
		}
	}
}

// handleStateChange audits, broadcasts, and forwards one state change.
// Audit and forwarding failures are logged but never interrupt
// delivery.
func (g *Gateway) handleStateChange(mon *tenantMonitor, change hub.StateChange) {
	g.stateUpdates.Add(1)

	update := StateUpdate{EntityID: change.EntityID}
	if change.OldState != nil {
		update.OldState = change.OldState.State
	}
	if change.NewState != nil {
		update.NewState = change.NewState.State
		update.Attributes = change.NewState.Attributes
	}

	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	entry := &audit.Entry{
		TenantID: mon.tenantID,
		EntityID: change.EntityID,
		Action:   audit.ActionStateChange,
		OldState: update.OldState,
		NewState: update.NewState,
	}
	if err := g.opts.Audit.Record(ctx, entry); err != nil {
		g.logWarn("audit write failed", "tenant_id", mon.tenantID, "entity_id", change.EntityID, "error", err)
	}
	cancel()

	g.broadcast(mon, MsgDeviceStateUpdate, update)

	if g.opts.Publisher != nil {
		if err := g.opts.Publisher.PublishState(mon.tenantID, change.EntityID, update.NewState); err != nil {
			g.logWarn("state publish failed", "tenant_id", mon.tenantID, "entity_id", change.EntityID, "error", err)
		}
	}
	if g.opts.Telemetry != nil {
		g.opts.Telemetry.WriteEntityMetric(mon.tenantID, change.EntityID, update.NewState, update.Attributes)
	}
}

// broadcast sends one message to every socket attached to the monitor.
// A socket whose Send fails is closed and dropped; the remaining
// sockets still receive the message. If the drop empties the monitor,
// teardown runs asynchronously since broadcast may be called from a
// pump goroutine.
func (g *Gateway) broadcast(mon *tenantMonitor, msgType string, data any) {
	payload := marshalEnvelope(msgType, data)
	if payload == nil {
		return
	}
	for _, s := range mon.snapshotSockets() {
		if err := s.Send(payload); err == nil {
			continue
		}
		g.logWarn("socket send failed, dropping", "tenant_id", mon.tenantID, "type", msgType)
		s.Close()

		g.mu.Lock()
		_, empty := mon.removeSocket(s)
		if empty && g.monitors[mon.tenantID] == mon {
			delete(g.monitors, mon.tenantID)
			g.mu.Unlock()
			go func() {
				g.teardown(mon)
				g.logInfo("tenant monitoring stopped", "tenant_id", mon.tenantID)
			}()
			continue
		}
		g.mu.Unlock()
	}
}

// sendConnectionStatus greets a newly attached socket.
func (g *Gateway) sendConnectionStatus(mon *tenantMonitor, sock Socket) {
	payload := marshalEnvelope(MsgConnectionStatus, ConnectionStatus{
		TenantID:   mon.tenantID,
		Monitoring: true,
		Entities:   len(mon.streams),
	})
	if payload == nil {
		return
	}
	if err := sock.Send(payload); err != nil {
		g.logDebug("connection status send failed", "tenant_id", mon.tenantID)
	}
}

func (g *Gateway) logDebug(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Debug(msg, args...)
	}
}

func (g *Gateway) logInfo(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Info(msg, args...)
	}
}

func (g *Gateway) logWarn(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Warn(msg, args...)
	}
}

func (g *Gateway) logError(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Error(msg, args...)
	}
}
