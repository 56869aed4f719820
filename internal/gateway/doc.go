// Package gateway bridges hub entity events to per-tenant browser
// WebSocket fan-out and executes audited device control commands.
//
// Each tenant moves between two states: DISCONNECTED (no browser sockets,
// no hub session) and MONITORING (at least one socket; a lazily created
// hub client subscribed to the tenant's assigned entities). All of a
// tenant's sockets share one hub client; the last disconnect tears the
// session down. Tenants never share state with each other.
//
// Control commands run under the resilience controller and always produce
// a structured result plus an audit record; hub failures never propagate
// to browsers as raw errors.
package gateway
