// Package hub implements the client side of a home-automation hub's REST
// and WebSocket APIs.
//
// One Client holds one authenticated session per credential set: a
// rate-limited REST surface with a TTL entity cache, and a persistent
// WebSocket that performs the hub's auth handshake, subscribes to
// state_changed events, and feeds typed per-entity subscription channels.
//
// # Connection lifecycle
//
// Initialize probes the REST API and, on success, starts a background
// goroutine that maintains the WebSocket. When the WebSocket drops, the
// goroutine reconnects with exponential backoff up to a configured number
// of attempts; exhausting them ends event delivery but REST access remains
// usable. Close is idempotent and tears down both surfaces.
//
// State-change delivery is non-blocking: a subscriber that stops draining
// its channel loses events (counted in Stats) rather than stalling the
// read loop.
package hub
