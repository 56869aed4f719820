// Package api provides the HTTP server for Growgate Core.
//
// The surface is intentionally small: a health endpoint, a metrics
// snapshot, and the tenant-facing WebSocket that attaches browser
// connections to the device gateway. Tenants authenticate with a signed
// JWT whose subject is the tenant id.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
