// Package tenant provides per-tenant hub credentials and device
// assignments.
//
// Credentials hold each tenant's hub URL and access token; assignments map
// hub entity ids to the tenant that owns them and drive the gateway's
// authorization checks. Both are SQLite-backed.
package tenant
