package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Credentials is one tenant's hub connection settings. WSURL optionally
// overrides the WebSocket URL derived from HubURL; the proxy pair is
// sent as access-control headers when the hub sits behind a reverse
// proxy. Secrets never serialize.
type Credentials struct {
	TenantID          string    `json:"tenant_id"`
	HubURL            string    `json:"hub_url"`
	AccessToken       string    `json:"-"`
	WSURL             string    `json:"ws_url,omitempty"`
	ProxyClientID     string    `json:"proxy_client_id,omitempty"`
	ProxyClientSecret string    `json:"-"`
	Enabled           bool      `json:"enabled"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// CredentialStore resolves hub credentials per tenant.
type CredentialStore interface {
	Get(ctx context.Context, tenantID string) (*Credentials, error)
	Upsert(ctx context.Context, creds *Credentials) error
}

// SQLiteCredentialStore reads credentials from the tenant_credentials
// table.
type SQLiteCredentialStore struct {
	db *sql.DB
}

// NewSQLiteCredentialStore creates a credential store.
func NewSQLiteCredentialStore(db *sql.DB) *SQLiteCredentialStore {
	return &SQLiteCredentialStore{db: db}
}

// Get returns the tenant's credentials. ErrCredentialsNotFound if absent,
// ErrCredentialsDisabled if present but disabled.
func (s *SQLiteCredentialStore) Get(ctx context.Context, tenantID string) (*Credentials, error) {
	var c Credentials
	var enabled int
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, hub_url, access_token, ws_url, proxy_client_id, proxy_client_secret,
		        enabled, created_at, updated_at
		 FROM tenant_credentials WHERE tenant_id = ?`, tenantID,
	).Scan(&c.TenantID, &c.HubURL, &c.AccessToken, &c.WSURL, &c.ProxyClientID, &c.ProxyClientSecret,
		&enabled, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}

	c.Enabled = enabled != 0
	if !c.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrCredentialsDisabled, tenantID)
	}

	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &c, nil
}

// Upsert inserts or replaces a tenant's credentials.
func (s *SQLiteCredentialStore) Upsert(ctx context.Context, creds *Credentials) error {
	now := time.Now().UTC().Format(time.RFC3339)
	enabled := 0
	if creds.Enabled {
		enabled = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_credentials (tenant_id, hub_url, access_token, ws_url,
		   proxy_client_id, proxy_client_secret, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id) DO UPDATE SET
		   hub_url = excluded.hub_url,
		   access_token = excluded.access_token,
		   ws_url = excluded.ws_url,
		   proxy_client_id = excluded.proxy_client_id,
		   proxy_client_secret = excluded.proxy_client_secret,
		   enabled = excluded.enabled,
		   updated_at = excluded.updated_at`,
		creds.TenantID, creds.HubURL, creds.AccessToken, creds.WSURL,
		creds.ProxyClientID, creds.ProxyClientSecret, enabled, now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting credentials: %w", err)
	}
	return nil
}
