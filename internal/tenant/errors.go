package tenant

import "errors"

var (
	// ErrCredentialsNotFound is returned when a tenant has no stored hub
	// credentials.
	ErrCredentialsNotFound = errors.New("tenant: credentials not found")

	// ErrCredentialsDisabled is returned when a tenant's credentials exist
	// but are disabled.
	ErrCredentialsDisabled = errors.New("tenant: credentials disabled")
)
