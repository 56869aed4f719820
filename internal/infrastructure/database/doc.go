// Package database provides the SQLite store backing Growgate Core.
//
// It holds the handle shared by the tenant credential, device
// assignment, and audit stores, and runs the embedded schema
// migrations at startup:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// The connection always enforces foreign keys, and WAL mode keeps
// reads flowing while the gateway writes audit entries. Hub access
// tokens are stored in tenant_credentials; the file is created with
// 0600 permissions so they stay readable only by the service user.
//
// Migrations are additive: new columns arrive NULLABLE or with
// defaults so an older binary can still read a newer schema.
package database
