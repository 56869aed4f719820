package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	if _, err := db.Exec(`
	CREATE TABLE device_audit_logs (
		id         TEXT PRIMARY KEY,
		tenant_id  TEXT NOT NULL,
		entity_id  TEXT NOT NULL,
		action     TEXT NOT NULL,
		old_state  TEXT,
		new_state  TEXT,
		error      TEXT,
		created_at TEXT NOT NULL
	);`); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return db
}

func TestRecord_GeneratesIDAndTimestamp(t *testing.T) {
	repo := NewSQLiteRepository(openTestDB(t))

	entry := &Entry{
		TenantID: "t1",
		EntityID: "light.grow_1",
		Action:   ActionControlSuccess,
		OldState: "off",
		NewState: "on",
	}
	if err := repo.Record(context.Background(), entry); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if entry.ID == "" {
		t.Error("ID not generated")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestList_FiltersByTenantAndAction(t *testing.T) {
	repo := NewSQLiteRepository(openTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	entries := []Entry{
		{TenantID: "t1", EntityID: "light.grow_1", Action: ActionControlSuccess, CreatedAt: base},
		{TenantID: "t1", EntityID: "light.grow_1", Action: ActionStateChange, CreatedAt: base.Add(time.Minute)},
		{TenantID: "t2", EntityID: "light.grow_9", Action: ActionControlSuccess, CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range entries {
		if err := repo.Record(ctx, &entries[i]); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}

	result, err := repo.List(ctx, Filter{TenantID: "t1", Action: ActionControlSuccess})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if result.Total != 1 {
		t.Errorf("Total = %d, want 1", result.Total)
	}
	if len(result.Entries) != 1 || result.Entries[0].EntityID != "light.grow_1" {
		t.Errorf("entries = %+v", result.Entries)
	}
}

func TestList_OrderedMostRecentFirst(t *testing.T) {
	repo := NewSQLiteRepository(openTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		entry := Entry{
			TenantID:  "t1",
			EntityID:  "light.grow_1",
			Action:    ActionStateChange,
			NewState:  string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Record(ctx, &entry); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}

	result, err := repo.List(ctx, Filter{TenantID: "t1"})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(result.Entries) != 3 {
		t.Fatalf("len = %d, want 3", len(result.Entries))
	}
	if result.Entries[0].NewState != "c" {
		t.Errorf("first entry NewState = %q, want most recent (c)", result.Entries[0].NewState)
	}
}

func TestList_Pagination(t *testing.T) {
	repo := NewSQLiteRepository(openTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := Entry{
			TenantID: "t1", EntityID: "light.grow_1", Action: ActionStateChange,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Record(ctx, &entry); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}

	result, err := repo.List(ctx, Filter{TenantID: "t1", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if result.Total != 5 {
		t.Errorf("Total = %d, want 5", result.Total)
	}
	if len(result.Entries) != 2 {
		t.Errorf("len = %d, want 2", len(result.Entries))
	}
}
