package audit

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the audit_logs schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}

	// Matches migrations/20260119_091500_create_audit_logs.up.sql
	schema := `
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			device_id TEXT,
			source TEXT NOT NULL,
			details TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX idx_audit_logs_created_at ON audit_logs(created_at);
		CREATE INDEX idx_audit_logs_device_id ON audit_logs(device_id);
		CREATE INDEX idx_audit_logs_action ON audit_logs(action);`

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// testEntry creates an audit entry for the given action and device.
func testEntry(action, deviceID string) *Entry {
	return &Entry{
		Action:   action,
		DeviceID: deviceID,
		Source:   "api",
	}
}

func TestSQLiteRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	t.Run("generates ID and timestamp", func(t *testing.T) {
		entry := testEntry(ActionDeviceCreated, "dev-01")

		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("Create: %v", err)
		}

		if entry.ID == "" {
			t.Error("ID not generated")
		}
		if !strings.HasPrefix(entry.ID, "aud-") {
			t.Errorf("expected aud- prefix, got %q", entry.ID)
		}
		if entry.CreatedAt.IsZero() {
			t.Error("CreatedAt not set")
		}
	})

	t.Run("preserves explicit ID and timestamp", func(t *testing.T) {
		created := time.Date(2026, 1, 19, 9, 30, 0, 0, time.UTC)
		entry := testEntry(ActionDeviceDeleted, "dev-02")
		entry.ID = "aud-explicit"
		entry.CreatedAt = created

		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("Create: %v", err)
		}

		result, err := repo.List(ctx, Filter{DeviceID: "dev-02"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(result.Entries) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(result.Entries))
		}
		got := result.Entries[0]
		if got.ID != "aud-explicit" {
			t.Errorf("ID = %q, want aud-explicit", got.ID)
		}
		if !got.CreatedAt.Equal(created) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
		}
	})

	t.Run("details round-trip", func(t *testing.T) {
		entry := testEntry(ActionDeviceCommand, "dev-03")
		entry.Details = map[string]any{
			"command": "light.turn_on",
			"ok":      true,
		}

		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("Create: %v", err)
		}

		result, err := repo.List(ctx, Filter{DeviceID: "dev-03"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(result.Entries) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(result.Entries))
		}
		details := result.Entries[0].Details
		if details == nil {
			t.Fatal("Details not persisted")
		}
		if details["command"] != "light.turn_on" {
			t.Errorf("details command = %v, want light.turn_on", details["command"])
		}
		if details["ok"] != true {
			t.Errorf("details ok = %v, want true", details["ok"])
		}
	})

	t.Run("empty device ID stored as NULL", func(t *testing.T) {
		entry := testEntry(ActionDiscoveryRun, "")

		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("Create: %v", err)
		}

		var deviceID any
		err := db.QueryRow("SELECT device_id FROM audit_logs WHERE id = ?", entry.ID).Scan(&deviceID)
		if err != nil {
			t.Fatalf("querying device_id: %v", err)
		}
		if deviceID != nil {
			t.Errorf("device_id = %v, want NULL", deviceID)
		}

		result, err := repo.List(ctx, Filter{Action: ActionDiscoveryRun})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(result.Entries) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(result.Entries))
		}
		if result.Entries[0].DeviceID != "" {
			t.Errorf("DeviceID = %q, want empty", result.Entries[0].DeviceID)
		}
	})
}

func TestSQLiteRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	// Seed entries with distinct timestamps so ordering is deterministic.
	base := time.Date(2026, 1, 19, 9, 0, 0, 0, time.UTC)
	seed := []struct {
		action   string
		deviceID string
		offset   time.Duration
	}{
		{ActionDeviceCreated, "dev-01", 0},
		{ActionDeviceCommand, "dev-01", 1 * time.Minute},
		{ActionDeviceCommand, "dev-02", 2 * time.Minute},
		{ActionDeviceUpdated, "dev-01", 3 * time.Minute},
		{ActionDiscoveryRun, "", 4 * time.Minute},
	}
	for _, s := range seed {
		entry := testEntry(s.action, s.deviceID)
		entry.CreatedAt = base.Add(s.offset)
		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("seeding entry: %v", err)
		}
	}

	t.Run("newest first", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if result.Total != 5 {
			t.Errorf("Total = %d, want 5", result.Total)
		}
		if len(result.Entries) != 5 {
			t.Fatalf("expected 5 entries, got %d", len(result.Entries))
		}
		if result.Entries[0].Action != ActionDiscoveryRun {
			t.Errorf("first entry action = %q, want %q", result.Entries[0].Action, ActionDiscoveryRun)
		}
		for i := 1; i < len(result.Entries); i++ {
			if result.Entries[i].CreatedAt.After(result.Entries[i-1].CreatedAt) {
				t.Errorf("entries not ordered newest first at index %d", i)
			}
		}
	})

	t.Run("filter by action", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{Action: ActionDeviceCommand})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if result.Total != 2 {
			t.Errorf("Total = %d, want 2", result.Total)
		}
		for _, entry := range result.Entries {
			if entry.Action != ActionDeviceCommand {
				t.Errorf("unexpected action %q", entry.Action)
			}
		}
	})

	t.Run("filter by device", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{DeviceID: "dev-01"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if result.Total != 3 {
			t.Errorf("Total = %d, want 3", result.Total)
		}
	})

	t.Run("combined filters", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{Action: ActionDeviceCommand, DeviceID: "dev-02"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if result.Total != 1 {
			t.Errorf("Total = %d, want 1", result.Total)
		}
		if len(result.Entries) == 1 && result.Entries[0].DeviceID != "dev-02" {
			t.Errorf("DeviceID = %q, want dev-02", result.Entries[0].DeviceID)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		page1, err := repo.List(ctx, Filter{Limit: 2, Offset: 0})
		if err != nil {
			t.Fatalf("List page 1: %v", err)
		}
		if len(page1.Entries) != 2 {
			t.Fatalf("page 1: expected 2 entries, got %d", len(page1.Entries))
		}
		if page1.Total != 5 {
			t.Errorf("page 1 Total = %d, want 5", page1.Total)
		}

		page2, err := repo.List(ctx, Filter{Limit: 2, Offset: 2})
		if err != nil {
			t.Fatalf("List page 2: %v", err)
		}
		if len(page2.Entries) != 2 {
			t.Fatalf("page 2: expected 2 entries, got %d", len(page2.Entries))
		}
		if page1.Entries[0].ID == page2.Entries[0].ID {
			t.Error("pages overlap")
		}

		page3, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
		if err != nil {
			t.Fatalf("List page 3: %v", err)
		}
		if len(page3.Entries) != 1 {
			t.Errorf("page 3: expected 1 entry, got %d", len(page3.Entries))
		}
	})

	t.Run("limit defaults and clamping", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if result.Limit != 50 {
			t.Errorf("default Limit = %d, want 50", result.Limit)
		}

		result, err = repo.List(ctx, Filter{Limit: 1000})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if result.Limit != 200 {
			t.Errorf("clamped Limit = %d, want 200", result.Limit)
		}

		result, err = repo.List(ctx, Filter{Offset: -5})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if result.Offset != 0 {
			t.Errorf("negative Offset = %d, want 0", result.Offset)
		}
	})

	t.Run("no matches returns empty slice", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{DeviceID: "dev-missing"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if result.Entries == nil {
			t.Error("Entries is nil, want empty slice")
		}
		if len(result.Entries) != 0 {
			t.Errorf("expected 0 entries, got %d", len(result.Entries))
		}
		if result.Total != 0 {
			t.Errorf("Total = %d, want 0", result.Total)
		}
	})
}

func TestSQLiteRepository_ListLegacyTimestamp(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	// Rows written by SQLite defaults use the second-precision UTC format.
	_, err := db.Exec(
		`INSERT INTO audit_logs (id, action, source, created_at) VALUES (?, ?, ?, ?)`,
		"aud-legacy", ActionDetectionRun, "system", "2026-01-19T09:00:00Z",
	)
	if err != nil {
		t.Fatalf("inserting legacy row: %v", err)
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(result.Entries))
	}
	want := time.Date(2026, 1, 19, 9, 0, 0, 0, time.UTC)
	if !result.Entries[0].CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", result.Entries[0].CreatedAt, want)
	}
}
