package device

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mitrajunior/esp32-controller-app/internal/connectivity"
)

// setupTestDB creates an in-memory SQLite database with the devices table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// Create devices table matching migrations/20260119_090000_create_devices.up.sql
	schema := `
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			host TEXT NOT NULL,
			port INTEGER NOT NULL,
			protocol TEXT NOT NULL CHECK (protocol IN ('http', 'native')),
			password TEXT,
			type TEXT NOT NULL DEFAULT 'other' CHECK (type IN ('light', 'switch', 'sensor', 'other')),
			reachable INTEGER NOT NULL DEFAULT 0,
			last_seen TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (host, port)
		);
		CREATE INDEX idx_devices_host ON devices (host);
		CREATE INDEX idx_devices_protocol ON devices (protocol);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// testDevice creates a device for testing.
func testDevice(id, name, host string, port int) *Device {
	return &Device{
		ID:       id,
		Name:     name,
		Host:     host,
		Port:     port,
		Protocol: connectivity.ProtocolForPort(port),
		Type:     TypeLight,
	}
}

func TestSQLiteRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	t.Run("creates device successfully", func(t *testing.T) {
		device := testDevice("dev-001", "Living Room Lamp", "192.168.1.23", 6053)

		err := repo.Create(ctx, device)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		// Verify it was created
		got, err := repo.GetByID(ctx, "dev-001")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Name != "Living Room Lamp" {
			t.Errorf("Name = %q, want %q", got.Name, "Living Room Lamp")
		}
		if got.Protocol != connectivity.ProtocolNative {
			t.Errorf("Protocol = %q, want %q", got.Protocol, connectivity.ProtocolNative)
		}
		if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
			t.Error("timestamps were not set")
		}
	})

	t.Run("stores and retrieves the password", func(t *testing.T) {
		device := testDevice("dev-002", "Secured Node", "192.168.1.24", 6053)
		device.Password = "hunter2"

		if err := repo.Create(ctx, device); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "dev-002")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Password != "hunter2" {
			t.Errorf("Password = %q, want %q", got.Password, "hunter2")
		}
	})

	t.Run("rejects duplicate address", func(t *testing.T) {
		first := testDevice("dev-003", "First", "192.168.1.25", 6053)
		if err := repo.Create(ctx, first); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		dup := testDevice("dev-004", "Second", "192.168.1.25", 6053)
		err := repo.Create(ctx, dup)
		if !errors.Is(err, ErrDeviceExists) {
			t.Errorf("Create() error = %v, want ErrDeviceExists", err)
		}
	})

	t.Run("same host on a different port is allowed", func(t *testing.T) {
		web := testDevice("dev-005", "Same Host Web", "192.168.1.25", 80)
		if err := repo.Create(ctx, web); err != nil {
			t.Errorf("Create() error = %v, want nil for a distinct port", err)
		}
	})
}

func TestSQLiteRepository_GetByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	t.Run("returns ErrDeviceNotFound for missing device", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "missing")
		if !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
		}
	})

	t.Run("round-trips nullable fields", func(t *testing.T) {
		// No password, never seen
		device := testDevice("dev-null", "Bare Minimum", "192.168.1.26", 6053)
		if err := repo.Create(ctx, device); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "dev-null")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Password != "" {
			t.Errorf("Password = %q, want empty", got.Password)
		}
		if got.LastSeen != nil {
			t.Errorf("LastSeen = %v, want nil", got.LastSeen)
		}
		if got.Reachable {
			t.Error("Reachable = true, want false")
		}
	})
}

func TestSQLiteRepository_GetByAddress(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	device := testDevice("dev-addr", "Addressed", "192.168.1.30", 6053)
	if err := repo.Create(ctx, device); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("finds by host and port", func(t *testing.T) {
		got, err := repo.GetByAddress(ctx, "192.168.1.30", 6053)
		if err != nil {
			t.Fatalf("GetByAddress() error = %v", err)
		}
		if got.ID != "dev-addr" {
			t.Errorf("ID = %q, want %q", got.ID, "dev-addr")
		}
	})

	t.Run("port mismatch is not found", func(t *testing.T) {
		_, err := repo.GetByAddress(ctx, "192.168.1.30", 80)
		if !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("GetByAddress() error = %v, want ErrDeviceNotFound", err)
		}
	})
}

func TestSQLiteRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	t.Run("empty database returns no devices", func(t *testing.T) {
		devices, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(devices) != 0 {
			t.Errorf("got %d devices, want 0", len(devices))
		}
	})

	t.Run("returns devices ordered by name", func(t *testing.T) {
		for i, name := range []string{"Charlie", "Alpha", "Bravo"} {
			device := testDevice(name, name, "192.168.1.40", 6050+i)
			if err := repo.Create(ctx, device); err != nil {
				t.Fatalf("Create(%s) error = %v", name, err)
			}
		}

		devices, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(devices) != 3 {
			t.Fatalf("got %d devices, want 3", len(devices))
		}
		for i, want := range []string{"Alpha", "Bravo", "Charlie"} {
			if devices[i].Name != want {
				t.Errorf("device %d = %q, want %q", i, devices[i].Name, want)
			}
		}
	})
}

func TestSQLiteRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	device := testDevice("dev-up", "Before", "192.168.1.50", 6053)
	if err := repo.Create(ctx, device); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("updates fields", func(t *testing.T) {
		device.Name = "After"
		device.Port = 80
		device.Protocol = connectivity.ProtocolForPort(device.Port)

		if err := repo.Update(ctx, device); err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "dev-up")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Name != "After" || got.Port != 80 || got.Protocol != connectivity.ProtocolHTTP {
			t.Errorf("got %+v, want name/port/protocol updated", got)
		}
	})

	t.Run("returns ErrDeviceNotFound for missing device", func(t *testing.T) {
		ghost := testDevice("ghost", "Ghost", "192.168.1.51", 6053)
		err := repo.Update(ctx, ghost)
		if !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("Update() error = %v, want ErrDeviceNotFound", err)
		}
	})
}

func TestSQLiteRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	device := testDevice("dev-del", "Doomed", "192.168.1.60", 6053)
	if err := repo.Create(ctx, device); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("deletes the device", func(t *testing.T) {
		if err := repo.Delete(ctx, "dev-del"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		_, err := repo.GetByID(ctx, "dev-del")
		if !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("GetByID() after delete error = %v, want ErrDeviceNotFound", err)
		}
	})

	t.Run("returns ErrDeviceNotFound for missing device", func(t *testing.T) {
		err := repo.Delete(ctx, "dev-del")
		if !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("Delete() error = %v, want ErrDeviceNotFound", err)
		}
	})
}

func TestSQLiteRepository_UpdateReachability(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	device := testDevice("dev-reach", "Probed", "192.168.1.70", 6053)
	if err := repo.Create(ctx, device); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("reachable records last_seen", func(t *testing.T) {
		seenAt := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
		if err := repo.UpdateReachability(ctx, "dev-reach", true, seenAt); err != nil {
			t.Fatalf("UpdateReachability() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "dev-reach")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if !got.Reachable {
			t.Error("Reachable = false, want true")
		}
		if got.LastSeen == nil || !got.LastSeen.Equal(seenAt) {
			t.Errorf("LastSeen = %v, want %v", got.LastSeen, seenAt)
		}
	})

	t.Run("unreachable preserves last_seen", func(t *testing.T) {
		if err := repo.UpdateReachability(ctx, "dev-reach", false, time.Now()); err != nil {
			t.Fatalf("UpdateReachability() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "dev-reach")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Reachable {
			t.Error("Reachable = true, want false")
		}
		want := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
		if got.LastSeen == nil || !got.LastSeen.Equal(want) {
			t.Errorf("LastSeen = %v, want preserved %v", got.LastSeen, want)
		}
	})

	t.Run("returns ErrDeviceNotFound for missing device", func(t *testing.T) {
		err := repo.UpdateReachability(ctx, "missing", true, time.Now())
		if !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("UpdateReachability() error = %v, want ErrDeviceNotFound", err)
		}
	})
}
