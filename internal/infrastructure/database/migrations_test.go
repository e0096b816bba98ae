package database

import (
	"context"
	"embed"
	"testing"
)

//go:embed testdata
var testMigrationsFS embed.FS

// useTestMigrations registers the testdata migrations and restores the
// previous registration on cleanup.
func useTestMigrations(t *testing.T) {
	t.Helper()

	orig := registered
	Register(testMigrationsFS, "testdata")
	t.Cleanup(func() { registered = orig })
}

func TestMigrate(t *testing.T) {
	useTestMigrations(t)
	db := openTestDB(t)
	ctx := context.Background()

	applied, err := db.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("Migrate() applied %v, want 2 migrations", applied)
	}
	if applied[0] != "20260101_000000" || applied[1] != "20260102_000000" {
		t.Errorf("Migrate() applied %v, want oldest first", applied)
	}

	// The second migration added a column to the first one's table.
	if _, err := db.ExecContext(ctx, "INSERT INTO test_notes (body, owner) VALUES ('x', 'usr-1')"); err != nil {
		t.Fatalf("schema not fully applied: %v", err)
	}

	// Running again is a no-op.
	applied, err = db.Migrate(ctx)
	if err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("second Migrate() applied %v, want none", applied)
	}

	records, err := db.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("AppliedMigrations() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("AppliedMigrations() = %d records, want 2", len(records))
	}
	for _, r := range records {
		if r.AppliedAt.IsZero() {
			t.Errorf("migration %s has zero AppliedAt", r.Version)
		}
	}
}

func TestMigrate_NoMigrationsRegistered(t *testing.T) {
	orig := registered
	registered.fsys = nil
	t.Cleanup(func() { registered = orig })

	db := openTestDB(t)

	applied, err := db.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("Migrate() applied %v with nothing registered", applied)
	}
}

func TestPendingMigrations_FreshStore(t *testing.T) {
	useTestMigrations(t)
	db := openTestDB(t)
	ctx := context.Background()

	// No schema_migrations table yet: everything is pending and nothing is created.
	pending, err := db.PendingMigrations(ctx)
	if err != nil {
		t.Fatalf("PendingMigrations() error = %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("PendingMigrations() = %d, want 2", len(pending))
	}

	exists, _ := db.TableExists(ctx, "schema_migrations")
	if exists {
		t.Error("PendingMigrations() must not create schema_migrations")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantOK      bool
	}{
		{"20261001_120000_multi_tenant.up.sql", "20261001_120000", true},
		{"20261001_120000_initial.up.sql", "20261001_120000", true},
		{"20261001_120000_initial.down.sql", "", false},
		{"20261001_120000_initial.sql", "", false},
		{"README.txt", "", false},
		{"nounderscore.up.sql", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK || version != tt.wantVersion {
				t.Errorf("parseMigrationFilename(%q) = (%q, %v), want (%q, %v)",
					tt.filename, version, ok, tt.wantVersion, tt.wantOK)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20261001_120000_multi_tenant.up.sql", "multi_tenant"},
		{"20261001_120000_audit.up.sql", "audit"},
		{"20261001_120000.up.sql", "20261001_120000"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := extractMigrationName(tt.filename); got != tt.want {
				t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
