package migration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/newsdesk/internal/auth"
	"github.com/nerrad567/newsdesk/internal/infrastructure/database"
	_ "github.com/nerrad567/newsdesk/migrations" // registers the schema
	"golang.org/x/crypto/bcrypt"
)

var fixedNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T, dir string) *database.DB {
	t.Helper()
	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(dir, "newsdesk.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func newTestManager(db *database.DB, backupDir string) *Manager {
	return NewManager(db, Config{
		BackupDir:  backupDir,
		BcryptCost: bcrypt.MinCost,
		Now:        func() time.Time { return fixedNow },
	})
}

// seedLegacyStore creates the pre-account schema with some content rows.
func seedLegacyStore(t *testing.T, db *database.DB) {
	t.Helper()
	_, err := db.Exec(`
		CREATE TABLE articles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			url TEXT,
			body TEXT NOT NULL DEFAULT '',
			summary TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);
		CREATE TABLE profiles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			settings TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);
		INSERT INTO articles (title, body) VALUES ('First', 'one'), ('Second', 'two');
		INSERT INTO profiles (name) VALUES ('default');
	`)
	if err != nil {
		t.Fatalf("seeding legacy store: %v", err)
	}
}

func backups(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*"+backupSuffix))
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	return matches
}

func TestRun_FreshStore(t *testing.T) {
	dir := t.TempDir()
	db := openStore(t, dir)
	mgr := newTestManager(db, "")
	ctx := context.Background()

	res, err := mgr.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.StartState != StateUnmigrated {
		t.Errorf("StartState = %s, want %s", res.StartState, StateUnmigrated)
	}
	if !res.AdminCreated {
		t.Error("Run() should create the default admin")
	}
	wantBackup := filepath.Join(dir, "newsdesk-20261001T120000Z.pre-multitenant.db")
	if res.BackupPath != wantBackup {
		t.Errorf("BackupPath = %q, want %q", res.BackupPath, wantBackup)
	}

	admin, err := auth.NewUserRepository(db).GetByUsername(ctx, auth.DefaultAdminUsername)
	if err != nil {
		t.Fatalf("GetByUsername(admin) error = %v", err)
	}
	if admin.Role != auth.RoleAdmin || !admin.IsActive {
		t.Errorf("admin = %+v, want active admin", admin)
	}

	marker, err := readMeta(ctx, db, metaVersionKey)
	if err != nil {
		t.Fatalf("readMeta() error = %v", err)
	}
	if marker != versionComplete {
		t.Errorf("schema_version = %q, want %q", marker, versionComplete)
	}
	state, _ := mgr.State(ctx) //nolint:errcheck // checked via value
	if state != StateComplete {
		t.Errorf("State() = %s, want %s", state, StateComplete)
	}

	// Second run is a no-op.
	res, err = mgr.Run(ctx)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if res.StartState != StateComplete || res.BackupPath != "" || res.AdminCreated || len(res.Applied) != 0 {
		t.Errorf("second Run() did work: %+v", res)
	}
	if n := len(backups(t, dir)); n != 1 {
		t.Errorf("backups = %d, want 1", n)
	}
	count, _ := auth.NewUserRepository(db).Count(ctx) //nolint:errcheck // checked via value
	if count != 1 {
		t.Errorf("users = %d, want 1", count)
	}
}

func TestRun_LegacyStoreAssignsOwnership(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	db := openStore(t, dir)
	seedLegacyStore(t, db)
	ctx := context.Background()

	res, err := newTestManager(db, backupDir).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Assigned != 3 {
		t.Errorf("Assigned = %d, want 3", res.Assigned)
	}
	if !strings.HasPrefix(res.BackupPath, backupDir) {
		t.Errorf("BackupPath = %q, want under %q", res.BackupPath, backupDir)
	}

	var unowned int
	if err := db.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(*) FROM articles WHERE owner_id IS NULL) + (SELECT COUNT(*) FROM profiles WHERE owner_id IS NULL)",
	).Scan(&unowned); err != nil {
		t.Fatalf("counting unowned rows: %v", err)
	}
	if unowned != 0 {
		t.Errorf("unowned rows = %d, want 0", unowned)
	}

	var owner string
	if err := db.QueryRowContext(ctx, "SELECT owner_id FROM articles WHERE title = 'First'").Scan(&owner); err != nil {
		t.Fatalf("reading owner: %v", err)
	}
	if owner != res.AdminID {
		t.Errorf("owner_id = %q, want admin %q", owner, res.AdminID)
	}

	// The backup holds the original rows and no account tables.
	snap, err := database.Open(ctx, database.Config{Path: res.BackupPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer snap.Close() //nolint:errcheck // Test cleanup

	var articles int
	if err := snap.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&articles); err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if articles != 2 {
		t.Errorf("backup articles = %d, want 2", articles)
	}
	if exists, _ := snap.TableExists(ctx, "users"); exists { //nolint:errcheck // checked via value
		t.Error("backup should predate the users table")
	}
}

func TestRun_BackupFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	db := openStore(t, dir)
	seedLegacyStore(t, db)
	ctx := context.Background()

	// A regular file where the backup directory should be.
	blocker := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	mgr := newTestManager(db, blocker)
	_, err := mgr.Run(ctx)
	if !errors.Is(err, ErrMigrationFailure) {
		t.Fatalf("Run() error = %v, want ErrMigrationFailure", err)
	}

	state, err := mgr.State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if state != StateUnmigrated {
		t.Errorf("State() = %s, want %s", state, StateUnmigrated)
	}
	if exists, _ := db.TableExists(ctx, "users"); exists { //nolint:errcheck // checked via value
		t.Error("schema must not be touched when the backup fails")
	}
}

func TestRun_ResumesFromSchemaUpgraded(t *testing.T) {
	dir := t.TempDir()
	db := openStore(t, dir)
	seedLegacyStore(t, db)
	ctx := context.Background()
	mgr := newTestManager(db, "")

	// Simulate a run that stopped after the schema step.
	if _, err := mgr.backup(ctx); err != nil {
		t.Fatalf("backup() error = %v", err)
	}
	if err := mgr.ensureMetaTable(ctx); err != nil {
		t.Fatalf("ensureMetaTable() error = %v", err)
	}
	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := mgr.advance(ctx, db, StateSchemaUpgraded); err != nil {
		t.Fatalf("advance() error = %v", err)
	}

	res, err := mgr.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.StartState != StateSchemaUpgraded {
		t.Errorf("StartState = %s, want %s", res.StartState, StateSchemaUpgraded)
	}
	if res.BackupPath != "" {
		t.Error("resumed run must not write a second backup")
	}
	if len(res.Applied) != 0 {
		t.Errorf("resumed run re-applied migrations: %v", res.Applied)
	}
	if res.Assigned != 3 {
		t.Errorf("Assigned = %d, want 3", res.Assigned)
	}
	if n := len(backups(t, dir)); n != 1 {
		t.Errorf("backups = %d, want 1", n)
	}
}

func TestRun_RetryAfterUnrecordedBackup(t *testing.T) {
	dir := t.TempDir()
	db := openStore(t, dir)
	seedLegacyStore(t, db)
	ctx := context.Background()
	mgr := newTestManager(db, "")

	// A previous run wrote its snapshot and stopped before recording it,
	// within the same second as this retry.
	first, err := mgr.backup(ctx)
	if err != nil {
		t.Fatalf("backup() error = %v", err)
	}

	res, err := mgr.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := filepath.Join(dir, "newsdesk-20261001T120000Z-1.pre-multitenant.db")
	if res.BackupPath != want {
		t.Errorf("BackupPath = %q, want %q", res.BackupPath, want)
	}
	if res.BackupPath == first {
		t.Error("retry reused the unrecorded snapshot")
	}
	if n := len(backups(t, dir)); n != 2 {
		t.Errorf("backups = %d, want 2", n)
	}
	if res.Assigned != 3 {
		t.Errorf("Assigned = %d, want 3", res.Assigned)
	}
}

func TestRun_ExistingAdminIsReused(t *testing.T) {
	dir := t.TempDir()
	db := openStore(t, dir)
	ctx := context.Background()
	mgr := newTestManager(db, "")

	if _, err := mgr.backup(ctx); err != nil {
		t.Fatalf("backup() error = %v", err)
	}
	if err := mgr.ensureMetaTable(ctx); err != nil {
		t.Fatalf("ensureMetaTable() error = %v", err)
	}
	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := mgr.advance(ctx, db, StateSchemaUpgraded); err != nil {
		t.Fatalf("advance() error = %v", err)
	}
	existingID, _, err := auth.SeedAdmin(ctx, auth.NewUserRepository(db), bcrypt.MinCost, noopLogger{})
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}

	res, err := mgr.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.AdminCreated || res.AdminID != existingID {
		t.Errorf("Run() admin = %q created=%v, want existing %q", res.AdminID, res.AdminCreated, existingID)
	}
}

func TestAdvance_RefusesRegression(t *testing.T) {
	db := openStore(t, t.TempDir())
	ctx := context.Background()
	mgr := newTestManager(db, "")

	if err := mgr.ensureMetaTable(ctx); err != nil {
		t.Fatalf("ensureMetaTable() error = %v", err)
	}
	if err := mgr.advance(ctx, db, StateDataAssigned); err != nil {
		t.Fatalf("advance() error = %v", err)
	}
	if err := mgr.advance(ctx, db, StateBackedUp); !errors.Is(err, errStateRegression) {
		t.Errorf("advance() backwards error = %v, want errStateRegression", err)
	}
}

func TestState_UnknownValue(t *testing.T) {
	db := openStore(t, t.TempDir())
	ctx := context.Background()
	mgr := newTestManager(db, "")

	if err := mgr.ensureMetaTable(ctx); err != nil {
		t.Fatalf("ensureMetaTable() error = %v", err)
	}
	if err := writeMeta(ctx, db, metaStateKey, "halfway", fixedNow); err != nil {
		t.Fatalf("writeMeta() error = %v", err)
	}
	if _, err := mgr.State(ctx); err == nil {
		t.Error("State() should reject an unknown stored value")
	}
	if _, err := mgr.Run(ctx); !errors.Is(err, ErrMigrationFailure) {
		t.Errorf("Run() error = %v, want ErrMigrationFailure", err)
	}
}
