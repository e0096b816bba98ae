package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/nerrad567/newsdesk/internal/auth"
	"github.com/nerrad567/newsdesk/internal/infrastructure/database"
)

// State is a step of the tenancy upgrade.
type State string

// Upgrade states, in order.
const (
	StateUnmigrated     State = "unmigrated"
	StateBackedUp       State = "backed_up"
	StateSchemaUpgraded State = "schema_upgraded"
	StateDataAssigned   State = "data_assigned"
	StateComplete       State = "complete"
)

var stateOrder = []State{StateUnmigrated, StateBackedUp, StateSchemaUpgraded, StateDataAssigned, StateComplete}

func (s State) rank() int {
	return slices.Index(stateOrder, s)
}

// ErrMigrationFailure wraps every error returned by Run. The application
// must not start when it is returned.
var ErrMigrationFailure = errors.New("migration failed")

// errStateRegression guards against moving the state machine backwards.
var errStateRegression = errors.New("tenancy state cannot move backwards")

// Keys stored in schema_meta.
const (
	metaStateKey   = "tenancy_state"
	metaVersionKey = "schema_version"

	// versionComplete is the schema-version marker written by the final step.
	versionComplete = "complete"

	// backupSuffix identifies pre-multi-tenant snapshots.
	backupSuffix = ".pre-multitenant.db"

	backupTimeLayout = "20060102T150405Z"
)

// ownedTables are pre-existing resource tables whose rows are assigned to
// the default admin.
var ownedTables = []string{"articles", "profiles"}

// Config controls where backups go and how the default admin is hashed.
type Config struct {
	// BackupDir receives the pre-migration snapshot. Empty means the
	// database's own directory.
	BackupDir string

	// BcryptCost for the seeded admin. Zero means auth.DefaultBcryptCost.
	BcryptCost int

	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// Result summarises what a Run did.
type Result struct {
	// StartState is the state found before this run.
	StartState State

	// BackupPath is set when this run wrote a backup.
	BackupPath string

	// Applied lists schema migration versions applied by this run.
	Applied []string

	// AdminID is the owner assigned to pre-existing resources.
	AdminID      string
	AdminCreated bool

	// Assigned counts resources given an owner by this run.
	Assigned int64
}

// Logger is the logging surface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager drives the tenancy upgrade.
type Manager struct {
	db     *database.DB
	cfg    Config
	logger Logger
}

// NewManager creates a migration manager for db.
func NewManager(db *database.DB, cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = auth.DefaultBcryptCost
	}
	return &Manager{db: db, cfg: cfg, logger: noopLogger{}}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// State returns the stored upgrade state. A store without schema_meta is
// unmigrated.
func (m *Manager) State(ctx context.Context) (State, error) {
	exists, err := m.db.TableExists(ctx, "schema_meta")
	if err != nil {
		return "", err
	}
	if !exists {
		return StateUnmigrated, nil
	}

	value, err := readMeta(ctx, m.db, metaStateKey)
	if errors.Is(err, sql.ErrNoRows) {
		return StateUnmigrated, nil
	}
	if err != nil {
		return "", err
	}

	s := State(value)
	if s.rank() < 0 {
		return "", fmt.Errorf("unknown tenancy state %q", value)
	}
	return s, nil
}

// Run advances the store to StateComplete. On a store that is already
// complete it only applies any newer schema migrations. Every error
// matches ErrMigrationFailure.
func (m *Manager) Run(ctx context.Context) (*Result, error) {
	state, err := m.State(ctx)
	if err != nil {
		return nil, fail("reading tenancy state", err)
	}
	res := &Result{StartState: state}

	if state == StateComplete {
		m.logger.Debug("tenancy upgrade already complete")
		applied, err := m.db.Migrate(ctx)
		if err != nil {
			return nil, fail("applying schema migrations", err)
		}
		res.Applied = applied
		return res, nil
	}

	m.logger.Info("tenancy upgrade starting", "state", string(state))

	if state == StateUnmigrated {
		path, err := m.backup(ctx)
		if err != nil {
			return nil, fail("backing up store", err)
		}
		res.BackupPath = path
		if err := m.ensureMetaTable(ctx); err != nil {
			return nil, fail("creating schema_meta", err)
		}
		if err := m.advance(ctx, m.db, StateBackedUp); err != nil {
			return nil, fail("recording backup", err)
		}
		state = StateBackedUp
		m.logger.Info("pre-migration backup written", "path", path)
	}

	if state == StateBackedUp {
		applied, err := m.db.Migrate(ctx)
		if err != nil {
			return nil, fail("upgrading schema", err)
		}
		res.Applied = applied
		if err := m.advance(ctx, m.db, StateSchemaUpgraded); err != nil {
			return nil, fail("recording schema upgrade", err)
		}
		state = StateSchemaUpgraded
		m.logger.Info("schema upgraded", "applied", len(applied))
	}

	if state == StateSchemaUpgraded {
		if err := m.assignData(ctx, res); err != nil {
			return nil, fail("assigning ownership", err)
		}
		state = StateDataAssigned
		m.logger.Info("ownership assigned", "admin_id", res.AdminID, "resources", res.Assigned)
	}

	if state == StateDataAssigned {
		err := database.WithTx(ctx, m.db.DB, func(tx *sql.Tx) error {
			if err := writeMeta(ctx, tx, metaVersionKey, versionComplete, m.cfg.Now()); err != nil {
				return err
			}
			return m.advance(ctx, tx, StateComplete)
		})
		if err != nil {
			return nil, fail("writing completion marker", err)
		}
	}

	m.logger.Info("tenancy upgrade complete")
	return res, nil
}

// maxBackupAttempts bounds the numbered names tried when a snapshot with
// the same timestamp already exists.
const maxBackupAttempts = 100

// backup snapshots the store next to it (or into BackupDir) before any write.
// A leftover snapshot with the same timestamp is never reused; the next
// numbered name is taken instead.
func (m *Manager) backup(ctx context.Context) (string, error) {
	dir := m.cfg.BackupDir
	if dir == "" {
		dir = filepath.Dir(m.db.Path())
	}
	base := filepath.Base(m.db.Path())
	stem := strings.TrimSuffix(base, filepath.Ext(base)) + "-" + m.cfg.Now().UTC().Format(backupTimeLayout)

	for i := 0; i < maxBackupAttempts; i++ {
		name := stem + backupSuffix
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", stem, i, backupSuffix)
		}
		dest := filepath.Join(dir, name)
		err := m.db.Backup(ctx, dest)
		if err == nil {
			return dest, nil
		}
		if !errors.Is(err, database.ErrBackupExists) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %d snapshots named %s already exist", database.ErrBackupExists, maxBackupAttempts, stem)
}

// assignData seeds the admin and gives it every unowned resource, recording
// the state change in the same transaction.
func (m *Manager) assignData(ctx context.Context, res *Result) error {
	return database.WithTx(ctx, m.db.DB, func(tx *sql.Tx) error {
		adminID, created, err := auth.SeedAdmin(ctx, auth.NewUserRepository(tx), m.cfg.BcryptCost, m.logger)
		if err != nil {
			return err
		}

		var assigned int64
		for _, table := range ownedTables {
			result, err := tx.ExecContext(ctx,
				"UPDATE "+table+" SET owner_id = ? WHERE owner_id IS NULL", adminID)
			if err != nil {
				return fmt.Errorf("assigning %s: %w", table, err)
			}
			n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
			assigned += n
		}

		if err := m.advance(ctx, tx, StateDataAssigned); err != nil {
			return err
		}

		res.AdminID = adminID
		res.AdminCreated = created
		res.Assigned = assigned
		return nil
	})
}

func (m *Manager) ensureMetaTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	) STRICT`)
	return err
}

// advance writes next as the stored state. It refuses to move backwards.
func (m *Manager) advance(ctx context.Context, q database.DBTX, next State) error {
	current, err := readMeta(ctx, q, metaStateKey)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if current != "" && State(current).rank() > next.rank() {
		return fmt.Errorf("%w: %s -> %s", errStateRegression, current, next)
	}
	return writeMeta(ctx, q, metaStateKey, string(next), m.cfg.Now())
}

func readMeta(ctx context.Context, q database.DBTX, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM schema_meta WHERE key = ?", key).Scan(&value)
	return value, err
}

func writeMeta(ctx context.Context, q database.DBTX, key, value string, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO schema_meta (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func fail(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrMigrationFailure, step, err)
}
