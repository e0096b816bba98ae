// Package database provides SQLite connectivity for newsdesk.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Versioned, additive-only schema migrations embedded in the binary
//   - Consistent online snapshots (VACUUM INTO) used as migration backups
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database and backup files are created with 0600 permissions
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration Strategy:
//
// Migrations never drop or rewrite existing rows. New columns must be
// NULLABLE or carry a DEFAULT. There are no down migrations: the
// pre-migration backup is the rollback path.
package database
