// Package migration upgrades a single-tenant newsdesk store to the
// multi-tenant schema exactly once.
//
// The upgrade is a forward-only state machine persisted in schema_meta:
//
//	unmigrated -> backed_up -> schema_upgraded -> data_assigned -> complete
//
// Each step checks the stored state before acting, so a run interrupted at
// any point resumes where it stopped. The pre-migration backup is written
// before anything else touches the store and is never modified afterwards.
//
// Usage:
//
//	mgr := migration.NewManager(db, migration.Config{BackupDir: cfg.Migration.BackupDir})
//	mgr.SetLogger(log)
//	if _, err := mgr.Run(ctx); err != nil {
//	    return err // errors.Is(err, migration.ErrMigrationFailure)
//	}
//
// Run must finish before any other component touches the database.
package migration
