// Package database provides the SQLite connection shared by the object
// store and the command audit trail.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Applying embedded, versioned migrations
//   - Connection lifecycle and health checks
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files live in the top-level migrations package and follow the
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql naming scheme.
package database
