// Package database provides SQLite connectivity for statesd.
//
// It stores the transition history. The package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Versioned schema migrations read from any fs.FS
//   - Health checks and lifecycle
//
// All queries use parameterised statements. Database files are created with
// 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Source()); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or carry defaults, and
// each .up.sql should ship with a .down.sql.
package database
