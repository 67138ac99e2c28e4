// Package migration applies versioned SQL schema changes to SQLite databases.
//
// Migrations are read from an fs.FS (normally an embedded directory) and must
// be named {version}_{description}.sql, e.g. "001_calendars.sql". Applied
// versions and their checksums are tracked in the schema_migrations table so
// each file runs exactly once, inside its own transaction.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(files), migration.NewExecutor(db), logger)
//	if err := manager.Run(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
