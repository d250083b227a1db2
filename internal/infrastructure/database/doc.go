// Package database provides SQLite connectivity for the Conga bridge.
//
// It manages the connection (WAL mode, busy timeout, single writer) and
// applies the versioned schema migrations embedded by the migrations
// package. The bridge keeps its vacuum state history and command log
// here so they survive restarts even when InfluxDB is disabled.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. Each migration runs in its own transaction.
package database
