// Package database provides SQLite persistence for the occupancy daemon.
//
// It wraps database/sql with lifecycle management (directory creation,
// WAL mode, busy timeout), health checks, and embedded SQL migrations.
//
// The daemon uses the database for one thing: persisting engine state
// snapshots so occupancy survives restarts. See the host package for
// the snapshot store built on top of this.
//
// # Usage
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
