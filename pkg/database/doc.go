// Package database opens the storage backends used by the identity store.
//
// PostgreSQL pools are created with NewPool and migrated with RunMigrations.
// SQLite databases are opened and migrated in one step by OpenSQLite. Both
// schemas are embedded in the binary.
package database
