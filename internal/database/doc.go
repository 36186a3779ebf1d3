// Package database provides PostgreSQL connection pool setup for the
// milestone store.
//
// The pool is shared by every network's tracker; rows are keyed by
// network name so one database serves the whole instance.
package database
