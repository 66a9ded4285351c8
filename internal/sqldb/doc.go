// Package sqldb owns the SQLite connection shared by the grimoire
// persistence layer.
//
// One process holds one DB. It is backed by two database files: the
// main file (persistent area) and a second file attached under the
// "transient" schema name (transient area). Table names are qualified
// through Area.Prefix, so the same query-composition code serves both
// areas.
//
// The pool is capped at a single connection because the ATTACH applies
// per connection. SQLite serializes writers anyway; WAL keeps readers
// cheap.
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// ExclusiveTx wraps BEGIN EXCLUSIVE for startup DDL, where a table
// creation and its metadata row must commit or fail together.
package sqldb
