// Package kvs is the per-module key-value store at the heart of the
// grimoire persistence layer.
//
// # Model
//
// Every module of the host gets an isolated namespace: one generated
// SQLite table holding serialized key/value pairs, plus a metadata row
// in the kvs_info table of its storage area. Namespaces come in two
// modes:
//
//   - Persistent: survives indefinitely, even while the owning module
//     is disabled.
//   - Transient: dropped by the next startup pass that finds no live
//     module claiming it.
//
// Values are written together with the schema identity (interned name
// plus version) of the codec that produced them. At read time the
// store compares that identity with the running codec and either
// decodes directly, migrates through the codec's registered migration,
// or refuses — loudly for persistent data, as a miss for transient
// data.
//
// # Initialization
//
// Stores are constructed against a Registry before Registry.Init runs.
// Init is the reconciliation pass: it migrates the metadata tables,
// loads persisted namespace metadata, folds the registered
// declarations against it in registration order (creating tables for
// new namespaces, rejecting duplicate module names and key schema
// mismatches), drops abandoned transient namespaces, and finally binds
// each store's runtime state. No store operation is valid before Init
// completes.
//
// # Concurrency
//
// Get, Set, and Remove on the same key are totally ordered by a
// per-key lock, which makes the cache and the database row agree at
// all times. Different keys do not contend. The database connection is
// borrowed per operation, never held between calls.
package kvs
