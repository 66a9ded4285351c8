// Package interner maps schema names to stable numeric ids.
//
// # Overview
//
// Rows that reference a schema store a small integer instead of the
// name. The mapping is persisted in the main database and loaded fully
// at open, so lookups by id never touch the database; only interning a
// brand-new name writes a row.
//
// # Scopes
//
// Callers batch related lookups through a Scope, which holds the
// interner's lock for the duration of the batch. A scope is cheap and
// must be released; it is not safe to retain across unrelated work.
package interner
