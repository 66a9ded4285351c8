// Package cache provides a bounded LRU of load results keyed by store key.
//
// Entries distinguish a cached value from a cached absence, so a miss
// confirmed against the database does not hit the database again.
// GetOrCompute collapses concurrent loads of the same key into one.
package cache
