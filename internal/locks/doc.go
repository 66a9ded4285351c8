// Package locks provides a keyed mutual-exclusion set.
//
// A Set hands out one logical mutex per key on demand and reclaims it
// when the last holder releases, so the set stays proportional to the
// number of keys currently contended rather than ever touched.
package locks
