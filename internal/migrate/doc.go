// Package migrate runs versioned DDL migration sets against a storage area.
//
// Each Set owns a migration id and a chain of steps; applied versions
// are recorded in a per-area grimoire_schema_versions table, so a set
// resumes from wherever a previous run stopped. Steps run one per
// exclusive transaction together with their version bump.
package migrate
