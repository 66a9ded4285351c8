// ABOUTME: Runtime query strings composed once per namespace at finalization
// ABOUTME: The table name is generated by the init pass, never caller-supplied

package kvs

import "fmt"

// queries holds the three per-namespace statements, bound to the
// schema-qualified table name at finalization.
type queries struct {
	store string
	load  string
	del   string
}

func newQueries(table string) queries {
	return queries{
		store: fmt.Sprintf(
			"REPLACE INTO %s (key, value, value_schema_id, value_schema_ver) VALUES (?, ?, ?, ?)",
			table,
		),
		load: fmt.Sprintf(
			"SELECT value, value_schema_id, value_schema_ver FROM %s WHERE key = ?",
			table,
		),
		del: fmt.Sprintf("DELETE FROM %s WHERE key = ?", table),
	}
}
