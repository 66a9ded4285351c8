// ABOUTME: Content-stable data table name allocation with collision probing
// ABOUTME: Hashing the module name keeps table names valid regardless of module path characters

package kvs

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const tableNamePrefix = "grimoire_kvsdata_"

// allocateTableName derives a table name for module that is not in
// used. Names hash "{nonce}|{module}" so they stay stable across
// restarts and module renames do not rename tables; the nonce probes
// upward past collisions with names already taken by this pass or by
// prior runs.
func allocateTableName(used map[string]struct{}, module string) string {
	for nonce := uint32(0); ; nonce++ {
		sum := blake2b.Sum256([]byte(fmt.Sprintf("%d|%s", nonce, module)))
		name := tableNamePrefix + hex.EncodeToString(sum[:8])
		if _, taken := used[name]; !taken {
			return name
		}
	}
}
