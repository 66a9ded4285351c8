// ABOUTME: Built-in codecs for the common key types: raw strings and big-endian uint64
// ABOUTME: Key codecs rarely migrate, so these carry no migration table

package codec

import (
	"encoding/binary"
	"fmt"
)

// StringCodec stores strings as their raw bytes under schema
// ("string", 1).
type StringCodec struct{}

// String returns the raw-bytes string codec.
func String() StringCodec { return StringCodec{} }

func (StringCodec) SchemaName() string    { return "string" }
func (StringCodec) SchemaVersion() uint32 { return 1 }

func (StringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }
func (StringCodec) Decode(data []byte) (string, error) {
	return string(data), nil
}

func (StringCodec) CanMigrateFrom(string, uint32) bool { return false }
func (StringCodec) MigrateFrom(name string, version uint32, _ []byte) (string, error) {
	return "", &UnsupportedSchemaError{Name: name, Version: version}
}

// Uint64Codec stores uint64 keys as 8 big-endian bytes under schema
// ("uint64", 1), so lexicographic byte order matches numeric order.
type Uint64Codec struct{}

// Uint64 returns the big-endian uint64 codec.
func Uint64() Uint64Codec { return Uint64Codec{} }

func (Uint64Codec) SchemaName() string    { return "uint64" }
func (Uint64Codec) SchemaVersion() uint32 { return 1 }

func (Uint64Codec) Encode(v uint64) ([]byte, error) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:], nil
}

func (Uint64Codec) Decode(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("decoding uint64 key: want 8 bytes, got %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func (Uint64Codec) CanMigrateFrom(string, uint32) bool { return false }
func (Uint64Codec) MigrateFrom(name string, version uint32, _ []byte) (uint64, error) {
	return 0, &UnsupportedSchemaError{Name: name, Version: version}
}
