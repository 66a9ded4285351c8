// Package codec defines schema-identified encodings for keys and values.
//
// # Overview
//
// Every encoded value carries a schema identity: a name plus a version
// number. The identity is stored alongside the bytes, so a later read
// can tell exactly which format it is looking at and decide whether the
// running codec can decode it directly, migrate it, or must refuse.
//
// JSON and Gob cover structured values; String and Uint64 cover the
// common key shapes. Value codecs accept migrations from older schema
// identities via WithMigration; key codecs never migrate, because a key
// encoding change would invalidate every row in a namespace.
package codec
