// Package store implements the durable, schema-versioned catalog of a
// library bundle on SQLite with write-ahead logging. Writes are serialized
// through a single logical writer; readers run concurrently.
package store
