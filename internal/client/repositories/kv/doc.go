// Package kv holds the raw key-value stores that back the client's offline
// state. A store only moves opaque bytes; encryption happens above it.
//
// Backends:
//   - MemoryRepository: process-local map, used in tests and with the
//     "memory" driver.
//   - SQLRepository: one table in SQLite or PostgreSQL.
//   - S3Repository: objects in an S3-compatible bucket.
package kv
