// Package store persists fact rows and archive metadata in PostgreSQL.
//
// A Store call applies, in order:
//   - the QSE filter and the active settlement point filter
//   - projection onto registry columns and validated row construction
//   - dedup against business keys already stored for the batch's dates
//   - dedup within the batch
//   - chunked multi-row inserts in a single transaction
//
// Fact table DDL comes from the schema registry and runs on first use.
// The archive metadata cache tables are created by migrations.
package store
