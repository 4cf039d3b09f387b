// Package database provides the PostgreSQL connection pool and schema
// migrations.
//
// Schema comes from two places:
//   - goose migrations embedded from migrations/: archive metadata cache
//   - the table registry: fact tables and FINAL, created idempotently
package database
