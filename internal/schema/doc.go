// Package schema is the declarative registry of the market fact tables.
//
// Each Table lists its columns (canonical record key, SQL name, SQL type,
// required flag, header aliases), its business key, and the roles of the
// columns the pipeline needs by meaning (delivery date, hour, settlement
// point, QSE, id, curve tiers). The registry is the single source for:
//   - header canonicalization (internal/normalize)
//   - validated model construction (internal/model)
//   - DDL, dedup lookups and inserts (internal/store)
//   - the FINAL consolidation query (internal/merge)
package schema
