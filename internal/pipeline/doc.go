// Package pipeline is the programmatic surface of the ingester: fetch a
// window of reports, ingest archive documents, and merge into FINAL.
//
// A window is split at the archive cutoff. Days before it come from
// archive bundles, the rest from the live report API. DAM reports are
// ingested before settlement point prices so that the active point filter
// sees the awards of the same run.
package pipeline
