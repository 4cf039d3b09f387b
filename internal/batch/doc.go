// Package batch splits a delivery-date window into request-sized batches
// and drives fetch and store over them.
//
// Planning:
//   - Batch 0 is always the single first day of the window
//   - Remaining days are cut into min(batch days, MaxDateRange)-day pieces
//   - With QSE names, every batch runs once per name, names sorted
//
// Running:
//   - Fetches run on a bounded worker pool; stores are serialized
//   - A failed batch is recorded and never stops the run
//   - Cancellation stops dispatch and leaves committed batches intact
package batch
