// Package scheduler runs the ingest and merge on a cron schedule.
//
// Each tick syncs the last LookbackDays days, ending today in the
// configured time zone. Ticks that arrive while a run is in progress are
// skipped. The outcome of the most recent run is kept for the status
// endpoint.
package scheduler
