package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rickgao/ercot-data/internal/api"
)

// CacheType names an archive metadata cache.
type CacheType string

// Archive metadata caches, one per archive product family.
const (
	CacheDAM CacheType = "dam"
	CacheSPP CacheType = "spp"
)

// DefaultMetadataMaxAge is how long a complete metadata cache is served
// without listing the archive again.
const DefaultMetadataMaxAge = 24 * time.Hour

func (c CacheType) table() (string, error) {
	switch c {
	case CacheDAM:
		return "dam_metadata", nil
	case CacheSPP:
		return "spp_metadata", nil
	default:
		return "", fmt.Errorf("unknown metadata cache %q", string(c))
	}
}

// CacheStatus is the row of metadata_cache_status for one cache. From and
// To are the post dates, inclusive, the cached listings cover.
type CacheStatus struct {
	LastUpdated time.Time
	Complete    bool
	From        time.Time
	To          time.Time
}

// Fresh reports whether the cache is complete and younger than maxAge.
func (s CacheStatus) Fresh(now time.Time, maxAge time.Duration) bool {
	return s.Complete && !s.LastUpdated.IsZero() && now.Sub(s.LastUpdated) < maxAge
}

// Covers reports whether the cached listings include every post date in
// [from, to].
func (s CacheStatus) Covers(from, to time.Time) bool {
	if !s.Complete || s.From.IsZero() || s.To.IsZero() {
		return false
	}
	return !from.Before(s.From) && !to.After(s.To)
}

// Extend returns the status to record after listing [from, to] at now. A
// fresh status whose range overlaps or touches the listing is widened and
// keeps its older LastUpdated. Anything else is replaced.
func (s CacheStatus) Extend(from, to, now time.Time, maxAge time.Duration) CacheStatus {
	next := CacheStatus{LastUpdated: now, Complete: true, From: from, To: to}
	if !s.Fresh(now, maxAge) || s.From.IsZero() || s.To.IsZero() {
		return next
	}
	if from.After(s.To.AddDate(0, 0, 1)) || to.Before(s.From.AddDate(0, 0, -1)) {
		return next
	}
	next.LastUpdated = s.LastUpdated
	if s.From.Before(from) {
		next.From = s.From
	}
	if s.To.After(to) {
		next.To = s.To
	}
	return next
}

// MetadataStatus returns the cache status row. ok is false when the cache
// has never been written.
func (s *Store) MetadataStatus(ctx context.Context, cache CacheType) (CacheStatus, bool, error) {
	rows, err := s.db.Query(ctx,
		`SELECT last_updated, is_complete, covered_from, covered_to
			FROM metadata_cache_status WHERE cache_type = $1`,
		string(cache),
	)
	if err != nil {
		return CacheStatus{}, false, dbErr("query cache status", "", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return CacheStatus{}, false, rows.Err()
	}
	var st CacheStatus
	if err := rows.Scan(&st.LastUpdated, &st.Complete, &st.From, &st.To); err != nil {
		return CacheStatus{}, false, dbErr("scan cache status", "", err)
	}
	return st, true, rows.Err()
}

// CachedArchives returns the cached documents posted between from and to,
// both days inclusive, ordered by post time.
func (s *Store) CachedArchives(ctx context.Context, cache CacheType, from, to time.Time) ([]api.ArchiveDocument, error) {
	table, err := cache.table()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT doc_id, friendly_name, post_datetime, download_url
		FROM %s
		WHERE post_datetime >= $1 AND post_datetime < $2
		ORDER BY post_datetime, doc_id`, table)

	rows, err := s.db.Query(ctx, query,
		from.Format("2006-01-02")+"T00:00:00",
		to.AddDate(0, 0, 1).Format("2006-01-02")+"T00:00:00",
	)
	if err != nil {
		return nil, dbErr("query metadata", "", err)
	}
	defer rows.Close()

	var docs []api.ArchiveDocument
	for rows.Next() {
		var d api.ArchiveDocument
		if err := rows.Scan(&d.DocID, &d.FriendlyName, &d.PostDatetime, &d.DownloadURL); err != nil {
			return nil, dbErr("scan metadata", "", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("query metadata", "", err)
	}
	return docs, nil
}

// SaveArchives upserts docs, cached at now, and writes st as the status
// row, in one transaction. A later write for the same doc id wins.
func (s *Store) SaveArchives(ctx context.Context, cache CacheType, docs []api.ArchiveDocument, st CacheStatus, now time.Time) error {
	table, err := cache.table()
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return dbErr("begin", "", err)
	}
	defer tx.Rollback(ctx)

	upsert := fmt.Sprintf(`INSERT INTO %s (doc_id, friendly_name, post_datetime, download_url, cached_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (doc_id) DO UPDATE SET
			friendly_name = EXCLUDED.friendly_name,
			post_datetime = EXCLUDED.post_datetime,
			download_url = EXCLUDED.download_url,
			cached_at = EXCLUDED.cached_at`, table)

	for _, d := range docs {
		if _, err := tx.Exec(ctx, upsert, d.DocID, d.FriendlyName, d.PostDatetime, d.DownloadURL, now); err != nil {
			return dbErr("upsert metadata", "", err)
		}
	}

	if _, err := tx.Exec(ctx, `INSERT INTO metadata_cache_status (cache_type, last_updated, is_complete, covered_from, covered_to)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cache_type) DO UPDATE SET
			last_updated = EXCLUDED.last_updated,
			is_complete = EXCLUDED.is_complete,
			covered_from = EXCLUDED.covered_from,
			covered_to = EXCLUDED.covered_to`,
		string(cache), st.LastUpdated, st.Complete, st.From, st.To,
	); err != nil {
		return dbErr("update cache status", "", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return dbErr("commit", "", err)
	}

	s.logger.Info("cached archive metadata",
		"cache", string(cache),
		"documents", len(docs),
		"from", st.From.Format(time.DateOnly),
		"to", st.To.Format(time.DateOnly),
	)
	return nil
}
