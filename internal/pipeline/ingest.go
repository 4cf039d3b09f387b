package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/ercot-data/internal/api"
	"github.com/rickgao/ercot-data/internal/archive"
	"github.com/rickgao/ercot-data/internal/batch"
	"github.com/rickgao/ercot-data/internal/model"
	"github.com/rickgao/ercot-data/internal/schema"
	"github.com/rickgao/ercot-data/internal/store"
)

// IngestArchive downloads docIDs of an archive product and stores every
// CSV they contain.
func (p *Pipeline) IngestArchive(ctx context.Context, productID string, docIDs []int64, f Filters) (*archive.Summary, error) {
	gs, err := groups(f.Tables)
	if err != nil {
		return nil, err
	}
	r := &run{
		id:      uuid.NewString(),
		filters: f,
		result:  &Result{Stored: make(map[schema.Name]int)},
	}
	r.logger = p.logger.With("run_id", r.id)
	if len(f.QSENames) > 0 {
		r.qse = store.NewSet(f.QSENames...)
	}

	for _, g := range gs {
		if g.product.ID != productID {
			continue
		}
		if g.product.ID == archive.SPP.ID && p.cfg.FilterActivePoints {
			if err := p.loadActivePoints(ctx, r); err != nil {
				return nil, err
			}
		}
		return p.process(ctx, r, g, docIDs)
	}
	return nil, fmt.Errorf("unknown archive product %q", productID)
}

// ingestWindow lists the archive documents posted in w and ingests them.
func (p *Pipeline) ingestWindow(ctx context.Context, r *run, g group, w batch.Window) (*archive.Summary, error) {
	docs, err := p.archiveDocuments(ctx, r, g, w)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		r.logger.Info("no archive documents", "product", g.product.ID, "window", w.String())
		return nil, nil
	}

	ids := make([]int64, len(docs))
	for i, d := range docs {
		ids[i] = d.DocID
	}
	return p.process(ctx, r, g, ids)
}

func (p *Pipeline) process(ctx context.Context, r *run, g group, ids []int64) (*archive.Summary, error) {
	product := g.product
	product.Route = g.route()

	sink := func(ctx context.Context, table schema.Name, file string, records []model.Record) (int, error) {
		res, err := p.storeRecords(ctx, r, table, records)
		if err != nil {
			return 0, err
		}
		if res.Invalid > 0 {
			r.logger.Warn("archive rows rejected", "file", file, "invalid", res.Invalid)
		}
		return res.Inserted, nil
	}

	return archive.New(p.cfg.Archive, p.client, sink, r.logger).Process(ctx, product, ids)
}

// archiveDocuments serves the metadata cache when it is fresh and covers
// every post date of w, and lists the archive API otherwise.
func (p *Pipeline) archiveDocuments(ctx context.Context, r *run, g group, w batch.Window) ([]api.ArchiveDocument, error) {
	now := p.now()
	st, ok, err := p.store.MetadataStatus(ctx, g.cache)
	if err != nil {
		return nil, err
	}
	if ok && st.Fresh(now, p.cfg.MetadataMaxAge) && st.Covers(w.Start, w.End) {
		docs, err := p.store.CachedArchives(ctx, g.cache, w.Start, w.End)
		if err != nil {
			return nil, err
		}
		r.logger.Info("archive metadata from cache",
			"product", g.product.ID,
			"documents", len(docs),
			"age", now.Sub(st.LastUpdated).Round(time.Second),
		)
		return docs, nil
	}

	docs, err := p.client.ListArchives(ctx, g.product.ID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("list %s archives: %w", g.product.ID, err)
	}
	next := st.Extend(w.Start, w.End, now, p.cfg.MetadataMaxAge)
	if err := p.store.SaveArchives(ctx, g.cache, docs, next, now); err != nil {
		r.logger.Warn("archive metadata not cached", "product", g.product.ID, "error", err)
	}
	r.logger.Info("archive metadata listed", "product", g.product.ID, "documents", len(docs))
	return docs, nil
}
