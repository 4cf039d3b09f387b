package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/ercot-data/internal/api"
	"github.com/rickgao/ercot-data/internal/archive"
	"github.com/rickgao/ercot-data/internal/batch"
	"github.com/rickgao/ercot-data/internal/checkpoint"
	"github.com/rickgao/ercot-data/internal/merge"
	"github.com/rickgao/ercot-data/internal/model"
	"github.com/rickgao/ercot-data/internal/schema"
	"github.com/rickgao/ercot-data/internal/store"
)

// ErrNothingIngested is returned when every batch and archive chunk of a
// run failed.
var ErrNothingIngested = errors.New("nothing ingested")

// Client is the report API surface the pipeline uses.
type Client interface {
	Fetch(ctx context.Context, p api.FetchParams, sink api.RecordSink) (*api.Envelope, error)
	ListArchives(ctx context.Context, product string, from, to time.Time) ([]api.ArchiveDocument, error)
	DownloadBundle(ctx context.Context, product string, docIDs []int64) ([]byte, error)
}

// Store is the persistence surface the pipeline uses.
type Store interface {
	Store(ctx context.Context, name schema.Name, records []model.Record, opts store.Options) (store.Result, error)
	ActiveSettlementPoints(ctx context.Context) (store.Set, error)
	MetadataStatus(ctx context.Context, cache store.CacheType) (store.CacheStatus, bool, error)
	CachedArchives(ctx context.Context, cache store.CacheType, from, to time.Time) ([]api.ArchiveDocument, error)
	SaveArchives(ctx context.Context, cache store.CacheType, docs []api.ArchiveDocument, st store.CacheStatus, now time.Time) error
}

// Merger rebuilds FINAL.
type Merger interface {
	Merge(ctx context.Context, w *batch.Window) (merge.Report, error)
}

// Config holds pipeline configuration.
type Config struct {
	Batch              batch.Config
	Archive            archive.Config
	ArchiveCutoff      time.Time     // days before it come from the archive; zero disables the archive
	MetadataMaxAge     time.Duration // reuse a complete metadata cache younger than this
	StoreBatchSize     int
	FilterActivePoints bool
	AggregateSPPHourly bool
	CoarseDedup        bool
	CheckpointDir      string // one checkpoint file per report; empty disables checkpoints
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Batch:          batch.DefaultConfig(),
		Archive:        archive.DefaultConfig(),
		MetadataMaxAge: store.DefaultMetadataMaxAge,
		StoreBatchSize: store.DefaultBatchSize,
	}
}

// Filters narrows a fetch.
type Filters struct {
	Tables   []schema.Name // empty means every report
	QSENames []string      // DAM reports run once per name and keep only these QSEs
}

// Result collects the summaries of one Fetch.
type Result struct {
	RunID   string                         `json:"runId"`
	Window  batch.Window                   `json:"window"`
	Live    map[schema.Name]*batch.Summary `json:"live"`
	Archive map[string]*archive.Summary    `json:"archive"`
	Stored  map[schema.Name]int            `json:"stored"`
	Started time.Time                      `json:"startedAt"`
	Ended   time.Time                      `json:"finishedAt"`
}

// TotalRecords returns the number of records fetched or parsed.
func (r *Result) TotalRecords() int {
	n := 0
	for _, s := range r.Live {
		n += s.TotalRecords
	}
	for _, s := range r.Archive {
		n += s.Records
	}
	return n
}

// Err returns ErrNothingIngested when work was attempted and all of it
// failed.
func (r *Result) Err() error {
	attempted, ok := 0, 0
	for _, s := range r.Live {
		if s.Attempted() == 0 {
			continue
		}
		attempted++
		if s.Err() == nil {
			ok++
		}
	}
	for _, s := range r.Archive {
		if s.Chunks == 0 {
			continue
		}
		attempted++
		if s.Err() == nil {
			ok++
		}
	}
	if attempted > 0 && ok == 0 {
		return ErrNothingIngested
	}
	return nil
}

// Pipeline wires the client, store and merge engine together.
type Pipeline struct {
	cfg    Config
	client Client
	store  Store
	merger Merger
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Pipeline.
func New(cfg Config, client Client, st Store, merger Merger, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MetadataMaxAge <= 0 {
		cfg.MetadataMaxAge = store.DefaultMetadataMaxAge
	}
	return &Pipeline{
		cfg:    cfg,
		client: client,
		store:  st,
		merger: merger,
		logger: logger.With("component", "pipeline"),
		now:    time.Now,
	}
}

// run carries the state of one Fetch.
type run struct {
	id      string
	filters Filters
	qse     store.Set
	points  store.Set
	result  *Result
	logger  *slog.Logger
}

// Fetch ingests every selected report over w. Days before the archive
// cutoff come from archive bundles, the rest from the live API. Batch and
// chunk failures are recorded in the Result; the error is ctx.Err(), a
// setup failure, or ErrNothingIngested.
func (p *Pipeline) Fetch(ctx context.Context, w batch.Window, f Filters) (*Result, error) {
	gs, err := groups(f.Tables)
	if err != nil {
		return nil, err
	}

	r := &run{
		id:      uuid.NewString(),
		filters: f,
		result: &Result{
			Window:  w,
			Live:    make(map[schema.Name]*batch.Summary),
			Archive: make(map[string]*archive.Summary),
			Stored:  make(map[schema.Name]int),
			Started: p.now(),
		},
	}
	r.result.RunID = r.id
	r.logger = p.logger.With("run_id", r.id)
	if len(f.QSENames) > 0 {
		r.qse = store.NewSet(f.QSENames...)
	}

	var past, live *batch.Window
	if p.cfg.ArchiveCutoff.IsZero() {
		live = &w
	} else {
		past, live = w.Split(p.cfg.ArchiveCutoff)
	}

	r.logger.Info("starting fetch", "window", w.String(), "reports", len(f.Tables), "qse_names", len(f.QSENames))

	for _, g := range gs {
		if err := ctx.Err(); err != nil {
			break
		}
		if g.product.ID == archive.SPP.ID && p.cfg.FilterActivePoints {
			if err := p.loadActivePoints(ctx, r); err != nil {
				return r.finish(p.now()), err
			}
		}

		if past != nil {
			sum, err := p.ingestWindow(ctx, r, g, *past)
			if sum != nil {
				r.result.Archive[g.product.ID] = sum
			}
			if err != nil && !errors.Is(err, archive.ErrNoChunkSucceeded) {
				return r.finish(p.now()), err
			}
		}

		if live != nil {
			for _, rep := range g.reports {
				sum, err := p.fetchLive(ctx, r, rep, *live)
				if sum != nil {
					r.result.Live[rep.Table] = sum
				}
				if err != nil && !errors.Is(err, batch.ErrNoBatchSucceeded) {
					return r.finish(p.now()), err
				}
			}
		}
	}

	res := r.finish(p.now())
	r.logger.Info("fetch finished",
		"total_records", res.TotalRecords(),
		"duration", res.Ended.Sub(res.Started).Round(time.Millisecond),
	)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, res.Err()
}

func (r *run) finish(now time.Time) *Result {
	r.result.Ended = now
	return r.result
}

// loadActivePoints reads the award tables' settlement points once per run.
func (p *Pipeline) loadActivePoints(ctx context.Context, r *run) error {
	if r.points != nil {
		return nil
	}
	points, err := p.store.ActiveSettlementPoints(ctx)
	if err != nil {
		return fmt.Errorf("load active settlement points: %w", err)
	}
	r.points = points
	r.logger.Info("active settlement points loaded", "points", len(points))
	return nil
}

// options returns the store options for a table.
func (p *Pipeline) options(r *run, table schema.Name) store.Options {
	t := schema.MustLookup(table)
	opts := store.Options{
		BatchSize:   p.cfg.StoreBatchSize,
		CoarseDedup: p.cfg.CoarseDedup,
	}
	if t.QSEKey != "" {
		opts.QSEFilter = r.qse
	}
	if table == schema.SettlementPointPrices {
		opts.ActivePoints = r.points
		opts.HourlyPrices = p.cfg.AggregateSPPHourly
	}
	return opts
}

// storeRecords stores one slice of records and logs what was dropped.
func (p *Pipeline) storeRecords(ctx context.Context, r *run, table schema.Name, records []model.Record) (store.Result, error) {
	res, err := p.store.Store(ctx, table, records, p.options(r, table))
	if err != nil {
		return res, err
	}
	r.result.Stored[table] += res.Inserted
	return res, nil
}

// fetchLive runs the batcher over one live report.
func (p *Pipeline) fetchLive(ctx context.Context, r *run, rep Report, w batch.Window) (*batch.Summary, error) {
	logger := r.logger.With("table", string(rep.Table))

	// Batches are fetched whole so a batch that fails mid-fetch stores nothing.
	fetch := func(ctx context.Context, b batch.Batch) (batch.Result, error) {
		env, err := p.client.Fetch(ctx, api.FetchParams{
			Endpoint: rep.Endpoint,
			From:     b.Start,
			To:       b.End,
			QSEName:  b.QSE,
		}, nil)
		if err != nil {
			return batch.Result{}, err
		}
		fields := make([]string, len(env.Fields))
		for i, fd := range env.Fields {
			fields[i] = fd.Name
		}
		return batch.Result{Records: env.Data, Fields: fields}, nil
	}

	storeFn := func(ctx context.Context, b batch.Batch, records []model.Record) error {
		res, err := p.storeRecords(ctx, r, rep.Table, records)
		if err != nil {
			return err
		}
		logger.Debug("batch stored", "batch", b.String(), "inserted", res.Inserted, "existing", res.Existing, "invalid", res.Invalid)
		return nil
	}

	opts := []batch.Option{
		batch.WithStore(storeFn),
		batch.WithRunID(r.id),
		batch.WithLogger(logger),
	}

	var qseNames []string
	if schema.MustLookup(rep.Table).QSEKey != "" {
		qseNames = r.filters.QSENames
	}

	if p.cfg.CheckpointDir != "" {
		cp, err := checkpoint.Open(checkpointPath(p.cfg.CheckpointDir, rep.Table))
		if err != nil {
			return nil, err
		}
		if err := cp.Begin(r.id, w.Start.Format(model.DateLayout), w.End.Format(model.DateLayout)); err != nil {
			logger.Warn("checkpoint write failed", "error", err)
		}
		opts = append(opts,
			batch.WithSkip(func(b batch.Batch) bool { return cp.Done(checkpointKeys(b)...) }),
			batch.WithCheckpoint(func(b batch.Batch, o batch.Outcome) {
				var err error
				if o == batch.Failed {
					err = cp.Fail(checkpointKeys(b)...)
				} else {
					err = cp.Complete(checkpointKeys(b)...)
				}
				if err != nil {
					logger.Warn("checkpoint write failed", "batch", b.String(), "error", err)
				}
			}),
		)
	}

	return batch.New(p.cfg.Batch, fetch, opts...).Run(ctx, w, qseNames)
}

func checkpointPath(dir string, table schema.Name) string {
	return filepath.Join(dir, strings.ToLower(string(table))+".json")
}

// checkpointKeys names the dates of a batch, scoped to its QSE.
func checkpointKeys(b batch.Batch) []string {
	dates := b.Dates()
	if b.QSE == "" {
		return dates
	}
	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = b.QSE + ":" + d
	}
	return keys
}

// Merge rebuilds FINAL for w, or entirely when w is nil.
func (p *Pipeline) Merge(ctx context.Context, w *batch.Window) (merge.Report, error) {
	return p.merger.Merge(ctx, w)
}

// Sync fetches w and merges it.
func (p *Pipeline) Sync(ctx context.Context, w batch.Window, f Filters) (*Result, merge.Report, error) {
	res, err := p.Fetch(ctx, w, f)
	if err != nil {
		return res, merge.Report{}, err
	}
	rep, err := p.Merge(ctx, &w)
	return res, rep, err
}
