package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/ercot-data/internal/model"
)

// ErrNoBatchSucceeded is returned when every batch of a run failed.
var ErrNoBatchSucceeded = errors.New("no batch succeeded")

// Result is what one fetch produced. Records is empty when the fetch
// streamed its rows elsewhere; Count then reports how many it delivered.
type Result struct {
	Records []model.Record
	Fields  []string
	Count   int
}

// Len returns the number of records the fetch produced.
func (r Result) Len() int {
	if len(r.Records) > 0 {
		return len(r.Records)
	}
	return r.Count
}

// FetchFunc retrieves the records of one batch.
type FetchFunc func(ctx context.Context, b Batch) (Result, error)

// StoreFunc persists the records of one batch as soon as they are fetched.
type StoreFunc func(ctx context.Context, b Batch, records []model.Record) error

// Outcome classifies a finished batch.
type Outcome int

// Batch outcomes.
const (
	Succeeded Outcome = iota
	Empty
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Empty:
		return "empty"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// CheckpointFunc is called after each batch, in completion order.
type CheckpointFunc func(b Batch, o Outcome)

// SkipFunc reports whether a batch was completed by an earlier run.
type SkipFunc func(b Batch) bool

// Config holds runner configuration.
type Config struct {
	BatchDays    int  // days per batch after the first (default: 7)
	MaxDateRange int  // API limit on days per request (default: 100)
	Workers      int  // concurrent fetches (default: 1)
	KeepRecords  bool // accumulate fetched records in the Summary
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchDays:    7,
		MaxDateRange: MaxDateRange,
		Workers:      1,
	}
}

// Runner drives fetch and store over every batch of a window.
type Runner struct {
	cfg        Config
	fetch      FetchFunc
	store      StoreFunc
	checkpoint CheckpointFunc
	skip       SkipFunc
	runID      string
	logger     *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore sets the function that persists each batch.
func WithStore(fn StoreFunc) Option {
	return func(r *Runner) { r.store = fn }
}

// WithCheckpoint sets the per-batch progress callback.
func WithCheckpoint(fn CheckpointFunc) Option {
	return func(r *Runner) { r.checkpoint = fn }
}

// WithSkip sets the predicate for batches to leave out of the run.
func WithSkip(fn SkipFunc) Option {
	return func(r *Runner) { r.skip = fn }
}

// WithRunID sets the run id instead of generating one.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New creates a Runner.
func New(cfg Config, fetch FetchFunc, opts ...Option) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	r := &Runner{
		cfg:    cfg,
		fetch:  fetch,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run fetches and stores every batch of w, once per QSE name when qseNames
// is non-empty. A failed batch is recorded and the run continues. On
// cancellation no further batches are started and the Summary lists the
// batches that were not reached.
//
// The returned error is ctx.Err() after cancellation, ErrNoBatchSucceeded
// when every attempted batch failed, and nil otherwise.
func (r *Runner) Run(ctx context.Context, w Window, qseNames []string) (*Summary, error) {
	plan, err := Plan(w, r.cfg.BatchDays, r.cfg.MaxDateRange)
	if err != nil {
		return nil, err
	}

	jobs := crossQSE(plan, qseNames)
	runID := r.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	sum := &Summary{
		RunID:     runID,
		Window:    w,
		Planned:   len(jobs),
		StartedAt: time.Now(),
	}
	logger := r.logger.With("run_id", sum.RunID)
	logger.Info("starting batch run",
		"window", w.String(),
		"batches", len(plan),
		"qse_names", len(qseNames),
		"workers", r.cfg.Workers,
	)

	var (
		mu     sync.Mutex
		fields = newFieldSet()
	)

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)

	for i, b := range jobs {
		if ctx.Err() != nil {
			mu.Lock()
			sum.Unreached = append(sum.Unreached, jobs[i:]...)
			mu.Unlock()
			break
		}
		if r.skip != nil && r.skip(b) {
			mu.Lock()
			sum.Skipped = append(sum.Skipped, b)
			mu.Unlock()
			continue
		}

		b := b
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				sum.Unreached = append(sum.Unreached, b)
				mu.Unlock()
				return nil
			}

			res, ferr := r.fetch(ctx, b)

			mu.Lock()
			defer mu.Unlock()

			if ferr == nil && r.store != nil && len(res.Records) > 0 {
				ferr = r.store(ctx, b, res.Records)
			}

			var o Outcome
			switch {
			case ferr != nil && ctx.Err() != nil:
				sum.Unreached = append(sum.Unreached, b)
				logger.Warn("batch interrupted", "batch", b.String(), "error", ferr)
				return nil
			case ferr != nil:
				o = Failed
				sum.Failed = append(sum.Failed, FailedBatch{Batch: b, Err: ferr.Error()})
				logger.Error("batch failed", "batch", b.String(), "error", ferr)
			case res.Len() == 0:
				o = Empty
				sum.Empty = append(sum.Empty, b)
				logger.Info("batch empty", "batch", b.String())
			default:
				o = Succeeded
				sum.Successful = append(sum.Successful, b)
				sum.TotalRecords += res.Len()
				fields.add(res.Fields)
				if r.cfg.KeepRecords {
					sum.Records = append(sum.Records, res.Records...)
				}
				logger.Info("batch stored", "batch", b.String(), "records", res.Len())
			}

			if r.checkpoint != nil {
				r.checkpoint(b, o)
			}
			return nil
		})
	}

	// Goroutines never return errors; failures are recorded in the summary.
	_ = g.Wait()

	sum.Fields = fields.list()
	sortBatches(sum.Unreached)
	sum.FinishedAt = time.Now()
	sum.sort()

	logger.Info("batch run finished",
		"total_records", sum.TotalRecords,
		"successful", len(sum.Successful),
		"empty", len(sum.Empty),
		"failed", len(sum.Failed),
		"skipped", len(sum.Skipped),
		"unreached", len(sum.Unreached),
		"avg_per_batch", fmt.Sprintf("%.1f", sum.AveragePerBatch()),
		"duration", sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond),
	)

	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, sum.Err()
}

// crossQSE repeats the plan once per QSE name, names in sorted order.
func crossQSE(plan []Batch, qseNames []string) []Batch {
	if len(qseNames) == 0 {
		return plan
	}
	names := append([]string(nil), qseNames...)
	sort.Strings(names)

	jobs := make([]Batch, 0, len(plan)*len(names))
	for _, name := range names {
		for _, b := range plan {
			b.QSE = name
			jobs = append(jobs, b)
		}
	}
	return jobs
}

// fieldSet keeps field names in first-seen order.
type fieldSet struct {
	seen  map[string]struct{}
	order []string
}

func newFieldSet() *fieldSet {
	return &fieldSet{seen: make(map[string]struct{})}
}

func (f *fieldSet) add(names []string) {
	for _, n := range names {
		if _, ok := f.seen[n]; ok {
			continue
		}
		f.seen[n] = struct{}{}
		f.order = append(f.order, n)
	}
}

func (f *fieldSet) list() []string { return f.order }
