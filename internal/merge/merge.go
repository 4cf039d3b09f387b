package merge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/ercot-data/internal/batch"
	"github.com/rickgao/ercot-data/internal/schema"
)

// DB is the subset of pgxpool.Pool the engine uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Report describes one merge.
type Report struct {
	Window    *batch.Window `json:"window,omitempty"`
	Rows      int           `json:"rows"`
	BidRows   int           `json:"bidRows"`
	OfferRows int           `json:"offerRows"`
	Deleted   int           `json:"deleted"`
	QSEs      int           `json:"qses"`
	Points    int           `json:"settlementPoints"`
	Duration  time.Duration `json:"duration"`
}

// Engine rebuilds FINAL from the fact tables.
type Engine struct {
	db     DB
	logger *slog.Logger
}

// New creates an Engine.
func New(db DB, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{db: db, logger: logger.With("component", "merge")}
}

// CreateFinalTable creates FINAL and the fact tables it reads from. It is
// safe to call repeatedly.
func (e *Engine) CreateFinalTable(ctx context.Context) error {
	tables := append(schema.FactTables(), schema.MustLookup(schema.Final))
	for _, t := range tables {
		for _, stmt := range t.CreateTableSQL() {
			if _, err := e.db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("create %s: %w", t.SQLName, err)
			}
		}
	}
	return nil
}

// Merge replaces the FINAL rows of w, or all of FINAL when w is nil, with
// freshly joined rows. Any error rolls the whole merge back.
func (e *Engine) Merge(ctx context.Context, w *batch.Window) (Report, error) {
	start := time.Now()
	rep := Report{Window: w}

	windowed := w != nil
	var args []any
	if windowed {
		args = []any{w.Start, w.End}
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return rep, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, deleteSQL(windowed), args...)
	if err != nil {
		return rep, fmt.Errorf("clear final: %w", err)
	}
	rep.Deleted = int(tag.RowsAffected())

	for _, s := range sides() {
		tag, err := tx.Exec(ctx, insertSQL(s, windowed), args...)
		if err != nil {
			return rep, fmt.Errorf("merge %s rows: %w", s.source, err)
		}
		n := int(tag.RowsAffected())
		if s.source == SourceBid {
			rep.BidRows = n
		} else {
			rep.OfferRows = n
		}
	}
	rep.Rows = rep.BidRows + rep.OfferRows

	if err := tx.QueryRow(ctx, reportSQL(windowed), args...).Scan(&rep.QSEs, &rep.Points); err != nil {
		return rep, fmt.Errorf("count merged rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return rep, fmt.Errorf("commit merge: %w", err)
	}
	rep.Duration = time.Since(start)

	window := "all"
	if windowed {
		window = w.String()
	}
	e.logger.Info("merge complete",
		"window", window,
		"rows", rep.Rows,
		"bid_rows", rep.BidRows,
		"offer_rows", rep.OfferRows,
		"deleted", rep.Deleted,
		"qses", rep.QSEs,
		"settlement_points", rep.Points,
		"duration", rep.Duration.Round(time.Millisecond),
	)
	return rep, nil
}
