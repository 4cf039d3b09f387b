package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/ercot-data/internal/model"
	"github.com/rickgao/ercot-data/internal/normalize"
	"github.com/rickgao/ercot-data/internal/schema"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// maxParams is the Postgres limit on bind parameters per statement.
const maxParams = 65535

// DefaultBatchSize is the number of rows per INSERT statement.
const DefaultBatchSize = 1000

// Set is a string membership set. A nil or empty Set disables the filter
// it is passed to.
type Set map[string]struct{}

// NewSet returns a Set holding values.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Has reports whether v is in the set.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Options controls one Store call.
type Options struct {
	QSEFilter    Set  // keep only rows whose QSE is a member
	ActivePoints Set  // keep only rows whose settlement point is a member
	BatchSize    int  // rows per INSERT (default: DefaultBatchSize)
	CoarseDedup  bool // drop rows whose delivery date already exists
	HourlyPrices bool // average settlement point prices per hour before insert
}

// Result counts what happened to the records of one Store call.
type Result struct {
	Input          int
	FilteredQSE    int
	FilteredPoints int
	Invalid        int
	Existing       int
	Duplicate      int
	Inserted       int
}

// Store writes canonical records into the fact tables.
type Store struct {
	db     DB
	logger *slog.Logger

	mu      sync.Mutex
	ensured map[schema.Name]bool
	writes  map[schema.Name]*sync.Mutex
}

// New creates a Store.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:      db,
		logger:  logger,
		ensured: make(map[schema.Name]bool),
		writes:  make(map[schema.Name]*sync.Mutex),
	}
}

// writeLock returns the mutex that serializes the dedup read and insert for
// one table.
func (s *Store) writeLock(name schema.Name) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.writes[name]
	if !ok {
		m = new(sync.Mutex)
		s.writes[name] = m
	}
	return m
}

// EnsureTable creates the table and its indexes if they do not exist. The
// DDL runs at most once per table per Store.
func (s *Store) EnsureTable(ctx context.Context, name schema.Name) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensured[name] {
		return nil
	}
	t, err := schema.Lookup(name)
	if err != nil {
		return err
	}
	for _, stmt := range t.CreateTableSQL() {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return dbErr("create", name, err)
		}
	}
	s.ensured[name] = true
	return nil
}

// Store filters, validates and deduplicates records, then inserts them in
// one transaction. Records must already be normalized for the table.
//
// Rows failing validation are dropped and logged. Rows whose business key
// is already stored, or repeats earlier in the same call, are dropped.
// A *DatabaseError aborts the call with nothing committed. Calls for the
// same table are serialized from the dedup read through commit.
func (s *Store) Store(ctx context.Context, name schema.Name, records []model.Record, opts Options) (Result, error) {
	res := Result{Input: len(records)}
	if len(records) == 0 {
		return res, nil
	}

	t, err := schema.Lookup(name)
	if err != nil {
		return res, err
	}
	if !t.IsFact() {
		return res, fmt.Errorf("store into %s: not a fact table", name)
	}
	if err := s.EnsureTable(ctx, name); err != nil {
		return res, err
	}

	logger := s.logger.With("table", string(name))

	records = filterRecords(records, t.QSEKey, opts.QSEFilter, &res.FilteredQSE)
	records = filterRecords(records, t.PointKey, opts.ActivePoints, &res.FilteredPoints)

	rows := s.build(logger, t, records, &res)
	if opts.HourlyPrices && name == schema.SettlementPointPrices {
		rows = averageHourly(rows)
	}

	// Concurrent calls for one table would otherwise both pass the
	// existing-key check and insert the same rows.
	lock := s.writeLock(name)
	lock.Lock()
	defer lock.Unlock()

	if len(rows) > 0 {
		rows, err = s.dropExisting(ctx, t, rows, opts.CoarseDedup, &res)
		if err != nil {
			return res, err
		}
	}
	rows = dedupRows(rows, &res.Duplicate)

	if len(rows) == 0 {
		logger.Info("nothing to insert",
			"input", res.Input,
			"invalid", res.Invalid,
			"existing", res.Existing,
			"filtered", res.FilteredQSE+res.FilteredPoints,
		)
		return res, nil
	}

	inserted, err := s.insert(ctx, t, rows, opts.BatchSize)
	if err != nil {
		return res, err
	}
	res.Inserted = inserted

	logger.Info("stored records",
		"input", res.Input,
		"inserted", res.Inserted,
		"invalid", res.Invalid,
		"existing", res.Existing,
		"duplicate", res.Duplicate,
		"filtered_qse", res.FilteredQSE,
		"filtered_points", res.FilteredPoints,
	)
	return res, nil
}

// filterRecords keeps records whose key value is in set. A record without
// the key is dropped. An empty set keeps everything.
func filterRecords(records []model.Record, key string, set Set, dropped *int) []model.Record {
	if key == "" || len(set) == 0 {
		return records
	}
	out := records[:0:0]
	for _, rec := range records {
		v, err := model.ParseText(rec[key])
		if err == nil && set.Has(v) {
			out = append(out, rec)
			continue
		}
		*dropped++
	}
	return out
}

// build projects each record onto the table columns and constructs the
// validated row.
func (s *Store) build(logger *slog.Logger, t *schema.Table, records []model.Record, res *Result) []model.Row {
	rows := make([]model.Row, 0, len(records))
	unknown := make(map[string]struct{})

	for _, rec := range records {
		projected, dropped := normalize.Project(rec, t)
		for _, k := range dropped {
			unknown[k] = struct{}{}
		}

		row, err := model.New(t.Name, projected)
		if err != nil {
			res.Invalid++
			logger.Debug("dropping invalid record", "error", err)
			continue
		}
		rows = append(rows, row)
	}

	if len(unknown) > 0 {
		logger.Debug("ignored unknown keys", "keys", Set(unknown).Sorted())
	}
	if res.Invalid > 0 {
		logger.Warn("dropped invalid records", "count", res.Invalid)
	}
	return rows
}

// dropExisting removes rows already present in the table for the dates in
// rows: by business key, or by date alone when coarse is set.
func (s *Store) dropExisting(ctx context.Context, t *schema.Table, rows []model.Row, coarse bool, res *Result) ([]model.Row, error) {
	dates := distinctDates(rows)

	if coarse {
		existing, err := s.existingDates(ctx, t, dates)
		if err != nil {
			return nil, err
		}
		out := rows[:0:0]
		for _, r := range rows {
			if existing[r.Date().Format(model.DateLayout)] {
				res.Existing++
				continue
			}
			out = append(out, r)
		}
		return out, nil
	}

	existing, err := s.ExistingKeys(ctx, t.Name, dates)
	if err != nil {
		return nil, err
	}
	out := rows[:0:0]
	for _, r := range rows {
		if _, ok := existing[r.Key()]; ok {
			res.Existing++
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// ExistingKeys returns the business keys stored in table for dates.
func (s *Store) ExistingKeys(ctx context.Context, name schema.Name, dates []time.Time) (map[model.Key]struct{}, error) {
	t, err := schema.Lookup(name)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, t.ExistingKeysSQL(), dates)
	if err != nil {
		return nil, dbErr("query keys", name, err)
	}
	defer rows.Close()

	keys := make(map[model.Key]struct{})
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, dbErr("scan keys", name, err)
		}
		keys[model.KeyOf(vals...)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("query keys", name, err)
	}
	return keys, nil
}

func (s *Store) existingDates(ctx context.Context, t *schema.Table, dates []time.Time) (map[string]bool, error) {
	rows, err := s.db.Query(ctx, t.ExistingDatesSQL(), dates)
	if err != nil {
		return nil, dbErr("query dates", t.Name, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, dbErr("scan dates", t.Name, err)
		}
		out[d.Format(model.DateLayout)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("query dates", t.Name, err)
	}
	return out, nil
}

// insert writes rows in chunks inside one transaction and returns the
// number of rows the database accepted.
func (s *Store) insert(ctx context.Context, t *schema.Table, rows []model.Row, batchSize int) (int, error) {
	size := chunkSize(batchSize, len(t.Columns))

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, dbErr("begin", t.Name, err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		chunk := rows[start:end]

		args := make([]any, 0, len(chunk)*len(t.Columns))
		for _, r := range chunk {
			args = append(args, r.Values()...)
		}

		tag, err := tx.Exec(ctx, t.InsertSQL(len(chunk)), args...)
		if err != nil {
			return 0, dbErr("insert", t.Name, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, dbErr("commit", t.Name, err)
	}
	return inserted, nil
}

// chunkSize clamps the requested rows per statement to the bind parameter
// limit.
func chunkSize(batchSize, width int) int {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if width > 0 && batchSize*width > maxParams {
		batchSize = maxParams / width
	}
	return batchSize
}

func distinctDates(rows []model.Row) []time.Time {
	seen := make(map[string]bool)
	var out []time.Time
	for _, r := range rows {
		k := r.Date().Format(model.DateLayout)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r.Date())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// dedupRows keeps the first row of each business key.
func dedupRows(rows []model.Row, dropped *int) []model.Row {
	seen := make(map[model.Key]struct{}, len(rows))
	out := rows[:0:0]
	for _, r := range rows {
		k := r.Key()
		if _, ok := seen[k]; ok {
			*dropped++
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

func averageHourly(rows []model.Row) []model.Row {
	prices := make([]model.SettlementPointPrice, 0, len(rows))
	for _, r := range rows {
		if p, ok := r.(model.SettlementPointPrice); ok {
			prices = append(prices, p)
		}
	}
	avg := normalize.AverageHourly(prices)
	out := make([]model.Row, len(avg))
	for i, p := range avg {
		out[i] = p
	}
	return out
}

// ActiveSettlementPoints returns the settlement points referenced by the
// bid award and offer award tables. The set is empty when either table
// does not exist yet, which disables point filtering.
func (s *Store) ActiveSettlementPoints(ctx context.Context) (Set, error) {
	bids := schema.MustLookup(schema.BidAwards)
	offers := schema.MustLookup(schema.OfferAwards)

	for _, t := range []*schema.Table{bids, offers} {
		ok, err := s.tableExists(ctx, t.SQLName)
		if err != nil {
			return nil, err
		}
		if !ok {
			return Set{}, nil
		}
	}

	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s UNION SELECT DISTINCT %s FROM %s",
		bids.ColumnName(bids.PointKey), bids.SQLName,
		offers.ColumnName(offers.PointKey), offers.SQLName,
	)
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, dbErr("query active points", "", err)
	}
	defer rows.Close()

	out := Set{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, dbErr("scan active points", "", err)
		}
		out[p] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("query active points", "", err)
	}
	s.logger.Info("loaded active settlement points", "count", len(out))
	return out, nil
}

func (s *Store) tableExists(ctx context.Context, table string) (bool, error) {
	rows, err := s.db.Query(ctx, "SELECT to_regclass($1) IS NOT NULL", table)
	if err != nil {
		return false, dbErr("check table", schema.Name(table), err)
	}
	defer rows.Close()

	var ok bool
	if rows.Next() {
		if err := rows.Scan(&ok); err != nil {
			return false, dbErr("check table", schema.Name(table), err)
		}
	}
	return ok, rows.Err()
}
