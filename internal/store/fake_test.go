package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB records statements and answers queries from canned rows keyed by
// a SQL prefix.
type fakeDB struct {
	mu sync.Mutex

	execs   []string
	queries []string
	txExecs []txExec

	results   map[string][][]any
	insertErr error

	begun     int
	committed int

	// open counts queries not yet followed by a commit and maxOpen is its
	// peak. queryDelay stalls each query after it is counted.
	queryDelay time.Duration
	open       int
	maxOpen    int
}

type txExec struct {
	sql  string
	args []any
}

func newFakeDB() *fakeDB {
	return &fakeDB{results: make(map[string][][]any)}
}

func (f *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begun++
	return &fakeTx{db: f}, nil
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (f *fakeDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	f.mu.Lock()
	f.queries = append(f.queries, sql)
	f.open++
	if f.open > f.maxOpen {
		f.maxOpen = f.open
	}
	rows := &fakeRows{}
	for prefix, data := range f.results {
		if strings.HasPrefix(sql, prefix) {
			rows = &fakeRows{data: data}
			break
		}
	}
	delay := f.queryDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return rows, nil
}

func (f *fakeDB) inserts() []txExec {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []txExec
	for _, e := range f.txExecs {
		if strings.HasPrefix(e.sql, "INSERT") {
			out = append(out, e)
		}
	}
	return out
}

// fakeTx implements the parts of pgx.Tx the store calls.
type fakeTx struct {
	pgx.Tx
	db     *fakeDB
	closed bool
}

func (t *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.db.insertErr != nil && strings.HasPrefix(sql, "INSERT") {
		return pgconn.CommandTag{}, t.db.insertErr
	}
	t.db.txExecs = append(t.db.txExecs, txExec{sql: sql, args: args})
	rows := strings.Count(sql, "), (") + 1
	return pgconn.NewCommandTag(fmt.Sprintf("INSERT 0 %d", rows)), nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.db.committed++
	t.db.open--
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	return nil
}

// fakeRows serves canned rows.
type fakeRows struct {
	pgx.Rows
	data [][]any
	i    int
}

func (r *fakeRows) Next() bool {
	if r.i >= len(r.data) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Values() ([]any, error) { return r.data[r.i-1], nil }

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.i-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan %d values into %d targets", len(row), len(dest))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *bool:
			*p = row[i].(bool)
		case *int64:
			*p = row[i].(int64)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return nil }
