package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/ercot-data/internal/model"
	"github.com/rickgao/ercot-data/internal/schema"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bidAward(date string, hour int, point, qse, id string) model.Record {
	return model.Record{
		schema.KeyDeliveryDate:    date,
		schema.KeyHourEnding:      hour,
		schema.KeySettlementPoint: point,
		schema.KeyQSEName:         qse,
		schema.KeyBidAwardMW:      "10",
		schema.KeySettlementPrice: "48.0",
		schema.KeyBidID:           id,
	}
}

func TestStoreFiltersAndDedups(t *testing.T) {
	db := newFakeDB()
	db.results["SELECT delivery_date, hour_ending"] = [][]any{
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), int32(1), "SP1", "QSE1", "B-existing"},
	}

	records := []model.Record{
		bidAward("2024-01-01", 1, "SP1", "QSE1", "B1"),
		bidAward("2024-01-01", 1, "SP1", "QSE1", "B1"),         // repeat within batch
		bidAward("2024-01-01", 1, "SP1", "QSE1", "B-existing"), // already stored
		bidAward("2024-01-01", 2, "SP1", "QSE2", "B2"),         // filtered QSE
		bidAward("2024-01-01", 3, "SP9", "QSE1", "B3"),         // inactive point
		bidAward("2024-01-02", 1, "SP2", "QSE1", ""),           // invalid: blank id
		bidAward("2024-01-02", 4, "SP2", "QSE1", "B4"),
	}
	records[5][schema.KeyBidID] = nil

	s := New(db, discard())
	res, err := s.Store(context.Background(), schema.BidAwards, records, Options{
		QSEFilter:    NewSet("QSE1"),
		ActivePoints: NewSet("SP1", "SP2"),
	})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	want := Result{
		Input:          7,
		FilteredQSE:    1,
		FilteredPoints: 1,
		Invalid:        1,
		Existing:       1,
		Duplicate:      1,
		Inserted:       2,
	}
	if res != want {
		t.Errorf("Result = %+v, want %+v", res, want)
	}

	inserts := db.inserts()
	if len(inserts) != 1 {
		t.Fatalf("inserts = %d, want 1", len(inserts))
	}
	if got := len(inserts[0].args); got != 2*7 {
		t.Errorf("insert args = %d, want 14", got)
	}
	if db.begun != 1 || db.committed != 1 {
		t.Errorf("begun = %d, committed = %d, want 1 and 1", db.begun, db.committed)
	}
}

func TestStoreChunksInOneTransaction(t *testing.T) {
	db := newFakeDB()
	var records []model.Record
	for h := 1; h <= 5; h++ {
		records = append(records, bidAward("2024-01-01", h, "SP1", "QSE1", "B"))
	}

	s := New(db, discard())
	res, err := s.Store(context.Background(), schema.BidAwards, records, Options{BatchSize: 2})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if res.Inserted != 5 {
		t.Errorf("Inserted = %d, want 5", res.Inserted)
	}
	if n := len(db.inserts()); n != 3 {
		t.Errorf("insert statements = %d, want 3", n)
	}
	if db.begun != 1 || db.committed != 1 {
		t.Errorf("begun = %d, committed = %d, want 1 and 1", db.begun, db.committed)
	}
}

func TestStoreIsIdempotent(t *testing.T) {
	db := newFakeDB()
	s := New(db, discard())
	records := []model.Record{bidAward("2024-01-01", 1, "SP1", "QSE1", "B1")}

	if _, err := s.Store(context.Background(), schema.BidAwards, records, Options{}); err != nil {
		t.Fatal(err)
	}

	// Second pass sees the row already stored.
	db.results["SELECT delivery_date, hour_ending"] = [][]any{
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), int32(1), "SP1", "QSE1", "B1"},
	}
	res, err := s.Store(context.Background(), schema.BidAwards, records, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Inserted != 0 || res.Existing != 1 {
		t.Errorf("second Store = %+v, want 0 inserted and 1 existing", res)
	}
	if n := len(db.inserts()); n != 1 {
		t.Errorf("insert statements = %d, want 1", n)
	}

	creates := 0
	for _, e := range db.execs {
		if strings.HasPrefix(e, "CREATE TABLE") {
			creates++
		}
	}
	if creates != 1 {
		t.Errorf("CREATE TABLE ran %d times, want 1", creates)
	}
}

func TestStoreCoarseDedup(t *testing.T) {
	db := newFakeDB()
	db.results["SELECT DISTINCT delivery_date"] = [][]any{
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	records := []model.Record{
		bidAward("2024-01-01", 1, "SP1", "QSE1", "B1"),
		bidAward("2024-01-02", 1, "SP1", "QSE1", "B1"),
	}

	s := New(db, discard())
	res, err := s.Store(context.Background(), schema.BidAwards, records, Options{CoarseDedup: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Existing != 1 || res.Inserted != 1 {
		t.Errorf("Result = %+v, want 1 existing and 1 inserted", res)
	}
}

func TestStoreHourlyPrices(t *testing.T) {
	db := newFakeDB()
	var records []model.Record
	for i, price := range []string{"10", "20", "30", "40"} {
		records = append(records, model.Record{
			schema.KeyDeliveryDate:     "2024-01-01",
			schema.KeyDeliveryHour:     1,
			schema.KeyDeliveryInterval: i + 1,
			schema.KeySettlementPoint:  "HB_NORTH",
			schema.KeySettlementPrice:  price,
		})
	}

	s := New(db, discard())
	res, err := s.Store(context.Background(), schema.SettlementPointPrices, records, Options{HourlyPrices: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Inserted != 1 {
		t.Fatalf("Inserted = %d, want 1", res.Inserted)
	}
	args := db.inserts()[0].args
	if args[2] != 0 || args[5] != 25.0 {
		t.Errorf("interval = %v, price = %v, want 0 and 25", args[2], args[5])
	}
}

func TestStoreInsertFailure(t *testing.T) {
	db := newFakeDB()
	db.insertErr = errors.New("unique violation")

	s := New(db, discard())
	_, err := s.Store(context.Background(), schema.BidAwards,
		[]model.Record{bidAward("2024-01-01", 1, "SP1", "QSE1", "B1")}, Options{})

	var dbe *DatabaseError
	if !errors.As(err, &dbe) {
		t.Fatalf("error = %v, want *DatabaseError", err)
	}
	if dbe.Op != "insert" || dbe.Table != schema.BidAwards {
		t.Errorf("DatabaseError = %+v", dbe)
	}
	if db.committed != 0 {
		t.Errorf("committed = %d, want 0", db.committed)
	}
}

func TestStoreSerializesWritesPerTable(t *testing.T) {
	db := newFakeDB()
	db.queryDelay = 20 * time.Millisecond
	s := New(db, discard())

	const callers = 4
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(hour int) {
			defer wg.Done()
			records := []model.Record{bidAward("2024-01-01", hour, "SP1", "QSE1", "B1")}
			if _, err := s.Store(context.Background(), schema.BidAwards, records, Options{}); err != nil {
				errs <- err
			}
		}(i + 1)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Store: %v", err)
	}

	if db.maxOpen != 1 {
		t.Errorf("overlapping key checks = %d, want 1", db.maxOpen)
	}
	if db.committed != callers {
		t.Errorf("committed = %d, want %d", db.committed, callers)
	}
}

func TestStoreRejectsFinal(t *testing.T) {
	s := New(newFakeDB(), discard())
	if _, err := s.Store(context.Background(), schema.Final, []model.Record{{}}, Options{}); err == nil {
		t.Error("expected error storing into FINAL")
	}
}

func TestChunkSize(t *testing.T) {
	tests := []struct {
		batch, width, want int
	}{
		{0, 7, DefaultBatchSize},
		{500, 7, 500},
		{100000, 7, 65535 / 7},
		{5000, 27, 65535 / 27},
	}
	for _, tt := range tests {
		if got := chunkSize(tt.batch, tt.width); got != tt.want {
			t.Errorf("chunkSize(%d, %d) = %d, want %d", tt.batch, tt.width, got, tt.want)
		}
	}
}

func TestActiveSettlementPoints(t *testing.T) {
	t.Run("missing award table disables filtering", func(t *testing.T) {
		db := newFakeDB()
		db.results["SELECT to_regclass"] = [][]any{{false}}

		points, err := New(db, discard()).ActiveSettlementPoints(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(points) != 0 {
			t.Errorf("points = %v, want empty", points)
		}
	})

	t.Run("union of award points", func(t *testing.T) {
		db := newFakeDB()
		db.results["SELECT to_regclass"] = [][]any{{true}}
		db.results["SELECT DISTINCT settlement_point"] = [][]any{{"HB_NORTH"}, {"HB_WEST"}}

		points, err := New(db, discard()).ActiveSettlementPoints(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if !points.Has("HB_NORTH") || !points.Has("HB_WEST") || len(points) != 2 {
			t.Errorf("points = %v", points.Sorted())
		}
	})
}
