package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/ercot-data/internal/api"
	"github.com/rickgao/ercot-data/internal/batch"
	"github.com/rickgao/ercot-data/internal/merge"
	"github.com/rickgao/ercot-data/internal/model"
	"github.com/rickgao/ercot-data/internal/schema"
	"github.com/rickgao/ercot-data/internal/store"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func date(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

type fakeClient struct {
	mu        sync.Mutex
	fetches   []api.FetchParams
	listed    int
	downloads [][]int64
	fetchErr  error
	docs      []api.ArchiveDocument
	bundle    []byte
}

func (c *fakeClient) Fetch(_ context.Context, p api.FetchParams, _ api.RecordSink) (*api.Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches = append(c.fetches, p)
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	return &api.Envelope{
		Fields: []api.Field{{Name: "deliveryDate"}},
		Data:   []model.Record{{"deliveryDate": p.From.Format(model.DateLayout)}},
	}, nil
}

// ListArchives returns docs posted in [from, to]. Docs without a post
// time are always listed.
func (c *fakeClient) ListArchives(_ context.Context, _ string, from, to time.Time) ([]api.ArchiveDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listed++
	return postedIn(c.docs, from, to), nil
}

func postedIn(docs []api.ArchiveDocument, from, to time.Time) []api.ArchiveDocument {
	var out []api.ArchiveDocument
	for _, d := range docs {
		if d.PostDatetime != "" {
			day := date(d.PostDatetime[:10])
			if day.Before(from) || day.After(to) {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

func (c *fakeClient) DownloadBundle(_ context.Context, _ string, ids []int64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloads = append(c.downloads, ids)
	return c.bundle, nil
}

type storeCall struct {
	table schema.Name
	n     int
	opts  store.Options
}

type fakeStore struct {
	mu       sync.Mutex
	calls    []storeCall
	points   store.Set
	status   store.CacheStatus
	statusOK bool
	cached   []api.ArchiveDocument
	saved    int
}

func (s *fakeStore) Store(_ context.Context, name schema.Name, records []model.Record, opts store.Options) (store.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, storeCall{table: name, n: len(records), opts: opts})
	return store.Result{Input: len(records), Inserted: len(records)}, nil
}

func (s *fakeStore) ActiveSettlementPoints(context.Context) (store.Set, error) {
	return s.points, nil
}

func (s *fakeStore) MetadataStatus(context.Context, store.CacheType) (store.CacheStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.statusOK, nil
}

func (s *fakeStore) CachedArchives(_ context.Context, _ store.CacheType, from, to time.Time) ([]api.ArchiveDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return postedIn(s.cached, from, to), nil
}

// SaveArchives upserts by doc id and records st, like store.Store.
func (s *fakeStore) SaveArchives(_ context.Context, _ store.CacheType, docs []api.ArchiveDocument, st store.CacheStatus, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved += len(docs)
	for _, d := range docs {
		replaced := false
		for i := range s.cached {
			if s.cached[i].DocID == d.DocID {
				s.cached[i], replaced = d, true
			}
		}
		if !replaced {
			s.cached = append(s.cached, d)
		}
	}
	s.status, s.statusOK = st, true
	return nil
}

func (s *fakeStore) tables() map[schema.Name]int {
	out := make(map[schema.Name]int)
	for _, c := range s.calls {
		out[c.table] += c.n
	}
	return out
}

type fakeMerger struct{ windows []*batch.Window }

func (m *fakeMerger) Merge(_ context.Context, w *batch.Window) (merge.Report, error) {
	m.windows = append(m.windows, w)
	return merge.Report{Rows: 7}, nil
}

func bundleOf(t *testing.T, csvName, body string) []byte {
	t.Helper()
	build := func(name string, data []byte) []byte {
		var buf bytes.Buffer
		w := zip.NewWriter(&buf)
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}
	return build("doc.zip", build(csvName, []byte(body)))
}

func TestGroups(t *testing.T) {
	gs, err := groups(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(gs) != 2 || len(gs[0].reports) != 4 || len(gs[1].reports) != 1 {
		t.Fatalf("groups = %+v", gs)
	}
	if gs[0].product.ID != "NP3-966-ER" || gs[1].product.ID != "NP6-905-CD" {
		t.Errorf("products = %s, %s", gs[0].product.ID, gs[1].product.ID)
	}

	gs, err = groups([]schema.Name{schema.SettlementPointPrices, schema.Bids})
	if err != nil {
		t.Fatal(err)
	}
	if len(gs) != 2 || gs[0].reports[0].Table != schema.Bids {
		t.Errorf("selected groups = %+v", gs)
	}

	if _, err := groups([]schema.Name{schema.Final}); !errors.Is(err, schema.ErrUnknownTable) {
		t.Errorf("err = %v, want ErrUnknownTable", err)
	}
}

func TestGroupRouteHonorsSelection(t *testing.T) {
	gs, err := groups([]schema.Name{schema.BidAwards})
	if err != nil {
		t.Fatal(err)
	}
	route := gs[0].route()
	if table, reason := route("60d_DAM_EnergyBidAwards-x.csv"); table != schema.BidAwards || reason != "" {
		t.Errorf("route(awards) = %q, %q", table, reason)
	}
	if _, reason := route("60d_DAM_EnergyBids-x.csv"); reason != ReasonNotSelected {
		t.Errorf("route(bids) reason = %q, want %q", reason, ReasonNotSelected)
	}
}

func TestCheckpointKeys(t *testing.T) {
	b := batch.Batch{Start: date("2024-01-01"), End: date("2024-01-02")}
	if got := checkpointKeys(b); len(got) != 2 || got[0] != "2024-01-01" {
		t.Errorf("checkpointKeys = %v", got)
	}
	b.QSE = "QSE1"
	if got := checkpointKeys(b); got[1] != "QSE1:2024-01-02" {
		t.Errorf("checkpointKeys with QSE = %v", got)
	}
}

func TestFetchLive(t *testing.T) {
	client := &fakeClient{}
	st := &fakeStore{points: store.NewSet("HB_NORTH")}
	cfg := DefaultConfig()
	cfg.FilterActivePoints = true
	p := New(cfg, client, st, &fakeMerger{}, discard())

	w, _ := batch.NewWindow(date("2024-01-01"), date("2024-01-02"))
	res, err := p.Fetch(context.Background(), w, Filters{
		Tables:   []schema.Name{schema.BidAwards, schema.SettlementPointPrices},
		QSENames: []string{"QSE1"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	// Two single-day batches per report.
	if len(client.fetches) != 4 {
		t.Fatalf("fetches = %d, want 4", len(client.fetches))
	}
	for _, f := range client.fetches[:2] {
		if f.Endpoint != "np3-966-er/60_dam_energy_bid_awards" || f.QSEName != "QSE1" {
			t.Errorf("award fetch = %+v", f)
		}
	}
	for _, f := range client.fetches[2:] {
		if f.Endpoint != "np6-905-cd/spp_node_zone_hub" || f.QSEName != "" {
			t.Errorf("price fetch = %+v", f)
		}
	}

	for _, c := range st.calls {
		switch c.table {
		case schema.BidAwards:
			if !c.opts.QSEFilter.Has("QSE1") || c.opts.ActivePoints != nil {
				t.Errorf("award options = %+v", c.opts)
			}
		case schema.SettlementPointPrices:
			if c.opts.QSEFilter != nil || !c.opts.ActivePoints.Has("HB_NORTH") {
				t.Errorf("price options = %+v", c.opts)
			}
		}
	}

	if res.Stored[schema.BidAwards] != 2 || res.Stored[schema.SettlementPointPrices] != 2 {
		t.Errorf("stored = %v", res.Stored)
	}
	if res.TotalRecords() != 4 || len(res.Archive) != 0 {
		t.Errorf("total = %d, archive summaries = %d", res.TotalRecords(), len(res.Archive))
	}
	if s := res.Live[schema.BidAwards]; s.RunID != res.RunID {
		t.Errorf("live run id = %q, want %q", s.RunID, res.RunID)
	}
}

func TestFetchSplitsAtArchiveCutoff(t *testing.T) {
	client := &fakeClient{
		docs:   []api.ArchiveDocument{{DocID: 11}, {DocID: 12}},
		bundle: bundleOf(t, "60d_DAM_EnergyBids-x.csv", "Delivery Date,Hour Ending,Settlement Point,QSE Name,Bid ID\n01/01/2024,1,HB_NORTH,QSE1,B1\n"),
	}
	st := &fakeStore{}
	cfg := DefaultConfig()
	cfg.ArchiveCutoff = date("2024-01-03")
	p := New(cfg, client, st, &fakeMerger{}, discard())

	w, _ := batch.NewWindow(date("2024-01-01"), date("2024-01-03"))
	res, err := p.Fetch(context.Background(), w, Filters{Tables: []schema.Name{schema.Bids}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if client.listed != 1 || st.saved != 2 {
		t.Errorf("listed = %d, cached = %d, want 1 and 2", client.listed, st.saved)
	}
	if len(client.downloads) != 1 || len(client.downloads[0]) != 2 {
		t.Errorf("downloads = %v", client.downloads)
	}
	if len(client.fetches) != 1 || !client.fetches[0].From.Equal(date("2024-01-03")) {
		t.Errorf("live fetches = %+v, want one for the cutoff day", client.fetches)
	}
	if sum := res.Archive["NP3-966-ER"]; sum == nil || sum.Files != 1 {
		t.Errorf("archive summary = %+v", sum)
	}
	if got := st.tables()[schema.Bids]; got != 2 {
		t.Errorf("bid rows stored = %d, want 2 (1 archive + 1 live)", got)
	}
}

func TestArchiveDocumentsFromFreshCache(t *testing.T) {
	client := &fakeClient{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{
		status: store.CacheStatus{
			LastUpdated: now.Add(-time.Hour),
			Complete:    true,
			From:        date("2024-01-01"),
			To:          date("2024-01-31"),
		},
		statusOK: true,
		cached:   []api.ArchiveDocument{{DocID: 5}},
	}
	p := New(DefaultConfig(), client, st, &fakeMerger{}, discard())
	p.now = func() time.Time { return now }

	gs, _ := groups(nil)
	r := &run{logger: discard()}
	w, _ := batch.NewWindow(date("2024-01-01"), date("2024-01-02"))
	docs, err := p.archiveDocuments(context.Background(), r, gs[0], w)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || client.listed != 0 {
		t.Errorf("docs = %v, listed = %d, want cache hit", docs, client.listed)
	}

	st.status.LastUpdated = now.Add(-48 * time.Hour)
	if _, err := p.archiveDocuments(context.Background(), r, gs[0], w); err != nil {
		t.Fatal(err)
	}
	if client.listed != 1 {
		t.Errorf("listed = %d, want 1 after the cache went stale", client.listed)
	}
}

func TestArchiveCacheWidensToNewWindow(t *testing.T) {
	client := &fakeClient{
		docs: []api.ArchiveDocument{
			{DocID: 1, PostDatetime: "2024-01-02T10:00:00"},
			{DocID: 2, PostDatetime: "2024-01-08T10:00:00"},
		},
		bundle: bundleOf(t, "60d_DAM_EnergyBids-x.csv", "Delivery Date,Hour Ending,Settlement Point,QSE Name,Bid ID\n01/01/2024,1,HB_NORTH,QSE1,B1\n"),
	}
	st := &fakeStore{}
	cfg := DefaultConfig()
	cfg.ArchiveCutoff = date("2024-02-01")
	p := New(cfg, client, st, &fakeMerger{}, discard())
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	filters := Filters{Tables: []schema.Name{schema.Bids}}

	narrow, _ := batch.NewWindow(date("2024-01-01"), date("2024-01-03"))
	if _, err := p.Fetch(context.Background(), narrow, filters); err != nil {
		t.Fatalf("first Fetch: %v", err)
	}

	wide, _ := batch.NewWindow(date("2024-01-01"), date("2024-01-10"))
	if _, err := p.Fetch(context.Background(), wide, filters); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}

	if client.listed != 2 {
		t.Errorf("listed = %d, want 2 (the cache did not cover the wider window)", client.listed)
	}
	if len(client.downloads) != 2 || len(client.downloads[1]) != 2 {
		t.Fatalf("downloads = %v, want the second run to fetch docs 1 and 2", client.downloads)
	}
	if !st.status.From.Equal(date("2024-01-01")) || !st.status.To.Equal(date("2024-01-10")) {
		t.Errorf("covered = %v..%v, want 2024-01-01..2024-01-10", st.status.From, st.status.To)
	}

	// The widened range now serves both windows without listing.
	inner, _ := batch.NewWindow(date("2024-01-05"), date("2024-01-09"))
	if _, err := p.Fetch(context.Background(), inner, filters); err != nil {
		t.Fatalf("third Fetch: %v", err)
	}
	if client.listed != 2 {
		t.Errorf("listed = %d after a covered window, want 2", client.listed)
	}
	if got := client.downloads[len(client.downloads)-1]; len(got) != 1 || got[0] != 2 {
		t.Errorf("third run downloaded %v, want [2]", got)
	}
}

func TestFetchResumesFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.CheckpointDir = dir
	w, _ := batch.NewWindow(date("2024-01-01"), date("2024-01-02"))
	filters := Filters{Tables: []schema.Name{schema.SettlementPointPrices}}

	first := &fakeClient{}
	if _, err := New(cfg, first, &fakeStore{}, &fakeMerger{}, discard()).Fetch(context.Background(), w, filters); err != nil {
		t.Fatal(err)
	}
	if len(first.fetches) != 2 {
		t.Fatalf("first run fetches = %d, want 2", len(first.fetches))
	}

	second := &fakeClient{}
	res, err := New(cfg, second, &fakeStore{}, &fakeMerger{}, discard()).Fetch(context.Background(), w, filters)
	if err != nil {
		t.Fatal(err)
	}
	if len(second.fetches) != 0 {
		t.Errorf("second run fetches = %d, want 0", len(second.fetches))
	}
	if got := len(res.Live[schema.SettlementPointPrices].Skipped); got != 2 {
		t.Errorf("skipped = %d, want 2", got)
	}
}

func TestFetchNothingIngested(t *testing.T) {
	client := &fakeClient{fetchErr: errors.New("bad gateway")}
	p := New(DefaultConfig(), client, &fakeStore{}, &fakeMerger{}, discard())
	w, _ := batch.NewWindow(date("2024-01-01"), date("2024-01-01"))

	res, err := p.Fetch(context.Background(), w, Filters{Tables: []schema.Name{schema.Bids, schema.Offers}})
	if !errors.Is(err, ErrNothingIngested) {
		t.Fatalf("err = %v, want ErrNothingIngested", err)
	}
	if len(res.Live) != 2 {
		t.Errorf("live summaries = %d, want 2", len(res.Live))
	}
}

func TestSyncMergesWindow(t *testing.T) {
	m := &fakeMerger{}
	p := New(DefaultConfig(), &fakeClient{}, &fakeStore{}, m, discard())
	w, _ := batch.NewWindow(date("2024-01-01"), date("2024-01-01"))

	_, rep, err := p.Sync(context.Background(), w, Filters{Tables: []schema.Name{schema.Bids}})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Rows != 7 || len(m.windows) != 1 || *m.windows[0] != w {
		t.Errorf("merge report = %+v, windows = %v", rep, m.windows)
	}
}

func TestIngestArchive(t *testing.T) {
	client := &fakeClient{
		bundle: bundleOf(t, "cdr.SPP_20240101_0015.csv", "DeliveryDate,DeliveryHour,DeliveryInterval,SettlementPointName,SettlementPointPrice\n01/01/2024,1,1,HB_NORTH,25\n"),
	}
	st := &fakeStore{}
	p := New(DefaultConfig(), client, st, &fakeMerger{}, discard())

	sum, err := p.IngestArchive(context.Background(), "NP6-905-CD", []int64{1, 2}, Filters{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Inserted != 1 || st.tables()[schema.SettlementPointPrices] != 1 {
		t.Errorf("summary = %+v", sum)
	}

	if _, err := p.IngestArchive(context.Background(), "NP0-000", nil, Filters{}); err == nil {
		t.Error("expected error for unknown product")
	}
}
