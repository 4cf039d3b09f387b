package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestListArchives(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/archive/np3-966-er" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/archive/np3-966-er")
		}
		q := r.URL.Query()
		if got := q.Get("postDatetimeFrom"); got != "2024-01-01T00:00:00.000" {
			t.Errorf("postDatetimeFrom = %q", got)
		}
		if got := q.Get("postDatetimeTo"); got != "2024-01-31T23:59:59.999" {
			t.Errorf("postDatetimeTo = %q", got)
		}

		page := q.Get("page")
		id := 100
		if page == "2" {
			id = 200
		}
		fmt.Fprintf(w, `{
			"_meta":{"totalPages":2,"currentPage":%s},
			"archives":[{"docId":%d,"friendlyName":"60d_DAM_%d","postDatetime":"2024-01-02T10:00:00",
				"_links":{"endpoint":{"href":"https://example.com/doc/%d"}}}]
		}`, page, id, id, id)
	}))
	defer server.Close()

	c := newTestClient(server.URL, newFakeClock())
	docs, err := c.ListArchives(context.Background(), "NP3-966-ER",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}
	if docs[1].DocID != 200 || docs[1].DownloadURL != "https://example.com/doc/200" {
		t.Errorf("docs[1] = %+v", docs[1])
	}
	if docs[0].FriendlyName != "60d_DAM_100" || docs[0].PostDatetime != "2024-01-02T10:00:00" {
		t.Errorf("docs[0] = %+v", docs[0])
	}
}

func TestListArchivesEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"_meta":{"totalPages":5},"archives":[]}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, newFakeClock())
	docs, err := c.ListArchives(context.Background(), "NP6-905-CD", time.Now(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("docs = %d, want 0", len(docs))
	}
}

func TestDownloadBundle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/archive/np6-905-cd/download" {
			t.Errorf("path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			DocIDs []int64 `json:"docIds"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(req.DocIDs) != 2 || req.DocIDs[0] != 1 || req.DocIDs[1] != 2 {
			t.Errorf("docIds = %v, want [1 2]", req.DocIDs)
		}
		w.Write([]byte("PK\x03\x04zip"))
	}))
	defer server.Close()

	c := newTestClient(server.URL, newFakeClock())
	data, err := c.DownloadBundle(context.Background(), "NP6-905-CD", []int64{1, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "PK\x03\x04zip" {
		t.Errorf("body = %q", data)
	}

	if _, err := c.DownloadBundle(context.Background(), "NP6-905-CD", nil); err == nil {
		t.Error("expected error for empty doc ids")
	}
}
