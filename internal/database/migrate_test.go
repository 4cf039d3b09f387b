package database

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

type recordingExec struct {
	stmts []string
	err   error
}

func (r *recordingExec) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	r.stmts = append(r.stmts, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func TestEnsureTables(t *testing.T) {
	db := &recordingExec{}
	if err := EnsureTables(context.Background(), db); err != nil {
		t.Fatal(err)
	}

	for _, table := range []string{"bids", "bid_awards", "offers", "offer_awards", "settlement_point_prices", "final"} {
		found := false
		for _, s := range db.stmts {
			if strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS "+table+" (") {
				found = true
			}
		}
		if !found {
			t.Errorf("no CREATE TABLE for %s", table)
		}
	}
}

func TestEnsureTablesError(t *testing.T) {
	db := &recordingExec{err: errors.New("permission denied")}
	if err := EnsureTables(context.Background(), db); err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("err = %v", err)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(migrations, migrationsDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Fatal("no embedded migrations")
	}

	data, err := fs.ReadFile(migrations, migrationsDir+"/"+entries[0].Name())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"-- +goose Up", "-- +goose Down", "metadata_cache_status", "dam_metadata", "spp_metadata"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("migration missing %q", want)
		}
	}
}
