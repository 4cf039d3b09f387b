package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/ercot-data/internal/model"
	"github.com/rickgao/ercot-data/internal/normalize"
	"github.com/rickgao/ercot-data/internal/schema"
)

// ErrNoChunkSucceeded is returned when every download chunk of a run failed.
var ErrNoChunkSucceeded = errors.New("no archive chunk succeeded")

// Downloader fetches a bundle of archive documents as one zip.
type Downloader interface {
	DownloadBundle(ctx context.Context, product string, docIDs []int64) ([]byte, error)
}

// Sink stores the normalized rows of one CSV file and returns the number of
// rows inserted. Rows already stored must be dropped by the sink.
type Sink func(ctx context.Context, table schema.Name, file string, records []model.Record) (int, error)

// Config holds processor configuration.
type Config struct {
	ParseWorkers int            // concurrent CSV parsers (default: 4)
	BatchSizes   map[string]int // per product id, overrides Product.MaxBatch
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{ParseWorkers: 4}
}

// Processor downloads archive bundles and feeds their CSVs to a Sink.
type Processor struct {
	cfg    Config
	dl     Downloader
	sink   Sink
	logger *slog.Logger
}

// New creates a Processor.
func New(cfg Config, dl Downloader, sink Sink, logger *slog.Logger) *Processor {
	if cfg.ParseWorkers <= 0 {
		cfg.ParseWorkers = DefaultConfig().ParseWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cfg:    cfg,
		dl:     dl,
		sink:   sink,
		logger: logger.With("component", "archive"),
	}
}

// entry is a routed CSV inside a nested zip.
type entry struct {
	name  string
	table schema.Name
	file  *zip.File
}

// parsed is a parse result on its way to the writer.
type parsed struct {
	entry
	records []model.Record
	reason  string
	err     error
}

// Process downloads docIDs in chunks of the product's batch size and stores every
// routed CSV. A failed chunk is recorded and the run continues. The returned
// error is the sink's error, ctx.Err() after cancellation, or
// ErrNoChunkSucceeded when all chunks failed.
func (p *Processor) Process(ctx context.Context, product Product, docIDs []int64) (*Summary, error) {
	sum := newSummary(product.ID, len(docIDs))
	logger := p.logger.With("run_id", sum.RunID, "product", product.ID)

	size := product.MaxBatch
	if n := p.cfg.BatchSizes[product.ID]; n > 0 {
		size = n
	}
	chunks := chunkIDs(docIDs, size)
	logger.Info("starting archive ingest", "documents", len(docIDs), "chunks", len(chunks))

	for i, chunk := range chunks {
		if ctx.Err() != nil {
			sum.unreach(chunks[i:])
			break
		}
		sum.Chunks++

		data, err := p.dl.DownloadBundle(ctx, product.ID, chunk)
		if err != nil {
			if ctx.Err() != nil {
				sum.unreach(chunks[i:])
				break
			}
			sum.fail(chunk, err)
			logger.Error("archive download failed", "chunk", i, "documents", len(chunk), "error", err)
			continue
		}

		entries, err := p.extract(product, data, sum)
		if err != nil {
			sum.fail(chunk, err)
			logger.Error("archive bundle unreadable", "chunk", i, "error", err)
			continue
		}

		if err := p.write(ctx, entries, sum); err != nil {
			sum.finish()
			if ctx.Err() != nil {
				sum.unreach(chunks[i:])
				return sum, ctx.Err()
			}
			return sum, err
		}
		if ctx.Err() != nil {
			sum.unreach(chunks[i:])
			break
		}
		sum.Succeeded++
		logger.Info("archive chunk stored", "chunk", i, "documents", len(chunk), "files", len(entries))
	}

	sum.finish()
	logger.Info("archive ingest finished",
		"files", sum.Files,
		"records", sum.Records,
		"inserted", sum.Inserted,
		"failed_chunks", len(sum.FailedChunks),
		"unreached", len(sum.Unreached),
		"duration", sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond),
	)

	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, sum.Err()
}

// extract routes the CSVs of every nested zip in a bundle.
func (p *Processor) extract(product Product, data []byte, sum *Summary) ([]entry, error) {
	outer, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &CorruptArchiveError{Name: product.ID + " bundle", Err: err}
	}

	var entries []entry
	for _, f := range outer.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !isZip(f.Name) {
			p.skip(sum, f.Name, ReasonNotNestedZip, nil)
			continue
		}
		inner, err := openNested(f)
		if err != nil {
			p.skip(sum, f.Name, ReasonCorrupt, &CorruptArchiveError{Name: f.Name, Err: err})
			continue
		}
		for _, g := range inner.File {
			if g.FileInfo().IsDir() {
				continue
			}
			name := f.Name + "/" + g.Name
			table, reason := product.Route(g.Name)
			if reason != "" {
				p.skip(sum, name, reason, nil)
				continue
			}
			entries = append(entries, entry{name: name, table: table, file: g})
		}
	}
	return entries, nil
}

func openNested(f *zip.File) (*zip.Reader, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return zip.NewReader(bytes.NewReader(data), int64(len(data)))
}

// write parses entries on a bounded pool and stores them from a single
// writer goroutine. Only the writer touches sum.
func (p *Processor) write(ctx context.Context, entries []entry, sum *Summary) error {
	g, gctx := errgroup.WithContext(ctx)
	out := make(chan parsed)

	g.Go(func() error {
		defer close(out)
		var pool errgroup.Group
		pool.SetLimit(p.cfg.ParseWorkers)
		for _, e := range entries {
			if gctx.Err() != nil {
				break
			}
			e := e
			pool.Go(func() error {
				res := parse(e)
				select {
				case out <- res:
				case <-gctx.Done():
				}
				return nil
			})
		}
		return pool.Wait()
	})

	g.Go(func() error {
		for res := range out {
			if res.reason != "" {
				p.skip(sum, res.name, res.reason, res.err)
				continue
			}
			n, err := p.sink(gctx, res.table, res.name, res.records)
			if err != nil {
				return fmt.Errorf("store %s: %w", res.name, err)
			}
			sum.Files++
			sum.Records += len(res.records)
			sum.Inserted += n
			sum.Tables[res.table] += n
			p.logger.Debug("archive file stored",
				"file", res.name,
				"table", string(res.table),
				"rows", len(res.records),
				"inserted", n,
			)
		}
		return nil
	})

	return g.Wait()
}

// parse reads, parses and normalizes one CSV. Failures come back as a skip
// reason so that one bad file never stops its siblings.
func parse(e entry) parsed {
	res := parsed{entry: e}

	rc, err := e.file.Open()
	if err != nil {
		res.reason, res.err = ReasonCorrupt, &CorruptArchiveError{Name: e.name, Err: err}
		return res
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		res.reason, res.err = ReasonCorrupt, &CorruptArchiveError{Name: e.name, Err: err}
		return res
	}

	records, _, err := parseCSV(data)
	switch {
	case errors.Is(err, errHeaderless):
		res.reason = ReasonHeaderless
		return res
	case err != nil:
		res.reason, res.err = ReasonCorrupt, &CorruptArchiveError{Name: e.name, Err: err}
		return res
	case len(records) == 0:
		res.reason = ReasonEmpty
		return res
	}

	res.records = normalize.NormalizeAll(records, schema.MustLookup(e.table))
	return res
}

func (p *Processor) skip(sum *Summary, name, reason string, err error) {
	sum.Skipped[reason]++
	switch reason {
	case ReasonCorrupt:
		p.logger.Error("skipping archive file", "file", name, "reason", reason, "error", err)
	case ReasonHeaderless, ReasonNoTable:
		p.logger.Warn("skipping archive file", "file", name, "reason", reason)
	default:
		p.logger.Debug("skipping archive file", "file", name, "reason", reason)
	}
}

// chunkIDs splits ids into slices of at most size. size <= 0 means one chunk.
func chunkIDs(ids []int64, size int) [][]int64 {
	if len(ids) == 0 {
		return nil
	}
	if size <= 0 || size > len(ids) {
		size = len(ids)
	}
	chunks := make([][]int64, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
