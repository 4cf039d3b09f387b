// Package qse loads the list of tracked Qualified Scheduling Entities.
package qse

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Column is the header holding the QSE short name.
const Column = "SHORT NAME"

// ErrNoColumn is returned when the file has no SHORT NAME header.
var ErrNoColumn = errors.New("qse list has no " + Column + " column")

// Load reads a QSE list file and returns its distinct short names, sorted.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open qse list: %w", err)
	}
	defer f.Close()

	names, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("read qse list %s: %w", path, err)
	}
	return names, nil
}

// Parse reads CSV with a SHORT NAME column. Blank names are skipped.
func Parse(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoColumn
	}
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), Column) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNoColumn
	}

	seen := make(map[string]struct{})
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if idx >= len(row) {
			continue
		}
		if name := strings.TrimSpace(row[idx]); name != "" {
			seen[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}
