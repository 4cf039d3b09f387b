package archive

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rickgao/ercot-data/internal/model"
)

var errHeaderless = errors.New("first line has no delimiter")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// parseCSV reads a report CSV into header-keyed records. It returns
// errHeaderless when the first non-blank line holds no comma.
func parseCSV(data []byte) ([]model.Record, []string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, nil, errors.New("invalid utf-8")
	}
	if !hasHeader(data) {
		return nil, nil, errHeaderless
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	head, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	header := make([]string, len(head))
	for i, h := range head {
		header[i] = strings.TrimSpace(h)
	}

	var records []model.Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", len(records)+1, err)
		}
		if blankRow(row) {
			continue
		}
		rec := make(model.Record, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(row) {
				rec[name] = row[i]
			} else {
				rec[name] = nil
			}
		}
		records = append(records, rec)
	}
	return records, header, nil
}

func hasHeader(data []byte) bool {
	for len(data) > 0 {
		line := data
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			data = nil
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return bytes.IndexByte(line, ',') >= 0
	}
	return false
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
