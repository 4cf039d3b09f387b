package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/ercot-data/internal/model"
)

// Field describes one column of a report page. When rows arrive as arrays
// they are zipped with the field names in order.
type Field struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	DataType string `json:"dataType,omitempty"`
}

// Meta is the paging block of a report page.
type Meta struct {
	TotalRecords int `json:"totalRecords"`
	PageSize     int `json:"pageSize"`
	TotalPages   int `json:"totalPages"`
	CurrentPage  int `json:"currentPage"`
}

// Envelope is the first page of a report with Data replaced by every
// record of every page. When Fetch streams to a sink, Data stays empty and
// Records counts what was delivered.
type Envelope struct {
	Meta    *Meta           `json:"_meta,omitempty"`
	Report  json.RawMessage `json:"report,omitempty"`
	Fields  []Field         `json:"fields,omitempty"`
	Data    []model.Record  `json:"data"`
	Records int             `json:"-"`
	Pages   int             `json:"-"`
}

// FetchParams selects a report and its filters.
type FetchParams struct {
	Endpoint string    // e.g. "np3-966-er/60_dam_energy_bid_awards"
	From     time.Time // deliveryDateFrom, omitted when zero
	To       time.Time // deliveryDateTo, omitted when zero
	QSEName  string
	Extra    url.Values
}

// RecordSink receives records one at a time as pages arrive.
type RecordSink func(model.Record) error

// page is one decoded response. Data is kept raw so that a missing key can
// be told apart from an empty list.
type page struct {
	Meta    *Meta            `json:"_meta"`
	AltMeta *Meta            `json:"meta"`
	Report  json.RawMessage  `json:"report"`
	Fields  []Field          `json:"fields"`
	Data    *json.RawMessage `json:"data"`
}

func (p *page) meta() *Meta {
	if p.Meta != nil {
		return p.Meta
	}
	return p.AltMeta
}

// Fetch pages through a report until the last page. Records are appended
// to the returned envelope, or handed to sink immediately when sink is
// non-nil so that memory stays bounded by one page.
//
// A page without a data key ends the loop: the envelope accumulated so far
// is returned together with a *MalformedResponseError.
func (c *Client) Fetch(ctx context.Context, p FetchParams, sink RecordSink) (*Envelope, error) {
	query := url.Values{}
	for k, vs := range p.Extra {
		query[k] = append([]string(nil), vs...)
	}
	if !p.From.IsZero() {
		query.Set("deliveryDateFrom", p.From.Format(model.DateLayout))
	}
	if !p.To.IsZero() {
		query.Set("deliveryDateTo", p.To.Format(model.DateLayout))
	}
	if p.QSEName != "" {
		query.Set("qseName", p.QSEName)
	}
	if c.pageSize > 0 {
		query.Set("size", strconv.Itoa(c.pageSize))
	}

	var env *Envelope

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return env, err
		}

		query.Set("page", strconv.Itoa(n))
		resp, err := c.Send(ctx, Request{Path: p.Endpoint, Query: query})
		if err != nil {
			return env, fmt.Errorf("fetch %s page %d: %w", p.Endpoint, n, err)
		}

		var pg page
		if err := json.Unmarshal(resp.Body, &pg); err != nil {
			return env, &MalformedResponseError{URL: p.Endpoint, Err: fmt.Errorf("decode page %d: %w", n, err)}
		}

		if env == nil {
			env = &Envelope{Meta: pg.meta(), Report: pg.Report, Fields: pg.Fields}
		}

		if pg.Data == nil {
			c.logger.Warn("response has no data key",
				"endpoint", p.Endpoint,
				"page", n,
				"records", env.Records,
			)
			return env, &MalformedResponseError{URL: p.Endpoint, Missing: "data"}
		}

		rows, err := decodeRows(*pg.Data, env.Fields)
		if err != nil {
			return env, &MalformedResponseError{URL: p.Endpoint, Err: fmt.Errorf("page %d: %w", n, err)}
		}

		for _, rec := range rows {
			if sink != nil {
				if err := sink(rec); err != nil {
					return env, fmt.Errorf("sink record: %w", err)
				}
			} else {
				env.Data = append(env.Data, rec)
			}
		}
		env.Records += len(rows)
		env.Pages = n

		meta := pg.meta()
		if meta == nil {
			break
		}
		current := meta.CurrentPage
		if current == 0 {
			current = n
		}
		if current >= meta.TotalPages {
			break
		}

		c.logger.Debug("fetched page",
			"endpoint", p.Endpoint,
			"page", current,
			"total_pages", meta.TotalPages,
			"records", env.Records,
		)
	}

	return env, nil
}

// decodeRows turns the raw data list into records. Object rows are used as
// is; array rows are zipped with the field names.
func decodeRows(raw json.RawMessage, fields []Field) ([]model.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}

	out := make([]model.Record, 0, len(items))
	for i, item := range items {
		switch row := item.(type) {
		case map[string]any:
			out = append(out, model.Record(row))
		case []any:
			if len(fields) == 0 {
				return nil, fmt.Errorf("row %d is a list but the page has no fields", i)
			}
			rec := make(model.Record, len(row))
			for j, v := range row {
				if j >= len(fields) {
					break
				}
				rec[fields[j].Name] = v
			}
			out = append(out, rec)
		default:
			return nil, fmt.Errorf("row %d has unexpected type %T", i, item)
		}
	}
	return out, nil
}
