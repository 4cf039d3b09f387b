package batch

import (
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/ercot-data/internal/model"
)

// MaxDateRange is the widest date range, in days, the report API accepts
// for one request.
const MaxDateRange = 100

// Window is an inclusive range of delivery dates.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns the window [start, end] truncated to whole days.
func NewWindow(start, end time.Time) (Window, error) {
	w := Window{Start: day(start), End: day(end)}
	if w.End.Before(w.Start) {
		return Window{}, fmt.Errorf("window end %s before start %s",
			w.End.Format(model.DateLayout), w.Start.Format(model.DateLayout))
	}
	return w, nil
}

// ParseWindow parses two dates in any accepted layout.
func ParseWindow(start, end string) (Window, error) {
	s, err := model.ParseDate(start)
	if err != nil {
		return Window{}, fmt.Errorf("parse start: %w", err)
	}
	e, err := model.ParseDate(end)
	if err != nil {
		return Window{}, fmt.Errorf("parse end: %w", err)
	}
	return NewWindow(s, e)
}

// Days returns the number of days in the window.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// Contains reports whether d falls inside the window.
func (w Window) Contains(d time.Time) bool {
	d = day(d)
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w Window) String() string {
	return w.Start.Format(model.DateLayout) + ".." + w.End.Format(model.DateLayout)
}

// Split divides the window at cutoff into the part strictly before it and
// the part on or after it. Either part may be absent.
func (w Window) Split(cutoff time.Time) (before, after *Window) {
	cutoff = day(cutoff)
	if w.Start.Before(cutoff) {
		end := w.End
		if !end.Before(cutoff) {
			end = cutoff.AddDate(0, 0, -1)
		}
		before = &Window{Start: w.Start, End: end}
	}
	if !w.End.Before(cutoff) {
		start := w.Start
		if start.Before(cutoff) {
			start = cutoff
		}
		after = &Window{Start: start, End: w.End}
	}
	return before, after
}

// Batch is one contiguous slice of a window, optionally for one QSE.
type Batch struct {
	Index int
	Start time.Time
	End   time.Time
	QSE   string
}

// Days returns the number of days in the batch.
func (b Batch) Days() int {
	return int(b.End.Sub(b.Start).Hours()/24) + 1
}

func (b Batch) String() string {
	s := fmt.Sprintf("#%d %s..%s", b.Index, b.Start.Format(model.DateLayout), b.End.Format(model.DateLayout))
	if b.QSE != "" {
		s += " " + b.QSE
	}
	return s
}

// Dates lists every day in the batch.
func (b Batch) Dates() []string {
	out := make([]string, 0, b.Days())
	for d := b.Start; !d.After(b.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(model.DateLayout))
	}
	return out
}

// ErrInvalidBatchDays is returned for a non-positive batch size.
var ErrInvalidBatchDays = errors.New("batch days must be positive")

// Plan splits w into batches. The first batch is the single day w.Start;
// the remaining days are cut into pieces of min(batchDays, maxRange) days.
// A maxRange of zero or less means MaxDateRange.
func Plan(w Window, batchDays, maxRange int) ([]Batch, error) {
	if batchDays <= 0 {
		return nil, ErrInvalidBatchDays
	}
	if maxRange <= 0 {
		maxRange = MaxDateRange
	}
	size := min(batchDays, maxRange)

	batches := []Batch{{Index: 0, Start: w.Start, End: w.Start}}
	for start := w.Start.AddDate(0, 0, 1); !start.After(w.End); {
		end := start.AddDate(0, 0, size-1)
		if end.After(w.End) {
			end = w.End
		}
		batches = append(batches, Batch{Index: len(batches), Start: start, End: end})
		start = end.AddDate(0, 0, 1)
	}
	return batches, nil
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
