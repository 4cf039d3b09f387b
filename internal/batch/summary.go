package batch

import (
	"sort"
	"time"

	"github.com/rickgao/ercot-data/internal/model"
)

// FailedBatch is a batch whose fetch or store returned an error.
type FailedBatch struct {
	Batch Batch  `json:"batch"`
	Err   string `json:"error"`
}

// Summary reports the outcome of a Run.
type Summary struct {
	RunID        string         `json:"runId"`
	Window       Window         `json:"window"`
	Planned      int            `json:"planned"`
	TotalRecords int            `json:"totalRecords"`
	Successful   []Batch        `json:"successful"`
	Empty        []Batch        `json:"empty"`
	Failed       []FailedBatch  `json:"failed"`
	Skipped      []Batch        `json:"skipped"`
	Unreached    []Batch        `json:"unreached"`
	Fields       []string       `json:"fields"`
	Records      []model.Record `json:"-"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt"`
}

// AveragePerBatch returns the mean record count of successful batches.
func (s *Summary) AveragePerBatch() float64 {
	if len(s.Successful) == 0 {
		return 0
	}
	return float64(s.TotalRecords) / float64(len(s.Successful))
}

// Attempted returns the number of batches that ran to an outcome.
func (s *Summary) Attempted() int {
	return len(s.Successful) + len(s.Empty) + len(s.Failed)
}

// Err returns ErrNoBatchSucceeded when batches were attempted and all of
// them failed. Empty batches count as successes: the API answered.
func (s *Summary) Err() error {
	if s.Attempted() > 0 && len(s.Successful)+len(s.Empty) == 0 {
		return ErrNoBatchSucceeded
	}
	return nil
}

// Merge folds o into s. Used to combine the archive and live halves of
// one logical run.
func (s *Summary) Merge(o *Summary) {
	if o == nil {
		return
	}
	s.Planned += o.Planned
	s.TotalRecords += o.TotalRecords
	s.Successful = append(s.Successful, o.Successful...)
	s.Empty = append(s.Empty, o.Empty...)
	s.Failed = append(s.Failed, o.Failed...)
	s.Skipped = append(s.Skipped, o.Skipped...)
	s.Unreached = append(s.Unreached, o.Unreached...)
	s.Records = append(s.Records, o.Records...)

	fs := newFieldSet()
	fs.add(s.Fields)
	fs.add(o.Fields)
	s.Fields = fs.list()

	if !o.FinishedAt.IsZero() && o.FinishedAt.After(s.FinishedAt) {
		s.FinishedAt = o.FinishedAt
	}
}

func (s *Summary) sort() {
	sortBatches(s.Successful)
	sortBatches(s.Empty)
	sortBatches(s.Skipped)
	sort.SliceStable(s.Failed, func(i, j int) bool {
		return less(s.Failed[i].Batch, s.Failed[j].Batch)
	})
}

func sortBatches(bs []Batch) {
	sort.SliceStable(bs, func(i, j int) bool { return less(bs[i], bs[j]) })
}

func less(a, b Batch) bool {
	if a.QSE != b.QSE {
		return a.QSE < b.QSE
	}
	return a.Index < b.Index
}
