package archive

import (
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/ercot-data/internal/schema"
)

// FailedChunk is a group of documents whose download or bundle failed.
type FailedChunk struct {
	DocIDs []int64 `json:"docIds"`
	Err    string  `json:"error"`
}

// Summary reports the outcome of Process.
type Summary struct {
	RunID        string              `json:"runId"`
	Product      string              `json:"product"`
	Documents    int                 `json:"documents"`
	Chunks       int                 `json:"chunks"`
	Succeeded    int                 `json:"succeeded"`
	FailedChunks []FailedChunk       `json:"failedChunks"`
	Unreached    []int64             `json:"unreached"`
	Files        int                 `json:"files"`
	Records      int                 `json:"records"`
	Inserted     int                 `json:"inserted"`
	Tables       map[schema.Name]int `json:"tables"`
	Skipped      map[string]int      `json:"skipped"`
	StartedAt    time.Time           `json:"startedAt"`
	FinishedAt   time.Time           `json:"finishedAt"`
}

func newSummary(product string, docs int) *Summary {
	return &Summary{
		RunID:     uuid.NewString(),
		Product:   product,
		Documents: docs,
		Tables:    make(map[schema.Name]int),
		Skipped:   make(map[string]int),
		StartedAt: time.Now(),
	}
}

// Err returns ErrNoChunkSucceeded when chunks were attempted and none of
// them was stored.
func (s *Summary) Err() error {
	if s.Chunks > 0 && s.Succeeded == 0 && len(s.FailedChunks) > 0 {
		return ErrNoChunkSucceeded
	}
	return nil
}

func (s *Summary) fail(ids []int64, err error) {
	s.FailedChunks = append(s.FailedChunks, FailedChunk{DocIDs: ids, Err: err.Error()})
}

func (s *Summary) unreach(chunks [][]int64) {
	for _, c := range chunks {
		s.Unreached = append(s.Unreached, c...)
	}
}

func (s *Summary) finish() {
	s.FinishedAt = time.Now()
}
