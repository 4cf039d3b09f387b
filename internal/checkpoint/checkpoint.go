// Package checkpoint persists batch progress to a JSON file so that an
// interrupted run can resume without refetching completed dates.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// State is the on-disk checkpoint document.
type State struct {
	RunID          string    `json:"runId"`
	CompletedDates []string  `json:"completedDates"`
	FailedDates    []string  `json:"failedDates"`
	LastRunStart   string    `json:"lastRunStart,omitempty"`
	LastRunEnd     string    `json:"lastRunEnd,omitempty"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// File is a checkpoint backed by a JSON file. Methods are safe for
// concurrent use; every change is written through.
type File struct {
	path string
	now  func() time.Time

	mu        sync.Mutex
	state     State
	completed map[string]struct{}
	failed    map[string]struct{}
}

// Open loads the checkpoint at path. A missing file yields an empty
// checkpoint.
func Open(path string) (*File, error) {
	f := &File{
		path:      path,
		now:       time.Now,
		completed: make(map[string]struct{}),
		failed:    make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	if err := json.Unmarshal(data, &f.state); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	for _, d := range f.state.CompletedDates {
		f.completed[d] = struct{}{}
	}
	for _, d := range f.state.FailedDates {
		f.failed[d] = struct{}{}
	}
	return f, nil
}

// Begin records the start of a run over [start, end].
func (f *File) Begin(runID, start, end string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state.RunID = runID
	f.state.LastRunStart = start
	f.state.LastRunEnd = end
	return f.saveLocked()
}

// Complete marks dates done and clears them from the failed list.
func (f *File) Complete(dates ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, d := range dates {
		f.completed[d] = struct{}{}
		delete(f.failed, d)
	}
	return f.saveLocked()
}

// Fail marks dates failed unless they were already completed.
func (f *File) Fail(dates ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, d := range dates {
		if _, ok := f.completed[d]; ok {
			continue
		}
		f.failed[d] = struct{}{}
	}
	return f.saveLocked()
}

// Done reports whether every date was completed by some run.
func (f *File) Done(dates ...string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(dates) == 0 {
		return false
	}
	for _, d := range dates {
		if _, ok := f.completed[d]; !ok {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of the current state.
func (f *File) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.state
	s.CompletedDates = keys(f.completed)
	s.FailedDates = keys(f.failed)
	return s
}

// saveLocked writes the state to a temp file and renames it over path.
func (f *File) saveLocked() error {
	f.state.CompletedDates = keys(f.completed)
	f.state.FailedDates = keys(f.failed)
	f.state.LastUpdated = f.now().UTC()

	data, err := json.MarshalIndent(f.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
