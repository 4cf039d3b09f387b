package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rickgao/ercot-data/internal/batch"
	"github.com/rickgao/ercot-data/internal/merge"
	"github.com/rickgao/ercot-data/internal/pipeline"
)

// ErrRunning is returned by RunOnce while another run is in progress.
var ErrRunning = errors.New("sync already running")

// Syncer fetches and merges a window.
type Syncer interface {
	Sync(ctx context.Context, w batch.Window, f pipeline.Filters) (*pipeline.Result, merge.Report, error)
}

// Config holds scheduler configuration.
type Config struct {
	Spec         string         // cron expression (default: "0 6 * * *")
	Location     *time.Location // zone the spec and "today" are evaluated in
	LookbackDays int            // days synced per run, today included (default: 2)
	Timeout      time.Duration  // per-run deadline, zero for none
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Spec:         "0 6 * * *",
		Location:     time.UTC,
		LookbackDays: 2,
	}
}

// RunStatus describes a finished run.
type RunStatus struct {
	RunID      string        `json:"runId"`
	Window     batch.Window  `json:"window"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Records    int           `json:"records"`
	Stored     int           `json:"stored"`
	Merge      *merge.Report `json:"merge,omitempty"`
	Err        string        `json:"error,omitempty"`
}

// OK reports whether the run finished without error.
func (s RunStatus) OK() bool { return s.Err == "" }

// Scheduler triggers Syncer on a cron schedule.
type Scheduler struct {
	cfg     Config
	syncer  Syncer
	filters pipeline.Filters
	logger  *slog.Logger
	now     func() time.Time

	cron     *cron.Cron
	schedule cron.Schedule

	runMu sync.Mutex

	mu   sync.RWMutex
	last *RunStatus

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler. The spec is parsed eagerly.
func New(cfg Config, syncer Syncer, filters pipeline.Filters, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LookbackDays < 1 {
		cfg.LookbackDays = 1
	}

	schedule, err := cron.ParseStandard(cfg.Spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Spec, err)
	}

	return &Scheduler{
		cfg:      cfg,
		syncer:   syncer,
		filters:  filters,
		logger:   logger.With("component", "scheduler"),
		now:      time.Now,
		schedule: schedule,
	}, nil
}

// Start registers the job and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	cl := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.cron.Schedule(s.schedule, cron.FuncJob(s.tick))
	s.cron.Start()

	s.logger.Info("scheduler started",
		"spec", s.cfg.Spec,
		"timezone", s.cfg.Location.String(),
		"lookback_days", s.cfg.LookbackDays,
		"next", s.Next(),
	)
	return nil
}

// Stop halts the cron loop and waits for a running sync to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron == nil {
		return nil
	}

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next activation time.
func (s *Scheduler) Next() time.Time {
	return s.schedule.Next(s.now().In(s.cfg.Location))
}

// Window returns the window a run started now would sync.
func (s *Scheduler) Window() batch.Window {
	now := s.now().In(s.cfg.Location)
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -(s.cfg.LookbackDays - 1))
	return batch.Window{Start: start, End: end}
}

// Last returns the status of the most recent run.
func (s *Scheduler) Last() (RunStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return RunStatus{}, false
	}
	return *s.last, true
}

func (s *Scheduler) tick() {
	if _, err := s.RunOnce(s.ctx); err != nil {
		s.logger.Error("scheduled sync failed", "error", err)
	}
}

// RunOnce syncs the lookback window now and records the outcome.
func (s *Scheduler) RunOnce(ctx context.Context) (RunStatus, error) {
	if !s.runMu.TryLock() {
		return RunStatus{}, ErrRunning
	}
	defer s.runMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	w := s.Window()
	st := RunStatus{Window: w, StartedAt: s.now()}
	s.logger.Info("scheduled sync starting", "window", w.String())

	res, rep, err := s.syncer.Sync(ctx, w, s.filters)
	if res != nil {
		st.RunID = res.RunID
		st.Records = res.TotalRecords()
		for _, n := range res.Stored {
			st.Stored += n
		}
	}
	if err == nil {
		st.Merge = &rep
	} else {
		st.Err = err.Error()
	}
	st.FinishedAt = s.now()

	s.mu.Lock()
	s.last = &st
	s.mu.Unlock()

	if err != nil {
		return st, err
	}
	s.logger.Info("scheduled sync complete",
		"run_id", st.RunID,
		"records", st.Records,
		"stored", st.Stored,
		"final_rows", rep.Rows,
		"duration", st.FinishedAt.Sub(st.StartedAt),
	)
	return st, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
