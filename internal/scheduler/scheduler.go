// Package scheduler wires up the cron jobs that periodically run the alert
// batch of each cadence.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"jobmate/alert-service/internal/alert"
	"jobmate/alert-service/internal/model"
)

// BatchRunner runs one cadence batch. *alert.Runner satisfies it.
type BatchRunner interface {
	RunBatch(ctx context.Context, cadence model.Cadence, now time.Time) (*alert.RunReport, error)
}

// Scheduler wraps robfig/cron with one entry per cadence.
type Scheduler struct {
	cron   *cron.Cron
	runner BatchRunner
	specs  map[model.Cadence]string
	log    *zap.Logger
	now    func() time.Time
}

// New creates a Scheduler. specs maps cadence names to cron specs such as
// "@every 1h"; cadences with an empty spec are not scheduled.
func New(runner BatchRunner, specs map[string]string, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	parsed := make(map[model.Cadence]string, len(specs))
	for name, spec := range specs {
		if spec == "" {
			continue
		}
		c, err := model.ParseCadence(name)
		if err != nil {
			return nil, err
		}
		parsed[c] = spec
	}
	cl := cronLogger{log: log.Sugar()}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		runner: runner,
		specs:  parsed,
		log:    log,
		now:    time.Now,
	}, nil
}

// Start registers one job per cadence and starts the scheduler. When
// runOnStart is set every cadence also runs once immediately.
func (s *Scheduler) Start(ctx context.Context, runOnStart bool) error {
	for _, c := range s.cadences() {
		c := c
		if _, err := s.cron.AddFunc(s.specs[c], func() { s.RunCadence(ctx, c) }); err != nil {
			return fmt.Errorf("schedule %s alerts (%q): %w", c, s.specs[c], err)
		}
	}
	s.cron.Start()
	s.log.Info("scheduler started", zap.Any("specs", s.specs))

	if runOnStart {
		go func() {
			for _, c := range s.cadences() {
				s.RunCadence(ctx, c)
			}
		}()
	}
	return nil
}

// Stop stops scheduling and waits for running batches until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with batches still running")
	}
}

// RunCadence runs one batch and logs its outcome.
func (s *Scheduler) RunCadence(ctx context.Context, c model.Cadence) {
	if ctx.Err() != nil {
		return
	}
	report, err := s.runner.RunBatch(ctx, c, s.now().UTC())
	switch {
	case errors.Is(err, alert.ErrBatchInProgress):
		s.log.Info("batch already running elsewhere, skipping", zap.String("cadence", string(c)))
	case err != nil:
		s.log.Error("alert batch failed", zap.String("cadence", string(c)), zap.Error(err))
	default:
		s.log.Debug("alert batch finished",
			zap.String("cadence", string(c)),
			zap.Int("considered", report.TotalConsidered),
		)
	}
}

func (s *Scheduler) cadences() []model.Cadence {
	out := make([]model.Cadence, 0, len(s.specs))
	for c := range s.specs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
