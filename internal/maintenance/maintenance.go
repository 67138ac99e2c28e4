// Package maintenance runs periodic housekeeping on the event store.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// EventPurger deletes events whose last occurrence ended before cutoff.
type EventPurger interface {
	DeleteEventsEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Optimizer refreshes storage statistics.
type Optimizer interface {
	Optimize(ctx context.Context) error
}

// Result summarises one maintenance pass.
type Result struct {
	Cutoff        time.Time
	EventsDeleted int64
}

// Runner purges ended events older than the retention period and then
// optimises the store, either once or on a cron schedule.
type Runner struct {
	events    EventPurger
	optimizer Optimizer
	retention time.Duration
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewRunner wires the runner. optimizer may be nil.
func NewRunner(events EventPurger, optimizer Optimizer, retention time.Duration, now func() time.Time, logger *slog.Logger) *Runner {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		events:    events,
		optimizer: optimizer,
		retention: retention,
		timeout:   5 * time.Minute,
		now:       now,
		logger:    logger.With("component", "maintenance"),
	}
}

// RunOnce performs one pass. Optimisation failures are logged but do not
// fail the pass once events were purged.
func (r *Runner) RunOnce(ctx context.Context) (Result, error) {
	if r.events == nil {
		return Result{}, errors.New("maintenance: event store not configured")
	}
	if r.retention <= 0 {
		return Result{}, fmt.Errorf("maintenance: retention must be positive, got %s", r.retention)
	}

	result := Result{Cutoff: r.now().UTC().Add(-r.retention)}
	deleted, err := r.events.DeleteEventsEndedBefore(ctx, result.Cutoff)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to purge ended events", "error", err, "cutoff", result.Cutoff)
		return result, fmt.Errorf("purge ended events: %w", err)
	}
	result.EventsDeleted = deleted

	if r.optimizer != nil {
		if err := r.optimizer.Optimize(ctx); err != nil {
			r.logger.WarnContext(ctx, "failed to optimize store", "error", err)
		}
	}

	r.logger.InfoContext(ctx, "maintenance completed", "events_deleted", deleted, "cutoff", result.Cutoff)
	return result, nil
}

// Start schedules RunOnce with a standard cron spec or descriptor such as
// "@daily". Runs never overlap. The schedule stops when ctx is done.
func (r *Runner) Start(ctx context.Context, spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return errors.New("maintenance: already started")
	}

	log := cronLogger{logger: r.logger}
	c := cron.New(cron.WithLogger(log), cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)))
	if _, err := c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		_, _ = r.RunOnce(runCtx)
	}); err != nil {
		return fmt.Errorf("maintenance: invalid schedule %q: %w", spec, err)
	}
	c.Start()
	r.cron = c
	r.logger.InfoContext(ctx, "maintenance scheduled", "schedule", spec, "retention", r.retention.String())

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop cancels the schedule and waits for a running pass to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// cronLogger forwards cron's logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
