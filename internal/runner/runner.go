// Package runner drives schedules to execution: a minute-granular cron
// registrar fires ticks, the coordinator applies the lease/due protocol and
// bookkeeping, and the recovery bootstrapper re-arms everything on startup.
package runner

import (
	"context"
	"sync/atomic"
	"time"

	"schedbot/internal/executor"
	"schedbot/internal/schedule"
	"schedbot/pkg/logx"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"

	// DefaultLeaseWindow bounds how long a single execution may hold a
	// schedule before another tick is allowed to claim it.
	DefaultLeaseWindow = 120 * time.Second
)

// Sink delivers execution results back to Telegram. The runner stays
// transport-agnostic; the bot layer implements this.
type Sink interface {
	// Deliver posts a successful outcome into the schedule's group.
	Deliver(ctx context.Context, rec *schedule.Record, out *executor.Outcome) error
	// NotifySuccess and NotifyFailure inform the creator, best effort.
	NotifySuccess(ctx context.Context, rec *schedule.Record, out *executor.Outcome)
	NotifyFailure(ctx context.Context, rec *schedule.Record, runErr error)
}

// Biller records billable usage after a successful AI run. Optional.
type Biller interface {
	ReportUsage(ctx context.Context, rec *schedule.Record, totalTokens int32)
}

// Coordinator owns the per-tick protocol: load fresh, check active, check
// lease, check due, take the lease, execute, write back.
type Coordinator struct {
	store    *schedule.Store
	registry *executor.Registry
	sink     Sink
	biller   Biller
	lease    atomic.Int64 // nanoseconds
	log      logx.Logger

	now func() time.Time // injectable for tests
}

func NewCoordinator(store *schedule.Store, registry *executor.Registry, sink Sink, log logx.Logger) *Coordinator {
	c := &Coordinator{
		store:    store,
		registry: registry,
		sink:     sink,
		log:      log,
		now:      time.Now,
	}
	c.lease.Store(int64(DefaultLeaseWindow))
	return c
}

// WithLeaseWindow overrides the lease duration. Zero keeps the default.
// Safe to call while ticks are running; config reload uses it.
func (c *Coordinator) WithLeaseWindow(d time.Duration) *Coordinator {
	if d > 0 {
		c.lease.Store(int64(d))
	}
	return c
}

func (c *Coordinator) leaseWindow() time.Duration {
	return time.Duration(c.lease.Load())
}

// WithBiller attaches a usage reporter.
func (c *Coordinator) WithBiller(b Biller) *Coordinator {
	c.biller = b
	return c
}

// Tick runs one firing attempt for a schedule id. Every tick loads the
// record fresh; stale in-memory copies are never trusted. A tick that finds
// the record missing, inactive, leased, or not yet due is a silent no-op.
func (c *Coordinator) Tick(ctx context.Context, id string) error {
	rec, ok, err := c.store.Get(ctx, id)
	if err != nil {
		c.log.Error("load schedule for tick", logx.String("id", id), logx.Err(err))
		return err
	}
	if !ok {
		c.log.Debug("tick for missing schedule", logx.String("id", id))
		return nil
	}
	if !rec.Active {
		return nil
	}

	now := c.now().UTC()
	if rec.LockedUntil > now.Unix() {
		return nil
	}
	if rec.NextRunAt == 0 || rec.NextRunAt > now.Unix() {
		return nil
	}

	// Claim the lease before doing anything slow. If this write fails the
	// attempt is abandoned; the next tick retries.
	lease := c.leaseWindow()
	rec.LockedUntil = now.Add(lease).Unix()
	if err := c.store.Put(ctx, rec); err != nil {
		c.log.Error("persist lease", logx.String("id", id), logx.Err(err))
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, lease)
	out, runErr := c.registry.Execute(runCtx, rec)
	cancel()

	if runErr != nil {
		c.finishFailure(ctx, rec, runErr)
		return nil
	}
	c.finishSuccess(ctx, rec, out)
	return nil
}

func (c *Coordinator) finishSuccess(ctx context.Context, rec *schedule.Record, out *executor.Outcome) {
	now := c.now().UTC()
	rec.LastRunAt = now.Unix()
	rec.RunCount++
	rec.LastError = ""
	rec.LastAttemptStatus = statusSuccess
	rec.LockedUntil = 0
	if rec.Kind == schedule.KindPrompt && rec.Prompt != nil && out != nil && out.ConversationID != "" {
		rec.Prompt.ConversationID = out.ConversationID
	}
	if rec.Repeat == schedule.RepeatNone {
		rec.Active = false
		rec.NextRunAt = 0
	} else {
		rec.NextRunAt = schedule.NextRun(now, rec.Repeat, rec.Anchor()).Unix()
	}
	if err := c.store.Put(ctx, rec); err != nil {
		// The action already happened; losing the write means a possible
		// duplicate after the lease expires. Log loudly and move on.
		c.log.Error("persist success bookkeeping", logx.String("id", rec.ID), logx.Err(err))
	}

	if err := c.sink.Deliver(ctx, rec, out); err != nil {
		c.log.Error("deliver outcome", logx.String("id", rec.ID), logx.Err(err))
	}
	if rec.NotifyOnSuccess {
		c.sink.NotifySuccess(ctx, rec, out)
	}
	if c.biller != nil && out != nil && out.TotalTokens > 0 {
		c.biller.ReportUsage(ctx, rec, out.TotalTokens)
	}
	c.log.Info("schedule executed",
		logx.String("id", rec.ID),
		logx.String("kind", string(rec.Kind)),
		logx.Uint64("run_count", rec.RunCount),
		logx.Int64("next_run_at", rec.NextRunAt))
}

// finishFailure records the error and reschedules. Failures never deactivate
// a schedule; a one-shot that failed retries at its next daily anchor.
func (c *Coordinator) finishFailure(ctx context.Context, rec *schedule.Record, runErr error) {
	now := c.now().UTC()
	rec.LastError = runErr.Error()
	rec.LastAttemptStatus = statusFailure
	rec.LockedUntil = 0
	rec.NextRunAt = schedule.NextRun(now, rec.Repeat, rec.Anchor()).Unix()
	if err := c.store.Put(ctx, rec); err != nil {
		c.log.Error("persist failure bookkeeping", logx.String("id", rec.ID), logx.Err(err))
	}
	if rec.NotifyOnFailure {
		c.sink.NotifyFailure(ctx, rec, runErr)
	}
	c.log.Warn("schedule execution failed",
		logx.String("id", rec.ID),
		logx.String("kind", string(rec.Kind)),
		logx.Err(runErr))
}
