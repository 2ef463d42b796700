package runner

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"schedbot/internal/schedule"
	"schedbot/pkg/logx"
)

// Recovery re-arms every active schedule after a restart. Stale leases need
// no repair: an expired locked_until simply stops blocking.
type Recovery struct {
	store     *schedule.Store
	registrar *Registrar
	log       logx.Logger

	now func() time.Time
}

func NewRecovery(store *schedule.Store, registrar *Registrar, log logx.Logger) *Recovery {
	return &Recovery{store: store, registrar: registrar, log: log, now: time.Now}
}

// Bootstrap scans all records, seeds next_run_at where a crash lost it, and
// registers a cron entry for every active schedule. One broken record is
// logged and skipped, never fatal to the rest.
func (r *Recovery) Bootstrap(ctx context.Context) error {
	all, err := r.store.All(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	var armed int
	for _, rec := range all {
		if !rec.Active {
			continue
		}
		armed++
		rec := rec
		g.Go(func() error {
			if err := r.restore(gctx, rec); err != nil {
				r.log.Error("restore schedule", logx.String("id", rec.ID), logx.Err(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.log.Info("recovery complete", logx.Int("restored", armed), logx.Int("total", len(all)))
	return nil
}

func (r *Recovery) restore(ctx context.Context, rec *schedule.Record) error {
	dirty := false
	if rec.NextRunAt == 0 {
		rec.NextRunAt = r.seedNextRun(rec)
		dirty = true
	}
	handle, err := r.registrar.Register(rec.ID)
	if err != nil {
		return err
	}
	if rec.TimerHandle != handle {
		rec.TimerHandle = handle
		dirty = true
	}
	if dirty {
		return r.store.Put(ctx, rec)
	}
	return nil
}

// seedNextRun derives a first due instant for a record that never got one.
// A payment with a future explicit start date begins there; everything else
// falls back to the pure interval computation.
func (r *Recovery) seedNextRun(rec *schedule.Record) int64 {
	now := r.now().UTC()
	if rec.Kind == schedule.KindPayment && rec.StartAt > now.Unix() {
		return rec.StartAt
	}
	return schedule.NextRun(now, rec.Repeat, rec.Anchor()).Unix()
}
