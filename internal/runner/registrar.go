package runner

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"schedbot/pkg/logx"
)

// everyMinute is the only cron expression the engine uses; due-ness is
// decided by the coordinator against the record, not by the cron expression.
const everyMinute = "* * * * *"

// Registrar arms one cron entry per schedule. The handle it returns is
// persisted on the record so recovery can tell armed from orphaned.
type Registrar struct {
	cron  *cron.Cron
	coord *Coordinator
	log   logx.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewRegistrar(coord *Coordinator, log logx.Logger) *Registrar {
	return &Registrar{
		cron:    cron.New(),
		coord:   coord,
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

func (r *Registrar) Start() { r.cron.Start() }

// Stop halts the scheduler and waits for in-flight ticks, bounded by ctx.
func (r *Registrar) Stop(ctx context.Context) {
	done := r.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		r.log.Warn("cron stop timed out with ticks in flight")
	}
}

// Register arms a minute tick for a schedule id and returns the timer
// handle. Re-registering an already armed id is a no-op returning the
// existing handle.
func (r *Registrar) Register(id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if eid, ok := r.entries[id]; ok {
		return strconv.Itoa(int(eid)), nil
	}
	eid, err := r.cron.AddFunc(everyMinute, func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultLeaseWindow+30*time.Second)
		defer cancel()
		_ = r.coord.Tick(ctx, id)
	})
	if err != nil {
		return "", err
	}
	r.entries[id] = eid
	r.log.Debug("schedule armed", logx.String("id", id), logx.Int("entry", int(eid)))
	return strconv.Itoa(int(eid)), nil
}

// Cancel disarms a schedule's tick. Unknown ids are ignored.
func (r *Registrar) Cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	eid, ok := r.entries[id]
	if !ok {
		return
	}
	r.cron.Remove(eid)
	delete(r.entries, id)
	r.log.Debug("schedule disarmed", logx.String("id", id))
}

// Armed reports whether an id currently has a live cron entry.
func (r *Registrar) Armed(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}
