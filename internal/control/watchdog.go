package control

import (
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const (
	minWatchdogPeriod = 20 * time.Millisecond
	maxWatchdogPeriod = 2000 * time.Millisecond

	// InteractivePeriod and HeadlessPeriod are the spec's documented
	// watchdog defaults for each run mode.
	InteractivePeriod = 200 * time.Millisecond
	HeadlessPeriod    = 400 * time.Millisecond
)

// ClampWatchdogPeriod bounds a configured tick period to the spec's
// 20..2000ms range.
func ClampWatchdogPeriod(d time.Duration) time.Duration {
	if d < minWatchdogPeriod {
		return minWatchdogPeriod
	}
	if d > maxWatchdogPeriod {
		return maxWatchdogPeriod
	}
	return d
}

// TickGuard is a non-blocking mutual-exclusion lock between the
// watchdog's scheduled tick and the decoder thread's own event
// delivery: whichever side calls TryEnter first runs, the other is
// skipped rather than blocked, guaranteeing at least one of the two
// runs within a watchdog period.
type TickGuard struct {
	busy atomic.Bool
}

// NewTickGuard builds an unlocked guard.
func NewTickGuard() *TickGuard {
	return &TickGuard{}
}

// TryEnter attempts to acquire the guard, returning false if it is
// already held.
func (g *TickGuard) TryEnter() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Exit releases the guard.
func (g *TickGuard) Exit() {
	g.busy.Store(false)
}

// Ticker is the narrow Trunk-SM shape the watchdog drives.
// internal/trunk.SM satisfies this structurally.
type Ticker interface {
	Tick(now time.Time)
}

// Watchdog periodically calls sm.Tick, guarded so an already-running
// tick is never re-entered.
type Watchdog struct {
	scheduler gocron.Scheduler
	sm        Ticker
	guard     *TickGuard
	period    time.Duration
}

// NewWatchdog builds a watchdog with the given tick period (already
// clamped by the caller via ClampWatchdogPeriod) and tick guard. Pass
// a shared TickGuard if the decoder thread also delivers events
// through the same mutual-exclusion contract; a fresh one is fine
// otherwise.
func NewWatchdog(sm Ticker, period time.Duration, guard *TickGuard) (*Watchdog, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	if guard == nil {
		guard = NewTickGuard()
	}
	return &Watchdog{scheduler: scheduler, sm: sm, guard: guard, period: ClampWatchdogPeriod(period)}, nil
}

// Start schedules the recurring tick and starts the scheduler.
func (w *Watchdog) Start() error {
	_, err := w.scheduler.NewJob(
		gocron.DurationJob(w.period),
		gocron.NewTask(func() {
			if !w.guard.TryEnter() {
				log.Debug("watchdog tick skipped, event delivery in progress")
				return
			}
			defer w.guard.Exit()
			w.sm.Tick(time.Now())
		}),
	)
	if err != nil {
		return err
	}
	w.scheduler.Start()
	return nil
}

// Stop stops and shuts down the underlying scheduler.
func (w *Watchdog) Stop() error {
	if err := w.scheduler.StopJobs(); err != nil {
		return err
	}
	return w.scheduler.Shutdown()
}
