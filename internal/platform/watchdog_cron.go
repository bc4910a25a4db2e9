// internal/platform/watchdog_cron.go
//go:build !tinygo

package platform

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"sensornode-go/hal"
	"sensornode-go/hal/sim"
)

// CronWatchdog drives a simulated interrupt-then-reset watchdog from a cron
// schedule, one expiry per period. An expiry with the wake interrupt disabled
// calls OnReset, which the host binary treats as a power cycle.
type CronWatchdog struct {
	wd  *sim.Watchdog
	log *zap.Logger

	mu      sync.Mutex
	c       *cron.Cron
	entry   cron.EntryID
	onReset func()
}

var _ hal.Watchdog = (*CronWatchdog)(nil)

func NewCronWatchdog(log *zap.Logger) *CronWatchdog {
	if log == nil {
		log = zap.NewNop()
	}
	w := &CronWatchdog{wd: &sim.Watchdog{}, log: log.Named("watchdog")}
	w.wd.OnReset = w.reset
	return w
}

// OnReset registers the reset handler. It runs on the cron goroutine.
func (w *CronWatchdog) OnReset(fn func()) {
	w.mu.Lock()
	w.onReset = fn
	w.mu.Unlock()
}

func (w *CronWatchdog) Arm(period time.Duration, onWake func()) error {
	if period < time.Second {
		return fmt.Errorf("watchdog: period %s below cron resolution", period)
	}
	if err := w.wd.Arm(period, onWake); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c != nil {
		w.c.Remove(w.entry)
	} else {
		w.c = cron.New()
	}
	id, err := w.c.AddFunc(fmt.Sprintf("@every %s", period), w.expire)
	if err != nil {
		return err
	}
	w.entry = id
	w.c.Start()
	w.log.Debug("armed", zap.Duration("period", period))
	return nil
}

func (w *CronWatchdog) EnableWakeIRQ() error { return w.wd.EnableWakeIRQ() }
func (w *CronWatchdog) Feed()                { w.wd.Feed() }

// Stop halts the schedule; no further expiries occur.
func (w *CronWatchdog) Stop() {
	w.mu.Lock()
	c := w.c
	w.c = nil
	w.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Resets counts expiries that found the wake interrupt disabled.
func (w *CronWatchdog) Resets() int { return w.wd.Resets() }

func (w *CronWatchdog) expire() {
	w.wd.Expire()
}

func (w *CronWatchdog) reset() {
	w.log.Warn("watchdog expired with wake interrupt disabled, resetting")
	w.mu.Lock()
	fn := w.onReset
	w.mu.Unlock()
	if fn != nil {
		fn()
	}
}
