// hal/sim/watchdog.go
package sim

import (
	"errors"
	"sync"
	"time"

	"sensornode-go/hal"
)

var ErrNotArmed = errors.New("sim: watchdog not armed")

// Watchdog models an AVR-style watchdog in interrupt-then-reset mode. It has
// no clock of its own; Expire simulates one timeout.
type Watchdog struct {
	mu sync.Mutex

	armed  bool
	period time.Duration
	irq    bool
	onWake func()

	feeds   int
	resets  int
	wakes   int
	rearms  int
	OnReset func()
}

var _ hal.Watchdog = (*Watchdog)(nil)

func (w *Watchdog) Arm(period time.Duration, onWake func()) error {
	w.mu.Lock()
	w.armed = true
	w.period = period
	w.onWake = onWake
	w.irq = true
	w.mu.Unlock()
	return nil
}

func (w *Watchdog) EnableWakeIRQ() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed {
		return ErrNotArmed
	}
	w.irq = true
	w.rearms++
	return nil
}

func (w *Watchdog) Feed() {
	w.mu.Lock()
	w.feeds++
	w.mu.Unlock()
}

// Expire simulates one timeout. With the wake IRQ enabled it clears the
// enable bit and calls the wake handler; otherwise it counts a reset and
// calls OnReset. It reports whether the expiry was a reset.
func (w *Watchdog) Expire() (reset bool) {
	w.mu.Lock()
	if !w.armed {
		w.mu.Unlock()
		return false
	}
	if w.irq {
		w.irq = false
		w.wakes++
		cb := w.onWake
		w.mu.Unlock()
		if cb != nil {
			cb()
		}
		return false
	}
	w.resets++
	cb := w.OnReset
	w.mu.Unlock()
	if cb != nil {
		cb()
	}
	return true
}

func (w *Watchdog) Period() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.period
}

// IRQEnabled reports whether the next expiry will wake rather than reset.
func (w *Watchdog) IRQEnabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.irq
}

func (w *Watchdog) Feeds() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.feeds
}

func (w *Watchdog) Resets() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resets
}

func (w *Watchdog) Wakes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wakes
}

// Rearms counts EnableWakeIRQ calls.
func (w *Watchdog) Rearms() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rearms
}
