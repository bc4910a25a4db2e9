// hal/sim/wire.go
package sim

import (
	"sync"

	"sensornode-go/hal"
)

// Target is a device attached to a Wire. Step is called with the previous
// and the new resolved line levels after every master-driven change and
// returns whether the target now pulls SDA low.
type Target interface {
	Step(prevSCL, prevSDA, scl, sda bool) (pullSDA bool)
}

// Wire models an open-drain two-wire bus with pull-ups: a line reads high
// unless the master or the target pulls it low.
type Wire struct {
	mu sync.Mutex

	// index 0 = SCL, 1 = SDA
	out   [2]bool
	level [2]bool

	targetLow bool
	scl, sda  bool
	target    Target
}

// NewWire returns an idle (both lines high) bus with the given target
// attached. t may be nil for an empty bus.
func NewWire(t Target) *Wire {
	return &Wire{scl: true, sda: true, target: t}
}

// SCL returns the master's clock line.
func (w *Wire) SCL() hal.Pin { return &wirePin{w: w, idx: 0} }

// SDA returns the master's data line.
func (w *Wire) SDA() hal.Pin { return &wirePin{w: w, idx: 1} }

// Levels returns the resolved line levels.
func (w *Wire) Levels() (scl, sda bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scl, w.sda
}

func (w *Wire) resolve() {
	w.scl = !(w.out[0] && !w.level[0])
	w.sda = !(w.out[1] && !w.level[1]) && !w.targetLow
}

// update must be called with w.mu held.
func (w *Wire) update() {
	prevSCL, prevSDA := w.scl, w.sda
	w.resolve()
	if w.scl == prevSCL && w.sda == prevSDA {
		return
	}
	if w.target != nil {
		w.targetLow = w.target.Step(prevSCL, prevSDA, w.scl, w.sda)
		w.resolve()
	}
}

type wirePin struct {
	w   *Wire
	idx int
}

func (p *wirePin) ConfigureInput(_ hal.Pull) error {
	p.w.mu.Lock()
	p.w.out[p.idx] = false
	p.w.update()
	p.w.mu.Unlock()
	return nil
}

func (p *wirePin) ConfigureOutput(initial bool) error {
	p.w.mu.Lock()
	p.w.out[p.idx] = true
	p.w.level[p.idx] = initial
	p.w.update()
	p.w.mu.Unlock()
	return nil
}

func (p *wirePin) Set(level bool) {
	p.w.mu.Lock()
	p.w.level[p.idx] = level
	p.w.update()
	p.w.mu.Unlock()
}

func (p *wirePin) Get() bool {
	p.w.mu.Lock()
	defer p.w.mu.Unlock()
	if p.idx == 0 {
		return p.w.scl
	}
	return p.w.sda
}
