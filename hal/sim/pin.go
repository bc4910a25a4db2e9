// hal/sim/pin.go
//
// Package sim provides simulated peripherals for host-side runs and tests:
// GPIO lines, an open-drain two-wire bus with an SHT4x target, an RFM69
// register model, a watchdog, an ADC and a byte-addressed NVM.
package sim

import (
	"sync"

	"sensornode-go/hal"
)

// Pin is a stand-alone simulated GPIO line. OnChange, if set, is called
// outside the lock whenever the driven level changes.
type Pin struct {
	mu      sync.RWMutex
	level   bool
	modeOut bool
	pull    hal.Pull

	OnChange func(level bool)
}

var _ hal.Pin = (*Pin)(nil)

func (p *Pin) ConfigureInput(pull hal.Pull) error {
	p.mu.Lock()
	p.modeOut = false
	p.pull = pull
	old := p.level
	p.level = pull == hal.PullUp
	cb := p.OnChange
	p.mu.Unlock()
	if cb != nil && old != p.Get() {
		cb(p.Get())
	}
	return nil
}

func (p *Pin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.modeOut = true
	p.mu.Unlock()
	p.Set(initial)
	return nil
}

func (p *Pin) Set(level bool) {
	p.mu.Lock()
	old := p.level
	p.level = level
	cb := p.OnChange
	p.mu.Unlock()
	if cb != nil && old != level {
		cb(level)
	}
}

func (p *Pin) Get() bool {
	p.mu.RLock()
	v := p.level
	p.mu.RUnlock()
	return v
}

// IsOutput reports whether the line is currently driven.
func (p *Pin) IsOutput() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modeOut
}
