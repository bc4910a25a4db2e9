// hal/sim/adc.go
package sim

import (
	"sync"

	"sensornode-go/hal"
)

// ADC replays a fixed sequence of 10-bit samples; the last one repeats.
type ADC struct {
	mu      sync.Mutex
	samples []uint16
	next    int
	powered bool
	started bool

	conversions int
	unstarted   int
}

var _ hal.ADC = (*ADC)(nil)

// NewADC returns an ADC that yields samples in order. With no samples it
// reads 0x3FF (full scale).
func NewADC(samples ...uint16) *ADC {
	if len(samples) == 0 {
		samples = []uint16{0x3FF}
	}
	return &ADC{samples: samples}
}

func (a *ADC) Configure() error { return nil }

func (a *ADC) SetPowered(on bool) {
	a.mu.Lock()
	a.powered = on
	a.mu.Unlock()
}

func (a *ADC) StartConversion() {
	a.mu.Lock()
	a.started = a.powered
	a.mu.Unlock()
}

// Read returns the next sample, or 0 if no conversion was started while
// powered.
func (a *ADC) Read() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		a.unstarted++
		return 0
	}
	a.started = false
	a.conversions++
	v := a.samples[a.next] & 0x3FF
	if a.next < len(a.samples)-1 {
		a.next++
	}
	return v
}

// Set replaces the remaining sample sequence.
func (a *ADC) Set(samples ...uint16) {
	a.mu.Lock()
	if len(samples) > 0 {
		a.samples = samples
		a.next = 0
	}
	a.mu.Unlock()
}

func (a *ADC) Powered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.powered
}

func (a *ADC) Conversions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conversions
}

// Unstarted counts reads without a preceding powered StartConversion.
func (a *ADC) Unstarted() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unstarted
}
