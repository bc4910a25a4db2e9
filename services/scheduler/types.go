package scheduler

import (
	"context"
	"errors"
	"time"

	"sensornode-go/bus"
	"sensornode-go/drivers/rfm69"
	"sensornode-go/drivers/sht4x"
	"sensornode-go/errcode"
	"sensornode-go/frame"
)

// State of the power scheduler.
type State uint32

const (
	StateInit State = iota
	StateIdle
	StateActive
	StateFailSafe
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateFailSafe:
		return "failsafe"
	default:
		return "unknown"
	}
}

// ErrFailSafe is returned by Run once the context ends while the scheduler
// is waiting for the watchdog to reset the node.
var ErrFailSafe = errors.New("scheduler: fail-safe, awaiting watchdog reset")

// Sensor is the humidity sensor (see drivers/sht4x).
type Sensor interface {
	Init() error
	StartMeasurement() error
	ReadResult() sht4x.Sample
}

// Radio is the transceiver (see drivers/rfm69).
type Radio interface {
	InitPort() error
	InitChip() error
	SetPowerState(rfm69.PowerState) error
	Send(payload []byte) (sent bool, err error)
}

// Bus topics.
var (
	TopicState = bus.Topic{"node", "state"} // retained StateEvent
	TopicTick  = bus.Topic{"node", "tick"}  // TickEvent
	TopicCycle = bus.Topic{"node", "cycle"} // CycleReport
)

type StateEvent struct {
	State  State
	NodeID byte
}

type TickEvent struct {
	Counter  uint8
	Interval uint8
}

// CycleReport describes one active cycle.
type CycleReport struct {
	Cycle    uint32
	Sample   sht4x.Sample // result of the previous cycle's measurement
	ADC      uint16       // raw 10-bit supply sample
	Battery  byte
	Frame    frame.Frame
	Sent     bool
	Failures uint8
	Interval uint8 // next transmit interval, in periods
	Err      errcode.Code
}

// Wake is the single-slot flag the watchdog handler raises to end the low
// power wait. Signal never blocks; repeated signals before a Wait collapse.
type Wake struct {
	ch chan struct{}
}

func NewWake() *Wake { return &Wake{ch: make(chan struct{}, 1)} }

func (w *Wake) Signal() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the next Signal or until ctx ends.
func (w *Wake) Wait(ctx context.Context) error {
	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Config holds the compile-time schedule parameters.
type Config struct {
	// Period is the watchdog timeout (one tick).
	Period time.Duration
	// InitialInterval is the transmit interval, in periods, before the
	// first active cycle.
	InitialInterval uint8
	// IntervalBase is the lower of the two jittered intervals; the ADC
	// noise bit adds 0 or 1.
	IntervalBase uint8
	// FailureThreshold is the number of consecutive invalid samples that
	// is still tolerated; one more enters the fail-safe state.
	FailureThreshold uint8
	DefaultNodeID    byte
	// StartupDelay is waited before port setup and again before chip
	// setup, giving the supply and the transceiver time to settle.
	StartupDelay time.Duration
	// BatteryShift scales the 10-bit ADC sample to the 8-bit frame field.
	BatteryShift uint8
}

func DefaultConfig() Config {
	return Config{
		Period:           8 * time.Second,
		InitialInterval:  2,
		IntervalBase:     3,
		FailureThreshold: 5,
		DefaultNodeID:    3,
		StartupDelay:     time.Second,
		BatteryShift:     2,
	}
}
