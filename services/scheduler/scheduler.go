// Package scheduler runs the node's watchdog-paced control loop.
//
// The watchdog expires every Config.Period. Each expiry is one tick; once the
// tick counter exceeds the transmit interval the scheduler runs an active
// cycle: wake the radio, read the previous measurement, start the next one,
// sample the supply, send a frame and put the radio back to sleep. Too many
// consecutive invalid samples put the scheduler into the fail-safe state,
// where it stops servicing the watchdog so that the next expiry resets the
// node.
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"sensornode-go/bus"
	"sensornode-go/drivers/rfm69"
	"sensornode-go/drivers/sht4x"
	"sensornode-go/errcode"
	"sensornode-go/frame"
	"sensornode-go/hal"
	"sensornode-go/nodeid"
)

// Deps are the collaborators the scheduler drives. Conn, Log and Delay are
// optional.
type Deps struct {
	Sensor   Sensor
	Radio    Radio
	ADC      hal.ADC
	Watchdog hal.Watchdog
	NVM      hal.NVM

	Conn  *bus.Connection
	Log   *zap.Logger
	Delay func(time.Duration)
}

// Validate checks the schedule parameters.
func (c Config) Validate() error {
	switch {
	case c.Period <= 0:
		return errors.New("scheduler: Period must be positive")
	case c.InitialInterval == 0 || c.IntervalBase == 0:
		return errors.New("scheduler: transmit intervals must be at least one period")
	case c.IntervalBase == 0xFF:
		return errors.New("scheduler: IntervalBase leaves no room for jitter")
	case c.BatteryShift < 2 || c.BatteryShift > 10:
		return errors.New("scheduler: BatteryShift must be 2..10 for a 10-bit sample")
	}
	return nil
}

// Scheduler is single-threaded: Init, Tick and Run must be called from one
// goroutine. State and the counters may be read from anywhere.
type Scheduler struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
	wake *Wake

	id       byte
	counter  uint8
	interval uint8
	failures uint8

	state  atomic.Uint32
	cycles atomic.Uint32
	sent   atomic.Uint32
}

// New wires a scheduler. It performs no I/O.
func New(cfg Config, deps Deps) *Scheduler {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Delay == nil {
		deps.Delay = time.Sleep
	}
	s := &Scheduler{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Log.Named("scheduler"),
		wake:     NewWake(),
		id:       cfg.DefaultNodeID,
		interval: cfg.InitialInterval,
	}
	s.state.Store(uint32(StateInit))
	return s
}

func (s *Scheduler) State() State   { return State(s.state.Load()) }
func (s *Scheduler) NodeID() byte   { return s.id }
func (s *Scheduler) Cycles() uint32 { return s.cycles.Load() }

// Sent counts frames the radio confirmed as transmitted.
func (s *Scheduler) Sent() uint32 { return s.sent.Load() }

// Wake returns the flag the watchdog handler signals.
func (s *Scheduler) Wake() *Wake { return s.wake }

// Init brings up the peripherals, loads the node identifier, starts the
// first measurement, arms the watchdog and puts the radio to sleep.
func (s *Scheduler) Init(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	d := s.deps
	s.setState(StateInit)

	d.Delay(s.cfg.StartupDelay)
	if err := d.Radio.InitPort(); err != nil {
		return errcode.Wrap(errcode.Radio, "init port", err)
	}
	if err := d.ADC.Configure(); err != nil {
		return errcode.Wrap(errcode.Error, "init adc", err)
	}
	d.ADC.SetPowered(false)
	if err := d.Sensor.Init(); err != nil {
		return errcode.Wrap(errcode.NotReady, "init sensor", err)
	}

	id, ok := nodeid.Load(d.NVM, s.cfg.DefaultNodeID)
	s.id = id
	if ok {
		s.log.Info("node id loaded", zap.Uint8("id", id))
	} else {
		s.log.Info("no valid node id record, using default", zap.Uint8("id", id))
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	d.Delay(s.cfg.StartupDelay)
	if err := d.Radio.InitChip(); err != nil {
		return errcode.Wrap(errcode.Radio, "init chip", err)
	}

	if err := d.Sensor.StartMeasurement(); err != nil {
		// Counted on the first active cycle, when the read fails.
		s.log.Warn("initial measurement not acknowledged", zap.Error(err))
	}
	if err := d.Watchdog.Arm(s.cfg.Period, s.wake.Signal); err != nil {
		return errcode.Wrap(errcode.Error, "arm watchdog", err)
	}
	if err := d.Radio.SetPowerState(rfm69.Sleep); err != nil {
		return errcode.Wrap(errcode.Radio, "radio sleep", err)
	}

	s.counter = 0
	s.interval = s.cfg.InitialInterval
	s.failures = 0
	s.setState(StateIdle)
	s.log.Info("node up",
		zap.Uint8("id", s.id),
		zap.Duration("period", s.cfg.Period),
		zap.Uint8("interval", s.interval))
	return nil
}

// Run services the watchdog and sleeps until each wake, running Tick after
// re-enabling the wake interrupt. It returns ctx.Err() when ctx ends, or
// ErrFailSafe if the scheduler had entered the fail-safe state.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if s.State() == StateFailSafe {
			return s.failSafe(ctx)
		}
		s.deps.Watchdog.Feed()
		if err := s.wake.Wait(ctx); err != nil {
			return err
		}
		// The expiry cleared the interrupt enable; without it the next
		// expiry is a reset.
		if err := s.deps.Watchdog.EnableWakeIRQ(); err != nil {
			s.log.Error("re-enable watchdog wake", zap.Error(err))
		}
		s.Tick()
	}
}

// Tick handles one watchdog wake.
func (s *Scheduler) Tick() {
	if s.State() == StateFailSafe {
		return
	}
	s.counter++
	s.log.Debug("tick", zap.Uint8("counter", s.counter), zap.Uint8("interval", s.interval))
	s.publish(TopicTick, TickEvent{Counter: s.counter, Interval: s.interval}, false)

	if s.counter > s.interval {
		s.active()
	}
}

// active runs one measure and transmit cycle.
func (s *Scheduler) active() {
	d := s.deps
	s.setState(StateActive)
	rep := CycleReport{Cycle: s.cycles.Add(1)}

	radioErr := d.Radio.SetPowerState(rfm69.Standby)
	if radioErr != nil {
		s.log.Error("radio standby", zap.Error(radioErr))
	}
	d.ADC.SetPowered(true)
	d.ADC.StartConversion()

	// Result of the measurement started one cycle ago.
	sample := d.Sensor.ReadResult()
	if sample.Valid {
		s.failures = 0
	} else {
		sample.Temp, sample.Hum = sht4x.Invalid, sht4x.Invalid
		s.failures++
		s.log.Warn("invalid sensor sample", zap.Uint8("failures", s.failures))
		if s.failures > s.cfg.FailureThreshold {
			rep.Sample = sample
			rep.Failures = s.failures
			rep.Err = errcode.FailSafe
			s.enterFailSafe(rep)
			return
		}
	}
	if err := d.Sensor.StartMeasurement(); err != nil {
		s.log.Debug("start measurement", zap.Error(err))
	}

	raw := d.ADC.Read()
	d.ADC.SetPowered(false)
	batt := byte(raw >> s.cfg.BatteryShift)

	f := frame.Encode(s.id, sample.Temp, sample.Hum, batt)
	rep.Sample = sample
	rep.ADC = raw
	rep.Battery = batt
	rep.Frame = f
	rep.Failures = s.failures

	switch {
	case radioErr != nil:
		rep.Err = errcode.Radio
	default:
		sent, err := d.Radio.Send(f.Bytes())
		switch {
		case err != nil:
			s.log.Error("send frame", zap.Error(err))
			rep.Err = errcode.Radio
		case !sent:
			s.log.Warn("packet sent flag never set, frame dropped")
			rep.Err = errcode.TxTimeout
		default:
			s.sent.Add(1)
			rep.Sent = true
			rep.Err = errcode.OK
		}
	}
	if !sample.Valid && rep.Err == errcode.OK {
		rep.Err = errcode.NotReady
	}

	// Low bit of the supply sample is noise; it staggers nodes that booted
	// together.
	s.interval = s.cfg.IntervalBase + uint8(raw&1)
	rep.Interval = s.interval

	if err := d.Radio.SetPowerState(rfm69.Sleep); err != nil {
		s.log.Error("radio sleep", zap.Error(err))
	}
	s.counter = 0

	s.log.Info("cycle",
		zap.Uint32("cycle", rep.Cycle),
		zap.Uint16("temp_raw", sample.Temp),
		zap.Uint16("hum_raw", sample.Hum),
		zap.Uint8("battery", batt),
		zap.Bool("sent", rep.Sent),
		zap.Uint8("next_interval", s.interval),
		zap.String("result", string(rep.Err)))
	s.publish(TopicCycle, rep, false)
	s.setState(StateIdle)
}

func (s *Scheduler) enterFailSafe(rep CycleReport) {
	d := s.deps
	s.log.Error("sensor failure threshold exceeded, withholding watchdog service",
		zap.Uint8("failures", rep.Failures))
	d.ADC.SetPowered(false)
	if err := d.Radio.SetPowerState(rfm69.Sleep); err != nil {
		s.log.Error("radio sleep", zap.Error(err))
	}
	s.publish(TopicCycle, rep, false)
	s.setState(StateFailSafe)
}

// failSafe waits without feeding the watchdog or re-enabling its wake
// interrupt. The pending interrupt may wake it once more; the expiry after
// that is a hardware reset.
func (s *Scheduler) failSafe(ctx context.Context) error {
	for {
		if err := s.wake.Wait(ctx); err != nil {
			return ErrFailSafe
		}
		s.log.Debug("woken in fail-safe, sleeping again")
	}
}

func (s *Scheduler) setState(st State) {
	s.state.Store(uint32(st))
	s.publish(TopicState, StateEvent{State: st, NodeID: s.id}, true)
}

func (s *Scheduler) publish(t bus.Topic, payload any, retained bool) {
	if s.deps.Conn == nil {
		return
	}
	s.deps.Conn.Publish(s.deps.Conn.NewMessage(t, payload, retained))
}
