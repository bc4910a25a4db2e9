package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"sensornode-go/bus"
	"sensornode-go/drivers/bbi2c"
	"sensornode-go/drivers/rfm69"
	"sensornode-go/drivers/sht4x"
	"sensornode-go/errcode"
	"sensornode-go/frame"
	"sensornode-go/hal/sim"
	"sensornode-go/nodeid"
)

// scriptSensor latches the next scripted sample on StartMeasurement and
// hands it out once on ReadResult, like the real sensor's conversion.
type scriptSensor struct {
	script  []sht4x.Sample
	pending sht4x.Sample
	ready   bool
	calls   []string
}

func (f *scriptSensor) Init() error { return nil }

func (f *scriptSensor) StartMeasurement() error {
	f.calls = append(f.calls, "start")
	f.pending = valid(0x6666, 0x8000)
	if len(f.script) > 0 {
		f.pending = f.script[0]
		f.script = f.script[1:]
	}
	f.ready = true
	return nil
}

func (f *scriptSensor) ReadResult() sht4x.Sample {
	f.calls = append(f.calls, "read")
	if !f.ready {
		return sht4x.Sample{Temp: sht4x.Invalid, Hum: sht4x.Invalid}
	}
	f.ready = false
	return f.pending
}

func valid(t, h uint16) sht4x.Sample { return sht4x.Sample{Temp: t, Hum: h, Valid: true} }

var invalid = sht4x.Sample{Temp: sht4x.Invalid, Hum: sht4x.Invalid}

type rig struct {
	s      *Scheduler
	sensor Sensor
	chip   *sim.RFM69
	adc    *sim.ADC
	wd     *sim.Watchdog
	nvm    *sim.NVM
	conn   *bus.Connection
	cycles *bus.Subscription
}

func newRig(t *testing.T, sensor Sensor, adc ...uint16) *rig {
	t.Helper()
	r := &rig{
		sensor: sensor,
		chip:   sim.NewRFM69(),
		adc:    sim.NewADC(adc...),
		wd:     &sim.Watchdog{},
		nvm:    sim.NewNVM(16),
	}
	b := bus.NewBus(128)
	r.conn = b.NewConnection("test")
	r.cycles = r.conn.Subscribe(TopicCycle)
	return r
}

func (r *rig) init(t *testing.T) {
	t.Helper()
	radio := rfm69.New(r.chip, r.chip.ChipSelect(), rfm69.Config{TxPollLimit: 50})
	r.s = New(DefaultConfig(), Deps{
		Sensor:   r.sensor,
		Radio:    radio,
		ADC:      r.adc,
		Watchdog: r.wd,
		NVM:      r.nvm,
		Conn:     r.conn,
		Delay:    func(time.Duration) {},
	})
	if err := r.s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
}

func (r *rig) ticks(n int) {
	for i := 0; i < n; i++ {
		r.s.Tick()
	}
}

func (r *rig) nextReport(t *testing.T) CycleReport {
	t.Helper()
	select {
	case m := <-r.cycles.Channel():
		return m.Payload.(CycleReport)
	case <-time.After(time.Second):
		t.Fatal("no cycle report")
	}
	return CycleReport{}
}

func (r *rig) lastFrame(t *testing.T) frame.Reading {
	t.Helper()
	sent := r.chip.Sent()
	if len(sent) == 0 {
		t.Fatal("nothing transmitted")
	}
	rd, err := frame.Decode(sent[len(sent)-1])
	if err != nil {
		t.Fatalf("decode on-air frame: %v", err)
	}
	return rd
}

func TestInit_LeavesNodeAsleepAndArmed(t *testing.T) {
	sensor := &scriptSensor{}
	r := newRig(t, sensor)
	r.init(t)

	if r.s.State() != StateIdle {
		t.Fatalf("state = %v, want idle", r.s.State())
	}
	if r.chip.Mode() != 0x00 || r.chip.Powered() {
		t.Fatal("radio not asleep with spi gated")
	}
	if r.chip.Reg(0x07) != 0xD9 {
		t.Fatal("chip not initialised")
	}
	if r.wd.Period() != 8*time.Second || !r.wd.IRQEnabled() {
		t.Fatalf("watchdog period=%v irq=%v", r.wd.Period(), r.wd.IRQEnabled())
	}
	if r.adc.Powered() {
		t.Fatal("adc left powered")
	}
	if len(sensor.calls) != 1 || sensor.calls[0] != "start" {
		t.Fatalf("sensor calls = %v, want one start", sensor.calls)
	}
	if r.s.NodeID() != 3 {
		t.Fatalf("node id = %d, want default 3", r.s.NodeID())
	}
}

func TestInit_LoadsPersistedID(t *testing.T) {
	r := newRig(t, &scriptSensor{})
	if err := nodeid.Store(r.nvm, 0x2A); err != nil {
		t.Fatal(err)
	}
	r.init(t)
	if r.s.NodeID() != 0x2A {
		t.Fatalf("node id = %#02x, want 0x2a", r.s.NodeID())
	}
	r.ticks(3)
	if got := r.lastFrame(t).ID; got != 0x2A {
		t.Fatalf("frame id = %#02x", got)
	}
}

func TestInit_RejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Period = 0
	s := New(cfg, Deps{})
	if err := s.Init(context.Background()); err == nil {
		t.Fatal("Init accepted a zero period")
	}
	if s.State() != StateInit {
		t.Fatalf("state = %v", s.State())
	}
}

func TestTick_FirstCycleAfterInitialInterval(t *testing.T) {
	r := newRig(t, &scriptSensor{script: []sht4x.Sample{valid(0x1234, 0x5678)}}, 0x268)
	r.init(t)

	r.ticks(2)
	if n := len(r.chip.Sent()); n != 0 {
		t.Fatalf("sent %d frames before the interval elapsed", n)
	}
	r.ticks(1)

	got := r.lastFrame(t)
	want := frame.Reading{ID: 3, Temp: 0x1234, Hum: 0x5678, Battery: 0x268 >> 2}
	if got != want {
		t.Fatalf("frame = %+v, want %+v", got, want)
	}
	if r.s.Sent() != 1 || r.s.Cycles() != 1 {
		t.Fatalf("sent=%d cycles=%d", r.s.Sent(), r.s.Cycles())
	}
	if r.chip.Mode() != 0x00 || r.chip.Powered() {
		t.Fatal("radio not back to sleep after the cycle")
	}
	if r.adc.Powered() || r.adc.Conversions() != 1 || r.adc.Unstarted() != 0 {
		t.Fatal("adc not sampled once and powered down")
	}
	rep := r.nextReport(t)
	if !rep.Sent || rep.Err != errcode.OK || rep.Interval != 3 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestInterval_JitterFromADCLowBit(t *testing.T) {
	for _, tc := range []struct {
		adc  uint16
		want uint8
	}{
		{0x000, 3}, {0x001, 4}, {0x2AA, 3}, {0x2AB, 4}, {0x3FE, 3}, {0x3FF, 4},
	} {
		r := newRig(t, &scriptSensor{}, tc.adc)
		r.init(t)
		r.ticks(3)
		if r.s.interval != tc.want {
			t.Fatalf("adc %#03x: interval = %d, want %d", tc.adc, r.s.interval, tc.want)
		}

		// The next cycle runs on tick interval+1.
		r.ticks(int(tc.want))
		if n := len(r.chip.Sent()); n != 1 {
			t.Fatalf("adc %#03x: %d frames after %d idle ticks", tc.adc, n, tc.want)
		}
		r.ticks(1)
		if n := len(r.chip.Sent()); n != 2 {
			t.Fatalf("adc %#03x: second frame missing", tc.adc)
		}
	}
}

func TestCycle_ReadsPreviousThenStartsNext(t *testing.T) {
	sensor := &scriptSensor{script: []sht4x.Sample{
		valid(0x0100, 0x0200), // started in Init
		valid(0x0300, 0x0400), // started in cycle 1
		valid(0x0500, 0x0600), // started in cycle 2
	}}
	r := newRig(t, sensor, 0x200)
	r.init(t)

	r.ticks(3)
	if f := r.lastFrame(t); f.Temp != 0x0100 || f.Hum != 0x0200 {
		t.Fatalf("cycle 1 frame = %+v, want the Init measurement", f)
	}
	r.ticks(4)
	if f := r.lastFrame(t); f.Temp != 0x0300 || f.Hum != 0x0400 {
		t.Fatalf("cycle 2 frame = %+v, want the cycle 1 measurement", f)
	}

	want := []string{"start", "read", "start", "read", "start"}
	if len(sensor.calls) != len(want) {
		t.Fatalf("sensor calls = %v, want %v", sensor.calls, want)
	}
	for i := range want {
		if sensor.calls[i] != want[i] {
			t.Fatalf("sensor calls = %v, want %v", sensor.calls, want)
		}
	}
}

func TestCycle_InvalidSampleStillTransmitted(t *testing.T) {
	r := newRig(t, &scriptSensor{script: []sht4x.Sample{invalid}}, 0x100)
	r.init(t)
	r.ticks(3)

	f := r.lastFrame(t)
	if f.Temp != 0xFFFF || f.Hum != 0xFFFF || f.Battery != 0x40 {
		t.Fatalf("frame = %+v", f)
	}
	rep := r.nextReport(t)
	if rep.Err != errcode.NotReady || rep.Failures != 1 || !rep.Sent {
		t.Fatalf("report = %+v", rep)
	}
}

// runCycles ticks until n active cycles have run.
func (r *rig) runCycles(t *testing.T, n int) {
	t.Helper()
	for start := r.s.Cycles(); r.s.Cycles() < start+uint32(n); {
		if r.s.State() == StateFailSafe {
			t.Fatalf("entered fail-safe after %d cycles", r.s.Cycles()-start)
		}
		r.s.Tick()
	}
}

func TestFailureCounter_SixConsecutiveInvalid(t *testing.T) {
	script := make([]sht4x.Sample, 6)
	for i := range script {
		script[i] = invalid
	}
	r := newRig(t, &scriptSensor{script: script})
	r.init(t)

	r.runCycles(t, 5)
	if r.s.failures != 5 || r.s.State() != StateIdle {
		t.Fatalf("after 5 invalid: failures=%d state=%v", r.s.failures, r.s.State())
	}
	sentBefore := len(r.chip.Sent())

	for r.s.State() != StateFailSafe {
		r.s.Tick()
		if r.s.Cycles() > 6 {
			t.Fatal("no fail-safe after the sixth invalid read")
		}
	}
	if r.s.Cycles() != 6 {
		t.Fatalf("fail-safe on cycle %d, want 6", r.s.Cycles())
	}
	if len(r.chip.Sent()) != sentBefore {
		t.Fatal("frame transmitted on the fail-safe cycle")
	}
	if r.chip.Powered() || r.adc.Powered() {
		t.Fatal("radio or adc left powered in fail-safe")
	}

	// Terminal for this boot.
	r.ticks(20)
	if r.s.Cycles() != 6 || r.s.State() != StateFailSafe {
		t.Fatal("scheduler left fail-safe")
	}
}

func TestFailureCounter_ValidReadResets(t *testing.T) {
	script := []sht4x.Sample{
		invalid, invalid, invalid, invalid, invalid,
		valid(1, 2),
		invalid, invalid, invalid, invalid, invalid,
	}
	r := newRig(t, &scriptSensor{script: script})
	r.init(t)

	r.runCycles(t, 5)
	if r.s.failures != 5 {
		t.Fatalf("failures = %d, want 5", r.s.failures)
	}
	r.runCycles(t, 1)
	if r.s.failures != 0 {
		t.Fatalf("valid read did not reset the counter: %d", r.s.failures)
	}
	r.runCycles(t, 5)
	if r.s.failures != 5 || r.s.State() == StateFailSafe {
		t.Fatalf("failures=%d state=%v", r.s.failures, r.s.State())
	}
}

func TestCycle_WedgedRadioDropsFrame(t *testing.T) {
	r := newRig(t, &scriptSensor{})
	r.init(t)
	r.chip.SetWedged(true)

	r.ticks(3)
	rep := r.nextReport(t)
	if rep.Sent || rep.Err != errcode.TxTimeout {
		t.Fatalf("report = %+v", rep)
	}
	if r.chip.TxEntries() != 1 || r.chip.Mode() != 0x00 {
		t.Fatalf("tx entries=%d mode=%#02x", r.chip.TxEntries(), r.chip.Mode())
	}
	if r.s.Sent() != 0 || r.s.State() != StateIdle {
		t.Fatal("wedged transmission counted or scheduler stuck")
	}
}

func TestCycle_RadioStandbyFailure(t *testing.T) {
	r := newRig(t, &scriptSensor{})
	r.init(t)
	r.chip.SetReadyDelay(1_000_000)

	r.ticks(3)
	rep := r.nextReport(t)
	if rep.Err != errcode.Radio || rep.Sent {
		t.Fatalf("report = %+v", rep)
	}
	if r.chip.TxEntries() != 0 {
		t.Fatal("transmitted without a ready transceiver")
	}
}

func TestIntegration_RealSensorDriver(t *testing.T) {
	model := sim.NewSHT4x(sht4x.Address, 0x635C, 0x5B3D)
	w := sim.NewWire(model)
	dev := sht4x.New(bbi2c.New(w.SCL(), w.SDA(), bbi2c.Config{Delay: func(time.Duration) {}}), sht4x.Config{})

	r := newRig(t, dev, 0x321)
	r.init(t)
	r.ticks(3)

	f := r.lastFrame(t)
	if f.Temp != 0x635C || f.Hum != 0x5B3D || f.Battery != 0x321>>2 {
		t.Fatalf("frame = %+v", f)
	}
	if n := len(model.Commands()); n != 2 {
		t.Fatalf("measurement commands = %d, want 2 (init + cycle)", n)
	}

	model.SetDeaf(true)
	r.ticks(5) // interval 4 after an odd sample
	if f := r.lastFrame(t); f.Temp != 0xFFFF || f.Hum != 0xFFFF {
		t.Fatalf("deaf sensor frame = %+v", f)
	}
	if r.s.failures != 1 {
		t.Fatalf("failures = %d", r.s.failures)
	}
}

// ---------------------------------------------------------------------------
// Run loop against the simulated watchdog
// ---------------------------------------------------------------------------

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func (r *rig) start(t *testing.T, ctx context.Context) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.s.Run(ctx) }()
	eventually(t, func() bool { return r.wd.Feeds() >= 1 })
	return done
}

// expire fires the watchdog and waits for the loop to be back asleep.
func (r *rig) expire(t *testing.T) {
	t.Helper()
	before := r.wd.Feeds()
	if r.wd.Expire() {
		t.Fatal("watchdog expiry reset the node")
	}
	eventually(t, func() bool {
		return r.wd.Feeds() > before || r.s.State() == StateFailSafe
	})
}

func TestRun_EveryWakeReenablesInterrupt(t *testing.T) {
	r := newRig(t, &scriptSensor{}, 0x3FF)
	r.init(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := r.start(t, ctx)

	for i := 1; i <= 12; i++ {
		r.expire(t)
		if !r.wd.IRQEnabled() {
			t.Fatalf("wake %d: interrupt enable not restored", i)
		}
	}
	if r.wd.Resets() != 0 || r.wd.Wakes() != 12 || r.wd.Rearms() != 12 {
		t.Fatalf("resets=%d wakes=%d rearms=%d", r.wd.Resets(), r.wd.Wakes(), r.wd.Rearms())
	}
	// Cycles run on wakes 3 and 8.
	if n := len(r.chip.Sent()); n != 2 {
		t.Fatalf("frames = %d, want 2", n)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

func TestRun_FailSafeEndsInWatchdogReset(t *testing.T) {
	script := make([]sht4x.Sample, 10)
	for i := range script {
		script[i] = invalid
	}
	r := newRig(t, &scriptSensor{script: script}, 0x200)
	r.init(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.wd.OnReset = cancel
	done := r.start(t, ctx)

	for r.s.State() != StateFailSafe {
		r.expire(t)
		if r.s.Cycles() > 6 {
			t.Fatal("fail-safe not entered")
		}
	}
	feeds := r.wd.Feeds()

	// The interrupt re-enabled before the fatal cycle yields one more wake,
	// which must not re-enable it again.
	if r.wd.Expire() {
		t.Fatal("first expiry in fail-safe should still be a wake")
	}
	time.Sleep(20 * time.Millisecond)
	if r.wd.IRQEnabled() {
		t.Fatal("fail-safe re-enabled the wake interrupt")
	}
	if !r.wd.Expire() {
		t.Fatal("second expiry in fail-safe should reset")
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrFailSafe) {
			t.Fatalf("Run = %v, want ErrFailSafe", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after reset")
	}
	if r.wd.Feeds() != feeds {
		t.Fatal("watchdog fed in fail-safe")
	}
}

func TestRun_PublishesRetainedState(t *testing.T) {
	r := newRig(t, &scriptSensor{})
	r.init(t)

	sub := r.conn.Subscribe(TopicState)
	select {
	case m := <-sub.Channel():
		ev := m.Payload.(StateEvent)
		if ev.State != StateIdle || ev.NodeID != 3 {
			t.Fatalf("retained state = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no retained state")
	}
}

func TestWake_CollapsesSignals(t *testing.T) {
	w := NewWake()
	w.Signal()
	w.Signal()
	if err := w.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := w.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Wait = %v, want deadline", err)
	}
}
