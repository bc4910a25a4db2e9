// internal/platform/rp2.go
//go:build rp2040 || rp2350

package platform

import (
	"errors"
	"machine"
	"sync"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
	"go.uber.org/zap/zapcore"

	"sensornode-go/hal"
)

// Board wiring.
const (
	pinSCL      = machine.GPIO5
	pinSDA      = machine.GPIO4
	pinRadioCS  = machine.GPIO17
	pinRadioSCK = machine.GPIO18
	pinRadioSDO = machine.GPIO19
	pinRadioSDI = machine.GPIO16
	pinSupply   = machine.ADC0

	logBaud = 115200
)

// NewBoard returns the RP2 board. The identifier lives at the start of the
// flash data region.
func NewBoard() hal.Board {
	return hal.Board{
		SCL:      rp2Pin{p: pinSCL},
		SDA:      rp2Pin{p: pinSDA},
		RadioCS:  rp2Pin{p: pinRadioCS},
		RadioSPI: &rp2SPI{bus: machine.SPI0},
		ADC:      &rp2ADC{a: machine.ADC{Pin: pinSupply}},
		NVM:      machine.Flash,
		Watchdog: &rp2Watchdog{},
	}
}

// LogSink configures UART0 and returns it as the log destination.
func LogSink() zapcore.WriteSyncer {
	_ = uartx.UART0.Configure(uartx.UARTConfig{
		BaudRate: logBaud,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	return zapcore.AddSync(uartx.UART0)
}

// -----------------------------------------------------------------------------
// GPIO
// -----------------------------------------------------------------------------

type rp2Pin struct{ p machine.Pin }

func (r rp2Pin) ConfigureInput(pull hal.Pull) error {
	var mode machine.PinMode
	switch pull {
	case hal.PullUp:
		mode = machine.PinInputPullup
	case hal.PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r rp2Pin) ConfigureOutput(initial bool) error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r rp2Pin) Set(b bool) { r.p.Set(b) }
func (r rp2Pin) Get() bool  { return r.p.Get() }

// -----------------------------------------------------------------------------
// SPI
// -----------------------------------------------------------------------------

var errSPIDown = errors.New("spi: powered down")

// rp2SPI releases the bus pins while powered down so the radio sees no
// clock edges; Configure restores them.
type rp2SPI struct {
	bus     *machine.SPI
	powered bool
}

func (s *rp2SPI) Configure(hz uint32) error {
	if !s.powered {
		return errSPIDown
	}
	return s.bus.Configure(machine.SPIConfig{
		Frequency: hz,
		SCK:       pinRadioSCK,
		SDO:       pinRadioSDO,
		SDI:       pinRadioSDI,
		Mode:      0,
	})
}

func (s *rp2SPI) SetPowered(on bool) {
	s.powered = on
	if !on {
		for _, p := range []machine.Pin{pinRadioSCK, pinRadioSDO, pinRadioSDI} {
			p.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
		}
	}
}

func (s *rp2SPI) Tx(w, r []byte) error {
	if !s.powered {
		return errSPIDown
	}
	return s.bus.Tx(w, r)
}

func (s *rp2SPI) Transfer(b byte) (byte, error) {
	if !s.powered {
		return 0, errSPIDown
	}
	return s.bus.Transfer(b)
}

// -----------------------------------------------------------------------------
// ADC
// -----------------------------------------------------------------------------

// rp2ADC converts synchronously in StartConversion and scales the 16-bit
// result down to 10 bits.
type rp2ADC struct {
	a       machine.ADC
	powered bool
	sample  uint16
}

func (r *rp2ADC) Configure() error {
	machine.InitADC()
	return r.a.Configure(machine.ADCConfig{})
}

func (r *rp2ADC) SetPowered(on bool) { r.powered = on }

func (r *rp2ADC) StartConversion() {
	if r.powered {
		r.sample = r.a.Get() >> 6
	}
}

func (r *rp2ADC) Read() uint16 { return r.sample }

// -----------------------------------------------------------------------------
// Watchdog
// -----------------------------------------------------------------------------

const wdTick = 250 * time.Millisecond

// rp2Watchdog emulates an interrupt-then-reset watchdog. A ticker keeps the
// hardware watchdog alive and counts out the period; an expiry with the wake
// interrupt disabled stops the updates and the hardware resets the chip.
type rp2Watchdog struct {
	mu      sync.Mutex
	period  time.Duration
	elapsed time.Duration
	irq     bool
	dead    bool
	onWake  func()
	started bool
}

var errWDNotArmed = errors.New("watchdog: not armed")

func (w *rp2Watchdog) Arm(period time.Duration, onWake func()) error {
	w.mu.Lock()
	w.period, w.onWake, w.irq, w.elapsed = period, onWake, true, 0
	start := !w.started
	w.started = true
	w.mu.Unlock()

	if !start {
		return nil
	}
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1000}); err != nil {
		return err
	}
	if err := machine.Watchdog.Start(); err != nil {
		return err
	}
	go w.run()
	return nil
}

func (w *rp2Watchdog) EnableWakeIRQ() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return errWDNotArmed
	}
	w.irq = true
	return nil
}

func (w *rp2Watchdog) Feed() {
	w.mu.Lock()
	w.elapsed = 0
	w.mu.Unlock()
}

func (w *rp2Watchdog) run() {
	t := time.NewTicker(wdTick)
	defer t.Stop()
	for range t.C {
		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}
		machine.Watchdog.Update()
		w.elapsed += wdTick
		var wake func()
		if w.elapsed >= w.period {
			w.elapsed = 0
			if w.irq {
				w.irq = false
				wake = w.onWake
			} else {
				w.dead = true
			}
		}
		w.mu.Unlock()
		if wake != nil {
			wake()
		}
	}
}
