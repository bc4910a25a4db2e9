// hal/types.go
//
// Package hal defines the peripheral capabilities the node firmware is
// written against. Concrete implementations live in internal/platform (MCU,
// Linux/periph) and hal/sim (simulated hardware for host runs and tests).
package hal

import (
	"time"

	"tinygo.org/x/drivers"
)

// Pull selects the input bias of a GPIO line.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Pin is a single GPIO line.
//
// Open-drain lines (the bit-banged sensor bus) are emulated by switching
// between ConfigureOutput (drive) and ConfigureInput(PullUp) (release).
type Pin interface {
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
}

// SPIPort is a hardware SPI peripheral that can be power-gated.
// Tx/Transfer follow the TinyGo drivers.SPI contract.
type SPIPort interface {
	drivers.SPI
	// Configure programs the serial clock. It must be called again after the
	// peripheral has been powered down.
	Configure(hz uint32) error
	// SetPowered gates the peripheral clock.
	SetPowered(on bool)
}

// ADC samples the supply voltage.
type ADC interface {
	Configure() error
	SetPowered(on bool)
	StartConversion()
	// Read blocks until the conversion started by StartConversion completes
	// and returns a 10-bit sample (0..1023, full scale = supply voltage).
	Read() uint16
}

// NVM is byte-addressed non-volatile storage (EEPROM, flash page, file).
type NVM interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
}

// Watchdog is a periodic hardware timer that can either wake the CPU or
// reset it.
//
// While the wake IRQ is enabled an expiry clears the enable bit and calls the
// onWake handler. An expiry with the IRQ disabled is a full hardware reset,
// so the main loop must call EnableWakeIRQ after every wake.
type Watchdog interface {
	Arm(period time.Duration, onWake func()) error
	EnableWakeIRQ() error
	Feed()
}

// Board bundles every capability the firmware needs from one platform.
type Board struct {
	SCL, SDA Pin
	RadioCS  Pin
	RadioSPI SPIPort
	ADC      ADC
	NVM      NVM
	Watchdog Watchdog

	// Close releases host resources (nil on MCU).
	Close func() error
}
