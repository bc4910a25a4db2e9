// Package bbi2c implements a software-timed two-wire (I²C-style) master on a
// pair of GPIO lines with external pull-ups.
//
// It exposes the raw bus primitives rather than a Tx helper because the
// sensor it drives uses the address acknowledge as its "result ready" signal:
//
//	b.Start()
//	if !b.WriteByte(addr<<1 | 1) { b.Stop(); return }
//	hi := b.ReadByte(true)
//	lo := b.ReadByte(false)
//	b.Stop()
//
// Callers must own both lines exclusively between Start and Stop. No other
// interrupt handler may run long enough to stretch the clock unpredictably.
package bbi2c

import (
	"time"

	"sensornode-go/hal"
)

// Config controls bus timing. All fields are optional.
type Config struct {
	// Settle is waited after every line transition. It is the only tunable:
	// longer is always safe, shorter risks corrupting the protocol.
	// Default 10 µs (roughly 25 kHz SCL).
	Settle time.Duration
	// Delay performs the settle wait. Default time.Sleep.
	Delay func(time.Duration)
}

// Bus is a bit-banged two-wire bus master.
type Bus struct {
	scl, sda hal.Pin
	cfg      Config

	// true while the line is configured as an output (driven).
	sclOut, sdaOut bool
}

// New creates a bus on the given lines. It does not touch the pins; call
// Init before the first transaction.
func New(scl, sda hal.Pin, cfg Config) *Bus {
	if cfg.Settle <= 0 {
		cfg.Settle = 10 * time.Microsecond
	}
	if cfg.Delay == nil {
		cfg.Delay = time.Sleep
	}
	return &Bus{scl: scl, sda: sda, cfg: cfg}
}

// Init releases both lines so the pull-ups hold the bus idle-high.
func (b *Bus) Init() error {
	if err := b.scl.ConfigureInput(hal.PullUp); err != nil {
		return err
	}
	if err := b.sda.ConfigureInput(hal.PullUp); err != nil {
		return err
	}
	b.sclOut, b.sdaOut = false, false
	return nil
}

// Start sends a START condition: SDA falls while SCL is high.
// Expects both lines idle-high; returns with both driven low.
func (b *Bus) Start() {
	b.driveSDA(true)
	b.driveSCL(true)
	b.settle()
	b.driveSDA(false)
	b.settle()
	b.driveSCL(false)
	b.settle()
}

// Stop sends a STOP condition: SDA rises while SCL is high. Both lines are
// released afterwards.
func (b *Bus) Stop() {
	// SDA may have been released by a read; pull it low under SCL low first
	// so the rising edge below is a real STOP.
	b.driveSDA(false)
	b.settle()
	b.driveSCL(true)
	b.settle()
	b.driveSDA(true)
	b.settle()
	b.releaseSDA()
	b.releaseSCL()
}

// WriteByte shifts v out MSB first and returns whether the receiver pulled
// SDA low on the ninth clock. Expects SCL driven low; returns with SCL and
// SDA driven low.
func (b *Bus) WriteByte(v byte) bool {
	for i := 0; i < 8; i++ {
		b.driveSDA(v&0x80 != 0)
		b.settle()
		b.pulseSCL()
		v <<= 1
	}

	// Acknowledge bit: hand SDA to the receiver.
	b.releaseSDA()
	b.settle()
	b.driveSCL(true)
	b.settle()
	nack := b.sda.Get()
	b.driveSCL(false)
	b.settle()

	b.driveSDA(false)
	b.settle()
	return !nack
}

// ReadByte clocks in one byte MSB first. With ack set SDA is pulled low on
// the ninth clock, otherwise it is left high to mark the last byte.
// Expects SCL driven low; returns with SCL low and SDA released.
func (b *Bus) ReadByte(ack bool) byte {
	var v byte
	b.releaseSDA()
	for i := 0; i < 8; i++ {
		b.driveSCL(true)
		b.settle()
		v <<= 1
		if b.sda.Get() {
			v |= 0x01
		}
		b.driveSCL(false)
		b.settle()
	}

	b.driveSDA(!ack)
	b.settle()
	b.pulseSCL()
	b.releaseSDA()
	b.settle()
	return v
}

// pulseSCL raises then lowers the clock, settling after each edge.
func (b *Bus) pulseSCL() {
	b.driveSCL(true)
	b.settle()
	b.driveSCL(false)
	b.settle()
}

func (b *Bus) settle() { b.cfg.Delay(b.cfg.Settle) }

func (b *Bus) driveSCL(level bool) {
	if !b.sclOut {
		_ = b.scl.ConfigureOutput(level)
		b.sclOut = true
		return
	}
	b.scl.Set(level)
}

func (b *Bus) driveSDA(level bool) {
	if !b.sdaOut {
		_ = b.sda.ConfigureOutput(level)
		b.sdaOut = true
		return
	}
	b.sda.Set(level)
}

func (b *Bus) releaseSCL() {
	_ = b.scl.ConfigureInput(hal.PullUp)
	b.sclOut = false
}

func (b *Bus) releaseSDA() {
	_ = b.sda.ConfigureInput(hal.PullUp)
	b.sdaOut = false
}
