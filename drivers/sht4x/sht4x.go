// Package sht4x provides a driver for the Sensirion SHT4x temperature/humidity
// sensor on a bit-banged two-wire bus. It exposes a two-phase measurement API:
//
//	d.StartMeasurement()   // fire-and-forget, returns immediately
//	s := d.ReadResult()    // at least ConversionTime later
//
// The sensor does not acknowledge its read address until a conversion has
// finished, so an early ReadResult simply yields an invalid Sample. There is
// no retry inside the driver; callers try again on their next cycle.
package sht4x

import (
	"errors"
	"time"

	"sensornode-go/x/mathx"
)

// I2C address (7-bit).
const Address = 0x44

const (
	cmdMeasureHigh = 0xFD // single shot, high repeatability, no clock stretching

	dirWrite = 0x00
	dirRead  = 0x01
)

// ConversionTime is the worst-case duration of a high-precision measurement.
// Only a hint; the driver never sleeps.
const ConversionTime = 10 * time.Millisecond

// Invalid is the sentinel stored in both Sample fields when no valid reading
// is available.
const Invalid uint16 = 0xFFFF

// ErrNack is returned by StartMeasurement when the address byte was not
// acknowledged.
var ErrNack = errors.New("sht4x: address not acknowledged")

// Bus is the set of two-wire primitives the driver needs (see drivers/bbi2c).
type Bus interface {
	Init() error
	Start()
	Stop()
	WriteByte(v byte) bool
	ReadByte(ack bool) byte
}

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x44 if zero.
	Address uint8
}

// Device is an SHT4x on a two-wire bus.
type Device struct {
	bus  Bus
	addr uint8
	buf  [6]byte
}

// New creates a Device. It does not touch the bus.
func New(bus Bus, cfg Config) *Device {
	addr := cfg.Address
	if addr == 0 {
		addr = Address
	}
	return &Device{bus: bus, addr: addr}
}

// Init releases the bus lines. The sensor's power-up defaults need no further
// configuration.
func (d *Device) Init() error {
	return d.bus.Init()
}

// StartMeasurement issues the high-precision single-shot command and
// returns without waiting for the conversion.
func (d *Device) StartMeasurement() error {
	d.bus.Start()
	acked := d.bus.WriteByte(d.addr<<1 | dirWrite)
	d.bus.WriteByte(cmdMeasureHigh)
	d.bus.Stop()
	if !acked {
		return ErrNack
	}
	return nil
}

// ReadResult fetches the result of the previous StartMeasurement. A sensor
// that is still converting (or absent) does not acknowledge and an invalid
// Sample is returned straight away; so is a reply with a bad checksum.
func (d *Device) ReadResult() Sample {
	d.bus.Start()
	if !d.bus.WriteByte(d.addr<<1 | dirRead) {
		d.bus.Stop()
		return Sample{Temp: Invalid, Hum: Invalid}
	}
	b := d.buf[:]
	for i := range b {
		b[i] = d.bus.ReadByte(i < len(b)-1)
	}
	d.bus.Stop()

	if Checksum(b[0], b[1]) != b[2] || Checksum(b[3], b[4]) != b[5] {
		return Sample{Temp: Invalid, Hum: Invalid}
	}
	return Sample{
		Temp:  uint16(b[0])<<8 | uint16(b[1]),
		Hum:   uint16(b[3])<<8 | uint16(b[4]),
		Valid: true,
	}
}

// Checksum is the Sensirion CRC-8 over one 16-bit word: initial value 0xFF,
// polynomial 0x131, MSB first.
func Checksum(b1, b2 byte) byte {
	crc := byte(0xFF)
	crc ^= b1
	crc = crcShift8(crc)
	crc ^= b2
	return crcShift8(crc)
}

func crcShift8(crc byte) byte {
	for i := 0; i < 8; i++ {
		if crc&0x80 != 0 {
			crc = crc<<1 ^ byte(0x131&0xFF)
		} else {
			crc <<= 1
		}
	}
	return crc
}

// Sample holds one raw reading.
type Sample struct {
	Temp  uint16
	Hum   uint16
	Valid bool
}

// Fixed-point conversion helpers. Not used on the wire, which carries raw
// codes.

// DeciCelsius returns tenths of °C: T = -45 + 175 * raw / 65535.
func (s Sample) DeciCelsius() int32 {
	return int32(int64(s.Temp)*1750/65535) - 450
}

// DeciRelHumidity returns tenths of %RH: RH = -6 + 125 * raw / 65535,
// clamped to 0..100 %.
func (s Sample) DeciRelHumidity() int32 {
	rh := int32(int64(s.Hum)*1250/65535) - 60
	return mathx.Clamp(rh, 0, 1000)
}
