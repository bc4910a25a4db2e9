package rfm69

import (
	"errors"

	"sensornode-go/hal"
	"sensornode-go/x/mathx"
)

// PowerState of the transceiver.
type PowerState uint8

const (
	Sleep PowerState = iota
	Standby
	Transmitting
)

func (s PowerState) String() string {
	switch s {
	case Sleep:
		return "sleep"
	case Standby:
		return "standby"
	case Transmitting:
		return "transmitting"
	default:
		return "unknown"
	}
}

var (
	ErrModeTimeout  = errors.New("rfm69: mode ready timeout")
	ErrInvalidState = errors.New("rfm69: transmit mode is entered by Send only")
	ErrAsleep       = errors.New("rfm69: transceiver asleep")
	ErrPayloadSize  = errors.New("rfm69: payload size out of range")
)

// Config holds the radio parameters. Integer-only; zero fields take the
// defaults of DefaultConfig.
type Config struct {
	FrequencyHz  uint32 // carrier
	BitRate      uint32 // bits per second
	CrystalHz    uint32 // FXOSC
	SPIFrequency uint32 // serial clock
	PowerLevel   uint8  // OutputPower field of RegPaLevel, 0..31

	// TxPollLimit bounds the wait for PacketSent. Exceeding it abandons the
	// frame without an error.
	TxPollLimit int
	// ReadyPollLimit bounds the wait for ModeReady when leaving sleep.
	ReadyPollLimit int
}

// DefaultConfig is 868.3 MHz, 17.241 kbps (LaCrosse IT+), +14 dBm.
func DefaultConfig() Config {
	return Config{
		FrequencyHz:    868_300_000,
		BitRate:        17_241,
		CrystalHz:      32_000_000,
		SPIFrequency:   1_000_000,
		PowerLevel:     28,
		TxPollLimit:    10_000,
		ReadyPollLimit: 100_000,
	}
}

// Validate basic fields.
func (c Config) Validate() error {
	if c.FrequencyHz == 0 || c.BitRate == 0 || c.CrystalHz == 0 {
		return errors.New("rfm69: FrequencyHz, BitRate and CrystalHz must be non-zero")
	}
	if c.PowerLevel > paPowerMax {
		return errors.New("rfm69: PowerLevel must be 0..31")
	}
	return nil
}

// FrequencyRegister returns round(FrequencyHz / (CrystalHz / 2^19)).
func (c Config) FrequencyRegister() uint32 {
	return uint32(mathx.RoundDiv(uint64(c.FrequencyHz)<<19, uint64(c.CrystalHz)))
}

// BitRateRegister returns round(CrystalHz / BitRate).
func (c Config) BitRateRegister() uint16 {
	return uint16(mathx.RoundDiv(c.CrystalHz, c.BitRate))
}

// Device is an RFM69 on an SPI port with a GPIO chip select.
type Device struct {
	spi hal.SPIPort
	cs  hal.Pin
	cfg Config

	state PowerState

	// Fixed buffers to avoid per-call heap allocations.
	w [2]byte
	r [2]byte
}

// New constructs a Device. It performs no I/O.
func New(spi hal.SPIPort, cs hal.Pin, cfg Config) *Device {
	def := DefaultConfig()
	if cfg.FrequencyHz == 0 {
		cfg.FrequencyHz = def.FrequencyHz
	}
	if cfg.BitRate == 0 {
		cfg.BitRate = def.BitRate
	}
	if cfg.CrystalHz == 0 {
		cfg.CrystalHz = def.CrystalHz
	}
	if cfg.SPIFrequency == 0 {
		cfg.SPIFrequency = def.SPIFrequency
	}
	if cfg.PowerLevel == 0 {
		cfg.PowerLevel = def.PowerLevel
	}
	if cfg.TxPollLimit <= 0 {
		cfg.TxPollLimit = def.TxPollLimit
	}
	if cfg.ReadyPollLimit <= 0 {
		cfg.ReadyPollLimit = def.ReadyPollLimit
	}
	return &Device{spi: spi, cs: cs, cfg: cfg, state: Standby}
}

// State returns the last power state set through the driver.
func (d *Device) State() PowerState { return d.state }

// InitPort configures chip select idle-high and programs the serial clock.
func (d *Device) InitPort() error {
	if err := d.cs.ConfigureOutput(true); err != nil {
		return err
	}
	d.spi.SetPowered(true)
	return d.spi.Configure(d.cfg.SPIFrequency)
}

// InitChip programs packet mode, modulation, power and framing, then the
// carrier frequency and bit rate. Leaves the chip in standby.
func (d *Device) InitChip() error {
	frf := d.cfg.FrequencyRegister()
	br := d.cfg.BitRateRegister()

	seq := [...][2]byte{
		{regOpMode, opModeStandby},
		{regDataModul, valDataModulPacketFSK},
		{regFdevMsb, valFdevMsb},
		{regFdevLsb, valFdevLsb},
		{regPaLevel, paLevelPa1 | paLevelPa2 | d.cfg.PowerLevel},
		{regOcp, valOcp120mA},
		{regRxBw, valRxBw},
		{regDioMapping2, valDioMapping2NoClk},
		{regIrqFlags2, irq2FifoOverrun},
		{regRssiThresh, valRssiThresh},
		{regPreambleMsb, valPreambleMsb},
		{regPreambleLsb, valPreambleLsb},
		{regSyncConfig, valSyncConfig},
		{regSyncValue1, valSyncValue1},
		{regSyncValue2, valSyncValue2},
		{regPacketConfig1, valPacketConfig1},
		{regPayloadLength, valPayloadLength},
		{regFifoThresh, valFifoThresh},
		{regPacketConfig2, valPacketConfig2},
		{regFrfMsb, byte(frf >> 16)},
		{regFrfMid, byte(frf >> 8)},
		{regFrfLsb, byte(frf)},
		{regBitrateMsb, byte(br >> 8)},
		{regBitrateLsb, byte(br)},
	}
	for _, rv := range seq {
		if err := d.WriteRegister(rv[0], rv[1]); err != nil {
			return err
		}
	}
	if err := d.clearFIFO(); err != nil {
		return err
	}
	d.state = Standby
	return nil
}

// SetPowerState moves the transceiver to Sleep or Standby.
//
// Sleep writes the sleep mode and then power-gates the SPI peripheral.
// Standby re-enables and re-clocks the peripheral, writes the standby mode
// and blocks until the chip reports ModeReady.
func (d *Device) SetPowerState(s PowerState) error {
	switch s {
	case Sleep:
		if err := d.setMode(opModeSleep); err != nil {
			return err
		}
		d.spi.SetPowered(false)
		d.state = Sleep
		return nil
	case Standby:
		d.spi.SetPowered(true)
		if err := d.spi.Configure(d.cfg.SPIFrequency); err != nil {
			return err
		}
		if err := d.setMode(opModeStandby); err != nil {
			return err
		}
		d.state = Standby
		return d.waitFlag(regIrqFlags1, irq1ModeReady, d.cfg.ReadyPollLimit, ErrModeTimeout)
	default:
		return ErrInvalidState
	}
}

// Send loads payload into the FIFO, transmits it and returns to standby.
// sent is false when PacketSent did not appear within TxPollLimit polls;
// that is not an error, the frame is simply lost.
func (d *Device) Send(payload []byte) (sent bool, err error) {
	if len(payload) == 0 || len(payload) > MaxPayload {
		return false, ErrPayloadSize
	}
	if d.state == Sleep {
		return false, ErrAsleep
	}

	if err := d.WriteRegister(regPayloadLength, byte(len(payload))); err != nil {
		return false, err
	}
	if err := d.clearFIFO(); err != nil {
		return false, err
	}
	if err := d.writeFIFO(payload); err != nil {
		return false, err
	}

	if err := d.setMode(opModeTx); err != nil {
		return false, err
	}
	d.state = Transmitting

	werr := d.waitFlag(regIrqFlags2, irq2PacketSent, d.cfg.TxPollLimit, nil)
	sent = werr == nil

	// Always leave transmit mode, even after a timeout or a bus error.
	if err := d.setMode(opModeStandby); err != nil {
		return sent, err
	}
	d.state = Standby
	if werr != nil && werr != errPollExhausted {
		return sent, werr
	}
	return sent, nil
}

// ReadRegister performs one 16-bit read transaction.
func (d *Device) ReadRegister(addr byte) (byte, error) {
	v, err := d.xfer16(addr&addrMask, 0x00)
	return v, err
}

// WriteRegister performs one 16-bit write transaction.
func (d *Device) WriteRegister(addr, val byte) error {
	_, err := d.xfer16(addr|writeFlag, val)
	return err
}

// xfer16 exchanges one address/data word framed by chip select and returns
// the low reply byte.
func (d *Device) xfer16(hi, lo byte) (byte, error) {
	d.w[0], d.w[1] = hi, lo
	d.cs.Set(false)
	err := d.spi.Tx(d.w[:], d.r[:])
	d.cs.Set(true)
	if err != nil {
		return 0, err
	}
	return d.r[1], nil
}

// writeFIFO streams the payload in a single chip-select frame; RegFifo is
// the only register written in burst.
func (d *Device) writeFIFO(payload []byte) error {
	d.cs.Set(false)
	defer d.cs.Set(true)
	if _, err := d.spi.Transfer(regFifo | writeFlag); err != nil {
		return err
	}
	return d.spi.Tx(payload, nil)
}

func (d *Device) clearFIFO() error {
	// Every other bit of RegIrqFlags2 is read-only; no read-modify-write.
	return d.WriteRegister(regIrqFlags2, irq2FifoOverrun)
}

func (d *Device) setMode(mode byte) error {
	v, err := d.ReadRegister(regOpMode)
	if err != nil {
		return err
	}
	return d.WriteRegister(regOpMode, v&opModeMask|mode)
}

var errPollExhausted = errors.New("rfm69: poll limit exhausted")

// waitFlag polls reg until mask is set, at most limit times. On exhaustion
// it returns onTimeout, or errPollExhausted if onTimeout is nil.
func (d *Device) waitFlag(reg, mask byte, limit int, onTimeout error) error {
	for i := 0; i < limit; i++ {
		v, err := d.ReadRegister(reg)
		if err != nil {
			return err
		}
		if v&mask != 0 {
			return nil
		}
	}
	if onTimeout == nil {
		return errPollExhausted
	}
	return onTimeout
}
