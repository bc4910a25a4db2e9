// hal/sim/rfm69.go
package sim

import (
	"errors"
	"sync"

	"sensornode-go/hal"
)

var (
	ErrSPIPoweredDown = errors.New("sim: spi peripheral powered down")
	ErrSPIUnclocked   = errors.New("sim: spi clock not configured")
	ErrSPINoSelect    = errors.New("sim: spi transfer without chip select")
)

const (
	rfmRegFifo      = 0x00
	rfmRegOpMode    = 0x01
	rfmRegIrqFlags1 = 0x27
	rfmRegIrqFlags2 = 0x28

	rfmModeMask    = 0x1C
	rfmModeSleep   = 0x00
	rfmModeStandby = 0x04
	rfmModeTx      = 0x0C

	rfmModeReady    = 0x80
	rfmFifoNotEmpty = 0x40
	rfmFifoOverrun  = 0x10
	rfmPacketSent   = 0x08
)

// RFM69 is a register-level model of the transceiver behind a power-gated
// SPI peripheral. It implements hal.SPIPort; ChipSelect returns the pin that
// frames transactions.
type RFM69 struct {
	mu sync.Mutex

	regs [0x80]byte
	fifo []byte

	powered  bool
	clockHz  uint32
	selected bool
	first    bool
	addr     byte
	write    bool

	readyDelay int // IrqFlags1 polls before ModeReady appears
	readyLeft  int
	txDelay    int // IrqFlags2 polls before PacketSent appears
	txLeft     int
	wedged     bool

	sent      [][]byte
	txEntries int
	reconfigs int
}

var _ hal.SPIPort = (*RFM69)(nil)

// NewRFM69 returns a powered-up chip in standby with an empty FIFO.
func NewRFM69() *RFM69 {
	r := &RFM69{powered: true}
	r.regs[rfmRegOpMode] = rfmModeStandby
	r.regs[rfmRegIrqFlags1] = rfmModeReady
	return r
}

// SetReadyDelay makes ModeReady appear only after n polls of IrqFlags1
// following a mode change.
func (r *RFM69) SetReadyDelay(n int) {
	r.mu.Lock()
	r.readyDelay = n
	r.mu.Unlock()
}

// SetTxDelay makes PacketSent appear only after n polls of IrqFlags2.
func (r *RFM69) SetTxDelay(n int) {
	r.mu.Lock()
	r.txDelay = n
	r.mu.Unlock()
}

// SetWedged stops the chip from ever completing a transmission.
func (r *RFM69) SetWedged(on bool) {
	r.mu.Lock()
	r.wedged = on
	r.mu.Unlock()
}

// ChipSelect returns the active-low select line.
func (r *RFM69) ChipSelect() hal.Pin { return &rfmSelect{r: r} }

func (r *RFM69) Configure(hz uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.powered {
		return ErrSPIPoweredDown
	}
	r.clockHz = hz
	r.reconfigs++
	return nil
}

func (r *RFM69) SetPowered(on bool) {
	r.mu.Lock()
	r.powered = on
	if !on {
		// A gated peripheral loses its clock setup.
		r.clockHz = 0
	}
	r.mu.Unlock()
}

func (r *RFM69) Transfer(b byte) (byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return 0, err
	}
	return r.exchange(b), nil
}

func (r *RFM69) Tx(w, rd []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return err
	}
	n := len(w)
	if len(rd) > n {
		n = len(rd)
	}
	for i := 0; i < n; i++ {
		var out byte
		if i < len(w) {
			out = w[i]
		}
		in := r.exchange(out)
		if i < len(rd) {
			rd[i] = in
		}
	}
	return nil
}

func (r *RFM69) ready() error {
	switch {
	case !r.powered:
		return ErrSPIPoweredDown
	case r.clockHz == 0:
		return ErrSPIUnclocked
	case !r.selected:
		return ErrSPINoSelect
	}
	return nil
}

// exchange handles one byte on the wire. Caller holds mu.
func (r *RFM69) exchange(b byte) byte {
	if r.first {
		r.first = false
		r.addr = b & 0x7F
		r.write = b&0x80 != 0
		return 0
	}
	var in byte
	if r.write {
		r.writeReg(r.addr, b)
	} else {
		in = r.readReg(r.addr)
	}
	if r.addr != rfmRegFifo {
		r.addr = (r.addr + 1) & 0x7F
	}
	return in
}

func (r *RFM69) readReg(a byte) byte {
	switch a {
	case rfmRegFifo:
		if len(r.fifo) == 0 {
			return 0
		}
		v := r.fifo[0]
		r.fifo = r.fifo[1:]
		return v
	case rfmRegIrqFlags1:
		if r.readyLeft > 0 {
			r.readyLeft--
			if r.readyLeft == 0 {
				r.regs[a] |= rfmModeReady
			}
		}
	case rfmRegIrqFlags2:
		v := r.regs[a] &^ rfmFifoNotEmpty
		if len(r.fifo) > 0 {
			v |= rfmFifoNotEmpty
		}
		if r.txLeft > 0 {
			r.txLeft--
			if r.txLeft == 0 {
				r.completeTx()
			}
		}
		return v
	}
	return r.regs[a]
}

func (r *RFM69) writeReg(a, v byte) {
	switch a {
	case rfmRegFifo:
		if len(r.fifo) < 66 {
			r.fifo = append(r.fifo, v)
		}
	case rfmRegIrqFlags1:
		// read-only
	case rfmRegIrqFlags2:
		if v&rfmFifoOverrun != 0 {
			r.fifo = r.fifo[:0]
		}
	case rfmRegOpMode:
		old := r.regs[a] & rfmModeMask
		r.regs[a] = v
		if nm := v & rfmModeMask; nm != old {
			r.modeChanged(old, nm)
		}
	default:
		r.regs[a] = v
	}
}

func (r *RFM69) modeChanged(old, mode byte) {
	r.regs[rfmRegIrqFlags1] &^= rfmModeReady
	r.readyLeft = r.readyDelay
	if r.readyLeft == 0 {
		r.regs[rfmRegIrqFlags1] |= rfmModeReady
	}
	if old == rfmModeTx {
		r.regs[rfmRegIrqFlags2] &^= rfmPacketSent
		r.txLeft = 0
	}
	if mode == rfmModeTx {
		r.txEntries++
		if r.wedged || len(r.fifo) == 0 {
			return
		}
		r.txLeft = r.txDelay
		if r.txLeft == 0 {
			r.completeTx()
		}
	}
}

func (r *RFM69) completeTx() {
	pkt := append([]byte(nil), r.fifo...)
	r.sent = append(r.sent, pkt)
	r.fifo = r.fifo[:0]
	r.regs[rfmRegIrqFlags2] |= rfmPacketSent
}

// Reg returns the raw value of register a.
func (r *RFM69) Reg(a byte) byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.regs[a&0x7F]
}

// Mode returns the OpMode mode bits (sleep 0x00, standby 0x04, tx 0x0C).
func (r *RFM69) Mode() byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.regs[rfmRegOpMode] & rfmModeMask
}

// Sent returns copies of every packet that left the antenna.
func (r *RFM69) Sent() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.sent))
	for i, p := range r.sent {
		out[i] = append([]byte(nil), p...)
	}
	return out
}

// TxEntries counts transitions into transmit mode.
func (r *RFM69) TxEntries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txEntries
}

func (r *RFM69) Powered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.powered
}

// ClockHz is the current serial clock; zero after a power-down until the
// next Configure.
func (r *RFM69) ClockHz() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clockHz
}

// Reconfigures counts Configure calls.
func (r *RFM69) Reconfigures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconfigs
}

// Selected reports whether chip select is currently asserted.
func (r *RFM69) Selected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// rfmSelect is the chip-select line: low opens a transaction.
type rfmSelect struct{ r *RFM69 }

func (p *rfmSelect) ConfigureInput(hal.Pull) error { p.Set(true); return nil }
func (p *rfmSelect) ConfigureOutput(initial bool) error {
	p.Set(initial)
	return nil
}

func (p *rfmSelect) Set(level bool) {
	p.r.mu.Lock()
	sel := !level
	if sel && !p.r.selected {
		p.r.first = true
	}
	p.r.selected = sel
	p.r.mu.Unlock()
}

func (p *rfmSelect) Get() bool {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	return !p.r.selected
}
