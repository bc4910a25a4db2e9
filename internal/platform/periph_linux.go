// internal/platform/periph_linux.go
//go:build linux && !tinygo

package platform

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"sensornode-go/config"
	"sensornode-go/hal"
	"sensornode-go/hal/sim"
)

func openPeriph(cfg *config.Config, log *zap.Logger) (*Host, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "host init")
	}

	scl, err := periphPinByName(cfg.Host.SCLPin)
	if err != nil {
		return nil, err
	}
	sda, err := periphPinByName(cfg.Host.SDAPin)
	if err != nil {
		return nil, err
	}
	cs, err := periphPinByName(cfg.Host.CSPin)
	if err != nil {
		return nil, err
	}

	port, err := spireg.Open(cfg.Host.SPIPort)
	if err != nil {
		return nil, errors.Wrap(err, "spireg open")
	}

	nvm, err := OpenFileNVM(cfg.Host.NVMPath)
	if err != nil {
		port.Close()
		return nil, err
	}

	closeFn := func() error {
		nerr := nvm.Close()
		if err := port.Close(); err != nil {
			return errors.Wrap(err, "spi close")
		}
		return nerr
	}

	timer := NewCronWatchdog(log)
	log.Info("periph board ready",
		zap.String("spi", cfg.Host.SPIPort),
		zap.String("scl", cfg.Host.SCLPin),
		zap.String("sda", cfg.Host.SDAPin),
		zap.String("cs", cfg.Host.CSPin))

	return &Host{
		Board: hal.Board{
			SCL:      scl,
			SDA:      sda,
			RadioCS:  cs,
			RadioSPI: &periphSPI{port: port},
			ADC:      sim.NewADC(cfg.Host.ADCValue), // fixed supply sample
			NVM:      nvm,
			Watchdog: timer,
			Close:    closeFn,
		},
		Timer: timer,
	}, nil
}

type periphPin struct{ p gpio.PinIO }

func periphPinByName(name string) (hal.Pin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("gpio %s not found", name)
	}
	return periphPin{p: p}, nil
}

func (p periphPin) ConfigureInput(pull hal.Pull) error {
	gp := gpio.Float
	switch pull {
	case hal.PullUp:
		gp = gpio.PullUp
	case hal.PullDown:
		gp = gpio.PullDown
	}
	return errors.Wrapf(p.p.In(gp, gpio.NoEdge), "%s in", p.p.Name())
}

func (p periphPin) ConfigureOutput(initial bool) error {
	return errors.Wrapf(p.p.Out(gpio.Level(initial)), "%s out", p.p.Name())
}

func (p periphPin) Set(level bool) { _ = p.p.Out(gpio.Level(level)) }
func (p periphPin) Get() bool      { return bool(p.p.Read()) }

// periphSPI adapts a spidev port. The kernel owns the clock, so power gating
// only blocks transfers and the port connects once at the first Configure.
type periphSPI struct {
	port    spi.PortCloser
	conn    spi.Conn
	hz      uint32
	powered bool
}

var errSPIDown = errors.New("spi: powered down")

func (s *periphSPI) Configure(hz uint32) error {
	if s.conn != nil {
		if hz != s.hz {
			return errors.Errorf("spi: already connected at %d Hz", s.hz)
		}
		return nil
	}
	c, err := s.port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		return errors.Wrap(err, "spi connect")
	}
	s.conn, s.hz = c, hz
	return nil
}

func (s *periphSPI) SetPowered(on bool) { s.powered = on }

func (s *periphSPI) Tx(w, r []byte) error {
	if !s.powered || s.conn == nil {
		return errSPIDown
	}
	return s.conn.Tx(w, r)
}

func (s *periphSPI) Transfer(b byte) (byte, error) {
	var r [1]byte
	if err := s.Tx([]byte{b}, r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}
