// internal/platform/host.go
//go:build !tinygo

// Package platform assembles a hal.Board for the target the binary runs on:
// simulated peripherals or Linux GPIO/spidev on a host, the RP2 silicon in
// firmware builds.
package platform

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sensornode-go/config"
	"sensornode-go/hal"
	"sensornode-go/hal/sim"
)

// Host is a board opened on a host machine. Timer drives the watchdog
// expiries; Sim is set only for the simulated backend.
type Host struct {
	Board hal.Board
	Timer *CronWatchdog
	Sim   *SimParts
}

// SimParts exposes the simulated devices behind a sim board.
type SimParts struct {
	Sensor *sim.SHT4x
	Radio  *sim.RFM69
	ADC    *sim.ADC
}

// Open builds the backend named by cfg.Host.Backend.
func Open(cfg *config.Config, log *zap.Logger) (*Host, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Host.Backend {
	case config.BackendSim:
		return openSim(cfg, log)
	case config.BackendPeriph:
		return openPeriph(cfg, log)
	}
	return nil, errors.Errorf("unknown backend %q", cfg.Host.Backend)
}

// Close stops the watchdog schedule and releases the board.
func (h *Host) Close() error {
	h.Timer.Stop()
	if h.Board.Close != nil {
		return h.Board.Close()
	}
	return nil
}

func openSim(cfg *config.Config, log *zap.Logger) (*Host, error) {
	sensor := sim.NewSHT4x(cfg.Sensor.Address, cfg.Host.SimTemp, cfg.Host.SimHum)
	wire := sim.NewWire(sensor)
	radio := sim.NewRFM69()
	adc := sim.NewADC(cfg.Host.ADCValue)

	nvm, err := OpenFileNVM(cfg.Host.NVMPath)
	if err != nil {
		return nil, err
	}

	timer := NewCronWatchdog(log)
	log.Info("simulated board ready",
		zap.Uint8("sensor_addr", cfg.Sensor.Address),
		zap.String("nvm", cfg.Host.NVMPath))

	return &Host{
		Board: hal.Board{
			SCL:      wire.SCL(),
			SDA:      wire.SDA(),
			RadioCS:  radio.ChipSelect(),
			RadioSPI: radio,
			ADC:      adc,
			NVM:      nvm,
			Watchdog: timer,
			Close:    nvm.Close,
		},
		Timer: timer,
		Sim:   &SimParts{Sensor: sensor, Radio: radio, ADC: adc},
	}, nil
}

// OpenFileNVM opens (creating if needed) the file standing in for the
// identifier EEPROM. A fresh file reads as unprogrammed.
func OpenFileNVM(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open nvm %s", path)
	}
	return f, nil
}
