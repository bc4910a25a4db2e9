// Package node wires the drivers and the scheduler onto a board.
package node

import (
	"time"

	"go.uber.org/zap"

	"sensornode-go/bus"
	"sensornode-go/config"
	"sensornode-go/drivers/bbi2c"
	"sensornode-go/drivers/rfm69"
	"sensornode-go/drivers/sht4x"
	"sensornode-go/hal"
	"sensornode-go/services/scheduler"
)

// New builds a scheduler over board b. A nil delay uses time.Sleep.
func New(cfg *config.Config, b hal.Board, conn *bus.Connection, log *zap.Logger, delay func(time.Duration)) *scheduler.Scheduler {
	if delay == nil {
		delay = time.Sleep
	}
	bc := cfg.BusConfig()
	bc.Delay = delay

	sensor := sht4x.New(bbi2c.New(b.SCL, b.SDA, bc), cfg.SensorConfig())
	radio := rfm69.New(b.RadioSPI, b.RadioCS, cfg.RadioConfig())

	return scheduler.New(cfg.SchedulerConfig(), scheduler.Deps{
		Sensor:   sensor,
		Radio:    radio,
		ADC:      b.ADC,
		Watchdog: b.Watchdog,
		NVM:      b.NVM,
		Conn:     conn,
		Log:      log,
		Delay:    delay,
	})
}
