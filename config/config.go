// Package config holds the node's parameters. Firmware builds use Default();
// host builds load YAML and environment overrides with Load.
package config

import (
	"fmt"
	"strings"
	"time"

	"sensornode-go/drivers/bbi2c"
	"sensornode-go/drivers/rfm69"
	"sensornode-go/drivers/sht4x"
	"sensornode-go/services/scheduler"
)

// Config holds all configuration parameters for the sensor node.
type Config struct {
	Node     NodeConfig     `yaml:"node"`
	Radio    RadioConfig    `yaml:"radio"`
	Sensor   SensorConfig   `yaml:"sensor"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Logging  LoggingConfig  `yaml:"logging"`
	Host     HostConfig     `yaml:"host"`
}

type NodeConfig struct {
	// DefaultID is used when NVM holds no valid identifier record.
	DefaultID uint8 `yaml:"defaultId" env:"NODE_DEFAULT_ID" env-default:"3"`
}

type RadioConfig struct {
	FrequencyHz    uint32 `yaml:"frequencyHz" env:"RADIO_FREQUENCY_HZ" env-default:"868300000"`
	BitRate        uint32 `yaml:"bitRate" env:"RADIO_BIT_RATE" env-default:"17241"`
	CrystalHz      uint32 `yaml:"crystalHz" env:"RADIO_CRYSTAL_HZ" env-default:"32000000"`
	SPIFrequencyHz uint32 `yaml:"spiFrequencyHz" env:"RADIO_SPI_FREQUENCY_HZ" env-default:"1000000"`
	PowerLevel     uint8  `yaml:"powerLevel" env:"RADIO_POWER_LEVEL" env-default:"28"`
	TxPollLimit    int    `yaml:"txPollLimit" env:"RADIO_TX_POLL_LIMIT" env-default:"10000"`
	ReadyPollLimit int    `yaml:"readyPollLimit" env:"RADIO_READY_POLL_LIMIT" env-default:"100000"`
}

type SensorConfig struct {
	Address uint8         `yaml:"address" env:"SENSOR_ADDRESS" env-default:"68"`
	Settle  time.Duration `yaml:"settle" env:"SENSOR_SETTLE" env-default:"10us"`
}

type ScheduleConfig struct {
	Period           time.Duration `yaml:"period" env:"SCHEDULE_PERIOD" env-default:"8s"`
	InitialInterval  uint8         `yaml:"initialInterval" env:"SCHEDULE_INITIAL_INTERVAL" env-default:"2"`
	IntervalBase     uint8         `yaml:"intervalBase" env:"SCHEDULE_INTERVAL_BASE" env-default:"3"`
	FailureThreshold uint8         `yaml:"failureThreshold" env:"SCHEDULE_FAILURE_THRESHOLD" env-default:"5"`
	StartupDelay     time.Duration `yaml:"startupDelay" env:"SCHEDULE_STARTUP_DELAY" env-default:"1s"`
	BatteryShift     uint8         `yaml:"batteryShift" env:"SCHEDULE_BATTERY_SHIFT" env-default:"2"`
}

// HostConfig selects and parameterises the host backend. Ignored by the
// firmware.
type HostConfig struct {
	// Backend is "sim" (simulated peripherals) or "periph" (Linux GPIO and
	// spidev).
	Backend string `yaml:"backend" env:"HOST_BACKEND" env-default:"sim"`
	NVMPath string `yaml:"nvmPath" env:"HOST_NVM_PATH" env-default:"node.nvm"`

	SCLPin  string `yaml:"sclPin" env:"HOST_SCL_PIN" env-default:"GPIO3"`
	SDAPin  string `yaml:"sdaPin" env:"HOST_SDA_PIN" env-default:"GPIO2"`
	CSPin   string `yaml:"csPin" env:"HOST_CS_PIN" env-default:"GPIO25"`
	SPIPort string `yaml:"spiPort" env:"HOST_SPI_PORT" env-default:"/dev/spidev0.0"`

	// ADCValue is the fixed supply sample reported where no ADC exists.
	ADCValue uint16 `yaml:"adcValue" env:"HOST_ADC_VALUE" env-default:"800"`

	// Simulated sensor readings (raw codes).
	SimTemp uint16 `yaml:"simTemp" env:"HOST_SIM_TEMP" env-default:"26214"`
	SimHum  uint16 `yaml:"simHum" env:"HOST_SIM_HUM" env-default:"32768"`

	HeartbeatInterval time.Duration `yaml:"heartbeatInterval" env:"HOST_HEARTBEAT_INTERVAL" env-default:"1m"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Node: NodeConfig{DefaultID: 3},
		Radio: RadioConfig{
			FrequencyHz:    868_300_000,
			BitRate:        17_241,
			CrystalHz:      32_000_000,
			SPIFrequencyHz: 1_000_000,
			PowerLevel:     28,
			TxPollLimit:    10_000,
			ReadyPollLimit: 100_000,
		},
		Sensor: SensorConfig{
			Address: sht4x.Address,
			Settle:  10 * time.Microsecond,
		},
		Schedule: ScheduleConfig{
			Period:           8 * time.Second,
			InitialInterval:  2,
			IntervalBase:     3,
			FailureThreshold: 5,
			StartupDelay:     time.Second,
			BatteryShift:     2,
		},
		Logging: LoggingConfig{Format: "console", Level: "info"},
		Host: HostConfig{
			Backend:           BackendSim,
			NVMPath:           "node.nvm",
			SCLPin:            "GPIO3",
			SDAPin:            "GPIO2",
			CSPin:             "GPIO25",
			SPIPort:           "/dev/spidev0.0",
			ADCValue:          800,
			SimTemp:           0x6666,
			SimHum:            0x8000,
			HeartbeatInterval: time.Minute,
		},
	}
}

const (
	BackendSim    = "sim"
	BackendPeriph = "periph"
)

// Validate checks that all configuration parameters are valid
func (c *Config) Validate() error {
	if err := c.RadioConfig().Validate(); err != nil {
		return fmt.Errorf("radio: %w", err)
	}
	if c.Radio.TxPollLimit <= 0 || c.Radio.ReadyPollLimit <= 0 {
		return fmt.Errorf("radio poll limits must be positive, got tx=%d ready=%d",
			c.Radio.TxPollLimit, c.Radio.ReadyPollLimit)
	}
	if c.Sensor.Address == 0 || c.Sensor.Address > 0x7F {
		return fmt.Errorf("sensor address must be a 7-bit address, got %#x", c.Sensor.Address)
	}
	if c.Sensor.Settle <= 0 {
		return fmt.Errorf("sensor settle delay must be positive, got %s", c.Sensor.Settle)
	}
	if err := c.SchedulerConfig().Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if err := ValidateLogging(&c.Logging); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}
	c.Host.Backend = strings.ToLower(c.Host.Backend)
	if c.Host.Backend != BackendSim && c.Host.Backend != BackendPeriph {
		return fmt.Errorf("host backend must be '%s' or '%s', got '%s'", BackendSim, BackendPeriph, c.Host.Backend)
	}
	if c.Host.ADCValue > 0x3FF {
		return fmt.Errorf("host adcValue must fit 10 bits, got %d", c.Host.ADCValue)
	}
	return nil
}

// RadioConfig maps the radio section onto the driver's configuration.
func (c *Config) RadioConfig() rfm69.Config {
	return rfm69.Config{
		FrequencyHz:    c.Radio.FrequencyHz,
		BitRate:        c.Radio.BitRate,
		CrystalHz:      c.Radio.CrystalHz,
		SPIFrequency:   c.Radio.SPIFrequencyHz,
		PowerLevel:     c.Radio.PowerLevel,
		TxPollLimit:    c.Radio.TxPollLimit,
		ReadyPollLimit: c.Radio.ReadyPollLimit,
	}
}

func (c *Config) BusConfig() bbi2c.Config {
	return bbi2c.Config{Settle: c.Sensor.Settle}
}

func (c *Config) SensorConfig() sht4x.Config {
	return sht4x.Config{Address: c.Sensor.Address}
}

func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		Period:           c.Schedule.Period,
		InitialInterval:  c.Schedule.InitialInterval,
		IntervalBase:     c.Schedule.IntervalBase,
		FailureThreshold: c.Schedule.FailureThreshold,
		DefaultNodeID:    c.Node.DefaultID,
		StartupDelay:     c.Schedule.StartupDelay,
		BatteryShift:     c.Schedule.BatteryShift,
	}
}
