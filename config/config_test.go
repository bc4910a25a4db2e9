package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"sensornode-go/services/scheduler"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	rc := cfg.RadioConfig()
	require.Equal(t, uint32(0xD91333), rc.FrequencyRegister())
	require.Equal(t, uint16(0x0740), rc.BitRateRegister())
	require.Equal(t, scheduler.DefaultConfig(), cfg.SchedulerConfig())
	require.Equal(t, uint8(0x44), cfg.SensorConfig().Address)
	require.Equal(t, 10*time.Microsecond, cfg.BusConfig().Settle)
}

func TestLoad_EnvDefaultsMatchDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), *cfg)
}

func TestLoad_YAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	content := `
node:
  defaultId: 42
radio:
  frequencyHz: 868000000
  txPollLimit: 500
schedule:
  period: 2s
  intervalBase: 5
logging:
  logFormat: "LOGFMT"
  logLevel: "debug"
host:
  backend: sim
  nvmPath: /tmp/node.nvm
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("SCHEDULE_FAILURE_THRESHOLD", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, uint8(42), cfg.Node.DefaultID)
	require.Equal(t, uint32(868_000_000), cfg.Radio.FrequencyHz)
	require.Equal(t, 500, cfg.Radio.TxPollLimit)
	require.Equal(t, uint32(17_241), cfg.Radio.BitRate)
	require.Equal(t, 2*time.Second, cfg.Schedule.Period)
	require.Equal(t, uint8(5), cfg.Schedule.IntervalBase)
	require.Equal(t, uint8(2), cfg.Schedule.FailureThreshold)
	require.Equal(t, "logfmt", cfg.Logging.Format)
	require.Equal(t, "/tmp/node.nvm", cfg.Host.NVMPath)

	sc := cfg.SchedulerConfig()
	require.Equal(t, byte(42), sc.DefaultNodeID)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"zero frequency":  func(c *Config) { c.Radio.FrequencyHz = 0 },
		"power level":     func(c *Config) { c.Radio.PowerLevel = 40 },
		"tx poll limit":   func(c *Config) { c.Radio.TxPollLimit = 0 },
		"sensor address":  func(c *Config) { c.Sensor.Address = 0x80 },
		"settle":          func(c *Config) { c.Sensor.Settle = 0 },
		"period":          func(c *Config) { c.Schedule.Period = 0 },
		"interval base":   func(c *Config) { c.Schedule.IntervalBase = 0 },
		"battery shift":   func(c *Config) { c.Schedule.BatteryShift = 1 },
		"log format":      func(c *Config) { c.Logging.Format = "xml" },
		"log level":       func(c *Config) { c.Logging.Level = "trace" },
		"backend":         func(c *Config) { c.Host.Backend = "serial" },
		"adc out of span": func(c *Config) { c.Host.ADCValue = 1024 },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mut(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"console", "json", "logfmt"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			log, err := NewLogger(&LoggingConfig{Format: format, Level: "info"}, zapcore.AddSync(&buf))
			require.NoError(t, err)
			log.Debug("hidden")
			log.Info("cycle done")
			require.NoError(t, log.Sync())

			out := buf.String()
			require.Contains(t, out, "cycle done")
			require.NotContains(t, out, "hidden")
			require.Equal(t, 1, strings.Count(out, "\n"))
		})
	}

	_, err := NewLogger(&LoggingConfig{Format: "xml"}, nil)
	require.Error(t, err)
}
