//go:build !tinygo

package platform

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"sensornode-go/config"
	"sensornode-go/nodeid"
)

func TestOpen_SimBoard(t *testing.T) {
	cfg := config.Default()
	cfg.Host.NVMPath = filepath.Join(t.TempDir(), "node.nvm")

	h, err := Open(&cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer h.Close()

	b := h.Board
	require.NotNil(t, b.SCL)
	require.NotNil(t, b.SDA)
	require.NotNil(t, b.RadioCS)
	require.NotNil(t, b.RadioSPI)
	require.NotNil(t, b.ADC)
	require.NotNil(t, b.NVM)
	require.Same(t, h.Timer, b.Watchdog)
	require.NotNil(t, h.Sim)

	// An unprogrammed file falls back to the default.
	id, ok := nodeid.Load(b.NVM, 9)
	require.False(t, ok)
	require.Equal(t, byte(9), id)

	b.ADC.SetPowered(true)
	b.ADC.StartConversion()
	require.Equal(t, cfg.Host.ADCValue, b.ADC.Read())
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Host.Backend = "serial"
	_, err := Open(&cfg, nil)
	require.Error(t, err)
}

func TestOpenFileNVM_BadPath(t *testing.T) {
	_, err := OpenFileNVM(filepath.Join(t.TempDir(), "missing", "node.nvm"))
	require.Error(t, err)
}
