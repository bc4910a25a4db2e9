package node

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"sensornode-go/bus"
	"sensornode-go/config"
	"sensornode-go/frame"
	"sensornode-go/internal/platform"
	"sensornode-go/nodeid"
	"sensornode-go/services/scheduler"
)

func noDelay(time.Duration) {}

func openSim(t *testing.T, nvmPath string) (*config.Config, *platform.Host) {
	t.Helper()
	cfg := config.Default()
	cfg.Host.NVMPath = nvmPath
	h, err := platform.Open(&cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return &cfg, h
}

func TestNode_SimBoardTransmitsFrame(t *testing.T) {
	cfg, h := openSim(t, filepath.Join(t.TempDir(), "node.nvm"))
	conn := bus.NewBus(16).NewConnection("node")

	s := New(cfg, h.Board, conn, zaptest.NewLogger(t), noDelay)
	require.NoError(t, s.Init(context.Background()))
	require.Equal(t, scheduler.StateIdle, s.State())
	require.Equal(t, cfg.Node.DefaultID, s.NodeID())

	for i := 0; i < 3; i++ {
		s.Tick()
	}

	sent := h.Sim.Radio.Sent()
	require.Len(t, sent, 1)
	rd, err := frame.Decode(sent[0])
	require.NoError(t, err)
	require.Equal(t, frame.Reading{
		ID:      cfg.Node.DefaultID,
		Temp:    cfg.Host.SimTemp,
		Hum:     cfg.Host.SimHum,
		Battery: byte(cfg.Host.ADCValue >> cfg.Schedule.BatteryShift),
	}, rd)
	require.False(t, h.Sim.Radio.Powered(), "radio left powered after cycle")
}

func TestNode_ProvisionedIDSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.nvm")

	cfg, h := openSim(t, path)
	require.NoError(t, nodeid.Store(h.Board.NVM, 0x5A))
	require.NoError(t, h.Close())

	cfg, h = openSim(t, path)
	s := New(cfg, h.Board, nil, nil, noDelay)
	require.NoError(t, s.Init(context.Background()))
	require.Equal(t, byte(0x5A), s.NodeID())
}
