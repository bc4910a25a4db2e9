//go:build rp2040 || rp2350

// Command sensornode is the node firmware.
package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sensornode-go/config"
	"sensornode-go/internal/node"
	"sensornode-go/internal/platform"
)

func main() {
	// Allow the UART console to settle before the first line.
	time.Sleep(2 * time.Second)

	cfg := config.Default()
	log, err := config.NewLogger(&cfg.Logging, platform.LogSink())
	if err != nil {
		println("[main] logger:", err.Error())
		log = zap.NewNop()
	}

	s := node.New(&cfg, platform.NewBoard(), nil, log, nil)
	ctx := context.Background()
	for {
		err := s.Init(ctx)
		if err == nil {
			break
		}
		log.Error("init failed, retrying", zap.Error(err))
		time.Sleep(cfg.Schedule.Period)
	}

	// With a background context Run only ends in a watchdog reset.
	_ = s.Run(ctx)
}
