//go:build !tinygo

// Command nodehost runs the sensor node on a host, against simulated
// peripherals or Linux GPIO/spidev. A watchdog reset reboots the node in
// place, keeping the board and its NVM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sensornode-go/bus"
	"sensornode-go/config"
	"sensornode-go/errcode"
	"sensornode-go/internal/node"
	"sensornode-go/internal/platform"
	"sensornode-go/services/monitor"
	"sensornode-go/services/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (environment only if empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := config.NewLogger(&cfg.Logging, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("node stopped", zap.String("code", string(errcode.Of(err))), zap.Error(err))
	}
	log.Info("shutdown")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	h, err := platform.Open(cfg, log)
	if err != nil {
		return errors.Wrap(err, "open board")
	}
	defer h.Close()

	b := bus.NewBus(32)
	mon := monitor.New(log, cfg.Host.HeartbeatInterval)
	if err := mon.Start(ctx, b.NewConnection("monitor")); err != nil {
		return errors.Wrap(err, "start monitor")
	}
	conn := b.NewConnection("node")

	for boot := 1; ; boot++ {
		bootCtx, reset := context.WithCancel(ctx)
		h.Timer.OnReset(reset)

		s := node.New(cfg, h.Board, conn, log.With(zap.Int("boot", boot)), nil)
		if err := s.Init(bootCtx); err != nil {
			reset()
			return errors.Wrap(err, "init")
		}
		err := s.Run(bootCtx)
		reset()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, scheduler.ErrFailSafe) && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "run")
		}
		log.Warn("watchdog reset, rebooting",
			zap.Int("boot", boot),
			zap.Uint32("cycles", s.Cycles()),
			zap.Uint32("sent", s.Sent()))
	}
}
