//go:build !tinygo

// Command provision writes a node identifier record into the host NVM file.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sensornode-go/config"
	"sensornode-go/errcode"
	"sensornode-go/internal/platform"
	"sensornode-go/nodeid"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (environment only if empty)")
	id := flag.Uint("id", 0, "node identifier, 0..255")
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

	if err := provision(cfg.Host.NVMPath, *id); err != nil {
		log.Fatal("provision failed", zap.Error(err))
	}
	log.Info("node id written", zap.Uint("id", *id), zap.String("nvm", cfg.Host.NVMPath))
}

func provision(path string, id uint) error {
	if id > 0xFF {
		return errors.Errorf("id %d does not fit one byte", id)
	}
	nvm, err := platform.OpenFileNVM(path)
	if err != nil {
		return err
	}
	defer nvm.Close()

	if err := nodeid.Store(nvm, byte(id)); err != nil {
		return errcode.Wrap(errcode.NVM, "store id", err)
	}
	if got, ok := nodeid.Load(nvm, 0); !ok || got != byte(id) {
		return errors.Errorf("read back %d (valid=%t), want %d", got, ok, id)
	}
	return nvm.Sync()
}
