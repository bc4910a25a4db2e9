// internal/platform/periph_other.go
//go:build !linux && !tinygo

package platform

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sensornode-go/config"
)

func openPeriph(*config.Config, *zap.Logger) (*Host, error) {
	return nil, errors.New("periph backend is only available on linux")
}
