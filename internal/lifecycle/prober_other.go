//go:build !windows && !linux && !freebsd

package lifecycle

import "go.uber.org/zap"

// NewProber returns the kardianos-backed prober on platforms without a
// dedicated implementation
func NewProber(logger *zap.Logger) Prober {
	return NewManagerProber(logger)
}
