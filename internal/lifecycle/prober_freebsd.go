//go:build freebsd

package lifecycle

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// NewProber returns the rc.d prober
func NewProber(logger *zap.Logger) Prober {
	return NewRCProber(logger)
}

// RCProber queries rc.d with "service <name> status"
type RCProber struct {
	logger *zap.Logger
	run    runFunc
}

// NewRCProber creates an rc.d prober
func NewRCProber(logger *zap.Logger) *RCProber {
	return &RCProber{logger: logger, run: runCommand}
}

func (p *RCProber) Probe(ctx context.Context, name string) State {
	stdout, stderr, err := p.run(ctx, "service", name, "status")

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			p.logger.Debug("service status failed, treating service as not installed",
				zap.String("service", name),
				zap.Error(err))
			return StateNotInstalled
		}
		exitCode = exitErr.ExitCode()
	}

	return parseRCStatus(exitCode, stdout, stderr)
}

// parseRCStatus maps rc.d status output. Exit code 0 means running.
func parseRCStatus(exitCode int, stdout, stderr string) State {
	if exitCode == 0 {
		return StateRunning
	}

	out := strings.ToLower(strings.TrimSpace(stdout))
	errOut := strings.ToLower(stderr)

	switch {
	case strings.Contains(errOut, "does not exist") ||
		strings.Contains(errOut, "not found") ||
		strings.Contains(out, "does not exist"):
		return StateNotInstalled
	case strings.Contains(out, "not running") || strings.Contains(out, "is not enabled"):
		return StateStopped
	default:
		return StateUnknown
	}
}
