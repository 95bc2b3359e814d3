//go:build linux

package lifecycle

import (
	"context"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// NewProber returns the systemd prober, or the kardianos fallback on hosts
// without systemctl
func NewProber(logger *zap.Logger) Prober {
	if _, err := exec.LookPath("systemctl"); err != nil {
		logger.Debug("systemctl not found, using service manager status")
		return NewManagerProber(logger)
	}
	return NewSystemdProber(logger)
}

// SystemdProber queries systemd unit state with systemctl show
type SystemdProber struct {
	logger *zap.Logger
	run    runFunc
}

// NewSystemdProber creates a prober that shells out to systemctl
func NewSystemdProber(logger *zap.Logger) *SystemdProber {
	return &SystemdProber{logger: logger, run: runCommand}
}

func (p *SystemdProber) Probe(ctx context.Context, name string) State {
	// Use systemctl show for machine-readable output
	stdout, stderr, err := p.run(ctx, "systemctl", "show", name, "--property=LoadState,ActiveState,SubState")
	if err != nil {
		p.logger.Debug("systemctl show failed, treating service as not installed",
			zap.String("service", name),
			zap.Error(err),
			zap.String("stderr", strings.TrimSpace(stderr)))
		return StateNotInstalled
	}

	state, raw := parseSystemdShow(stdout)
	if state == StateUnknown {
		p.logger.Debug("Unrecognized systemd state",
			zap.String("service", name),
			zap.String("active_state", raw))
	}
	return state
}

// parseSystemdShow parses KEY=VALUE lines from systemctl show and returns the
// mapped state together with the raw ActiveState token
func parseSystemdShow(output string) (State, string) {
	var activeState, loadState string
	for _, line := range strings.Split(output, "\n") {
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "ActiveState":
			activeState = value
		case "LoadState":
			loadState = value
		}
	}

	if loadState == "not-found" {
		return StateNotInstalled, activeState
	}
	return mapSystemdState(activeState), activeState
}

// mapSystemdState converts systemd ActiveState to State
func mapSystemdState(activeState string) State {
	switch activeState {
	case "active", "reloading":
		return StateRunning
	case "inactive", "failed":
		// A failed unit holds no process and accepts start
		return StateStopped
	case "activating":
		return StateStartPending
	case "deactivating":
		return StateStopPending
	default:
		return StateUnknown
	}
}
