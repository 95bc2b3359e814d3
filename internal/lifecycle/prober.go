package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"github.com/kardianos/service"
	"go.uber.org/zap"
)

// Prober reports the current state of a named service. A probe is a single
// authoritative query: no retries, no caching, no side effects. A service
// the OS does not know is StateNotInstalled, never an error.
type Prober interface {
	Probe(ctx context.Context, name string) State
}

// Platform-specific implementations:
// - Linux:   SystemdProber (prober_linux.go), ManagerProber without systemctl
// - Windows: SCMProber (prober_windows.go)
// - FreeBSD: RCProber (prober_freebsd.go)
// - Other:   ManagerProber (prober_other.go)

// ManagerProber asks kardianos/service for the status. It only distinguishes
// running, stopped and not installed.
type ManagerProber struct {
	logger *zap.Logger
}

// NewManagerProber creates a prober backed by kardianos/service
func NewManagerProber(logger *zap.Logger) *ManagerProber {
	return &ManagerProber{logger: logger}
}

func (p *ManagerProber) Probe(ctx context.Context, name string) State {
	s, err := service.New(noopProgram{}, &service.Config{Name: name})
	if err != nil {
		p.logger.Warn("Failed to create service handle for probe",
			zap.String("service", name),
			zap.Error(err))
		return StateNotInstalled
	}
	status, err := s.Status()
	return mapManagerStatus(status, err)
}

// mapManagerStatus converts a kardianos status to State
func mapManagerStatus(status service.Status, err error) State {
	if err != nil {
		if errors.Is(err, service.ErrNotInstalled) {
			return StateNotInstalled
		}
		return StateUnknown
	}
	switch status {
	case service.StatusRunning:
		return StateRunning
	case service.StatusStopped:
		return StateStopped
	default:
		return StateUnknown
	}
}

// noopProgram satisfies service.Interface for handles used only to control
// the service from the outside
type noopProgram struct{}

func (noopProgram) Start(service.Service) error { return nil }
func (noopProgram) Stop(service.Service) error  { return nil }

// runFunc executes a command and returns its captured output. err is an
// *exec.ExitError when the command ran but exited non-zero.
type runFunc func(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)

// runCommand is the default runFunc
func runCommand(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
