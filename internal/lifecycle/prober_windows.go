//go:build windows

package lifecycle

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

// NewProber returns the Service Control Manager prober
func NewProber(logger *zap.Logger) Prober {
	return NewSCMProber(logger)
}

// SCMProber queries the Windows Service Control Manager. It opens handles
// with query-only rights so status works without elevation.
type SCMProber struct {
	logger *zap.Logger
}

// NewSCMProber creates a Windows SCM prober
func NewSCMProber(logger *zap.Logger) *SCMProber {
	return &SCMProber{logger: logger}
}

func (p *SCMProber) Probe(ctx context.Context, name string) State {
	h, err := windows.OpenSCManager(nil, nil, windows.SC_MANAGER_CONNECT)
	if err != nil {
		p.logger.Warn("Failed to connect to service manager",
			zap.String("service", name),
			zap.Error(err))
		return StateNotInstalled
	}
	m := &mgr.Mgr{Handle: h}
	defer m.Disconnect()

	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return StateNotInstalled
	}
	sh, err := windows.OpenService(h, namePtr, windows.SERVICE_QUERY_STATUS)
	if err != nil {
		if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
			return StateNotInstalled
		}
		p.logger.Warn("Failed to open service",
			zap.String("service", name),
			zap.Error(err))
		return StateUnknown
	}
	s := &mgr.Service{Name: name, Handle: sh}
	defer s.Close()

	status, err := s.Query()
	if err != nil {
		p.logger.Warn("Failed to query service",
			zap.String("service", name),
			zap.Error(err))
		return StateUnknown
	}

	state := mapWindowsServiceState(status.State)
	if state == StateUnknown {
		p.logger.Debug("Unrecognized service state",
			zap.String("service", name),
			zap.Uint32("state", uint32(status.State)))
	}
	return state
}

// mapWindowsServiceState converts Windows service state to State
func mapWindowsServiceState(state svc.State) State {
	switch state {
	case svc.Running:
		return StateRunning
	case svc.Stopped:
		return StateStopped
	case svc.StartPending:
		return StateStartPending
	case svc.StopPending:
		return StateStopPending
	default:
		// Paused, PausePending and ContinuePending are not part of the
		// recognized set
		return StateUnknown
	}
}
