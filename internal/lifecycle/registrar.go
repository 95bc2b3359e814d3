package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// Registrar installs and uninstalls the service. Both operations are
// idempotent: already-installed and already-uninstalled are successes.
type Registrar struct {
	desc    Descriptor
	manager Manager
	waiter  waiter
	logger  *zap.Logger
}

// NewRegistrar creates a registrar for desc. timeout bounds each await.
func NewRegistrar(desc Descriptor, manager Manager, timeout time.Duration, logger *zap.Logger, options ...Option) *Registrar {
	s := newSettings(options)
	return &Registrar{
		desc:    desc,
		manager: manager,
		waiter:  waiter{service: desc.Name, clock: s.clock, timeout: timeout},
		logger:  logger,
	}
}

// Install registers the service and, when it was newly installed, starts it.
// An invalid descriptor or a privilege failure returns an error wrapping
// ErrInvalidInstallation.
func (r *Registrar) Install(ctx context.Context) (Outcome, error) {
	out := Outcome{Service: r.desc.Name, Action: ActionInstall}

	if err := validateDescriptor(r.desc); err != nil {
		return out, &ManagerError{
			Op:      OpInstall,
			Service: r.desc.Name,
			Err:     fmt.Errorf("%w: %v", ErrInvalidInstallation, err),
		}
	}

	r.logger.Info("Installing service",
		zap.String("service", r.desc.Name),
		zap.String("executable", r.desc.Executable),
		zap.Strings("arguments", r.desc.Arguments))

	if err := r.waiter.guard(ctx, OpInstall); err != nil {
		return out, err
	}
	ev, err := r.waiter.await(ctx, OpInstall, r.manager.Install(ctx))
	if err != nil {
		return out, err
	}
	out.Events = append(out.Events, ev)

	switch ev.Kind {
	case EventInstalled:
		// Installing implies starting
	case EventAlreadyInstalled:
		return out, nil
	case EventInvalidInstallation:
		detail := ev.Err
		if detail == nil {
			detail = errors.New("rejected by service manager")
		}
		return out, &ManagerError{
			Op:      OpInstall,
			Service: r.desc.Name,
			Err:     fmt.Errorf("%w: %v", ErrInvalidInstallation, detail),
		}
	default:
		return out, r.waiter.expect(OpInstall, ev, EventInstalled, EventAlreadyInstalled)
	}

	startEv, received, err := r.waiter.command(ctx, OpStart, r.manager.Start, EventStarted, EventAlreadyRunning)
	if received {
		out.Events = append(out.Events, startEv)
	}
	return out, err
}

// Uninstall removes the service registration
func (r *Registrar) Uninstall(ctx context.Context) (Outcome, error) {
	out := Outcome{Service: r.desc.Name, Action: ActionUninstall}

	r.logger.Info("Uninstalling service", zap.String("service", r.desc.Name))

	ev, received, err := r.waiter.command(ctx, OpUninstall, r.manager.Uninstall, EventUninstalled, EventAlreadyUninstalled)
	if received {
		out.Events = append(out.Events, ev)
	}
	return out, err
}

// validateDescriptor checks what can be checked before contacting the
// service manager
func validateDescriptor(desc Descriptor) error {
	if desc.Name == "" {
		return errors.New("service name is empty")
	}
	if desc.Executable == "" {
		return errors.New("executable path is empty")
	}
	info, err := os.Stat(desc.Executable)
	if err != nil {
		return fmt.Errorf("executable not found: %s", desc.Executable)
	}
	if info.IsDir() {
		return fmt.Errorf("executable is a directory: %s", desc.Executable)
	}
	return nil
}
