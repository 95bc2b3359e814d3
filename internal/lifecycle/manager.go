package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/kardianos/service"
	"go.uber.org/zap"
)

// Manager issues commands to the OS service manager. Each call returns
// immediately with a channel that yields exactly one terminal Event.
type Manager interface {
	Install(ctx context.Context) <-chan Event
	Uninstall(ctx context.Context) <-chan Event
	Start(ctx context.Context) <-chan Event
	Stop(ctx context.Context) <-chan Event
}

// controllable is the part of service.Service the manager drives
type controllable interface {
	Install() error
	Uninstall() error
	Start() error
	Stop() error
	Status() (service.Status, error)
}

// ServiceManager implements Manager on top of kardianos/service
type ServiceManager struct {
	name   string
	svc    controllable
	logger *zap.Logger
}

// NewServiceManager creates a manager for the service described by desc
func NewServiceManager(desc Descriptor, logger *zap.Logger) (*ServiceManager, error) {
	s, err := service.New(noopProgram{}, desc.ServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create service handle: %w", err)
	}
	logger.Debug("Service manager ready",
		zap.String("service", desc.Name),
		zap.String("platform", s.Platform()))
	return newServiceManager(desc.Name, s, logger), nil
}

func newServiceManager(name string, svc controllable, logger *zap.Logger) *ServiceManager {
	return &ServiceManager{name: name, svc: svc, logger: logger}
}

func (m *ServiceManager) Install(ctx context.Context) <-chan Event {
	return m.issue(ctx, OpInstall, m.install)
}

func (m *ServiceManager) Uninstall(ctx context.Context) <-chan Event {
	return m.issue(ctx, OpUninstall, m.uninstall)
}

func (m *ServiceManager) Start(ctx context.Context) <-chan Event {
	return m.issue(ctx, OpStart, m.start)
}

func (m *ServiceManager) Stop(ctx context.Context) <-chan Event {
	return m.issue(ctx, OpStop, m.stop)
}

// issue runs fn on its own goroutine. The channel has room for the single
// event, so the sender never blocks even if nobody is waiting anymore.
func (m *ServiceManager) issue(ctx context.Context, op Operation, fn func() Event) <-chan Event {
	ch := make(chan Event, 1)
	if err := ctx.Err(); err != nil {
		ch <- Event{Kind: EventError, Err: err}
		return ch
	}

	m.logger.Info("Issuing service manager command",
		zap.String("service", m.name),
		zap.String("op", op.String()))

	go func() {
		ev := fn()
		m.logger.Info("Service manager event",
			zap.String("service", m.name),
			zap.String("op", op.String()),
			zap.Stringer("event", ev.Kind),
			zap.Error(ev.Err))
		ch <- ev
	}()
	return ch
}

func (m *ServiceManager) install() Event {
	if _, err := m.svc.Status(); !errors.Is(err, service.ErrNotInstalled) {
		if err != nil {
			m.logger.Debug("Status before install failed, assuming installed", zap.Error(err))
		}
		return Event{Kind: EventAlreadyInstalled}
	}

	if err := m.svc.Install(); err != nil {
		switch {
		case isAlreadyExists(err):
			return Event{Kind: EventAlreadyInstalled}
		case isPermissionError(err):
			return Event{Kind: EventInvalidInstallation, Err: err}
		default:
			return Event{Kind: EventError, Err: err}
		}
	}
	return Event{Kind: EventInstalled}
}

func (m *ServiceManager) uninstall() Event {
	status, err := m.svc.Status()
	if errors.Is(err, service.ErrNotInstalled) {
		return Event{Kind: EventAlreadyUninstalled}
	}

	// Removing a unit does not stop its process on every platform
	if err == nil && status == service.StatusRunning {
		if err := m.svc.Stop(); err != nil {
			m.logger.Warn("Failed to stop service before uninstall",
				zap.String("service", m.name),
				zap.Error(err))
		}
	}

	if err := m.svc.Uninstall(); err != nil {
		return Event{Kind: EventError, Err: err}
	}
	return Event{Kind: EventUninstalled}
}

func (m *ServiceManager) start() Event {
	if status, err := m.svc.Status(); err == nil && status == service.StatusRunning {
		return Event{Kind: EventAlreadyRunning}
	}
	if err := m.svc.Start(); err != nil {
		return Event{Kind: EventError, Err: err}
	}
	return Event{Kind: EventStarted}
}

func (m *ServiceManager) stop() Event {
	if status, err := m.svc.Status(); err == nil && status == service.StatusStopped {
		return Event{Kind: EventAlreadyStopped}
	}
	if err := m.svc.Stop(); err != nil {
		return Event{Kind: EventError, Err: err}
	}
	return Event{Kind: EventStopped}
}

// isPermissionError recognizes privilege failures. Several service backends
// flatten errors to strings, so the message is checked as well.
func isPermissionError(err error) bool {
	if errors.Is(err, fs.ErrPermission) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "access is denied") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "operation not permitted")
}

func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists")
}
