package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stone-age-io/svcctl/internal/config"
	"go.uber.org/zap"
)

// ControllerOptions bounds every wait the Controller performs
type ControllerOptions struct {
	CommandTimeout     time.Duration
	StopConfirmTimeout time.Duration
	PortReleaseTimeout time.Duration
	PollInterval       time.Duration

	// Port is the worker's listening port. Restart waits for it to be
	// released before starting again. Zero skips the check.
	Port int
}

// ControllerOptionsFromConfig maps the control section of cfg
func ControllerOptionsFromConfig(cfg *config.Config) ControllerOptions {
	return ControllerOptions{
		CommandTimeout:     cfg.Control.CommandTimeout,
		StopConfirmTimeout: cfg.Control.StopConfirmTimeout,
		PortReleaseTimeout: cfg.Control.PortReleaseTimeout,
		PollInterval:       cfg.Control.PollInterval,
		Port:               cfg.Worker.Port,
	}
}

// Controller validates runtime actions against a fresh probe and drives them
// through the Manager
type Controller struct {
	desc    Descriptor
	prober  Prober
	manager Manager
	opts    ControllerOptions
	waiter  waiter
	clock   clock.Clock
	ports   PortChecker
	logger  *zap.Logger
}

// NewController creates a controller for desc
func NewController(desc Descriptor, prober Prober, manager Manager, opts ControllerOptions, logger *zap.Logger, options ...Option) *Controller {
	s := newSettings(options)
	return &Controller{
		desc:    desc,
		prober:  prober,
		manager: manager,
		opts:    opts,
		waiter:  waiter{service: desc.Name, clock: s.clock, timeout: opts.CommandTimeout},
		clock:   s.clock,
		ports:   s.ports,
		logger:  logger,
	}
}

// Dispatch performs action. Status never fails. Start, stop and restart are
// rejected with a PreconditionError, without contacting the service manager,
// if and only if the probe reports StateNotInstalled. Every other state is
// passed through and the service manager decides.
func (c *Controller) Dispatch(ctx context.Context, action Action) (Outcome, error) {
	state := c.prober.Probe(ctx, c.desc.Name)
	out := Outcome{Service: c.desc.Name, Action: action, State: state}

	c.logger.Debug("Probed service",
		zap.String("service", c.desc.Name),
		zap.String("action", action.String()),
		zap.String("state", state.String()))

	if action == ActionStatus {
		return out, nil
	}

	switch action {
	case ActionStart, ActionStop, ActionRestart:
	default:
		return out, fmt.Errorf("action %s is not handled by the controller", action)
	}

	if state == StateNotInstalled {
		return out, &PreconditionError{Service: c.desc.Name, Action: action, State: state}
	}

	switch action {
	case ActionStart:
		err := c.record(ctx, &out, OpStart, c.manager.Start, EventStarted, EventAlreadyRunning)
		return out, err
	case ActionStop:
		err := c.record(ctx, &out, OpStop, c.manager.Stop, EventStopped, EventAlreadyStopped)
		return out, err
	default:
		return c.restart(ctx, out)
	}
}

// restart stops, confirms the stop with the prober, waits for the port to be
// released and only then starts. A failed stop aborts the restart.
func (c *Controller) restart(ctx context.Context, out Outcome) (Outcome, error) {
	if err := c.record(ctx, &out, OpStop, c.manager.Stop, EventStopped, EventAlreadyStopped); err != nil {
		return out, err
	}

	if err := c.confirmStopped(ctx); err != nil {
		return out, err
	}

	c.awaitPortRelease(ctx)
	if err := ctx.Err(); err != nil {
		return out, &ManagerError{
			Op:      OpStart,
			Service: c.desc.Name,
			Err:     fmt.Errorf("%w: restart interrupted before start", err),
		}
	}

	err := c.record(ctx, &out, OpStart, c.manager.Start, EventStarted, EventAlreadyRunning)
	return out, err
}

// record issues one command and appends the observed event to out
func (c *Controller) record(ctx context.Context, out *Outcome, op Operation, issue func(context.Context) <-chan Event, accept ...EventKind) error {
	ev, received, err := c.waiter.command(ctx, op, issue, accept...)
	if received {
		out.Events = append(out.Events, ev)
	}
	return err
}

// confirmStopped polls the prober until the service reports StateStopped
func (c *Controller) confirmStopped(ctx context.Context) error {
	deadline := c.clock.Timer(c.opts.StopConfirmTimeout)
	defer deadline.Stop()

	for {
		state := c.prober.Probe(ctx, c.desc.Name)
		switch state {
		case StateStopped:
			return nil
		case StateNotInstalled:
			// Removed underneath us between stop and start
			return &PreconditionError{Service: c.desc.Name, Action: ActionRestart, State: state}
		}

		c.logger.Debug("Waiting for service to stop",
			zap.String("service", c.desc.Name),
			zap.String("state", state.String()))

		select {
		case <-c.clock.After(c.opts.PollInterval):
		case <-deadline.C:
			return &ManagerError{
				Op:      OpStop,
				Service: c.desc.Name,
				Err:     fmt.Errorf("%w: service still %s after %v", ErrOutcomeUnknown, state, c.opts.StopConfirmTimeout),
			}
		case <-ctx.Done():
			return &ManagerError{
				Op:      OpStop,
				Service: c.desc.Name,
				Err:     fmt.Errorf("%w: %v", ErrOutcomeUnknown, ctx.Err()),
			}
		}
	}
}

// awaitPortRelease waits until nothing listens on the worker port. It never
// fails the restart: on timeout the start is issued anyway and the service
// manager reports any bind failure.
func (c *Controller) awaitPortRelease(ctx context.Context) {
	if c.opts.Port == 0 || c.opts.PortReleaseTimeout <= 0 {
		return
	}

	deadline := c.clock.Timer(c.opts.PortReleaseTimeout)
	defer deadline.Stop()

	for {
		listening, err := c.ports.Listening(ctx, c.opts.Port)
		if err != nil {
			c.logger.Debug("Cannot check port release, continuing",
				zap.Int("port", c.opts.Port),
				zap.Error(err))
			return
		}
		if !listening {
			return
		}

		select {
		case <-c.clock.After(c.opts.PollInterval):
		case <-deadline.C:
			c.logger.Warn("Port still in use after stop, starting anyway",
				zap.Int("port", c.opts.Port),
				zap.Duration("waited", c.opts.PortReleaseTimeout))
			return
		case <-ctx.Done():
			return
		}
	}
}
