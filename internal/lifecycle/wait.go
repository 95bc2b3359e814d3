package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// Option configures a Controller or Registrar
type Option func(*settings)

type settings struct {
	clock clock.Clock
	ports PortChecker
}

func newSettings(opts []Option) settings {
	s := settings{
		clock: clock.New(),
		ports: SocketTable{},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithClock replaces the wall clock used for bounded waits and polling
func WithClock(c clock.Clock) Option {
	return func(s *settings) {
		s.clock = c
	}
}

// WithPortChecker replaces the socket table used by restart
func WithPortChecker(p PortChecker) Option {
	return func(s *settings) {
		s.ports = p
	}
}

// waiter awaits exactly one terminal event per issued command
type waiter struct {
	service string
	clock   clock.Clock
	timeout time.Duration
}

// await returns the first event on events, or an ErrOutcomeUnknown
// ManagerError once the timeout or ctx expires
func (w waiter) await(ctx context.Context, op Operation, events <-chan Event) (Event, error) {
	timer := w.clock.Timer(w.timeout)
	defer timer.Stop()

	select {
	case ev := <-events:
		return ev, nil
	case <-timer.C:
		// An event that is already delivered wins over the deadline
		if ev, ok := ready(events); ok {
			return ev, nil
		}
		return Event{}, &ManagerError{
			Op:      op,
			Service: w.service,
			Err:     fmt.Errorf("%w: no response within %v", ErrOutcomeUnknown, w.timeout),
		}
	case <-ctx.Done():
		if ev, ok := ready(events); ok {
			return ev, nil
		}
		return Event{}, &ManagerError{
			Op:      op,
			Service: w.service,
			Err:     fmt.Errorf("%w: %v", ErrOutcomeUnknown, ctx.Err()),
		}
	}
}

func ready(events <-chan Event) (Event, bool) {
	select {
	case ev := <-events:
		return ev, true
	default:
		return Event{}, false
	}
}

// guard refuses to issue a command once ctx is done. Nothing reaches the
// service manager, so the outcome is known and is not ErrOutcomeUnknown.
func (w waiter) guard(ctx context.Context, op Operation) error {
	if err := ctx.Err(); err != nil {
		return &ManagerError{
			Op:      op,
			Service: w.service,
			Err:     fmt.Errorf("%w: command not issued", err),
		}
	}
	return nil
}

// command issues one command and checks the event against the kinds that
// count as success for it
func (w waiter) command(ctx context.Context, op Operation, issue func(context.Context) <-chan Event, accept ...EventKind) (Event, bool, error) {
	if err := w.guard(ctx, op); err != nil {
		return Event{}, false, err
	}
	ev, err := w.await(ctx, op, issue(ctx))
	if err != nil {
		return ev, false, err
	}
	return ev, true, w.expect(op, ev, accept...)
}

func (w waiter) expect(op Operation, ev Event, accept ...EventKind) error {
	if ev.Kind == EventError {
		detail := ev.Err
		if detail == nil {
			detail = errors.New("service manager reported an error")
		}
		return &ManagerError{Op: op, Service: w.service, Err: detail}
	}
	for _, kind := range accept {
		if ev.Kind == kind {
			return nil
		}
	}
	return &ManagerError{
		Op:      op,
		Service: w.service,
		Err:     fmt.Errorf("unexpected event %s", ev.Kind),
	}
}
