package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stone-age-io/svcctl/internal/config"
	"github.com/stone-age-io/svcctl/internal/lifecycle"
	"github.com/stone-age-io/svcctl/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProber struct {
	state lifecycle.State
}

func (p stubProber) Probe(ctx context.Context, name string) lifecycle.State {
	return p.state
}

// stubManager answers each operation with its scripted events in order.
// Operations without a scripted event never answer.
type stubManager struct {
	mu     sync.Mutex
	events map[lifecycle.Operation][]lifecycle.Event
	calls  []lifecycle.Operation
}

func newStubManager() *stubManager {
	return &stubManager{events: make(map[lifecycle.Operation][]lifecycle.Event)}
}

func (m *stubManager) on(op lifecycle.Operation, kinds ...lifecycle.EventKind) *stubManager {
	for _, k := range kinds {
		m.events[op] = append(m.events[op], lifecycle.Event{Kind: k})
	}
	return m
}

func (m *stubManager) fail(op lifecycle.Operation, err error) *stubManager {
	m.events[op] = append(m.events[op], lifecycle.Event{Kind: lifecycle.EventError, Err: err})
	return m
}

func (m *stubManager) issue(op lifecycle.Operation) <-chan lifecycle.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op)
	ch := make(chan lifecycle.Event, 1)
	if q := m.events[op]; len(q) > 0 {
		ch <- q[0]
		m.events[op] = q[1:]
	}
	return ch
}

func (m *stubManager) Install(ctx context.Context) <-chan lifecycle.Event {
	return m.issue(lifecycle.OpInstall)
}
func (m *stubManager) Uninstall(ctx context.Context) <-chan lifecycle.Event {
	return m.issue(lifecycle.OpUninstall)
}
func (m *stubManager) Start(ctx context.Context) <-chan lifecycle.Event {
	return m.issue(lifecycle.OpStart)
}
func (m *stubManager) Stop(ctx context.Context) <-chan lifecycle.Event {
	return m.issue(lifecycle.OpStop)
}

func (m *stubManager) Calls() []lifecycle.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]lifecycle.Operation(nil), m.calls...)
}

type recordingNotifier struct {
	reports []notify.Report
	closed  bool
}

func (n *recordingNotifier) Notify(ctx context.Context, r notify.Report) error {
	n.reports = append(n.reports, r)
	return nil
}

func (n *recordingNotifier) Close() { n.closed = true }

type harness struct {
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	manager  *stubManager
	notifier *recordingNotifier
	created  bool
	config   string
}

// newHarness writes a config pointing at a real executable so install
// validation passes, and wires stubs for everything that touches the OS
func newHarness(t *testing.T, state lifecycle.State, manager *stubManager) (*harness, Deps) {
	t.Helper()
	t.Setenv("PORT", "")

	dir := t.TempDir()
	exe := filepath.Join(dir, "worker")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))

	cfgPath := filepath.Join(dir, "config.yaml")
	content := "service:\n" +
		"  name: DemoWorkerService\n" +
		"  executable: " + exe + "\n" +
		"control:\n" +
		"  command_timeout: 2s\n" +
		"  stop_confirm_timeout: 1s\n" +
		"  port_release_timeout: 0s\n" +
		"  poll_interval: 10ms\n" +
		"logging:\n" +
		"  level: error\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	h := &harness{manager: manager, notifier: &recordingNotifier{}, config: cfgPath}
	deps := Deps{
		Stdout: &h.stdout,
		Stderr: &h.stderr,
		NewProber: func(*zap.Logger) lifecycle.Prober {
			return stubProber{state: state}
		},
		NewManager: func(lifecycle.Descriptor, *zap.Logger) (lifecycle.Manager, error) {
			h.created = true
			return manager, nil
		},
		NewNotifier: func(*config.NotifyConfig, *zap.Logger) (notify.Notifier, error) {
			return h.notifier, nil
		},
	}
	return h, deps
}

func TestControlUsage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no action", nil},
		{"unknown action", []string{"badcommand"}},
		{"two actions", []string{"start", "stop"}},
		{"unknown flag", []string{"--bogus", "start"}},
		{"install is not a control action", []string{"install"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, deps := newHarness(t, lifecycle.StateRunning, newStubManager())

			code := Control(tt.args, deps)

			assert.Equal(t, ExitUsage, code)
			assert.Contains(t, h.stderr.String(), controlUsage)
			assert.Empty(t, h.stdout.String())
			assert.False(t, h.created)
		})
	}
}

func TestControlHelp(t *testing.T) {
	h, deps := newHarness(t, lifecycle.StateRunning, newStubManager())

	assert.Equal(t, ExitOK, Control([]string{"--help"}, deps))
	assert.Contains(t, h.stdout.String(), controlUsage)
}

func TestControlStatus(t *testing.T) {
	tests := []struct {
		state lifecycle.State
		want  string
	}{
		{lifecycle.StateNotInstalled, "DemoWorkerService status: NOT INSTALLED\n"},
		{lifecycle.StateRunning, "DemoWorkerService status: RUNNING\n"},
		{lifecycle.StateStopped, "DemoWorkerService status: STOPPED\n"},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			manager := newStubManager()
			h, deps := newHarness(t, tt.state, manager)

			code := Control([]string{"--config", h.config, "status"}, deps)

			assert.Equal(t, ExitOK, code)
			assert.Equal(t, tt.want, h.stdout.String())
			assert.Empty(t, h.stderr.String())
			assert.Empty(t, manager.Calls())
			assert.Empty(t, h.notifier.reports)
		})
	}
}

func TestControlNotInstalled(t *testing.T) {
	for _, action := range []string{"start", "stop", "restart"} {
		t.Run(action, func(t *testing.T) {
			manager := newStubManager()
			h, deps := newHarness(t, lifecycle.StateNotInstalled, manager)

			code := Control([]string{"--config", h.config, action}, deps)

			assert.Equal(t, ExitNotInstalled, code)
			assert.Equal(t, "DemoWorkerService is not installed. Run install script first.\n", h.stderr.String())
			assert.Empty(t, h.stdout.String())
			assert.Empty(t, manager.Calls())
		})
	}
}

func TestControlActions(t *testing.T) {
	tests := []struct {
		name    string
		state   lifecycle.State
		args    []string
		manager *stubManager
		want    string
	}{
		{
			name:    "start",
			state:   lifecycle.StateStopped,
			args:    []string{"start"},
			manager: newStubManager().on(lifecycle.OpStart, lifecycle.EventStarted),
			want:    "Service started.\n",
		},
		{
			name:    "start already running",
			state:   lifecycle.StateRunning,
			args:    []string{"start"},
			manager: newStubManager().on(lifecycle.OpStart, lifecycle.EventAlreadyRunning),
			want:    "Service already running.\n",
		},
		{
			name:    "stop",
			state:   lifecycle.StateRunning,
			args:    []string{"stop"},
			manager: newStubManager().on(lifecycle.OpStop, lifecycle.EventStopped),
			want:    "Service stopped.\n",
		},
		{
			name:    "stop already stopped",
			state:   lifecycle.StateStopped,
			args:    []string{"stop"},
			manager: newStubManager().on(lifecycle.OpStop, lifecycle.EventAlreadyStopped),
			want:    "Service already stopped.\n",
		},
		{
			name:  "restart",
			state: lifecycle.StateStopped,
			args:  []string{"restart"},
			manager: newStubManager().
				on(lifecycle.OpStop, lifecycle.EventStopped).
				on(lifecycle.OpStart, lifecycle.EventStarted),
			want: "Service stopped. Restarting...\nService restarted.\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, deps := newHarness(t, tt.state, tt.manager)

			code := Control(append([]string{"--config", h.config}, tt.args...), deps)

			assert.Equal(t, ExitOK, code, h.stderr.String())
			assert.Equal(t, tt.want, h.stdout.String())
			assert.Empty(t, h.stderr.String())

			require.Len(t, h.notifier.reports, 1)
			assert.True(t, h.notifier.reports[0].Success)
			assert.Equal(t, tt.args[0], h.notifier.reports[0].Action)
			assert.True(t, h.notifier.closed)
		})
	}
}

func TestControlManagerError(t *testing.T) {
	manager := newStubManager().fail(lifecycle.OpStart, errors.New("The service did not respond"))
	h, deps := newHarness(t, lifecycle.StateStopped, manager)

	code := Control([]string{"--config", h.config, "start"}, deps)

	assert.Equal(t, ExitManagerError, code)
	assert.Equal(t, "Error: start DemoWorkerService: The service did not respond\n", h.stderr.String())
	require.Len(t, h.notifier.reports, 1)
	assert.False(t, h.notifier.reports[0].Success)
}

func TestControlRestartStartFails(t *testing.T) {
	manager := newStubManager().
		on(lifecycle.OpStop, lifecycle.EventStopped).
		fail(lifecycle.OpStart, errors.New("port in use"))
	h, deps := newHarness(t, lifecycle.StateStopped, manager)

	code := Control([]string{"--config", h.config, "restart"}, deps)

	assert.Equal(t, ExitManagerError, code)
	assert.Equal(t, "Service stopped. Restarting...\n", h.stdout.String())
	assert.Contains(t, h.stderr.String(), "Error: start DemoWorkerService: port in use")
}

func TestControlTimeout(t *testing.T) {
	// The manager never answers the start
	manager := newStubManager()
	h, deps := newHarness(t, lifecycle.StateStopped, manager)

	code := Control([]string{"--config", h.config, "--timeout", "50ms", "start"}, deps)

	assert.Equal(t, ExitOutcomeUnknown, code)
	assert.Equal(t, "Outcome unknown, check status manually: start DemoWorkerService: no response within 50ms\n", h.stderr.String())
	assert.Equal(t, []lifecycle.Operation{lifecycle.OpStart}, manager.Calls())
}

func TestControlConfigError(t *testing.T) {
	h, deps := newHarness(t, lifecycle.StateRunning, newStubManager())
	require.NoError(t, os.WriteFile(h.config, []byte("service: [unclosed"), 0o644))

	code := Control([]string{"--config", h.config, "status"}, deps)

	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, h.stderr.String(), "Error: ")
}

func TestControlManagerUnavailable(t *testing.T) {
	h, deps := newHarness(t, lifecycle.StateRunning, newStubManager())
	deps.NewManager = func(lifecycle.Descriptor, *zap.Logger) (lifecycle.Manager, error) {
		return nil, errors.New("failed to create service handle: unsupported platform")
	}

	code := Control([]string{"--config", h.config, "start"}, deps)

	assert.Equal(t, ExitManagerError, code)
	assert.Equal(t, "Error: failed to create service handle: unsupported platform\n", h.stderr.String())

	h.stderr.Reset()
	assert.Equal(t, ExitOK, Control([]string{"--config", h.config, "status"}, deps))
	assert.Equal(t, "DemoWorkerService status: RUNNING\n", h.stdout.String())
}

func TestControlNotifierFailureKeepsExitCode(t *testing.T) {
	manager := newStubManager().on(lifecycle.OpStop, lifecycle.EventStopped)
	h, deps := newHarness(t, lifecycle.StateRunning, manager)
	deps.NewNotifier = func(*config.NotifyConfig, *zap.Logger) (notify.Notifier, error) {
		return nil, errors.New("nats: no servers available for connection")
	}

	code := Control([]string{"--config", h.config, "stop"}, deps)

	assert.Equal(t, ExitOK, code)
	assert.Equal(t, "Service stopped.\n", h.stdout.String())
}
