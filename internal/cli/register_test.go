package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stone-age-io/svcctl/internal/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstall(t *testing.T) {
	manager := newStubManager().
		on(lifecycle.OpInstall, lifecycle.EventInstalled).
		on(lifecycle.OpStart, lifecycle.EventStarted)
	h, deps := newHarness(t, lifecycle.StateNotInstalled, manager)

	code := Install([]string{"--config", h.config}, deps)

	assert.Equal(t, ExitOK, code, h.stderr.String())
	assert.Equal(t, "Service installed.\nService started.\n", h.stdout.String())
	assert.Equal(t, []lifecycle.Operation{lifecycle.OpInstall, lifecycle.OpStart}, manager.Calls())
	require.Len(t, h.notifier.reports, 1)
	assert.Equal(t, "install", h.notifier.reports[0].Action)
}

func TestInstallAlreadyInstalled(t *testing.T) {
	manager := newStubManager().on(lifecycle.OpInstall, lifecycle.EventAlreadyInstalled)
	h, deps := newHarness(t, lifecycle.StateRunning, manager)

	code := Install([]string{"--config", h.config}, deps)

	assert.Equal(t, ExitOK, code)
	assert.Equal(t, "Service already installed.\n", h.stdout.String())
	assert.Equal(t, []lifecycle.Operation{lifecycle.OpInstall}, manager.Calls())
}

func TestInstallMissingExecutable(t *testing.T) {
	manager := newStubManager()
	h, deps := newHarness(t, lifecycle.StateNotInstalled, manager)

	missing := filepath.Join(t.TempDir(), "nowhere", "worker")
	content := "service:\n  name: DemoWorkerService\n  executable: " + missing + "\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(h.config, []byte(content), 0o644))

	code := Install([]string{"--config", h.config}, deps)

	assert.Equal(t, ExitInvalidInstallation, code)
	assert.Equal(t, "Invalid installation: install DemoWorkerService: executable not found: "+missing+"\n", h.stderr.String())
	assert.Empty(t, manager.Calls())
}

func TestInstallRejectedByManager(t *testing.T) {
	manager := newStubManager()
	manager.events[lifecycle.OpInstall] = []lifecycle.Event{{
		Kind: lifecycle.EventInvalidInstallation,
		Err:  errors.New("Access is denied."),
	}}
	h, deps := newHarness(t, lifecycle.StateNotInstalled, manager)

	code := Install([]string{"--config", h.config}, deps)

	assert.Equal(t, ExitInvalidInstallation, code)
	assert.Contains(t, h.stderr.String(), "Invalid installation: ")
	assert.Contains(t, h.stderr.String(), "Access is denied.")
	assert.Empty(t, h.stdout.String())
}

func TestInstallRejectsPositionalArgs(t *testing.T) {
	h, deps := newHarness(t, lifecycle.StateNotInstalled, newStubManager())

	code := Install([]string{"--config", h.config, "now"}, deps)

	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, h.stderr.String(), installUsage)
}

func TestUninstall(t *testing.T) {
	tests := []struct {
		name string
		kind lifecycle.EventKind
		want string
	}{
		{"installed", lifecycle.EventUninstalled, "Service uninstalled.\n"},
		{"already removed", lifecycle.EventAlreadyUninstalled, "Service already uninstalled.\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := newStubManager().on(lifecycle.OpUninstall, tt.kind)
			h, deps := newHarness(t, lifecycle.StateRunning, manager)

			code := Uninstall([]string{"--config", h.config}, deps)

			assert.Equal(t, ExitOK, code)
			assert.Equal(t, tt.want, h.stdout.String())
			assert.Empty(t, h.stderr.String())
		})
	}
}

func TestUninstallError(t *testing.T) {
	manager := newStubManager().fail(lifecycle.OpUninstall, errors.New("marked for deletion"))
	h, deps := newHarness(t, lifecycle.StateRunning, manager)

	code := Uninstall([]string{"--config", h.config}, deps)

	assert.Equal(t, ExitManagerError, code)
	assert.Equal(t, "Error: uninstall DemoWorkerService: marked for deletion\n", h.stderr.String())
}
