// Package cli implements the svcctl, svcinstall and svcuninstall command
// line tools on top of the lifecycle package.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/stone-age-io/svcctl/internal/config"
	"github.com/stone-age-io/svcctl/internal/lifecycle"
	"github.com/stone-age-io/svcctl/internal/logging"
	"github.com/stone-age-io/svcctl/internal/notify"
	"go.uber.org/zap"
)

// Exit codes shared by all tools
const (
	ExitOK                  = 0
	ExitUsage               = 1
	ExitNotInstalled        = 2
	ExitManagerError        = 3
	ExitInvalidInstallation = 4
	ExitOutcomeUnknown      = 5
	ExitConfigError         = 6
)

// Deps are the collaborators the tools are built from
type Deps struct {
	Stdout io.Writer
	Stderr io.Writer

	NewProber   func(logger *zap.Logger) lifecycle.Prober
	NewManager  func(desc lifecycle.Descriptor, logger *zap.Logger) (lifecycle.Manager, error)
	NewNotifier func(cfg *config.NotifyConfig, logger *zap.Logger) (notify.Notifier, error)

	// Options are passed to every Controller and Registrar
	Options []lifecycle.Option
}

// DefaultDeps wires the real OS service manager and the process streams
func DefaultDeps() Deps {
	return Deps{
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		NewProber: lifecycle.NewProber,
		NewManager: func(desc lifecycle.Descriptor, logger *zap.Logger) (lifecycle.Manager, error) {
			return lifecycle.NewServiceManager(desc, logger)
		},
		NewNotifier: notify.New,
	}
}

// env is what every tool has once flags and configuration are loaded
type env struct {
	deps   Deps
	cfg    *config.Config
	logger *zap.Logger
	desc   lifecycle.Descriptor
}

// newFlagSet returns the flags common to all tools
func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.String("config", config.GetDefaultConfigPath(), "path to configuration file")
	fs.String("level", "", "diagnostic log level (debug, info, warn, error)")
	return fs
}

// parseFailure prints usage for a flag error. --help is not a failure.
func parseFailure(deps Deps, err error, usage string) int {
	if errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintln(deps.Stdout, usage)
		return ExitOK
	}
	fmt.Fprintf(deps.Stderr, "Error: %v\n%s\n", err, usage)
	return ExitUsage
}

// load reads configuration and builds the logger. On failure the message is
// already printed and the exit code is returned.
func load(fs *pflag.FlagSet, deps Deps) (*env, int) {
	path, _ := fs.GetString("config")

	cfg, err := config.Load(path, fs)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "Error: %v\n", err)
		return nil, ExitConfigError
	}

	logger, err := logging.New(cfg.Logging, deps.Stderr)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "Error: %v\n", err)
		return nil, ExitConfigError
	}

	return &env{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		desc:   lifecycle.DescriptorFromConfig(cfg),
	}, ExitOK
}

// manager creates the service manager adapter, printing on failure
func (e *env) manager() (lifecycle.Manager, bool) {
	m, err := e.deps.NewManager(e.desc, e.logger)
	if err != nil {
		fmt.Fprintf(e.deps.Stderr, "Error: %v\n", err)
		return nil, false
	}
	return m, true
}

// report publishes the outcome when notifications are enabled. Failures are
// logged and never change the exit code.
func (e *env) report(out lifecycle.Outcome, actionErr error) {
	if e.deps.NewNotifier == nil {
		return
	}

	n, err := e.deps.NewNotifier(&e.cfg.Notify, e.logger)
	if err != nil {
		e.logger.Warn("Lifecycle notification unavailable", zap.Error(err))
		return
	}
	defer n.Close()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Notify.Timeout+time.Second)
	defer cancel()

	if err := n.Notify(ctx, notify.NewReport(out, actionErr)); err != nil {
		e.logger.Warn("Failed to publish lifecycle report", zap.Error(err))
	}
}

// signalContext is cancelled on interrupt so a pending wait ends with an
// unknown outcome instead of hanging
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
