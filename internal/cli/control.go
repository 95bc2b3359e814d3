package cli

import (
	"fmt"
	"strings"

	"github.com/stone-age-io/svcctl/internal/lifecycle"
	"go.uber.org/zap"
)

const controlUsage = "Usage: svcctl [--config FILE] [--timeout DUR] <start|stop|restart|status>"

// Control runs svcctl with args (without the program name) and returns the
// process exit code
func Control(args []string, deps Deps) int {
	fs := newFlagSet("svcctl")
	fs.Duration("timeout", 0, "bound on each wait for the service manager")
	fs.Int("port", 0, "worker port to wait on during restart")

	if err := fs.Parse(args); err != nil {
		return parseFailure(deps, err, controlUsage)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(deps.Stderr, controlUsage)
		return ExitUsage
	}
	action, err := lifecycle.ParseAction(strings.TrimSpace(fs.Arg(0)))
	if err != nil {
		fmt.Fprintln(deps.Stderr, controlUsage)
		return ExitUsage
	}

	e, code := load(fs, deps)
	if e == nil {
		return code
	}
	defer e.logger.Sync()

	// Status only probes and must work even without a manager handle
	var manager lifecycle.Manager
	if action != lifecycle.ActionStatus {
		m, ok := e.manager()
		if !ok {
			return ExitManagerError
		}
		manager = m
	}

	ctrl := lifecycle.NewController(
		e.desc,
		deps.NewProber(e.logger),
		manager,
		lifecycle.ControllerOptionsFromConfig(e.cfg),
		e.logger,
		deps.Options...,
	)

	ctx, cancel := signalContext()
	defer cancel()

	out, err := ctrl.Dispatch(ctx, action)
	if err != nil {
		e.logger.Debug("Action failed",
			zap.String("action", action.String()),
			zap.Error(err))
	}

	code = printOutcome(deps.Stdout, deps.Stderr, out, err)
	if action != lifecycle.ActionStatus {
		e.report(out, err)
	}
	return code
}
