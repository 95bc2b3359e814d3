package cli

import (
	"context"
	"fmt"

	"github.com/stone-age-io/svcctl/internal/lifecycle"
)

const (
	installUsage   = "Usage: svcinstall [--config FILE]"
	uninstallUsage = "Usage: svcuninstall [--config FILE]"
)

// Install runs svcinstall: register the worker and start it
func Install(args []string, deps Deps) int {
	return register(args, deps, "svcinstall", installUsage, (*lifecycle.Registrar).Install)
}

// Uninstall runs svcuninstall: remove the worker registration
func Uninstall(args []string, deps Deps) int {
	return register(args, deps, "svcuninstall", uninstallUsage, (*lifecycle.Registrar).Uninstall)
}

type registrarAction func(*lifecycle.Registrar, context.Context) (lifecycle.Outcome, error)

func register(args []string, deps Deps, name, usage string, run registrarAction) int {
	fs := newFlagSet(name)
	if err := fs.Parse(args); err != nil {
		return parseFailure(deps, err, usage)
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(deps.Stderr, usage)
		return ExitUsage
	}

	e, code := load(fs, deps)
	if e == nil {
		return code
	}
	defer e.logger.Sync()

	manager, ok := e.manager()
	if !ok {
		return ExitManagerError
	}

	reg := lifecycle.NewRegistrar(e.desc, manager, e.cfg.Control.CommandTimeout, e.logger, deps.Options...)

	ctx, cancel := signalContext()
	defer cancel()

	out, err := run(reg, ctx)
	code = printOutcome(deps.Stdout, deps.Stderr, out, err)
	e.report(out, err)
	return code
}
