package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/stone-age-io/svcctl/internal/lifecycle"
)

var eventMessages = map[lifecycle.EventKind]string{
	lifecycle.EventInstalled:          "Service installed.",
	lifecycle.EventAlreadyInstalled:   "Service already installed.",
	lifecycle.EventStarted:            "Service started.",
	lifecycle.EventAlreadyRunning:     "Service already running.",
	lifecycle.EventStopped:            "Service stopped.",
	lifecycle.EventAlreadyStopped:     "Service already stopped.",
	lifecycle.EventUninstalled:        "Service uninstalled.",
	lifecycle.EventAlreadyUninstalled: "Service already uninstalled.",
}

// printOutcome writes one line per successful event and returns the exit
// code for err
func printOutcome(stdout, stderr io.Writer, out lifecycle.Outcome, err error) int {
	switch out.Action {
	case lifecycle.ActionStatus:
		if err == nil {
			fmt.Fprintf(stdout, "%s status: %s\n", out.Service, out.State)
		}
	case lifecycle.ActionRestart:
		printRestart(stdout, out, err)
	default:
		for _, ev := range out.Events {
			if msg, ok := eventMessages[ev.Kind]; ok {
				fmt.Fprintln(stdout, msg)
			}
		}
	}

	if err == nil {
		return ExitOK
	}
	return printError(stderr, out.Service, err)
}

// printRestart reports the stop half as soon as it is known and the start
// half only when the whole restart succeeded
func printRestart(stdout io.Writer, out lifecycle.Outcome, err error) {
	if len(out.Events) == 0 {
		return
	}
	switch out.Events[0].Kind {
	case lifecycle.EventStopped, lifecycle.EventAlreadyStopped:
		fmt.Fprintln(stdout, "Service stopped. Restarting...")
	default:
		return
	}
	if err == nil {
		fmt.Fprintln(stdout, "Service restarted.")
	}
}

// printError maps err to its message and exit code. More specific kinds are
// checked first.
func printError(stderr io.Writer, service string, err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrNotInstalled):
		fmt.Fprintf(stderr, "%s is not installed. Run install script first.\n", service)
		return ExitNotInstalled
	case errors.Is(err, lifecycle.ErrOutcomeUnknown):
		fmt.Fprintf(stderr, "Outcome unknown, check status manually: %s\n", detail(err, lifecycle.ErrOutcomeUnknown))
		return ExitOutcomeUnknown
	case errors.Is(err, lifecycle.ErrInvalidInstallation):
		fmt.Fprintf(stderr, "Invalid installation: %s\n", detail(err, lifecycle.ErrInvalidInstallation))
		return ExitInvalidInstallation
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitManagerError
	}
}

// detail drops the sentinel text already carried by the message prefix
func detail(err, sentinel error) string {
	return strings.Replace(err.Error(), sentinel.Error()+": ", "", 1)
}
