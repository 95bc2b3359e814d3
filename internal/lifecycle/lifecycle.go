// Package lifecycle drives install, uninstall, start, stop, restart and status
// of a single worker registered with the OS service manager.
//
// Every command sent to the service manager returns a channel that yields
// exactly one terminal Event. The Controller and Registrar await that event
// with a bounded wait and map it to an Outcome or an error. Service state is
// probed fresh before every decision and never cached.
package lifecycle

import (
	"fmt"
	"strings"

	"github.com/kardianos/service"
	"github.com/stone-age-io/svcctl/internal/config"
)

// Descriptor identifies the registered service. It is built once from
// configuration and never mutated.
type Descriptor struct {
	Name        string
	DisplayName string
	Description string
	Executable  string
	Arguments   []string
}

// DescriptorFromConfig builds the descriptor for cfg. When no arguments are
// configured and a config file was read, the worker is pointed at that file.
func DescriptorFromConfig(cfg *config.Config) Descriptor {
	args := append([]string(nil), cfg.Service.Arguments...)
	if len(args) == 0 && cfg.Path != "" {
		args = []string{"--config", cfg.Path}
	}
	return Descriptor{
		Name:        cfg.Service.Name,
		DisplayName: cfg.Service.DisplayName,
		Description: cfg.Service.Description,
		Executable:  cfg.Service.Executable,
		Arguments:   args,
	}
}

// ServiceConfig returns the kardianos/service registration for d.
// A worker that exits non-zero is restarted by the service manager.
func (d Descriptor) ServiceConfig() *service.Config {
	return &service.Config{
		Name:        d.Name,
		DisplayName: d.DisplayName,
		Description: d.Description,
		Executable:  d.Executable,
		Arguments:   d.Arguments,
		Option: service.KeyValue{
			"Restart":                "on-failure",
			"OnFailure":              "restart",
			"OnFailureDelayDuration": "5s",
		},
	}
}

// State is the normalized state of a service as reported by a probe
type State int

const (
	StateUnknown State = iota
	StateNotInstalled
	StateRunning
	StateStopped
	StateStartPending
	StateStopPending
)

func (s State) String() string {
	switch s {
	case StateNotInstalled:
		return "NOT INSTALLED"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	case StateStartPending:
		return "START_PENDING"
	case StateStopPending:
		return "STOP_PENDING"
	default:
		return "UNKNOWN"
	}
}

// Action is an operator request
type Action int

const (
	ActionStatus Action = iota
	ActionStart
	ActionStop
	ActionRestart
	ActionInstall
	ActionUninstall
)

func (a Action) String() string {
	switch a {
	case ActionStatus:
		return "status"
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	case ActionRestart:
		return "restart"
	case ActionInstall:
		return "install"
	case ActionUninstall:
		return "uninstall"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ControlActions is the fixed set accepted by the controller entry point
var ControlActions = []Action{ActionStart, ActionStop, ActionRestart, ActionStatus}

// ParseAction validates s against ControlActions
func ParseAction(s string) (Action, error) {
	for _, a := range ControlActions {
		if s == a.String() {
			return a, nil
		}
	}
	names := make([]string, len(ControlActions))
	for i, a := range ControlActions {
		names[i] = a.String()
	}
	return 0, fmt.Errorf("invalid action %q (must be one of %s)", s, strings.Join(names, "|"))
}

// EventKind tags a terminal notification from the service manager
type EventKind int

const (
	EventError EventKind = iota
	EventInstalled
	EventAlreadyInstalled
	EventInvalidInstallation
	EventStarted
	EventAlreadyRunning
	EventStopped
	EventAlreadyStopped
	EventUninstalled
	EventAlreadyUninstalled
)

var eventNames = map[EventKind]string{
	EventError:               "error",
	EventInstalled:           "installed",
	EventAlreadyInstalled:    "already-installed",
	EventInvalidInstallation: "invalid-installation",
	EventStarted:             "started",
	EventAlreadyRunning:      "already-running",
	EventStopped:             "stopped",
	EventAlreadyStopped:      "already-stopped",
	EventUninstalled:         "uninstalled",
	EventAlreadyUninstalled:  "already-uninstalled",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is a terminal notification. Err carries the detail for EventError
// and EventInvalidInstallation.
type Event struct {
	Kind EventKind
	Err  error
}

func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

// Outcome is what one dispatch observed: the probed state (if any) and the
// terminal events in the order they arrived
type Outcome struct {
	Service string
	Action  Action
	State   State
	Events  []Event
}

// Last returns the final event, or false if none was observed
func (o Outcome) Last() (Event, bool) {
	if len(o.Events) == 0 {
		return Event{}, false
	}
	return o.Events[len(o.Events)-1], true
}
