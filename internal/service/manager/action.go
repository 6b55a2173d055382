package manager

import (
	"errors"
	"fmt"
)

// Action is the closed set of lifecycle operations.
type Action string

const (
	// ActionInstall performs a fresh installation.
	ActionInstall Action = "install"
	// ActionUpdate replaces every managed binary copy with the latest release.
	ActionUpdate Action = "update"
	// ActionUninstall removes the service, binaries and configuration.
	ActionUninstall Action = "uninstall"
	// ActionAuto dispatches to install or update based on current state.
	ActionAuto Action = "auto"
	// ActionStatus reports the current state without mutating anything.
	ActionStatus Action = "status"
)

// ErrUnknownAction is returned for unrecognized action arguments.
var ErrUnknownAction = errors.New("unknown action")

// ParseAction maps a CLI argument to an Action; empty input means auto.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionInstall, ActionUpdate, ActionUninstall, ActionAuto, ActionStatus:
		return Action(s), nil
	case "":
		return ActionAuto, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// State is the observable installation state.
type State int

const (
	// StateAbsent means no managed binary exists anywhere.
	StateAbsent State = iota
	// StateInstalled means the binary exists but the service is not running.
	StateInstalled
	// StateRunning means the service is active.
	StateRunning
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateInstalled:
		return "installed"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}
