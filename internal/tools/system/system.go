// Package system executes a small allow-listed set of host power commands.
//
// Everything here is disabled unless explicitly enabled in configuration;
// a misheard transcript must never be able to power off the machine.
package system

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrDisabled is returned when system control is not enabled.
var ErrDisabled = errors.New("system: control is disabled by configuration")

// Action is an allow-listed host command.
type Action string

const (
	ActionLock     Action = "lock"
	ActionSuspend  Action = "suspend"
	ActionReboot   Action = "reboot"
	ActionShutdown Action = "shutdown"
)

// commands maps each action to its argv. Only entries in this table can
// ever be executed.
var commands = map[Action][]string{
	ActionLock:     {"loginctl", "lock-session"},
	ActionSuspend:  {"systemctl", "suspend"},
	ActionReboot:   {"systemctl", "reboot"},
	ActionShutdown: {"systemctl", "poweroff"},
}

// Controller runs host power actions.
type Controller struct {
	enabled bool

	// run is swapped in tests.
	run func(ctx context.Context, name string, args ...string) error
}

// NewController creates a Controller. With enabled false every Execute call
// returns [ErrDisabled].
func NewController(enabled bool) *Controller {
	return &Controller{
		enabled: enabled,
		run: func(ctx context.Context, name string, args ...string) error {
			out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
			if err != nil {
				return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
			}
			return nil
		},
	}
}

// Execute runs the named action.
func (c *Controller) Execute(ctx context.Context, action Action) error {
	if !c.enabled {
		return ErrDisabled
	}
	argv, ok := commands[action]
	if !ok {
		return fmt.Errorf("system: unknown action %q", action)
	}
	if err := c.run(ctx, argv[0], argv[1:]...); err != nil {
		return fmt.Errorf("system: %s: %w", action, err)
	}
	return nil
}
