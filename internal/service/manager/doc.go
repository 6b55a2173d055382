// Package manager implements the proxy lifecycle state machine.
//
// It composes the release resolver, the binary deployer and the systemd
// supervisor into the install, update, uninstall, auto and status actions.
// auto inspects the current state and dispatches: absent installs,
// anything else updates. All actions are idempotent and safe to re-run.
package manager
