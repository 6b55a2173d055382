package systemd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/oshokin/sing-box-manager/internal/logger"
)

const (
	// DefaultUnitDir is where unit files are written.
	DefaultUnitDir = "/etc/systemd/system"

	// unitFilePermissions is the permission for written unit files.
	unitFilePermissions os.FileMode = 0o644
)

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Unit describes a long-running service managed by systemd.
type Unit struct {
	// Name is the unit name without the .service suffix.
	Name string
	// Description is the human-readable unit description.
	Description string
	// ExecStart is the full start command line.
	ExecStart string
	// RestartSec is the delay before a restart after failure.
	RestartSec time.Duration
	// LimitNPROC caps the number of processes.
	LimitNPROC int
	// LimitNOFILE caps the number of open files.
	LimitNOFILE int
}

// Render produces the unit file contents.
func (u *Unit) Render() string {
	return fmt.Sprintf(`[Unit]
Description=%s
After=network-online.target nss-lookup.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=%s
Restart=on-failure
RestartSec=%ds
LimitNPROC=%d
LimitNOFILE=%d

[Install]
WantedBy=multi-user.target
`, u.Description, u.ExecStart, int(u.RestartSec.Seconds()), u.LimitNPROC, u.LimitNOFILE)
}

// Manager writes unit files and drives systemctl through a Runner.
type Manager struct {
	// unitDir is the directory holding unit files.
	unitDir string
	// runner executes systemctl.
	runner Runner
}

// Option customizes a Manager.
type Option func(*Manager)

// WithUnitDir overrides the unit file directory.
func WithUnitDir(dir string) Option {
	return func(m *Manager) {
		m.unitDir = dir
	}
}

// NewManager creates a Manager using the provided runner.
func NewManager(runner Runner, opts ...Option) *Manager {
	m := &Manager{
		unitDir: DefaultUnitDir,
		runner:  runner,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// UnitPath returns the path of a unit file by name.
func (m *Manager) UnitPath(name string) string {
	return filepath.Join(m.unitDir, name+".service")
}

// UnitExists reports whether the unit file is present on disk.
func (m *Manager) UnitExists(name string) bool {
	_, err := os.Stat(m.UnitPath(name))
	return err == nil
}

// WriteUnit writes the unit file and reloads the daemon. An identical
// existing file short-circuits both steps.
func (m *Manager) WriteUnit(ctx context.Context, unit *Unit) error {
	rendered := []byte(unit.Render())
	path := m.UnitPath(unit.Name)

	if existing, err := os.ReadFile(filepath.Clean(path)); err == nil && bytes.Equal(existing, rendered) {
		logger.DebugKV(ctx, "Unit file unchanged", "path", path)
		return nil
	}

	if err := os.WriteFile(path, rendered, unitFilePermissions); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}

	logger.InfoKV(ctx, "Wrote unit file", "path", path)

	return m.daemonReload(ctx)
}

// RemoveUnit deletes the unit file if present and reloads the daemon.
func (m *Manager) RemoveUnit(ctx context.Context, name string) error {
	path := m.UnitPath(name)

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("remove unit file: %w", err)
	}

	logger.InfoKV(ctx, "Removed unit file", "path", path)

	return m.daemonReload(ctx)
}

// daemonReload asks systemd to pick up unit file changes.
func (m *Manager) daemonReload(ctx context.Context) error {
	if output, err := m.runner.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("daemon-reload: %w: %s", err, string(output))
	}

	return nil
}

// IsActive reports whether the service is currently running.
func (m *Manager) IsActive(ctx context.Context, name string) bool {
	_, err := m.runner.Run(ctx, "systemctl", "is-active", "--quiet", name+".service")
	return err == nil
}

// IsEnabled reports whether the service starts at boot.
func (m *Manager) IsEnabled(ctx context.Context, name string) bool {
	_, err := m.runner.Run(ctx, "systemctl", "is-enabled", "--quiet", name+".service")
	return err == nil
}

// Start starts the service.
func (m *Manager) Start(ctx context.Context, name string) error {
	if output, err := m.runner.Run(ctx, "systemctl", "start", name+".service"); err != nil {
		return fmt.Errorf("start %s: %w: %s", name, err, string(output))
	}

	return nil
}

// Stop stops the service when active; stopping an inactive service is a no-op.
func (m *Manager) Stop(ctx context.Context, name string) error {
	if !m.IsActive(ctx, name) {
		logger.DebugKV(ctx, "Service already stopped", "service", name)
		return nil
	}

	if output, err := m.runner.Run(ctx, "systemctl", "stop", name+".service"); err != nil {
		return fmt.Errorf("stop %s: %w: %s", name, err, string(output))
	}

	return nil
}

// Enable enables the service at boot.
func (m *Manager) Enable(ctx context.Context, name string) error {
	if output, err := m.runner.Run(ctx, "systemctl", "enable", name+".service"); err != nil {
		return fmt.Errorf("enable %s: %w: %s", name, err, string(output))
	}

	return nil
}

// Disable disables the service at boot when enabled; otherwise a no-op.
func (m *Manager) Disable(ctx context.Context, name string) error {
	if !m.IsEnabled(ctx, name) {
		logger.DebugKV(ctx, "Service already disabled", "service", name)
		return nil
	}

	if output, err := m.runner.Run(ctx, "systemctl", "disable", name+".service"); err != nil {
		return fmt.Errorf("disable %s: %w: %s", name, err, string(output))
	}

	return nil
}
