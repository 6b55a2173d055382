package manager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/oshokin/sing-box-manager/internal/config"
	"github.com/oshokin/sing-box-manager/internal/deploy"
	"github.com/oshokin/sing-box-manager/internal/logger"
	"github.com/oshokin/sing-box-manager/internal/platform"
	"github.com/oshokin/sing-box-manager/internal/proxyconf"
	"github.com/oshokin/sing-box-manager/internal/release"
	"github.com/oshokin/sing-box-manager/internal/systemd"
)

const (
	// serviceRestartDelay is the unit's restart-on-failure delay.
	serviceRestartDelay = 10 * time.Second

	// serviceLimitNPROC caps the service's process count.
	serviceLimitNPROC = 512

	// serviceLimitNOFILE caps the service's open file descriptors.
	serviceLimitNOFILE = 1048576
)

// dependencyPackages are installed best-effort before a fresh install.
var dependencyPackages = []string{"ca-certificates"}

// ErrPrivilege is returned when a mutating action runs without root rights.
var ErrPrivilege = errors.New("root privileges required")

// Options are inputs accepted by the manager entry point.
type Options struct {
	// ConfigPath is the optional path to the manager settings YAML file.
	ConfigPath string
	// Action is the lifecycle operation to perform.
	Action Action
}

// runner holds the collaborators for a single manager execution.
// It is intentionally unexported: call Run(ctx, Options) from callers.
type runner struct {
	cfg      *config.Config
	plat     *platform.Info
	resolver *release.Resolver
	deployer *deploy.Deployer
	units    *systemd.Manager
	store    *proxyconf.Store
	cmd      systemd.Runner

	// geteuid is swapped out in tests.
	geteuid func() int
}

// Run executes the requested lifecycle action and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "sing-box-manager")

	r, err := newRunner(opts)
	if err != nil {
		logger.ErrorKV(ctx, "Manager setup failed", "error", err)
		return err
	}

	if err = r.dispatch(ctx, opts.Action); err != nil {
		logger.ErrorKV(ctx, "Manager run failed", "action", opts.Action, "error", err)
		return err
	}

	return nil
}

// newRunner resolves settings and host facts once and wires the collaborators.
func newRunner(opts *Options) (*runner, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	plat, err := platform.Detect(platform.DefaultOSReleasePath)
	if err != nil {
		return nil, err
	}

	execRunner := systemd.ExecRunner{}

	return &runner{
		cfg:      cfg,
		plat:     plat,
		resolver: release.NewResolver(cfg.GitHubRepo),
		deployer: deploy.NewDeployer(cfg.BinaryName, &http.Client{Timeout: cfg.DownloadTimeout}),
		units:    systemd.NewManager(execRunner),
		store:    proxyconf.NewStore(cfg.ProxyConfigPath()),
		cmd:      execRunner,
		geteuid:  os.Geteuid,
	}, nil
}

// dispatch routes the action to its handler.
func (r *runner) dispatch(ctx context.Context, action Action) error {
	switch action {
	case ActionInstall:
		return r.install(ctx)
	case ActionUpdate:
		return r.update(ctx)
	case ActionUninstall:
		return r.uninstall(ctx)
	case ActionAuto:
		return r.auto(ctx)
	case ActionStatus:
		return r.status(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// requireRoot guards mutating actions.
func (r *runner) requireRoot() error {
	if r.geteuid() != 0 {
		return ErrPrivilege
	}

	return nil
}

// state inspects the filesystem and the service supervisor.
func (r *runner) state(ctx context.Context) State {
	if r.units.IsActive(ctx, r.cfg.ServiceName) {
		return StateRunning
	}

	if r.binaryPresent() {
		return StateInstalled
	}

	return StateAbsent
}

// binaryPresent reports whether the binary exists at the canonical path
// or is discoverable under the search roots.
func (r *runner) binaryPresent() bool {
	if _, err := os.Stat(r.cfg.BinaryPath()); err == nil {
		return true
	}

	return len(r.deployer.DiscoverCopies(r.cfg.SearchDirs, r.cfg.BinaryPath())) > 0
}

// auto dispatches based on current state: absent installs, anything else updates.
func (r *runner) auto(ctx context.Context) error {
	if r.binaryPresent() {
		logger.Info(ctx, "Existing installation detected, updating")
		return r.update(ctx)
	}

	logger.Info(ctx, "No installation detected, installing")

	return r.install(ctx)
}

// install provisions the binary, configuration and service from scratch.
// Re-running it against an existing installation is a warning, not an error.
func (r *runner) install(ctx context.Context) error {
	if err := r.requireRoot(); err != nil {
		return err
	}

	if _, err := os.Stat(r.cfg.BinaryPath()); err == nil {
		logger.WarnKV(ctx, "Already installed, nothing to do", "path", r.cfg.BinaryPath())
		return nil
	}

	r.installDependencies(ctx)

	logger.InfoKV(ctx, "Resolving latest release", "repo", r.cfg.GitHubRepo)

	resolved, err := r.resolveLatest(ctx)
	if err != nil {
		return err
	}

	if err = r.deployer.Deploy(ctx, resolved.DownloadURL, []string{r.cfg.BinaryPath()}); err != nil {
		return fmt.Errorf("deploy binary: %w", err)
	}

	// Credentials are generated here once; updates never touch them.
	if _, _, err = r.store.EnsureExists(ctx, r.cfg.Method); err != nil {
		return fmt.Errorf("ensure proxy configuration: %w", err)
	}

	if err = r.units.WriteUnit(ctx, r.serviceUnit()); err != nil {
		return fmt.Errorf("write service unit: %w", err)
	}

	if err = r.units.Enable(ctx, r.cfg.ServiceName); err != nil {
		return fmt.Errorf("enable service: %w", err)
	}

	if err = r.units.Start(ctx, r.cfg.ServiceName); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	logger.InfoKV(ctx, "Installation complete",
		"version", resolved.Version, "path", r.cfg.BinaryPath())

	return nil
}

// update replaces the canonical binary and every discovered copy with the
// latest release. With no installation present it falls back to install.
func (r *runner) update(ctx context.Context) error {
	if err := r.requireRoot(); err != nil {
		return err
	}

	if !r.binaryPresent() {
		logger.Warn(ctx, "Nothing installed yet, performing a fresh install")
		return r.install(ctx)
	}

	logger.InfoKV(ctx, "Resolving latest release", "repo", r.cfg.GitHubRepo)

	// Resolve before touching anything so a failed resolution leaves
	// the existing installation untouched.
	resolved, err := r.resolveLatest(ctx)
	if err != nil {
		return err
	}

	if err = r.units.Stop(ctx, r.cfg.ServiceName); err != nil {
		return fmt.Errorf("stop service: %w", err)
	}

	r.terminateStrayProcesses(ctx)

	targets := append([]string{r.cfg.BinaryPath()},
		r.deployer.DiscoverCopies(r.cfg.SearchDirs, r.cfg.BinaryPath())...)

	logger.InfoKV(ctx, "Updating binaries",
		"version", resolved.Version, "targets", len(targets))

	if err = r.deployer.Deploy(ctx, resolved.DownloadURL, targets); err != nil {
		return fmt.Errorf("deploy binaries: %w", err)
	}

	if r.units.UnitExists(r.cfg.ServiceName) {
		if err = r.units.Start(ctx, r.cfg.ServiceName); err != nil {
			return fmt.Errorf("restart service: %w", err)
		}
	}

	logger.InfoKV(ctx, "Update complete", "version", resolved.Version)

	return nil
}

// uninstall removes the service, the installation directory and every
// discovered binary copy. Safe to run when nothing is installed.
func (r *runner) uninstall(ctx context.Context) error {
	if err := r.requireRoot(); err != nil {
		return err
	}

	if err := r.units.Stop(ctx, r.cfg.ServiceName); err != nil {
		return fmt.Errorf("stop service: %w", err)
	}

	if err := r.units.Disable(ctx, r.cfg.ServiceName); err != nil {
		return fmt.Errorf("disable service: %w", err)
	}

	if err := r.units.RemoveUnit(ctx, r.cfg.ServiceName); err != nil {
		return fmt.Errorf("remove service unit: %w", err)
	}

	r.terminateStrayProcesses(ctx)

	if err := os.RemoveAll(r.cfg.InstallDir); err != nil {
		return fmt.Errorf("remove installation directory: %w", err)
	}

	for _, copyPath := range r.deployer.DiscoverCopies(r.cfg.SearchDirs, r.cfg.BinaryPath()) {
		if err := os.Remove(copyPath); err != nil {
			logger.WarnKV(ctx, "Could not remove binary copy", "path", copyPath, "error", err)
			continue
		}

		logger.InfoKV(ctx, "Removed binary copy", "path", copyPath)
	}

	logger.Info(ctx, "Uninstall complete")

	return nil
}

// status reports the current state without mutating anything.
func (r *runner) status(ctx context.Context) error {
	state := r.state(ctx)

	logger.InfoKV(ctx, "Current state",
		"state", state.String(),
		"binary", r.cfg.BinaryPath(),
		"binary_present", r.binaryPresent(),
		"config_present", r.store.Exists(),
		"unit_present", r.units.UnitExists(r.cfg.ServiceName),
		"service_active", r.units.IsActive(ctx, r.cfg.ServiceName),
		"service_enabled", r.units.IsEnabled(ctx, r.cfg.ServiceName))

	return nil
}

// resolveLatest queries the release resolver under the API timeout.
func (r *runner) resolveLatest(ctx context.Context) (*release.Release, error) {
	apiCtx, cancel := context.WithTimeout(ctx, r.cfg.APITimeout)
	defer cancel()

	return r.resolver.Latest(apiCtx, r.plat.Arch)
}

// installDependencies installs auxiliary packages best-effort;
// failures are logged as warnings and execution continues.
func (r *runner) installDependencies(ctx context.Context) {
	err := platform.InstallPackages(ctx, r.cmd, r.plat.PackageManager, dependencyPackages)
	if err != nil {
		logger.WarnKV(ctx, "Dependency installation failed, continuing",
			"package_manager", r.plat.PackageManager.String(), "error", err)

		return
	}

	logger.DebugKV(ctx, "Dependencies installed", "packages", dependencyPackages)
}

// serviceUnit builds the unit descriptor for the managed service.
func (r *runner) serviceUnit() *systemd.Unit {
	return &systemd.Unit{
		Name:        r.cfg.ServiceName,
		Description: r.cfg.BinaryName + " proxy service",
		ExecStart:   fmt.Sprintf("%s run -c %s", r.cfg.BinaryPath(), r.store.Path()),
		RestartSec:  serviceRestartDelay,
		LimitNPROC:  serviceLimitNPROC,
		LimitNOFILE: serviceLimitNOFILE,
	}
}
