package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/sing-box-manager/internal/config"
	"github.com/oshokin/sing-box-manager/internal/logger"
	"github.com/oshokin/sing-box-manager/internal/service/manager"
	"github.com/oshokin/sing-box-manager/internal/version"
)

var (
	// configPath to the manager settings YAML file.
	configPath string
	// logLevel selects the minimum logging level.
	logLevel string

	// rootCmd represents the base command managing the proxy lifecycle.
	rootCmd = &cobra.Command{
		Use:   "sing-box-manager [install|update|uninstall|auto|status]",
		Short: "Install, update and remove the sing-box proxy service.",
		Long: `Manages the full lifecycle of the sing-box proxy daemon on a Linux host.

install resolves the latest upstream release, deploys the binary, generates
a proxy configuration with fresh credentials and registers a systemd unit.
update replaces the canonical binary and every discovered copy without
touching the configuration. uninstall removes the service, binaries and
configuration. auto (the default) installs when nothing is present and
updates otherwise. status reports the current state without changes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			var actionArg string
			if len(args) > 0 {
				actionArg = args[0]
			}

			action, err := manager.ParseAction(actionArg)
			if err != nil {
				// Usage error: let cobra print help alongside the message.
				return err
			}

			cmd.SilenceUsage = true

			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &manager.Options{
				ConfigPath: configPath,
				Action:     action,
			}

			return manager.Run(ctx, options)
		},
	}
)

// Execute runs the sing-box-manager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to manager settings file")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "logging level (debug|info|warn|error)")
}
