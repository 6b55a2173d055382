package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds settings shared by the manager components.
type Config struct {
	// GitHubRepo is the "owner/name" repository whose releases are tracked.
	GitHubRepo string `yaml:"github_repo"`
	// InstallDir is the directory holding the managed binary and its config.
	InstallDir string `yaml:"install_dir"`
	// BinaryName is the executable name installed and discovered on disk.
	BinaryName string `yaml:"binary_name"`
	// ServiceName is the systemd unit name (without the .service suffix).
	ServiceName string `yaml:"service_name"`
	// SearchDirs are roots scanned for additional binary copies.
	SearchDirs []string `yaml:"search_dirs"`
	// APITimeout is the duration for release metadata requests.
	APITimeout time.Duration `yaml:"api_timeout"`
	// DownloadTimeout is the duration for asset downloads.
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	// Method is the shadowsocks encryption method for generated configs.
	Method string `yaml:"method"`
}

const (
	// DefaultConfigFilename is the default path for manager settings.
	DefaultConfigFilename = "/etc/sing-box-manager.yaml"

	// DefaultGitHubRepo is the upstream repository tracked for releases.
	DefaultGitHubRepo = "SagerNet/sing-box"

	// DefaultInstallDir is the canonical installation directory.
	DefaultInstallDir = "/usr/local/sing-box"

	// DefaultBinaryName is the managed executable name.
	DefaultBinaryName = "sing-box"

	// DefaultServiceName is the systemd unit name.
	DefaultServiceName = "sing-box"

	// DefaultMethod is the shadowsocks encryption method for new configs.
	DefaultMethod = "2022-blake3-aes-128-gcm"

	// DefaultAPITimeout is the default duration for release metadata requests.
	DefaultAPITimeout = 15 * time.Second

	// DefaultDownloadTimeout is the default duration for asset downloads.
	DefaultDownloadTimeout = 5 * time.Minute

	// DefaultFilePermissions is the default permission for the settings file.
	DefaultFilePermissions = 0o600

	// repoPartsCount is the expected number of segments in "owner/name".
	repoPartsCount = 2
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInvalidRepo is returned when the repository is not "owner/name".
	errInvalidRepo = errors.New("github repository must be in owner/name format")
	// errInstallDirRequired is returned when the installation directory is missing.
	errInstallDirRequired = errors.New("installation directory must be provided")
)

// Default returns settings with all built-in defaults applied.
func Default() *Config {
	return &Config{
		GitHubRepo:      DefaultGitHubRepo,
		InstallDir:      DefaultInstallDir,
		BinaryName:      DefaultBinaryName,
		ServiceName:     DefaultServiceName,
		SearchDirs:      []string{"/usr/local/bin", "/usr/bin", "/opt"},
		APITimeout:      DefaultAPITimeout,
		DownloadTimeout: DefaultDownloadTimeout,
		Method:          DefaultMethod,
	}
}

// Load reads configuration from the provided path and validates essential fields.
// A missing file is not an error: built-in defaults are returned instead.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting,
// filling defaults for optional ones.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	parts := strings.Split(cfg.GitHubRepo, "/")
	if len(parts) != repoPartsCount || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("%w: %q", errInvalidRepo, cfg.GitHubRepo)
	}

	if cfg.InstallDir == "" {
		return errInstallDirRequired
	}

	if cfg.BinaryName == "" {
		cfg.BinaryName = DefaultBinaryName
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}

	if cfg.Method == "" {
		cfg.Method = DefaultMethod
	}

	if cfg.APITimeout <= 0 {
		cfg.APITimeout = DefaultAPITimeout
	}

	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultDownloadTimeout
	}

	return nil
}

// BinaryPath returns the canonical path of the managed executable.
func (c *Config) BinaryPath() string {
	return filepath.Join(c.InstallDir, c.BinaryName)
}

// ProxyConfigPath returns the path of the generated proxy configuration.
func (c *Config) ProxyConfigPath() string {
	return filepath.Join(c.InstallDir, "config.json")
}
