package proxyconf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oshokin/sing-box-manager/internal/logger"
)

const (
	// configFilePermissions matches what the proxy daemon expects to read.
	configFilePermissions os.FileMode = 0o644

	// configDirPermissions is the permission for the containing directory.
	configDirPermissions os.FileMode = 0o755
)

// ErrNotFound is returned when the configuration file does not exist yet.
var ErrNotFound = errors.New("proxy configuration not found")

// Store persists the proxy configuration as a JSON file on disk.
type Store struct {
	// path is the filesystem location of the configuration file.
	path string
	// mu protects concurrent access to the file.
	mu sync.Mutex
}

// NewStore creates a store that reads/writes JSON at the provided path.
func NewStore(path string) *Store {
	return &Store{
		path: filepath.Clean(path),
	}
}

// Path returns the configuration file location.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the configuration file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the configuration from disk.
func (s *Store) Load(_ context.Context) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read proxy configuration: %w", err)
	}

	var cfg Config
	if err = json.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("decode proxy configuration: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to disk.
func (s *Store) Save(_ context.Context, cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode proxy configuration: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(s.path), configDirPermissions); err != nil {
		return fmt.Errorf("create configuration directory: %w", err)
	}

	if err = os.WriteFile(s.path, data, configFilePermissions); err != nil {
		return fmt.Errorf("write proxy configuration: %w", err)
	}

	return nil
}

// EnsureExists generates and persists a configuration only when none exists.
// It returns the stored configuration and whether it was created now.
func (s *Store) EnsureExists(ctx context.Context, method string) (*Config, bool, error) {
	if existing, err := s.Load(ctx); err == nil {
		logger.DebugKV(ctx, "Keeping existing proxy configuration", "path", s.path)
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	cfg, err := Generate(method)
	if err != nil {
		return nil, false, err
	}

	if err = s.Save(ctx, cfg); err != nil {
		return nil, false, err
	}

	logger.InfoKV(ctx, "Generated proxy configuration",
		"path", s.path, "port", cfg.Inbounds[0].ListenPort)

	return cfg, true, nil
}
