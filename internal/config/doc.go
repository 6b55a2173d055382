// Package config defines the manager's own settings and provides helpers
// to load, validate and save them in YAML format.
//
// Settings cover the GitHub repository to track, installation paths, the
// systemd service name, search roots for additional binary copies and
// network timeouts. A missing settings file means built-in defaults.
package config
