package platform

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultOSReleasePath is the standard location of the os-release file.
const DefaultOSReleasePath = "/etc/os-release"

// OSRelease is the subset of /etc/os-release fields the manager cares about.
type OSRelease struct {
	// ID is the lowercase distribution identifier (e.g. "debian").
	ID string
	// IDLike lists related distributions (e.g. "rhel fedora").
	IDLike []string
	// PrettyName is the human-readable distribution name.
	PrettyName string
}

// LoadOSRelease reads and parses the os-release file at the given path.
func LoadOSRelease(path string) (OSRelease, error) {
	if path == "" {
		path = DefaultOSReleasePath
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return OSRelease{}, fmt.Errorf("open os-release: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	return ParseOSRelease(f)
}

// ParseOSRelease parses os-release key=value lines into an OSRelease.
// Values may be quoted; comments and malformed lines are skipped.
func ParseOSRelease(r io.Reader) (OSRelease, error) {
	var info OSRelease

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		value = strings.Trim(value, `"'`)

		switch key {
		case "ID":
			info.ID = strings.ToLower(value)
		case "ID_LIKE":
			info.IDLike = strings.Fields(strings.ToLower(value))
		case "PRETTY_NAME":
			info.PrettyName = value
		}
	}

	if err := scanner.Err(); err != nil {
		return OSRelease{}, fmt.Errorf("scan os-release: %w", err)
	}

	return info, nil
}
