package platform

import (
	"context"
	"errors"
	"fmt"
)

// PackageManager is the closed set of native package managers.
type PackageManager int

const (
	// PackageManagerUnknown means the distribution could not be classified.
	PackageManagerUnknown PackageManager = iota
	// PackageManagerApt covers Debian-family distributions.
	PackageManagerApt
	// PackageManagerDnf covers modern Fedora-family distributions.
	PackageManagerDnf
	// PackageManagerYum covers older RHEL-family distributions.
	PackageManagerYum
	// PackageManagerPacman covers Arch-family distributions.
	PackageManagerPacman
	// PackageManagerZypper covers SUSE-family distributions.
	PackageManagerZypper
	// PackageManagerApk covers Alpine.
	PackageManagerApk
)

// ErrUnknownPackageManager is returned when no native package manager
// could be derived from the os-release identity.
var ErrUnknownPackageManager = errors.New("unknown package manager")

// String implements fmt.Stringer.
func (p PackageManager) String() string {
	switch p {
	case PackageManagerApt:
		return "apt"
	case PackageManagerDnf:
		return "dnf"
	case PackageManagerYum:
		return "yum"
	case PackageManagerPacman:
		return "pacman"
	case PackageManagerZypper:
		return "zypper"
	case PackageManagerApk:
		return "apk"
	case PackageManagerUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// DetectPackageManager classifies the distribution by ID and ID_LIKE.
func DetectPackageManager(info OSRelease) PackageManager {
	if pm, ok := packageManagerByID(info.ID); ok {
		return pm
	}

	for _, like := range info.IDLike {
		if pm, ok := packageManagerByID(like); ok {
			return pm
		}
	}

	return PackageManagerUnknown
}

// packageManagerByID maps a single distribution identifier to a package manager.
func packageManagerByID(id string) (PackageManager, bool) {
	switch id {
	case "debian", "ubuntu", "linuxmint", "raspbian":
		return PackageManagerApt, true
	case "fedora":
		return PackageManagerDnf, true
	case "rhel", "centos", "rocky", "almalinux", "amzn":
		return PackageManagerYum, true
	case "arch", "manjaro":
		return PackageManagerPacman, true
	case "opensuse", "opensuse-leap", "opensuse-tumbleweed", "sles", "suse":
		return PackageManagerZypper, true
	case "alpine":
		return PackageManagerApk, true
	default:
		return PackageManagerUnknown, false
	}
}

// CommandRunner executes an external command and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// InstallPackages installs the given packages with the native package
// manager. Callers treat a failure as a warning, not a fatal error.
func InstallPackages(ctx context.Context, runner CommandRunner, pm PackageManager, packages []string) error {
	if len(packages) == 0 {
		return nil
	}

	var (
		name string
		args []string
	)

	switch pm {
	case PackageManagerApt:
		name, args = "apt-get", append([]string{"install", "-y"}, packages...)
	case PackageManagerDnf:
		name, args = "dnf", append([]string{"install", "-y"}, packages...)
	case PackageManagerYum:
		name, args = "yum", append([]string{"install", "-y"}, packages...)
	case PackageManagerPacman:
		name, args = "pacman", append([]string{"-S", "--noconfirm", "--needed"}, packages...)
	case PackageManagerZypper:
		name, args = "zypper", append([]string{"--non-interactive", "install"}, packages...)
	case PackageManagerApk:
		name, args = "apk", append([]string{"add"}, packages...)
	case PackageManagerUnknown:
		return ErrUnknownPackageManager
	default:
		return ErrUnknownPackageManager
	}

	if output, err := runner.Run(ctx, name, args...); err != nil {
		return fmt.Errorf("%s install: %w: %s", pm, err, string(output))
	}

	return nil
}
