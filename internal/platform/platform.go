package platform

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Arch is the closed set of CPU architectures with published release assets.
type Arch int

const (
	// ArchAMD64 covers x86_64 hosts.
	ArchAMD64 Arch = iota
	// ArchARM64 covers aarch64 hosts.
	ArchARM64
	// ArchARMv7 covers 32-bit ARM hosts.
	ArchARMv7
)

// ErrUnsupportedArch is returned for architectures without release assets.
var ErrUnsupportedArch = errors.New("unsupported architecture")

// Token returns the architecture token used in release asset names.
func (a Arch) Token() string {
	switch a {
	case ArchAMD64:
		return "amd64"
	case ArchARM64:
		return "arm64"
	case ArchARMv7:
		return "armv7"
	default:
		return "unknown"
	}
}

// String implements fmt.Stringer.
func (a Arch) String() string {
	return a.Token()
}

// NormalizeArch maps kernel and Go architecture spellings to the closed Arch set.
func NormalizeArch(s string) (Arch, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x86_64", "amd64":
		return ArchAMD64, nil
	case "aarch64", "arm64":
		return ArchARM64, nil
	case "armv7l", "armv7", "arm":
		return ArchARMv7, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedArch, s)
	}
}

// Info holds host facts resolved once at startup.
type Info struct {
	// Arch is the normalized CPU architecture.
	Arch Arch
	// OS is the parsed /etc/os-release identity.
	OS OSRelease
	// PackageManager is the native package manager derived from OS.
	PackageManager PackageManager
}

// Detect resolves host facts from the running process and the given
// os-release path. An unreadable os-release file is not fatal: the package
// manager is reported as unknown and dependency installation degrades to a
// warning.
func Detect(osReleasePath string) (*Info, error) {
	arch, err := NormalizeArch(runtime.GOARCH)
	if err != nil {
		return nil, err
	}

	osInfo, err := LoadOSRelease(osReleasePath)
	if err != nil {
		osInfo = OSRelease{}
	}

	return &Info{
		Arch:           arch,
		OS:             osInfo,
		PackageManager: DetectPackageManager(osInfo),
	}, nil
}
