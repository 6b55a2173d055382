package platform

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNormalizeArch verifies mapping of kernel and Go spellings to the closed set.
func TestNormalizeArch(t *testing.T) {
	t.Parallel()

	cases := map[string]Arch{
		"x86_64":  ArchAMD64,
		"amd64":   ArchAMD64,
		"aarch64": ArchARM64,
		"arm64":   ArchARM64,
		"armv7l":  ArchARMv7,
		"armv7":   ArchARMv7,
		"arm":     ArchARMv7,
		"AMD64":   ArchAMD64,
	}
	for input, want := range cases {
		got, err := NormalizeArch(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}

	for _, input := range []string{"", "mips64", "riscv64", "i686"} {
		_, err := NormalizeArch(input)
		require.ErrorIs(t, err, ErrUnsupportedArch, input)
	}
}

// TestParseOSRelease checks quoted values, comments and malformed lines.
func TestParseOSRelease(t *testing.T) {
	t.Parallel()

	contents := `# comment
NAME="Debian GNU/Linux"
ID=debian
PRETTY_NAME="Debian GNU/Linux 12 (bookworm)"
garbage line
VERSION_ID="12"
`

	info, err := ParseOSRelease(strings.NewReader(contents))
	require.NoError(t, err)
	require.Equal(t, "debian", info.ID)
	require.Equal(t, "Debian GNU/Linux 12 (bookworm)", info.PrettyName)
	require.Empty(t, info.IDLike)
}

// TestDetectPackageManager covers direct IDs and ID_LIKE fallback.
func TestDetectPackageManager(t *testing.T) {
	t.Parallel()

	cases := []struct {
		info OSRelease
		want PackageManager
	}{
		{OSRelease{ID: "ubuntu"}, PackageManagerApt},
		{OSRelease{ID: "fedora"}, PackageManagerDnf},
		{OSRelease{ID: "rocky", IDLike: []string{"rhel", "fedora"}}, PackageManagerYum},
		{OSRelease{ID: "manjaro"}, PackageManagerPacman},
		{OSRelease{ID: "alpine"}, PackageManagerApk},
		{OSRelease{ID: "sles"}, PackageManagerZypper},
		{OSRelease{ID: "mystery", IDLike: []string{"debian"}}, PackageManagerApt},
		{OSRelease{ID: "mystery"}, PackageManagerUnknown},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, DetectPackageManager(tc.info), tc.info.ID)
	}
}

// fakeRunner records commands instead of executing them.
type fakeRunner struct {
	commands [][]string
	err      error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.commands = append(f.commands, append([]string{name}, args...))
	return nil, f.err
}

// TestInstallPackages checks command construction per package manager.
func TestInstallPackages(t *testing.T) {
	t.Parallel()

	runner := new(fakeRunner)

	err := InstallPackages(context.Background(), runner, PackageManagerApt, []string{"ca-certificates"})
	require.NoError(t, err)
	require.Equal(t, [][]string{{"apt-get", "install", "-y", "ca-certificates"}}, runner.commands)

	err = InstallPackages(context.Background(), runner, PackageManagerUnknown, []string{"ca-certificates"})
	require.ErrorIs(t, err, ErrUnknownPackageManager)

	// Nothing is executed for an empty package list.
	runner = new(fakeRunner)
	require.NoError(t, InstallPackages(context.Background(), runner, PackageManagerApt, nil))
	require.Empty(t, runner.commands)
}
