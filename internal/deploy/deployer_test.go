package deploy

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildArchive produces a gzipped tarball with the given file entries.
func buildArchive(t *testing.T, files map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	gzWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzWriter)

	for name, contents := range files {
		require.NoError(t, tarWriter.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o755,
			Size:     int64(len(contents)),
		}))

		_, err := tarWriter.Write(contents)
		require.NoError(t, err)
	}

	require.NoError(t, tarWriter.Close())
	require.NoError(t, gzWriter.Close())

	return buf.Bytes()
}

// serveArchive returns a test server answering every request with the archive bytes.
func serveArchive(t *testing.T, archive []byte) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	}))
	t.Cleanup(server.Close)

	return server
}

// TestDeployPlacesBinaryAtAllTargets covers extraction, placement and permissions.
func TestDeployPlacesBinaryAtAllTargets(t *testing.T) {
	t.Parallel()

	archive := buildArchive(t, map[string][]byte{
		"sing-box-1.9.3-linux-amd64/sing-box": []byte("new-binary"),
		"sing-box-1.9.3-linux-amd64/LICENSE":  []byte("license text"),
	})
	server := serveArchive(t, archive)

	dir := t.TempDir()
	canonical := filepath.Join(dir, "install", "sing-box")
	copyPath := filepath.Join(dir, "bin", "sing-box")

	// Pre-existing copy with stale contents.
	require.NoError(t, os.MkdirAll(filepath.Dir(copyPath), 0o755))
	require.NoError(t, os.WriteFile(copyPath, []byte("old-binary"), 0o755))

	deployer := NewDeployer("sing-box", server.Client())
	err := deployer.Deploy(context.Background(), server.URL, []string{canonical, copyPath})
	require.NoError(t, err)

	for _, path := range []string{canonical, copyPath} {
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)
		require.Equal(t, []byte("new-binary"), contents)

		info, statErr := os.Stat(path)
		require.NoError(t, statErr)
		require.Equal(t, BinaryFileMode, info.Mode().Perm())
	}

	// No rollback leftovers.
	_, err = os.Stat(canonical + ".old")
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestDeployMissingBinary ensures an archive without the executable fails.
func TestDeployMissingBinary(t *testing.T) {
	t.Parallel()

	archive := buildArchive(t, map[string][]byte{
		"release/README.md": []byte("no binary here"),
	})
	server := serveArchive(t, archive)

	deployer := NewDeployer("sing-box", server.Client())
	err := deployer.Deploy(context.Background(), server.URL, []string{filepath.Join(t.TempDir(), "sing-box")})
	require.ErrorIs(t, err, ErrBinaryMissing)
}

// TestDeployBadStatus ensures non-200 downloads are fatal.
func TestDeployBadStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	deployer := NewDeployer("sing-box", server.Client())
	err := deployer.Deploy(context.Background(), server.URL, []string{filepath.Join(t.TempDir(), "sing-box")})
	require.Error(t, err)
}

// TestExtractTarGzSkipsTraversal verifies path traversal entries are ignored.
func TestExtractTarGzSkipsTraversal(t *testing.T) {
	t.Parallel()

	archive := buildArchive(t, map[string][]byte{
		"../escape":      []byte("outside"),
		"inside/payload": []byte("inside"),
	})

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "a.tar.gz")
	require.NoError(t, os.WriteFile(archivePath, archive, 0o644))

	extractDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(extractDir, 0o755))
	require.NoError(t, extractTarGz(archivePath, extractDir))

	_, err := os.Stat(filepath.Join(extractDir, "inside", "payload"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "escape"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestDiscoverCopies checks discovery filters: name, regular, executable, canonical excluded.
func TestDiscoverCopies(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	canonical := filepath.Join(dir, "install", "sing-box")
	rootA := filepath.Join(dir, "usr-local-bin")
	rootB := filepath.Join(dir, "opt")

	require.NoError(t, os.MkdirAll(filepath.Dir(canonical), 0o755))
	require.NoError(t, os.MkdirAll(rootA, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(rootB, "proxy"), 0o755))

	require.NoError(t, os.WriteFile(canonical, []byte("bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rootA, "sing-box"), []byte("bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rootB, "proxy", "sing-box"), []byte("bin"), 0o755))
	// Same name but not executable.
	require.NoError(t, os.WriteFile(filepath.Join(rootA, "sing-box.bak"), []byte("bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rootB, "sing-box"), []byte("data"), 0o644))

	deployer := NewDeployer("sing-box", nil)

	copies := deployer.DiscoverCopies([]string{rootA, rootB, filepath.Dir(canonical)}, canonical)
	require.ElementsMatch(t, []string{
		filepath.Join(rootA, "sing-box"),
		filepath.Join(rootB, "proxy", "sing-box"),
	}, copies)

	// Missing roots are skipped silently.
	copies = deployer.DiscoverCopies([]string{filepath.Join(dir, "missing")}, canonical)
	require.Empty(t, copies)
}
