package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/sing-box-manager/internal/logger"
)

const (
	// BinaryFileMode is the permission applied to deployed executables.
	BinaryFileMode os.FileMode = 0o755

	// stagingDirMode is the permission for directories created during extraction.
	stagingDirMode os.FileMode = 0o755
)

var (
	// ErrBinaryMissing is returned when the expected executable is absent
	// from the extracted archive.
	ErrBinaryMissing = errors.New("executable not found in archive")

	// errBadHTTPStatus is returned for non-200 download responses.
	errBadHTTPStatus = errors.New("unexpected http status")
)

// Deployer fetches release archives and installs the contained executable.
type Deployer struct {
	// binaryName is the executable to look for inside archives and on disk.
	binaryName string
	// client performs archive downloads.
	client *http.Client
}

// NewDeployer creates a deployer for the named executable.
func NewDeployer(binaryName string, client *http.Client) *Deployer {
	if client == nil {
		client = http.DefaultClient
	}

	return &Deployer{
		binaryName: binaryName,
		client:     client,
	}
}

// Deploy downloads the archive once and applies the contained executable to
// every target path. The staging directory is removed on all exit paths.
func (d *Deployer) Deploy(ctx context.Context, downloadURL string, targets []string) error {
	stagingDir, err := os.MkdirTemp("", "sing-box-manager-")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}

	defer func() {
		_ = os.RemoveAll(stagingDir)
	}()

	archivePath := filepath.Join(stagingDir, "release.tar.gz")
	if err = d.download(ctx, downloadURL, archivePath); err != nil {
		return fmt.Errorf("download archive: %w", err)
	}

	extractDir := filepath.Join(stagingDir, "extracted")
	if err = os.Mkdir(extractDir, stagingDirMode); err != nil {
		return fmt.Errorf("create extraction directory: %w", err)
	}

	if err = extractTarGz(archivePath, extractDir); err != nil {
		return fmt.Errorf("extract archive: %w", err)
	}

	binaryPath, err := d.findBinary(extractDir)
	if err != nil {
		return err
	}

	contents, err := os.ReadFile(filepath.Clean(binaryPath))
	if err != nil {
		return fmt.Errorf("read extracted executable: %w", err)
	}

	for _, target := range targets {
		if err = applyBinary(contents, target); err != nil {
			return fmt.Errorf("apply to %s: %w", target, err)
		}

		logger.InfoKV(ctx, "Deployed executable", "path", target)
	}

	return nil
}

// download fetches the archive to the given path, single attempt.
func (d *Deployer) download(ctx context.Context, downloadURL, destination string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, http.NoBody)
	if err != nil {
		return err
	}

	response, err := d.client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s, %s: %w", downloadURL, response.Status, errBadHTTPStatus)
	}

	out, err := os.Create(filepath.Clean(destination))
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, response.Body); err != nil {
		_ = out.Close()

		return err
	}

	return out.Close()
}

// findBinary locates a regular file with the managed executable name
// anywhere in the extracted tree.
func (d *Deployer) findBinary(root string) (string, error) {
	var found string

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !entry.Type().IsRegular() || entry.Name() != d.binaryName {
			return nil
		}

		found = path

		return fs.SkipAll
	})
	if err != nil {
		return "", fmt.Errorf("search extracted tree: %w", err)
	}

	if found == "" {
		return "", fmt.Errorf("%w: %s", ErrBinaryMissing, d.binaryName)
	}

	return found, nil
}

// applyBinary writes the executable to target atomically, rolling back on failure.
func applyBinary(contents []byte, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), stagingDirMode); err != nil {
		return err
	}

	options := goupdate.Options{
		TargetPath: target,
		TargetMode: BinaryFileMode,
	}

	if err := goupdate.Apply(bytes.NewReader(contents), options); err != nil {
		return err
	}

	// go-update leaves the previous executable as <target>.old.
	oldPath := target + ".old"
	if _, err := os.Stat(oldPath); err == nil {
		_ = os.Remove(oldPath)
	}

	return nil
}

// DiscoverCopies returns additional copies of the managed executable under
// the search roots: regular, executable files with the exact name, the
// canonical path excluded. Unreadable roots are skipped.
func (d *Deployer) DiscoverCopies(roots []string, canonicalPath string) []string {
	var copies []string

	for _, root := range roots {
		_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return fs.SkipDir
			}

			if !entry.Type().IsRegular() || entry.Name() != d.binaryName {
				return nil
			}

			if path == canonicalPath {
				return nil
			}

			info, infoErr := entry.Info()
			if infoErr != nil || info.Mode().Perm()&0o111 == 0 {
				return nil
			}

			copies = append(copies, path)

			return nil
		})
	}

	return copies
}
