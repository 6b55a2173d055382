package deploy

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// extractTarGz unpacks a gzipped tarball into the destination directory.
// Entries escaping the destination via absolute or ".." paths are skipped;
// symlinks are ignored.
func extractTarGz(source, destination string) error {
	f, err := os.Open(filepath.Clean(source))
	if err != nil {
		return err
	}

	defer func() {
		_ = f.Close()
	}()

	gzReader, err := gzip.NewReader(f)
	if err != nil {
		return err
	}

	defer func() {
		_ = gzReader.Close()
	}()

	tarReader := tar.NewReader(gzReader)

	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}

		relative := filepath.Clean(header.Name)
		if strings.HasPrefix(relative, "..") || filepath.IsAbs(relative) {
			continue
		}

		target := filepath.Join(destination, relative)

		switch header.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(target, stagingDirMode); err != nil {
				return err
			}
		case tar.TypeReg:
			if err = writeFileFromTar(tarReader, target, header.Mode); err != nil {
				return err
			}
		default:
			continue
		}
	}
}

// writeFileFromTar writes one regular tar entry to disk.
func writeFileFromTar(tarReader *tar.Reader, target string, mode int64) error {
	if err := os.MkdirAll(filepath.Dir(target), stagingDirMode); err != nil {
		return err
	}

	out, err := os.OpenFile(filepath.Clean(target), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(mode))
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, tarReader); err != nil { //nolint:gosec // Archive comes from the configured release source.
		_ = out.Close()

		return err
	}

	return out.Close()
}
