package compression

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// BundledBinary is the executable path inside an extracted bundle.
func BundledBinary(dir string) string {
	name := "gs"
	if runtime.GOOS == "windows" {
		name = "gs.exe"
	}
	return filepath.Join(dir, "ghostscript", "bin", name)
}

// PrepareBundle extracts a Ghostscript tar.gz archive into dir unless a
// usable copy is already there, and returns the executable path.
func PrepareBundle(archivePath, dir string, logger zerolog.Logger) (string, error) {
	gsPath := BundledBinary(dir)
	if validBundle(dir) {
		logger.Debug().Str("path", gsPath).Msg("using cached ghostscript bundle")
		return gsPath, nil
	}

	os.RemoveAll(dir)
	logger.Info().Str("archive", archivePath).Str("dir", dir).Msg("extracting ghostscript bundle")

	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()

	if err := extractTarGz(f, dir, logger); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	if !validBundle(dir) {
		os.RemoveAll(dir)
		return "", fmt.Errorf("bundle %s has no ghostscript/bin/gs", archivePath)
	}
	return gsPath, nil
}

func validBundle(dir string) bool {
	stat, err := os.Stat(BundledBinary(dir))
	return err == nil && stat.Mode()&0o111 != 0
}

func extractTarGz(r io.Reader, dir string, logger zerolog.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	base := filepath.Clean(dir) + string(os.PathSeparator)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed reading tar entry: %w", err)
		}

		destPath := filepath.Join(dir, filepath.Clean(header.Name))
		if !strings.HasPrefix(destPath, base) {
			return fmt.Errorf("illegal file path in archive: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", destPath, err)
			}
		case tar.TypeReg:
			if err := writeEntry(tarReader, destPath, os.FileMode(header.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(header.Linkname, destPath); err != nil {
				logger.Warn().Err(err).Str("path", destPath).Msg("skipping symlink")
			}
		}
	}
}

func writeEntry(r io.Reader, destPath string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create parent dir for %s: %w", destPath, err)
	}
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", destPath, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to write file %s: %w", destPath, err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	// Executables and shared libraries
	name := filepath.Base(destPath)
	if name == "gs" || strings.HasSuffix(name, ".exe") ||
		strings.HasSuffix(name, ".dylib") || strings.HasSuffix(name, ".so") {
		return os.Chmod(destPath, 0o755)
	}
	return nil
}
