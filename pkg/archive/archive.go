// SPDX-License-Identifier: EPL-2.0

// Package archive reads and writes the tar archives that module, base, and
// overlay packages are distributed as, and serializes composed working trees
// back into one. Compression is optional on both sides: readers sniff the
// gzip magic bytes, writers take an explicit flag.
package archive

import (
	"archive/tar"
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// vcsMetadataDirs are version-control subdirectories stripped from every
// extracted archive. Module packages built from source checkouts routinely
// leak these.
var vcsMetadataDirs = []string{".git", ".gitlab"}

// Ownership is a fixed owner forced onto every entry of a written archive.
// When applied, "other" permission bits are stripped from entry modes.
type Ownership struct {
	UID   int
	GID   int
	Uname string
	Gname string
}

// ErrEntryNotFound is returned by ReadFile when the archive has no entry
// with the requested name.
var ErrEntryNotFound = fmt.Errorf("archive entry not found")

// openReader opens an archive for reading, transparently decompressing
// gzip-compressed archives. The caller must close the returned closer.
func openReader(path string) (*tar.Reader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(2)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to read archive %s: %w", path, err)
	}

	if magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to open gzip stream in %s: %w", path, err)
		}
		return tar.NewReader(gz), &readCloser{file: f, gzip: gz}, nil
	}

	return tar.NewReader(br), f, nil
}

// readCloser closes both the gzip stream and the underlying file.
type readCloser struct {
	file *os.File
	gzip *gzip.Reader
}

func (rc *readCloser) Close() error {
	gzErr := rc.gzip.Close()
	if err := rc.file.Close(); err != nil {
		return err
	}
	return gzErr
}

// ReadFile extracts a single file from the archive by name and returns its
// contents. Leading "./" segments in entry names are ignored so descriptors
// are found regardless of how the archive was created.
func ReadFile(archivePath, name string) ([]byte, error) {
	tr, closer, err := openReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read archive %s: %w", archivePath, err)
		}
		if strings.TrimPrefix(filepath.ToSlash(hdr.Name), "./") == name {
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s from %s: %w", name, archivePath, err)
			}
			return data, nil
		}
	}

	return nil, fmt.Errorf("%w: %s in %s", ErrEntryNotFound, name, archivePath)
}

// Extract unpacks the archive into destDir, creating it if necessary.
// Entry paths are validated against directory traversal, and version-control
// metadata directories are removed after extraction.
func Extract(archivePath, destDir string) error {
	tr, closer, err := openReader(archivePath)
	if err != nil {
		return err
	}
	defer closer.Close()

	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("failed to resolve destination directory: %w", err)
	}
	if err := os.MkdirAll(absDest, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read archive %s: %w", archivePath, err)
		}

		destPath := filepath.Join(absDest, filepath.FromSlash(hdr.Name))

		// Entry paths must stay inside the destination.
		relPath, err := filepath.Rel(absDest, destPath)
		if err != nil || strings.HasPrefix(relPath, "..") {
			return fmt.Errorf("invalid path in archive %s: %s", archivePath, hdr.Name)
		}
		if relPath == "." {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(destPath, hdr.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
				return fmt.Errorf("failed to create parent directory: %w", err)
			}
			if err := os.Symlink(hdr.Linkname, destPath); err != nil {
				return fmt.Errorf("failed to create symlink %s: %w", hdr.Name, err)
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
				return fmt.Errorf("failed to create parent directory: %w", err)
			}
			if err := extractRegular(tr, destPath, hdr.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
			}

		default:
			// Hard links, devices, and FIFOs have no business in a module
			// package; skip them rather than fail the whole extraction.
			continue
		}
	}

	return stripVCSMetadata(absDest)
}

// extractRegular writes one regular file entry to disk. Overlays rely on
// O_TRUNC here: a later archive overwrites files laid down by earlier ones.
func extractRegular(r io.Reader, destPath string, mode os.FileMode) error {
	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// stripVCSMetadata removes version-control metadata directories anywhere
// under root.
func stripVCSMetadata(root string) error {
	var doomed []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		for _, name := range vcsMetadataDirs {
			if d.Name() == name {
				doomed = append(doomed, path)
				return filepath.SkipDir
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan for VCS metadata: %w", err)
	}

	for _, path := range doomed {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

// Create serializes srcDir into a tar archive at outPath, optionally
// gzip-compressed. Entry names are rooted at "./" so the archive extracts in
// place. When owner is non-nil its identity is forced onto every entry and
// "other" permission bits are stripped.
func Create(srcDir, outPath string, compress bool, owner *Ownership) (err error) {
	absSrc, err := filepath.Abs(srcDir)
	if err != nil {
		return fmt.Errorf("failed to resolve source directory: %w", err)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create archive %s: %w", outPath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	var tw *tar.Writer
	if compress {
		gz := gzip.NewWriter(f)
		defer func() {
			if closeErr := gz.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()
		tw = tar.NewWriter(gz)
	} else {
		tw = tar.NewWriter(f)
	}
	defer func() {
		if closeErr := tw.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return filepath.Walk(absSrc, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		relPath, err := filepath.Rel(absSrc, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}

		var linkTarget string
		if info.Mode()&os.ModeSymlink != 0 {
			linkTarget, err = os.Readlink(path)
			if err != nil {
				return fmt.Errorf("failed to read symlink %s: %w", path, err)
			}
		}

		hdr, err := tar.FileInfoHeader(info, linkTarget)
		if err != nil {
			return fmt.Errorf("failed to create header for %s: %w", path, err)
		}

		if relPath == "." {
			hdr.Name = "./"
		} else {
			hdr.Name = "./" + filepath.ToSlash(relPath)
			if info.IsDir() {
				hdr.Name += "/"
			}
		}

		if owner != nil {
			hdr.Uid = owner.UID
			hdr.Gid = owner.GID
			hdr.Uname = owner.Uname
			hdr.Gname = owner.Gname
			hdr.Mode &^= 0o007
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write header for %s: %w", hdr.Name, err)
		}

		if info.Mode().IsRegular() {
			src, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			if _, err := io.Copy(tw, src); err != nil {
				src.Close()
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			if err := src.Close(); err != nil {
				return err
			}
		}

		return nil
	})
}
