// SPDX-License-Identifier: EPL-2.0

// Package cache merges per-module third-party package caches into the one
// shared cache of a composed working tree.
//
// The merge is additive: existing shared entries are never removed and
// identical files are left alone, so dependencies shared across modules are
// stored once. A module's cache directory is deleted after a successful
// merge. Merge failure is fatal to the whole composition; a partially merged
// cache silently breaks later offline rebuilds.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
)

// ErrMerge wraps every merge failure, so callers can tell a broken cache
// sync apart from other composition errors.
var ErrMerge = errors.New("cache merge failed")

// MergeToolName is the external synchronization tool preferred for cache
// merges when present on PATH.
const MergeToolName = "rsync"

// Merger consolidates one module cache directory into the shared cache and
// removes the module copy. Implementations must treat a missing module cache
// directory as a no-op.
type Merger interface {
	Merge(ctx context.Context, moduleCacheDir, sharedCacheDir string) error
}

// Detect selects a Merger implementation once at startup: the external merge
// tool when available, otherwise the built-in copy fallback with a warning.
func Detect(logger *log.Logger) Merger {
	toolPath, err := exec.LookPath(MergeToolName)
	if err != nil {
		logger.Warn("merge tool not found, falling back to built-in cache merging",
			"tool", MergeToolName)
		return &CopyMerger{logger: logger}
	}
	return &ToolMerger{toolPath: toolPath, logger: logger}
}

// ToolMerger merges caches by running the external merge tool as a blocking
// child process.
type ToolMerger struct {
	toolPath string
	logger   *log.Logger
}

// NewToolMerger creates a ToolMerger using the given tool binary.
func NewToolMerger(toolPath string, logger *log.Logger) *ToolMerger {
	return &ToolMerger{toolPath: toolPath, logger: logger}
}

// Merge runs "<tool> -a <module>/ <shared>/" and deletes the module cache
// directory on success.
func (m *ToolMerger) Merge(ctx context.Context, moduleCacheDir, sharedCacheDir string) error {
	info, err := os.Stat(moduleCacheDir)
	if err != nil || !info.IsDir() {
		return nil
	}
	if err := os.MkdirAll(sharedCacheDir, 0755); err != nil {
		return fmt.Errorf("%w: creating shared cache directory: %v", ErrMerge, err)
	}

	m.logger.Debug("syncing module cache", "from", moduleCacheDir, "to", sharedCacheDir)
	cmd := exec.CommandContext(ctx, m.toolPath, "-a", moduleCacheDir+"/", sharedCacheDir+"/")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: syncing %s: %v (output: %s)", ErrMerge, moduleCacheDir, err, out)
	}

	return os.RemoveAll(moduleCacheDir)
}

// CopyMerger merges caches with a pure-Go additive file sync. Identical
// files are detected by size and content digest and skipped.
type CopyMerger struct {
	logger *log.Logger
}

// NewCopyMerger creates a CopyMerger.
func NewCopyMerger(logger *log.Logger) *CopyMerger {
	return &CopyMerger{logger: logger}
}

// Merge walks the module cache and copies every entry into the shared cache,
// overwriting divergent files but never deleting shared entries. The module
// cache directory is deleted on success.
func (m *CopyMerger) Merge(ctx context.Context, moduleCacheDir, sharedCacheDir string) error {
	info, err := os.Stat(moduleCacheDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	m.logger.Debug("merging module cache", "from", moduleCacheDir, "to", sharedCacheDir)

	err = filepath.WalkDir(moduleCacheDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(moduleCacheDir, path)
		if err != nil {
			return err
		}
		destPath := filepath.Join(sharedCacheDir, relPath)

		if d.IsDir() {
			return os.MkdirAll(destPath, 0755)
		}

		if d.Type()&os.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if _, err := os.Lstat(destPath); err == nil {
				return nil
			}
			return os.Symlink(target, destPath)
		}

		same, err := identicalFiles(path, destPath)
		if err != nil {
			return err
		}
		if same {
			return nil
		}
		return copyFile(path, destPath)
	})
	if err != nil {
		return fmt.Errorf("%w: syncing %s: %v", ErrMerge, moduleCacheDir, err)
	}

	return os.RemoveAll(moduleCacheDir)
}

// identicalFiles reports whether dst exists with the same size and content
// digest as src.
func identicalFiles(src, dst string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if srcInfo.Size() != dstInfo.Size() {
		return false, nil
	}

	srcSum, err := fileDigest(src)
	if err != nil {
		return false, err
	}
	dstSum, err := fileDigest(dst)
	if err != nil {
		return false, err
	}
	return srcSum == dstSum, nil
}

// fileDigest returns the xxhash digest of a file's contents.
func fileDigest(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// copyFile copies src to dst preserving the source permission bits.
func copyFile(src, dst string) (err error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
