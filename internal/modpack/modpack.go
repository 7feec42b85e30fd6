// SPDX-License-Identifier: EPL-2.0

// Package modpack packages a module source directory into a composable
// source archive.
//
// Packaging copies the sources into a scratch build directory (minus
// repository housekeeping files), optionally stamps a version into the
// descriptor, runs the module's own build script when it declares one, runs
// caller-supplied prepackage command lines, strips development directories,
// and writes "<name>-<version>.tgz". The scratch directory is deleted on
// every exit path.
package modpack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"romg-cli/internal/prepackage"
	"romg-cli/pkg/archive"
	"romg-cli/pkg/module"
)

// ErrBuildScript wraps failures of the module's own build script, so callers
// can tell a failed build apart from packaging errors.
var ErrBuildScript = errors.New("build script failed")

// BuildScriptName is the package.json script invoked when present.
const BuildScriptName = "build"

var (
	// excludeFileGlobs are housekeeping files never shipped in an archive.
	excludeFileGlobs = []string{
		".gitignore", "README", "README.md", "*.exclude.*", "*.exclude",
		".gitlab-ci.yml", "CHANGELOG.md", ".editorconfig",
	}
	// excludeDirNames are directory names pruned anywhere in the tree.
	excludeDirNames = []string{".git", ".gitlab"}

	// cleanupDirs are development directories stripped from the build root
	// just before archiving.
	cleanupDirs = []string{"node_modules", "test", "coverage"}
)

// Options configures one packaging run.
type Options struct {
	// ModuleDir is the module source directory. Required.
	ModuleDir string
	// Version, when non-empty, replaces the descriptor version before the
	// archive name is derived.
	Version string
	// PrepackageLines are command lines run in the build directory after the
	// build script, best effort.
	PrepackageLines []string
	// OutputDir receives the archive. Defaults to the current directory.
	OutputDir string

	Logger *log.Logger
}

// Pack packages the module directory and returns the archive path.
func Pack(ctx context.Context, opts Options) (string, error) {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}

	info, err := os.Stat(opts.ModuleDir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("module directory %s is not a valid directory", opts.ModuleDir)
	}

	buildDir, err := os.MkdirTemp("", "modpack-")
	if err != nil {
		return "", fmt.Errorf("failed to allocate build directory: %w", err)
	}
	defer os.RemoveAll(buildDir)

	if err := copyTree(opts.ModuleDir, buildDir); err != nil {
		return "", err
	}

	if opts.Version != "" {
		if err := stampVersion(filepath.Join(buildDir, module.DescriptorName), opts.Version); err != nil {
			return "", err
		}
	}

	desc, err := readBuildDescriptor(filepath.Join(buildDir, module.DescriptorName))
	if err != nil {
		return "", err
	}

	hasBuild, err := hasBuildScript(buildDir)
	if err != nil {
		return "", err
	}
	if hasBuild {
		if err := runBuildScript(ctx, opts.Logger, buildDir); err != nil {
			return "", err
		}
	}

	prepackage.RunCommandLines(ctx, opts.Logger, opts.PrepackageLines, buildDir)

	for _, dir := range cleanupDirs {
		if err := os.RemoveAll(filepath.Join(buildDir, dir)); err != nil {
			return "", fmt.Errorf("failed to clean up %s: %w", dir, err)
		}
	}

	outPath := filepath.Join(opts.OutputDir, fmt.Sprintf("%s-%s.tgz", desc.Name, desc.Version))
	opts.Logger.Info("packaging module", "module", desc.Name, "version", desc.Version, "output", outPath)
	if err := archive.Create(buildDir, outPath, true, nil); err != nil {
		os.Remove(outPath)
		return "", err
	}

	return outPath, nil
}

// copyTree copies src into dst, pruning excluded directories and skipping
// excluded files. Symlinks are recreated, not followed.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		if d.IsDir() {
			if excludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dst, relPath), 0755)
		}

		if excludedFile(d.Name()) {
			return nil
		}

		destPath := filepath.Join(dst, relPath)
		if d.Type()&os.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(target, destPath)
		}
		return copyFile(path, destPath)
	})
}

func excludedDir(name string) bool {
	for _, e := range excludeDirNames {
		if name == e {
			return true
		}
	}
	return false
}

func excludedFile(name string) bool {
	for _, glob := range excludeFileGlobs {
		if ok, _ := filepath.Match(glob, name); ok {
			return true
		}
	}
	return false
}

func copyFile(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, srcInfo.Mode().Perm())
}

// stampVersion rewrites the version field in the descriptor file, keeping
// every other field intact.
func stampVersion(descriptorPath, version string) error {
	data, err := os.ReadFile(descriptorPath)
	if err != nil {
		return fmt.Errorf("failed to read module descriptor: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("failed to parse module descriptor: %w", err)
	}
	fields["version"] = version

	out, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(descriptorPath, out, 0644)
}

// readBuildDescriptor validates and loads the descriptor from the build
// directory.
func readBuildDescriptor(descriptorPath string) (*module.Descriptor, error) {
	data, err := os.ReadFile(descriptorPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read module descriptor: %w", err)
	}
	return module.ParseDescriptor(data, descriptorPath)
}

// hasBuildScript reports whether the build directory's package.json declares
// the build script.
func hasBuildScript(buildDir string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(buildDir, "package.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false, fmt.Errorf("failed to parse package.json: %w", err)
	}
	_, ok := pkg.Scripts[BuildScriptName]
	return ok, nil
}

// runBuildScript runs "npm run build" in the build directory against a fresh
// isolated package cache, so the populated cache ships inside the archive.
func runBuildScript(ctx context.Context, logger *log.Logger, buildDir string) error {
	cacheDir := filepath.Join(buildDir, "support", "yarn-cache")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create package cache directory: %w", err)
	}

	args := []string{"npm", "run", BuildScriptName}
	logger.Info("running build script", "command", strings.Join(args, " "), "dir", buildDir)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = buildDir
	cmd.Env = append(os.Environ(), "YARN_CACHE_FOLDER="+cacheDir)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %v", ErrBuildScript, err)
	}
	return nil
}
