// SPDX-License-Identifier: EPL-2.0

// Package romg composes deployable ROMG bundles from a base system image, a
// set of independently versioned modules, and optional content overlays.
//
// A Builder owns one working tree for one composition: archives extract into
// layout-determined locations, build hooks or cache consolidation run per
// module, overlays apply last-wins on top, and the tree finally serializes
// into a .romg archive plus a manifest header. The working tree must be
// released with Close on every exit path, success or failure.
package romg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"romg-cli/internal/buildhook"
	"romg-cli/internal/cache"
	"romg-cli/internal/prepackage"
	"romg-cli/pkg/archive"
	"romg-cli/pkg/module"
)

// BuildTargetArchEnvVar names the cross-compilation target architecture
// passed through to module build hooks.
const BuildTargetArchEnvVar = "ARCH"

// cacheFolderEnvVar injects the isolated per-module cache directory into a
// build hook's environment.
const cacheFolderEnvVar = "YARN_CACHE_FOLDER"

// moduleCacheDir is the per-module third-party package cache, relative to
// the module's own directory.
var moduleCacheDir = filepath.Join("support", "yarn-cache")

// Options configures a Builder.
type Options struct {
	// Name, Version, and optional Branch identify the composed bundle and
	// determine the output filenames.
	Name    string
	Version string
	Branch  string

	// Format fixes the working-tree layout. Zero value means FormatV1.
	Format Format

	// Arch overrides the manifest architecture tag. When empty the
	// OECORE_TARGET_ARCH environment variable is consulted, then the
	// platform default.
	Arch string

	// RunBuildHooks enables the build pass: modules declaring the build
	// hook are built with an isolated cache. When false, module caches are
	// instead merged into the shared cache, which keeps the final archive
	// smaller.
	RunBuildHooks bool

	// Ownership, when non-nil, is forced onto every entry of the written
	// archive.
	Ownership *archive.Ownership

	// Logger receives progress and warnings. Defaults to log.Default().
	Logger *log.Logger

	// Merger consolidates module caches. Defaults to cache.Detect.
	Merger cache.Merger

	// Hooks runs module build hooks. Defaults to a runner that passes the
	// ARCH environment variable through as the hook target architecture.
	Hooks *buildhook.Runner
}

// Builder composes one ROMG bundle. It is single-use and not safe for
// concurrent use; each composition owns its freshly allocated working tree
// exclusively.
type Builder struct {
	opts     Options
	layout   Layout
	root     string
	manifest *Manifest
	logger   *log.Logger
	merger   cache.Merger
	hooks    *buildhook.Runner
	closed   bool
}

// New allocates a fresh, uniquely named working tree laid out per the
// requested format and an empty manifest mirroring the identity fields.
// The caller must Close the Builder on every exit path.
func New(opts Options) (*Builder, error) {
	if opts.Name == "" || opts.Version == "" {
		return nil, fmt.Errorf("composition requires a name and a version")
	}
	if opts.Format == 0 {
		opts.Format = FormatV1
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Merger == nil {
		opts.Merger = cache.Detect(opts.Logger)
	}
	if opts.Hooks == nil {
		opts.Hooks = buildhook.NewRunner(opts.Logger, os.Getenv(BuildTargetArchEnvVar))
	}

	root, err := os.MkdirTemp("", "romg-")
	if err != nil {
		return nil, fmt.Errorf("failed to allocate working tree: %w", err)
	}
	opts.Logger.Debug("allocated working tree", "dir", root)

	layout := layoutFor(opts.Format)
	for _, dir := range layout.ScaffoldDirs {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			os.RemoveAll(root)
			return nil, fmt.Errorf("failed to scaffold working tree: %w", err)
		}
	}

	manifest := &Manifest{
		Name:     opts.Name,
		Version:  opts.Version,
		Branch:   opts.Branch,
		Arch:     resolveArch(opts.Arch),
		Modules:  []*module.Descriptor{},
		Overlays: map[string]OverlayVersion{},
	}
	if opts.Format.HasUUID() {
		manifest.UUID = uuid.NewString()
	}

	return &Builder{
		opts:     opts,
		layout:   layout,
		root:     root,
		manifest: manifest,
		logger:   opts.Logger,
		merger:   opts.Merger,
		hooks:    opts.Hooks,
	}, nil
}

// Root returns the working tree root. Exposed for prepackage hooks and
// tests; the tree remains exclusively owned by the Builder.
func (b *Builder) Root() string {
	return b.root
}

// Manifest returns the manifest in its current state.
func (b *Builder) Manifest() *Manifest {
	return b.manifest
}

// AddBase extracts the base archive into the layout's base location and
// records its descriptor as both manifest.base and modules[0]. It must be
// called exactly once, before any AddModule.
func (b *Builder) AddBase(ctx context.Context, archivePath string) error {
	if len(b.manifest.Modules) > 0 {
		return fmt.Errorf("base already added")
	}

	b.logger.Debug("adding base", "archive", archivePath)
	desc, err := module.ReadDescriptor(archivePath)
	if err != nil {
		return err
	}

	b.manifest.Base = desc.Ref()
	b.manifest.Modules = append(b.manifest.Modules, desc)

	baseDir := filepath.Join(b.root, b.layout.BaseDir)
	if err := archive.Extract(archivePath, baseDir); err != nil {
		return err
	}

	if b.opts.RunBuildHooks {
		return b.buildModule(ctx, desc.Name, baseDir)
	}
	return nil
}

// AddModule extracts a module archive into its per-module subdirectory,
// keyed by the declared name, and appends its descriptor to the manifest.
// Must be called after AddBase. When the build pass is off, the module's
// package cache is merged into the shared cache and removed.
func (b *Builder) AddModule(ctx context.Context, archivePath string) error {
	if len(b.manifest.Modules) == 0 {
		return fmt.Errorf("base must be added before any module")
	}

	b.logger.Debug("adding module", "archive", archivePath)
	desc, err := module.ReadDescriptor(archivePath)
	if err != nil {
		return err
	}

	b.manifest.Modules = append(b.manifest.Modules, desc)

	moduleDir := filepath.Join(b.root, b.layout.ModulePath(desc.Name))
	if err := archive.Extract(archivePath, moduleDir); err != nil {
		return err
	}

	if b.opts.RunBuildHooks {
		return b.buildModule(ctx, desc.Name, moduleDir)
	}
	return b.merger.Merge(ctx, filepath.Join(moduleDir, moduleCacheDir),
		filepath.Join(b.root, b.layout.SharedCacheDir))
}

// buildModule runs the module's declared build hook with an isolated cache
// directory injected through the environment, deleting the cache on success.
// Modules without the hook are skipped with a warning; modules without a
// cache directory have nothing to build offline and are skipped silently.
// A failed hook is fatal to the whole composition.
func (b *Builder) buildModule(ctx context.Context, name, dir string) error {
	has, err := buildhook.HasHook(dir)
	if err != nil {
		b.logger.Warn("failed to inspect package metadata", "module", name, "err", err)
		return nil
	}
	if !has {
		b.logger.Warn("module does not declare a build hook, skipping",
			"module", name, "hook", buildhook.HookScriptName)
		return nil
	}

	cacheDir := filepath.Join(dir, moduleCacheDir)
	if info, err := os.Stat(cacheDir); err != nil || !info.IsDir() {
		return nil
	}

	env := map[string]string{cacheFolderEnvVar: cacheDir}
	if err := b.hooks.Run(ctx, dir, env); err != nil {
		return err
	}
	return os.RemoveAll(cacheDir)
}

// AddOverlay extracts an overlay archive at the tree root and records it in
// the manifest. Later overlays overwrite earlier content on path conflicts. When the layout has a dedicated overlay-descriptor directory,
// the overlay's self-descriptor is relocated there as <name>_<version>.json.
func (b *Builder) AddOverlay(archivePath string) error {
	b.logger.Debug("adding overlay", "archive", archivePath)
	desc, err := module.ReadOverlayDescriptor(archivePath)
	if err != nil {
		return err
	}

	b.manifest.Overlays[desc.Name] = OverlayVersion{Version: desc.Version}

	if err := archive.Extract(archivePath, b.root); err != nil {
		return err
	}

	descriptorPath := filepath.Join(b.root, module.OverlayDescriptorName)
	if info, err := os.Stat(descriptorPath); err != nil || info.IsDir() {
		return nil
	}
	if b.layout.OverlayDescriptorDir == "" {
		b.logger.Debug("layout has no overlay descriptor directory, leaving descriptor in place",
			"overlay", desc.Name)
		return nil
	}

	destDir := filepath.Join(b.root, b.layout.OverlayDescriptorDir)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create overlay descriptor directory: %w", err)
	}
	dest := filepath.Join(destDir, fmt.Sprintf("%s_%s.json", desc.Name, desc.Version))
	if err := os.Rename(descriptorPath, dest); err != nil {
		return fmt.Errorf("failed to relocate overlay descriptor: %w", err)
	}
	return nil
}

// RunPrepackageScripts executes the scripts shipped inside the tree's
// reserved script directory (best-effort) and deletes the directory.
func (b *Builder) RunPrepackageScripts(ctx context.Context) error {
	return prepackage.RunScriptDir(ctx, b.logger, b.root)
}

// Filename returns the archive filename for the composed bundle:
// <name>[_<branch>]_<version>.romg.
func (b *Builder) Filename() string {
	if b.opts.Branch != "" {
		return fmt.Sprintf("%s_%s_%s.romg", b.opts.Name, b.opts.Branch, b.opts.Version)
	}
	return fmt.Sprintf("%s_%s.romg", b.opts.Name, b.opts.Version)
}

// HeaderFilename returns the manifest filename accompanying the archive:
// <name>[_<branch>]_<version>_header.json.
func (b *Builder) HeaderFilename() string {
	if b.opts.Branch != "" {
		return fmt.Sprintf("%s_%s_%s_header.json", b.opts.Name, b.opts.Branch, b.opts.Version)
	}
	return fmt.Sprintf("%s_%s_header.json", b.opts.Name, b.opts.Version)
}

// WriteArchive serializes the whole working tree into outputDir as one tar
// archive (gzip-compressed unless disabled) with the manifest alongside as
// pretty-printed JSON. The manifest is persisted only after the archive is
// fully written, so no partial pair ever appears in the output directory.
// Returns the archive and header paths.
func (b *Builder) WriteArchive(outputDir string, compress bool) (string, string, error) {
	romgPath := filepath.Join(outputDir, b.Filename())
	headerPath := filepath.Join(outputDir, b.HeaderFilename())
	b.logger.Debug("writing archive", "romg", romgPath, "header", headerPath)

	if err := archive.Create(b.root, romgPath, compress, b.opts.Ownership); err != nil {
		os.Remove(romgPath)
		return "", "", err
	}

	data, err := b.manifest.MarshalPretty()
	if err != nil {
		os.Remove(romgPath)
		return "", "", fmt.Errorf("failed to serialize manifest: %w", err)
	}
	if err := os.WriteFile(headerPath, data, 0644); err != nil {
		os.Remove(romgPath)
		os.Remove(headerPath)
		return "", "", fmt.Errorf("failed to write manifest: %w", err)
	}

	return romgPath, headerPath, nil
}

// Close deletes the working tree. It is idempotent and must run on every
// exit path; this is the central resource-safety guarantee of a
// composition.
func (b *Builder) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.logger.Debug("removing working tree", "dir", b.root)
	return os.RemoveAll(b.root)
}
