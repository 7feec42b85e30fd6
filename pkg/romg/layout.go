// SPDX-License-Identifier: EPL-2.0

package romg

import (
	"fmt"
	"path/filepath"
)

// Format selects the physical directory-layout convention of a composed
// tree. It is chosen once at Builder construction and never changes mid-run;
// the two layouts are never mixed within one archive.
type Format int

const (
	// FormatV1 is the legacy flat layout: the base extracts at the tree
	// root and modules nest under data/base/modules/modules/<name>/.
	FormatV1 Format = 1

	// FormatV2 is the structured layout: top-level base/, modules/<name>/,
	// and data/ directories, overlay descriptors collected under overlays/,
	// and a uuid field in the manifest.
	FormatV2 Format = 2
)

// ParseFormat validates a numeric format version.
func ParseFormat(n int) (Format, error) {
	switch Format(n) {
	case FormatV1, FormatV2:
		return Format(n), nil
	default:
		return 0, fmt.Errorf("unsupported format version %d (want 1 or 2)", n)
	}
}

// HasUUID reports whether the manifest carries a uuid field in this format.
func (f Format) HasUUID() bool {
	return f == FormatV2
}

// String returns the format as "v1"/"v2".
func (f Format) String() string {
	return fmt.Sprintf("v%d", int(f))
}

// Layout fixes where base, module, and overlay content land in the working
// tree. All paths are relative to the tree root.
type Layout struct {
	// BaseDir is where the base archive extracts.
	BaseDir string
	// ModuleRoot is the directory module subdirectories nest under.
	ModuleRoot string
	// DataDir is the runtime data directory.
	DataDir string
	// OverlayDescriptorDir collects relocated overlay descriptors; empty
	// when the layout has no dedicated slot for them.
	OverlayDescriptorDir string
	// SharedCacheDir is the consolidated third-party package cache.
	SharedCacheDir string
	// ScaffoldDirs are created empty when the working tree is allocated.
	ScaffoldDirs []string
}

// layoutFor resolves a format version into its path templates.
func layoutFor(f Format) Layout {
	sharedCache := filepath.Join("support", "yarn-cache")

	switch f {
	case FormatV2:
		return Layout{
			BaseDir:              "base",
			ModuleRoot:           "modules",
			DataDir:              "data",
			OverlayDescriptorDir: "overlays",
			SharedCacheDir:       sharedCache,
			ScaffoldDirs:         []string{"modules", "data", "base"},
		}
	default:
		return Layout{
			BaseDir:        ".",
			ModuleRoot:     filepath.Join("data", "base", "modules", "modules"),
			DataDir:        "data",
			SharedCacheDir: sharedCache,
			ScaffoldDirs:   []string{filepath.Join("data", "base", "modules", "modules")},
		}
	}
}

// ModulePath returns the tree-relative directory a module extracts into.
func (l Layout) ModulePath(name string) string {
	return filepath.Join(l.ModuleRoot, name)
}
