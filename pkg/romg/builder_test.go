// SPDX-License-Identifier: EPL-2.0

package romg

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/gzip"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// writeArchiveFile builds a gzip-compressed tar archive at path with the
// given file contents.
func writeArchiveFile(t *testing.T, path string, files map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for name, content := range files {
		hdr := &tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func moduleArchive(t *testing.T, dir, name, version string, deps map[string]string, extra map[string]string) string {
	t.Helper()

	descriptor := map[string]any{"name": name, "version": version}
	if deps != nil {
		descriptor["dependencies"] = deps
	}
	data, err := json.Marshal(descriptor)
	if err != nil {
		t.Fatal(err)
	}

	files := map[string]string{"module.json": string(data)}
	for k, v := range extra {
		files[k] = v
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-%s.tgz", name, version))
	writeArchiveFile(t, path, files)
	return path
}

func overlayArchive(t *testing.T, dir, name, version string, extra map[string]string) string {
	t.Helper()

	data, err := json.Marshal(map[string]string{"name": name, "version": version})
	if err != nil {
		t.Fatal(err)
	}

	files := map[string]string{"overlay.json": string(data)}
	for k, v := range extra {
		files[k] = v
	}

	path := filepath.Join(dir, fmt.Sprintf("overlay-%s-%s.tgz", name, version))
	writeArchiveFile(t, path, files)
	return path
}

func newTestBuilder(t *testing.T, format Format) *Builder {
	t.Helper()
	b, err := New(Options{
		Name:    "bundle",
		Version: "1.0.0",
		Format:  format,
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestFormatLayouts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	base := moduleArchive(t, dir, "bits-base", "1.2.0", nil, map[string]string{"app.js": "base"})
	mod := moduleArchive(t, dir, "sensor", "1.0.0", nil, map[string]string{"index.js": "mod"})

	tests := []struct {
		name       string
		format     Format
		modulePath string
		basePath   string
	}{
		{
			name:       "v1 flat layout",
			format:     FormatV1,
			modulePath: "data/base/modules/modules/sensor/index.js",
			basePath:   "app.js",
		},
		{
			name:       "v2 structured layout",
			format:     FormatV2,
			modulePath: "modules/sensor/index.js",
			basePath:   "base/app.js",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBuilder(t, tt.format)
			if err := b.AddBase(ctx, base); err != nil {
				t.Fatal(err)
			}
			if err := b.AddModule(ctx, mod); err != nil {
				t.Fatal(err)
			}

			for _, rel := range []string{tt.modulePath, tt.basePath} {
				if _, err := os.Stat(filepath.Join(b.Root(), filepath.FromSlash(rel))); err != nil {
					t.Errorf("expected %s in working tree: %v", rel, err)
				}
			}
		})
	}
}

func TestManifestShape(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	base := moduleArchive(t, dir, "bits-base", "1.2.0", nil, nil)
	modA := moduleArchive(t, dir, "alpha", "1.0.0", map[string]string{"bits-base": "^1.0.0"}, nil)
	modB := moduleArchive(t, dir, "beta", "2.0.0", nil, nil)

	b := newTestBuilder(t, FormatV1)
	if err := b.AddBase(ctx, base); err != nil {
		t.Fatal(err)
	}
	if err := b.AddModule(ctx, modA); err != nil {
		t.Fatal(err)
	}
	if err := b.AddModule(ctx, modB); err != nil {
		t.Fatal(err)
	}

	m := b.Manifest()
	if len(m.Modules) != 3 {
		t.Fatalf("modules length = %d, want 1 base + 2 modules", len(m.Modules))
	}
	if m.Modules[0].Name != "bits-base" {
		t.Errorf("modules[0] = %s, want the base descriptor", m.Modules[0].Name)
	}
	if m.Base.Name != "bits-base" || m.Base.Version != "1.2.0" {
		t.Errorf("manifest base ref = %+v", m.Base)
	}
	if m.UUID != "" {
		t.Errorf("v1 manifest must not carry a uuid, got %q", m.UUID)
	}
}

func TestV2ManifestHasUUID(t *testing.T) {
	b := newTestBuilder(t, FormatV2)
	if b.Manifest().UUID == "" {
		t.Error("v2 manifest must carry a uuid")
	}
}

func TestAddModuleBeforeBaseFails(t *testing.T) {
	dir := t.TempDir()
	mod := moduleArchive(t, dir, "alpha", "1.0.0", nil, nil)

	b := newTestBuilder(t, FormatV1)
	if err := b.AddModule(context.Background(), mod); err == nil {
		t.Fatal("AddModule before AddBase must fail")
	}
}

func TestOverlayLastAppliedWins(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	base := moduleArchive(t, dir, "bits-base", "1.0.0", nil, nil)
	o1 := overlayArchive(t, dir, "first", "1.0.0", map[string]string{"data/settings.json": "from-first"})
	o2 := overlayArchive(t, dir, "second", "1.0.0", map[string]string{"data/settings.json": "from-second"})

	b := newTestBuilder(t, FormatV2)
	if err := b.AddBase(ctx, base); err != nil {
		t.Fatal(err)
	}
	if err := b.AddOverlay(o1); err != nil {
		t.Fatal(err)
	}
	if err := b.AddOverlay(o2); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(b.Root(), "data", "settings.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "from-second" {
		t.Errorf("later overlay must win, got %q", data)
	}

	m := b.Manifest()
	if len(m.Overlays) != 2 {
		t.Errorf("overlays map size = %d, want 2", len(m.Overlays))
	}
	if m.Overlays["first"].Version != "1.0.0" {
		t.Errorf("overlay entry missing: %+v", m.Overlays)
	}
}

func TestOverlayDescriptorRelocation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	base := moduleArchive(t, dir, "bits-base", "1.0.0", nil, nil)
	ov := overlayArchive(t, dir, "branding", "2.1.0", nil)

	t.Run("v2 relocates", func(t *testing.T) {
		b := newTestBuilder(t, FormatV2)
		if err := b.AddBase(ctx, base); err != nil {
			t.Fatal(err)
		}
		if err := b.AddOverlay(ov); err != nil {
			t.Fatal(err)
		}

		relocated := filepath.Join(b.Root(), "overlays", "branding_2.1.0.json")
		if _, err := os.Stat(relocated); err != nil {
			t.Errorf("expected relocated descriptor at %s: %v", relocated, err)
		}
		if _, err := os.Stat(filepath.Join(b.Root(), "overlay.json")); !os.IsNotExist(err) {
			t.Error("descriptor must be moved out of the tree root")
		}
	})

	t.Run("v1 leaves descriptor in place", func(t *testing.T) {
		b := newTestBuilder(t, FormatV1)
		if err := b.AddBase(ctx, base); err != nil {
			t.Fatal(err)
		}
		if err := b.AddOverlay(ov); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(filepath.Join(b.Root(), "overlay.json")); err != nil {
			t.Errorf("v1 layout has no descriptor slot, file should remain: %v", err)
		}
	})
}

func TestWriteArchive(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	outDir := t.TempDir()
	base := moduleArchive(t, dir, "bits-base", "1.0.0", nil, map[string]string{"app.js": "x"})

	b, err := New(Options{
		Name:    "bundle",
		Version: "2.5.0",
		Branch:  "stable",
		Format:  FormatV1,
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := b.AddBase(ctx, base); err != nil {
		t.Fatal(err)
	}

	romgPath, headerPath, err := b.WriteArchive(outDir, true)
	if err != nil {
		t.Fatal(err)
	}

	if filepath.Base(romgPath) != "bundle_stable_2.5.0.romg" {
		t.Errorf("romg filename = %s", filepath.Base(romgPath))
	}
	if filepath.Base(headerPath) != "bundle_stable_2.5.0_header.json" {
		t.Errorf("header filename = %s", filepath.Base(headerPath))
	}

	var m Manifest
	data, err := os.ReadFile(headerPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("header is not valid JSON: %v", err)
	}
	if m.Name != "bundle" || m.Version != "2.5.0" || m.Branch != "stable" {
		t.Errorf("header fields wrong: %+v", m)
	}
	if m.Arch == "" {
		t.Error("header must carry an arch tag")
	}
}

func TestRepeatableComposition(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	base := moduleArchive(t, dir, "bits-base", "1.0.0", nil, nil)
	mod := moduleArchive(t, dir, "alpha", "1.0.0", nil, nil)
	ov := overlayArchive(t, dir, "branding", "1.0.0", nil)

	compose := func() *Manifest {
		b := newTestBuilder(t, FormatV1)
		if err := b.AddBase(ctx, base); err != nil {
			t.Fatal(err)
		}
		if err := b.AddModule(ctx, mod); err != nil {
			t.Fatal(err)
		}
		if err := b.AddOverlay(ov); err != nil {
			t.Fatal(err)
		}
		return b.Manifest()
	}

	m1, m2 := compose(), compose()
	if len(m1.Modules) != len(m2.Modules) {
		t.Fatal("module lists differ between identical compositions")
	}
	for i := range m1.Modules {
		if m1.Modules[i].Name != m2.Modules[i].Name || m1.Modules[i].Version != m2.Modules[i].Version {
			t.Errorf("module %d differs: %+v vs %+v", i, m1.Modules[i], m2.Modules[i])
		}
	}
	if len(m1.Overlays) != len(m2.Overlays) {
		t.Error("overlay maps differ between identical compositions")
	}
}

func TestCloseRemovesWorkingTree(t *testing.T) {
	b, err := New(Options{Name: "bundle", Version: "1.0.0", Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	root := b.Root()

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Error("Close must delete the working tree")
	}
	// Idempotent.
	if err := b.Close(); err != nil {
		t.Errorf("second Close must be a no-op, got: %v", err)
	}
}

func TestFailedExtractionLeavesNoOutputs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	outDir := t.TempDir()

	bogus := filepath.Join(dir, "bogus.tgz")
	if err := os.WriteFile(bogus, []byte("not an archive"), 0644); err != nil {
		t.Fatal(err)
	}

	b := newTestBuilder(t, FormatV1)
	root := b.Root()

	if err := b.AddBase(ctx, bogus); err == nil {
		t.Fatal("adding a bogus archive must fail")
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Error("working tree must be gone after failure + Close")
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("no outputs may be written on failure, found %d entries", len(entries))
	}
}

func TestParseFormat(t *testing.T) {
	if _, err := ParseFormat(1); err != nil {
		t.Error(err)
	}
	if _, err := ParseFormat(2); err != nil {
		t.Error(err)
	}
	if _, err := ParseFormat(3); err == nil {
		t.Error("format 3 must be rejected")
	}
}
