// SPDX-License-Identifier: EPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"romg-cli/internal/issue"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Format != 1 {
		t.Errorf("default format = %d, want 1", cfg.Format)
	}
	if cfg.RunBuildHooks {
		t.Error("build hooks must be opt-in")
	}
	if !cfg.Output.Compress {
		t.Error("output should be compressed by default")
	}
	if cfg.UI.ColorScheme != ColorSchemeAuto {
		t.Errorf("default color scheme = %q, want auto", cfg.UI.ColorScheme)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestConfigDir(t *testing.T) {
	t.Cleanup(Reset)

	SetConfigDirOverride(filepath.Join(t.TempDir(), "romg"))
	dir, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if dir == "" {
		t.Error("ConfigDir returned empty path")
	}
}

func TestReset(t *testing.T) {
	SetConfigDirOverride("/tmp/somewhere")
	Reset()
	if configDirOverride != "" {
		t.Error("Reset must clear the config dir override")
	}
}

func TestLoad_ReturnsDefaultsWhenNoConfigFile(t *testing.T) {
	cfg, err := NewProvider().Load(context.Background(), LoadOptions{
		ConfigDirPath: t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}

	defaults := DefaultConfig()
	if cfg.Format != defaults.Format || cfg.RunBuildHooks != defaults.RunBuildHooks {
		t.Errorf("config without a file must equal defaults, got %+v", cfg)
	}
}

func TestLoad_CustomPath_Valid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.cue")
	content := `
arch: "armv7l"
format: 2
output: {
	dir: "./dist"
	compress: false
}
run_build_hooks: true
ui: verbose: true
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: cfgPath})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Arch != "armv7l" {
		t.Errorf("arch = %q", cfg.Arch)
	}
	if cfg.Format != 2 {
		t.Errorf("format = %d", cfg.Format)
	}
	if cfg.Output.Dir != "./dist" || cfg.Output.Compress {
		t.Errorf("output = %+v", cfg.Output)
	}
	if !cfg.UI.Verbose {
		t.Error("ui.verbose should be true")
	}
	if !cfg.RunBuildHooks {
		t.Error("run_build_hooks should be set from the file")
	}
}

func TestLoad_CustomPath_NotFound_ReturnsError(t *testing.T) {
	_, err := NewProvider().Load(context.Background(), LoadOptions{
		ConfigFilePath: filepath.Join(t.TempDir(), "missing.cue"),
	})
	if err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}

	var actionable *issue.ActionableError
	if !errors.As(err, &actionable) {
		t.Fatalf("error should be actionable, got %T", err)
	}
	if !actionable.HasSuggestions() {
		t.Error("missing-file error should carry suggestions")
	}
}

func TestLoad_CustomPath_InvalidCUE_ReturnsError(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.cue")
	if err := os.WriteFile(cfgPath, []byte(`format: "two"`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: cfgPath})
	if err == nil {
		t.Fatal("expected an error for an invalid config file")
	}
	if !strings.Contains(err.Error(), "config.cue") {
		t.Errorf("error should name the file, got: %v", err)
	}
}

func TestLoad_SchemaRejectsUnknownFields(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.cue")
	if err := os.WriteFile(cfgPath, []byte(`bogus_field: true`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: cfgPath})
	if err == nil {
		t.Fatal("unknown config fields must be rejected")
	}
}

func TestLoad_FromConfigDir(t *testing.T) {
	cfgDir := t.TempDir()
	content := `arch: "aarch64"`
	if err := os.WriteFile(filepath.Join(cfgDir, "config.cue"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: cfgDir})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Arch != "aarch64" {
		t.Errorf("arch = %q, want aarch64", cfg.Arch)
	}
}

func TestLoad_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProvider().Load(ctx, LoadOptions{ConfigDirPath: t.TempDir()})
	if err == nil {
		t.Fatal("canceled context must abort loading")
	}
}

func TestEnsureConfigDir(t *testing.T) {
	t.Cleanup(Reset)

	dir := filepath.Join(t.TempDir(), "nested", "romg")
	SetConfigDirOverride(dir)

	if err := EnsureConfigDir(); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Errorf("config dir was not created: %v", err)
	}
}

func TestConstants(t *testing.T) {
	if AppName != "romg" {
		t.Errorf("AppName = %q", AppName)
	}
	if ConfigFileName+"."+ConfigFileExt != "config.cue" {
		t.Errorf("config file = %q", ConfigFileName+"."+ConfigFileExt)
	}
}
