// SPDX-License-Identifier: EPL-2.0

// Package buildhook detects and runs the build hook a module may declare in
// its package metadata.
//
// The hook is a plain external command executed as a blocking child process
// in the module directory, with an explicit environment overlay merged over
// the inherited environment. The process's exit status maps directly to
// success or failure; a failed hook is fatal to the whole composition. No
// timeout is enforced here; callers impose one through the context.
package buildhook

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"
)

const (
	// HookScriptName is the package.json script a module declares to opt in
	// to the build pass.
	HookScriptName = "bits:install"

	// PackageMetadataName is the npm package metadata file consulted for
	// hook detection.
	PackageMetadataName = "package.json"
)

// packageMetadata is the subset of package.json needed for hook detection.
type packageMetadata struct {
	Scripts map[string]string `json:"scripts"`
}

// HasHook reports whether the module directory declares the build hook in
// its package metadata. A missing or unreadable metadata file means no hook.
func HasHook(moduleDir string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(moduleDir, PackageMetadataName))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s in %s: %w", PackageMetadataName, moduleDir, err)
	}

	var meta packageMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return false, fmt.Errorf("failed to parse %s in %s: %w", PackageMetadataName, moduleDir, err)
	}

	_, ok := meta.Scripts[HookScriptName]
	return ok, nil
}

// Runner executes build hooks.
type Runner struct {
	logger *log.Logger

	// targetArch is appended to the hook invocation as --target_arch when
	// set; the empty string (or "x86", the implicit default) adds nothing.
	targetArch string
}

// NewRunner creates a Runner. targetArch is the cross-compilation target
// passed through to hooks, typically taken from the ARCH environment
// variable by the caller.
func NewRunner(logger *log.Logger, targetArch string) *Runner {
	return &Runner{logger: logger, targetArch: targetArch}
}

// Run executes the build hook in moduleDir with env merged over the
// inherited environment. A non-zero exit status is returned as an error.
func (r *Runner) Run(ctx context.Context, moduleDir string, env map[string]string) error {
	args := []string{"run", HookScriptName}
	if r.targetArch != "" && r.targetArch != "x86" {
		args = append(args, fmt.Sprintf("--target_arch=%s", r.targetArch))
	}

	r.logger.Debug("running build hook", "script", HookScriptName, "dir", moduleDir)

	cmd := exec.CommandContext(ctx, "npm", args...)
	cmd.Dir = moduleDir
	cmd.Env = mergeEnv(os.Environ(), env)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("build hook failed for %s: %w", moduleDir, err)
	}
	return nil
}

// mergeEnv overlays the given variables onto a base environment slice,
// replacing existing entries with the same key.
func mergeEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	merged := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		replaced := false
		for _, k := range keys {
			if len(kv) > len(k) && kv[:len(k)] == k && kv[len(k)] == '=' {
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, kv)
		}
	}
	for _, k := range keys {
		merged = append(merged, k+"="+overlay[k])
	}
	return merged
}
