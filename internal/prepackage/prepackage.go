// SPDX-License-Identifier: EPL-2.0

// Package prepackage runs the hooks that tweak a composed working tree just
// before it is serialized.
//
// Two kinds exist: command lines supplied by the caller, and executable
// files shipped inside the tree under the reserved script directory (usually
// placed there by an overlay). Both run as blocking child processes with the
// tree root as working directory, and both are best-effort: a failing hook
// is logged as an error but never aborts composition.
package prepackage

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/shell"
)

// ScriptDirName is the reserved directory inside a composed tree whose
// regular files are executed before packaging and deleted afterward.
const ScriptDirName = "prepackage_scripts"

// RunCommandLines executes caller-supplied command lines in dir. Each line
// is split into fields the way a POSIX shell would (quoting and escaping
// respected). Failures are logged and skipped.
func RunCommandLines(ctx context.Context, logger *log.Logger, lines []string, dir string) {
	for _, line := range lines {
		fields, err := shell.Fields(line, nil)
		if err != nil || len(fields) == 0 {
			logger.Error("failed to parse prepackage command", "command", line, "err", err)
			continue
		}

		logger.Info("running prepackage command", "command", line)
		cmd := exec.CommandContext(ctx, fields[0], fields[1:]...) //nolint:gosec // caller-provided hook
		cmd.Dir = dir
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			logger.Error("prepackage command failed", "command", line, "err", err)
		}
	}
}

// RunScriptDir executes every regular file in root's reserved script
// directory as an independent child process with root as working directory,
// in directory-listing order. Non-zero exits are logged and skipped. The
// script directory is deleted afterward unconditionally. A missing script
// directory is a no-op.
func RunScriptDir(ctx context.Context, logger *log.Logger, root string) error {
	scriptDir := filepath.Join(root, ScriptDirName)
	info, err := os.Stat(scriptDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		os.RemoveAll(scriptDir)
		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		scriptPath := filepath.Join(scriptDir, name)
		logger.Info("running prepackage script", "script", scriptPath)

		cmd := exec.CommandContext(ctx, scriptPath) //nolint:gosec // overlay-provided hook
		cmd.Dir = root
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			logger.Error("prepackage script failed", "script", scriptPath, "err", err)
		}
	}

	return os.RemoveAll(scriptDir)
}
