// SPDX-License-Identifier: EPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"romg-cli/internal/issue"
	"romg-cli/internal/modpack"
	"romg-cli/pkg/types"
)

var (
	// packModuleDir is the module source directory (required)
	packModuleDir string
	// packVersion replaces the descriptor version before archiving
	packVersion string
	// packPrepackage are command lines run in the build directory
	packPrepackage []string
	// packOutputDir receives the module archive
	packOutputDir string
)

// packCmd packages a single module directory into a distributable archive
var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Package a module directory into a module archive",
	Long: `Package a module source directory into a distributable archive.

The source tree is copied into a scratch build directory with housekeeping
files stripped, the ` + CmdStyle.Render("build") + ` script from package.json runs if declared,
development directories are removed, and the result is archived as
` + CmdStyle.Render("<name>-<version>.tgz") + `. The source directory is never touched.

Examples:
  romg pack -m ./sensor-module
  romg pack -m ./sensor-module --version 2.3.4 -d ./dist
  romg pack -m ./sensor-module -a "touch build-info.txt"`,
	RunE: runModulePack,
}

func init() {
	packCmd.Flags().StringVarP(&packModuleDir, "module-dir", "m", "", "module source directory (required)")
	packCmd.Flags().StringVar(&packVersion, "version", "", "replace the descriptor version before archiving")
	packCmd.Flags().StringArrayVarP(&packPrepackage, "pre-package", "a", nil, "command line run in the build directory (repeatable)")
	packCmd.Flags().StringVarP(&packOutputDir, "output-dir", "d", "", "output directory (default: current directory)")

	_ = packCmd.MarkFlagRequired("module-dir")
}

func runModulePack(cmd *cobra.Command, args []string) error {
	if ok, errs := types.FilesystemPath(packModuleDir).IsValid(); !ok {
		return &ExitError{Code: 2, Err: errs[0]}
	}
	if !cmd.Flags().Changed("output-dir") {
		packOutputDir = cfg.Output.Dir.String()
	}

	archivePath, err := modpack.Pack(cmd.Context(), modpack.Options{
		ModuleDir:       packModuleDir,
		Version:         packVersion,
		PrepackageLines: packPrepackage,
		OutputDir:       packOutputDir,
		Logger:          logger,
	})
	if err != nil {
		if errors.Is(err, modpack.ErrBuildScript) {
			printIssueCard(issue.BuildHookFailedId)
		}
		return &ExitError{Code: 2, Err: err}
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("failed to stat output archive: %w", err)
	}

	fmt.Printf("%s Module packaged successfully\n", SuccessStyle.Render("✓"))
	fmt.Println()
	fmt.Printf("%s Archive: %s\n", SubtitleStyle.Render("•"), CmdStyle.Render(archivePath))
	fmt.Printf("%s Size: %s\n", SubtitleStyle.Render("•"), formatFileSize(info.Size()))
	return nil
}

// formatFileSize formats a file size in bytes to a human-readable string
func formatFileSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.2f GB", float64(size)/float64(GB))
	case size >= MB:
		return fmt.Sprintf("%.2f MB", float64(size)/float64(MB))
	case size >= KB:
		return fmt.Sprintf("%.2f KB", float64(size)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
