// SPDX-License-Identifier: EPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"romg-cli/internal/cache"
	"romg-cli/internal/issue"
	"romg-cli/internal/prepackage"
	"romg-cli/pkg/depcheck"
	"romg-cli/pkg/module"
	"romg-cli/pkg/romg"
	"romg-cli/pkg/types"
)

var (
	// composeName is the bundle name (required)
	composeName string
	// composeVersion is the bundle version (required)
	composeVersion string
	// composeBranch is an optional branch tag embedded in output filenames
	composeBranch string
	// composeBase is the base system archive (required)
	composeBase string
	// composeModules are the module archives to include
	composeModules []string
	// composeOverlays are the overlay archives applied on top
	composeOverlays []string
	// composeOutputDir receives the .romg archive and its header
	composeOutputDir string
	// composePrepackage are command lines run in the tree before archiving
	composePrepackage []string
	// composeBuildHooks enables per-module build hooks
	composeBuildHooks bool
	// composeFormat selects the bundle layout version
	composeFormat int
	// composeNoCompression disables gzip on the output archive
	composeNoCompression bool
	// composeArch overrides the manifest architecture tag
	composeArch string
	// composeSkipDepCheck bypasses dependency validation
	composeSkipDepCheck bool
)

// composeCmd assembles a full ROMG bundle
var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Compose a ROMG bundle from a base, modules, and overlays",
	Long: `Compose a deployable ROMG bundle.

The base archive extracts first, module archives extract into per-module
directories, and overlay archives apply last with later overlays winning
on path conflicts. Declared module dependencies are validated against the
whole set before any extraction starts; use ` + CmdStyle.Render("--skip-dep-check") + ` to bypass.

Examples:
  romg compose -n field-kit -V 2.1.0 -b base.tgz -m sensor.tgz uplink.tgz
  romg compose -n field-kit -V 2.1.0 --branch stable -b base.tgz -m sensor.tgz -o branding.tgz
  romg compose -n field-kit -V 2.1.0 -b base.tgz -m sensor.tgz --format 2 -d ./dist`,
	RunE: runCompose,
}

func init() {
	composeCmd.Flags().StringVarP(&composeName, "name", "n", "", "bundle name (required)")
	composeCmd.Flags().StringVarP(&composeVersion, "version", "V", "", "bundle version (required)")
	composeCmd.Flags().StringVar(&composeBranch, "branch", "", "branch tag embedded in the output filenames")
	composeCmd.Flags().StringVarP(&composeBase, "base", "b", "", "base system archive (required)")
	composeCmd.Flags().StringArrayVarP(&composeModules, "modules", "m", nil, "module archive (repeatable, required)")
	composeCmd.Flags().StringArrayVarP(&composeOverlays, "overlays", "o", nil, "overlay archive (repeatable)")
	composeCmd.Flags().StringVarP(&composeOutputDir, "output-dir", "d", "", "output directory (default: current directory)")
	composeCmd.Flags().StringArrayVarP(&composePrepackage, "pre-package", "a", nil, "command line run in the tree before archiving (repeatable)")
	composeCmd.Flags().BoolVar(&composeBuildHooks, "build-node-modules", false, "run each module's build hook instead of merging caches")
	composeCmd.Flags().IntVar(&composeFormat, "format", 0, "bundle layout version (1 or 2)")
	composeCmd.Flags().BoolVarP(&composeNoCompression, "no-compression", "X", false, "write an uncompressed archive")
	composeCmd.Flags().StringVar(&composeArch, "arch", "", "manifest architecture tag (default: ARCH env, then platform)")
	composeCmd.Flags().BoolVar(&composeSkipDepCheck, "skip-dep-check", false, "skip dependency validation")

	_ = composeCmd.MarkFlagRequired("name")
	_ = composeCmd.MarkFlagRequired("version")
	_ = composeCmd.MarkFlagRequired("base")
	_ = composeCmd.MarkFlagRequired("modules")
}

func runCompose(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// Config supplies defaults for flags the user did not set.
	if !cmd.Flags().Changed("format") {
		composeFormat = cfg.Format
	}
	if !cmd.Flags().Changed("arch") {
		composeArch = cfg.Arch
	}
	if !cmd.Flags().Changed("build-node-modules") {
		composeBuildHooks = cfg.RunBuildHooks
	}
	if !cmd.Flags().Changed("output-dir") {
		composeOutputDir = cfg.Output.Dir.String()
	}
	compress := cfg.Output.Compress && !composeNoCompression
	if cmd.Flags().Changed("no-compression") {
		compress = !composeNoCompression
	}
	if composeOutputDir == "" {
		composeOutputDir = "."
	}

	format, err := romg.ParseFormat(composeFormat)
	if err != nil {
		return err
	}

	if err := checkOutputDir(composeOutputDir); err != nil {
		return err
	}

	inputs := append([]string{composeBase}, composeModules...)
	inputs = append(inputs, composeOverlays...)
	if err := checkInputArchives(inputs); err != nil {
		return err
	}

	baseDesc, err := module.ReadDescriptor(composeBase)
	if err != nil {
		return descriptorError(composeBase, err)
	}
	moduleDescs := make([]*module.Descriptor, 0, len(composeModules))
	for _, path := range composeModules {
		desc, err := module.ReadDescriptor(path)
		if err != nil {
			return descriptorError(path, err)
		}
		moduleDescs = append(moduleDescs, desc)
	}

	if composeSkipDepCheck {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("! ")+"dependency validation skipped")
	} else if err := reportDepCheck(baseDesc, moduleDescs); err != nil {
		return err
	}

	builder, err := romg.New(romg.Options{
		Name:          composeName,
		Version:       composeVersion,
		Branch:        composeBranch,
		Format:        format,
		Arch:          composeArch,
		RunBuildHooks: composeBuildHooks,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer builder.Close()

	if err := builder.AddBase(ctx, composeBase); err != nil {
		return composeStepError("add base", composeBase, err)
	}
	for _, path := range composeModules {
		if err := builder.AddModule(ctx, path); err != nil {
			return composeStepError("add module", path, err)
		}
	}
	for _, path := range composeOverlays {
		if err := builder.AddOverlay(path); err != nil {
			return composeStepError("add overlay", path, err)
		}
	}

	runPrepackageHooks(cmd, builder)

	romgPath, headerPath, err := builder.WriteArchive(composeOutputDir, compress)
	if err != nil {
		printIssueCard(issue.ArchiveWriteFailedId)
		return &ExitError{Code: 2, Err: err}
	}

	fmt.Printf("%s Bundle composed successfully\n", SuccessStyle.Render("✓"))
	fmt.Println()
	fmt.Printf("%s Archive: %s\n", SubtitleStyle.Render("•"), CmdStyle.Render(romgPath))
	fmt.Printf("%s Header:  %s\n", SubtitleStyle.Render("•"), CmdStyle.Render(headerPath))
	return nil
}

// checkInputArchives verifies every input path is well-formed and points at
// an existing regular file before any work starts.
func checkInputArchives(paths []string) error {
	for _, p := range paths {
		if ok, errs := types.FilesystemPath(p).IsValid(); !ok {
			return &ExitError{Code: 2, Err: errs[0]}
		}
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			printIssueCard(issue.InputNotFoundId)
			return &ExitError{Code: 2, Err: fmt.Errorf("input archive %s not found", p)}
		}
	}
	return nil
}

// checkOutputDir verifies the output directory exists and is a directory
// before any composition work starts.
func checkOutputDir(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		printIssueCard(issue.OutputDirNotFoundId)
		return &ExitError{Code: 2, Err: fmt.Errorf("output directory %s does not exist", path)}
	}
	return nil
}

// reportDepCheck validates the module set and prints every warning and every
// violation. Violations abort composition.
func reportDepCheck(base *module.Descriptor, modules []*module.Descriptor) error {
	result := depcheck.Check(base, modules)
	for _, w := range result.Warnings {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("! ")+w)
	}
	if result.OK() {
		logger.Debug("dependency validation passed", "modules", len(modules))
		return nil
	}

	for _, diag := range result.Diagnostics() {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("✗ ")+diag)
	}
	printIssueCard(issue.DependenciesNotSatisfiedId)
	return &ExitError{
		Code: 1,
		Err:  fmt.Errorf("%d unsatisfied dependencies", len(result.Violations)),
	}
}

// runPrepackageHooks runs caller-supplied command lines, then the scripts an
// overlay shipped into the tree. Both are best effort.
func runPrepackageHooks(cmd *cobra.Command, builder *romg.Builder) {
	prepackage.RunCommandLines(cmd.Context(), logger, composePrepackage, builder.Root())
	if err := builder.RunPrepackageScripts(cmd.Context()); err != nil {
		logger.Error("failed to run prepackage scripts", "err", err)
	}
}

func descriptorError(path string, err error) error {
	printIssueCard(issue.DescriptorInvalidId)
	return &ExitError{Code: 2, Err: fmt.Errorf("%s: %w", path, err)}
}

// composeStepError classifies a failed composition step: a cache merge
// failure gets its catalog card, everything else stays a plain error.
func composeStepError(step, path string, err error) error {
	if errors.Is(err, cache.ErrMerge) {
		printIssueCard(issue.CacheSyncFailedId)
	}
	return &ExitError{Code: 2, Err: fmt.Errorf("failed to %s %s: %w", step, path, err)}
}
