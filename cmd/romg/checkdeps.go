// SPDX-License-Identifier: EPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"romg-cli/pkg/depcheck"
	"romg-cli/pkg/module"
)

var (
	// checkdepsBase is the base system archive to resolve bits-base against
	checkdepsBase string
)

// checkdepsCmd validates module dependencies without composing anything
var checkdepsCmd = &cobra.Command{
	Use:   "checkdeps <module-archive>...",
	Short: "Validate module dependencies against a base archive",
	Long: `Validate the declared dependencies of a set of module archives.

Every declared dependency of every module is checked against the set (and
against the base archive for the reserved ` + CmdStyle.Render(depcheck.BaseDependencyName) + ` name);
all violations are reported in one pass. Exits non-zero when any
dependency is unsatisfied.

Examples:
  romg checkdeps -b base.tgz sensor.tgz uplink.tgz
  romg checkdeps --base ./dist/base.tgz ./dist/*.tgz`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheckdeps,
}

func init() {
	checkdepsCmd.Flags().StringVarP(&checkdepsBase, "base", "b", "", "base system archive (required)")
	_ = checkdepsCmd.MarkFlagRequired("base")
}

func runCheckdeps(cmd *cobra.Command, args []string) error {
	if err := checkInputArchives(append([]string{checkdepsBase}, args...)); err != nil {
		return err
	}

	base, err := module.ReadDescriptor(checkdepsBase)
	if err != nil {
		return descriptorError(checkdepsBase, err)
	}

	modules := make([]*module.Descriptor, 0, len(args))
	for _, path := range args {
		desc, err := module.ReadDescriptor(path)
		if err != nil {
			return descriptorError(path, err)
		}
		modules = append(modules, desc)
	}

	result := depcheck.Check(base, modules)
	for _, w := range result.Warnings {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("! ")+w)
	}

	if result.OK() {
		fmt.Printf("%s All dependencies satisfied (%d modules checked)\n",
			SuccessStyle.Render("✓"), len(modules))
		return nil
	}

	for _, diag := range result.Diagnostics() {
		fmt.Println(ErrorStyle.Render("✗ ") + diag)
	}
	return &ExitError{
		Code: 1,
		Err:  fmt.Errorf("%d unsatisfied dependencies", len(result.Violations)),
	}
}
