package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentpack-dev/agentpack/internal/errdefs"
	"github.com/agentpack-dev/agentpack/internal/integrity"
)

var (
	checkScope           string
	checkTarget          string
	checkExpectedVersion string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the health of an installation",
	Long: `Verify that the installation's files are present, recorded hashes
still match disk content, and (optionally) the installed version matches an
expected one. The report is computed fresh; nothing is cached or persisted.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkScope, "scope", "", "Installation scope: global or project")
	checkCmd.Flags().StringVar(&checkTarget, "target", "", "Explicit installation root (overrides --scope)")
	checkCmd.Flags().StringVar(&checkExpectedVersion, "expected-version", "", "Fail unless the installed version equals this")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(checkScope, checkTarget)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Checking installation at %s\n\n", root)

	report := integrity.New(root, ownershipPatterns()).CheckAll(integrity.Options{
		ExpectedVersion: checkExpectedVersion,
	})
	printHealthReport(cmd, report)

	if !report.Passed {
		return errdefs.Newf(errdefs.EUnhealthy,
			"installation at %s failed health checks; run 'repair' to restore it", root)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "\n✓ Installation is healthy.")
	return nil
}

func printHealthReport(cmd *cobra.Command, r *integrity.HealthReport) {
	out := cmd.OutOrStdout()

	printCategory := func(title string, cat integrity.Category) {
		fmt.Fprintf(out, "%s:\n", title)
		for _, c := range cat.Checks {
			mark := "[ OK ]"
			if !c.Passed {
				mark = "[FAIL]"
			}
			line := fmt.Sprintf("  %s %s", mark, c.Name)
			if c.Detail != "" {
				line += " (" + c.Detail + ")"
			}
			fmt.Fprintln(out, line)
		}
	}

	printCategory("Files", r.Files)
	if r.Version != nil {
		printCategory("Version", *r.Version)
	}
	printCategory("Integrity", r.Integrity)

	if len(r.DriftFiles) > 0 {
		fmt.Fprintf(out, "\n%d file(s) drifted from their recorded content:\n", len(r.DriftFiles))
		for _, rel := range r.DriftFiles {
			fmt.Fprintf(out, "  ! %s\n", rel)
		}
	}
}
