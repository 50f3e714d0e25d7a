package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentpack-dev/agentpack/internal/bundle"
	"github.com/agentpack-dev/agentpack/internal/errdefs"
	"github.com/agentpack-dev/agentpack/internal/installer"
	"github.com/agentpack-dev/agentpack/internal/integrity"
	"github.com/agentpack-dev/agentpack/internal/lock"
	"github.com/agentpack-dev/agentpack/internal/pathscope"
)

var (
	repairScope  string
	repairTarget string
	repairDryRun bool
)

var repairCmd = &cobra.Command{
	Use:   "repair [<bundle-dir>]",
	Short: "Restore a damaged installation from the bundle",
	Long: `Run the health checks and, when anything failed, reinstall the
bundle over the existing installation. The reinstall goes through the same
staged atomic swap as a fresh install, so a mid-repair crash leaves either
the old tree or the repaired one, never a mix.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRepair,
}

func init() {
	repairCmd.Flags().StringVar(&repairScope, "scope", "", "Installation scope: global or project")
	repairCmd.Flags().StringVar(&repairTarget, "target", "", "Explicit installation root (overrides --scope)")
	repairCmd.Flags().BoolVar(&repairDryRun, "dry-run", false, "Report what a repair would do without changing anything")
	rootCmd.AddCommand(repairCmd)
}

func runRepair(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(repairScope, repairTarget)
	if err != nil {
		return err
	}
	if !pathscope.IsInstalled(root) {
		return errdefs.Newf(errdefs.ENotInstalled,
			"nothing installed at %s; run 'install' first", root)
	}

	sourceRoot := ""
	if len(args) == 1 {
		sourceRoot = args[0]
	} else {
		sourceRoot, err = bundle.DiscoverSource()
		if err != nil {
			return errdefs.Wrap(errdefs.ESourceMissing,
				"repair needs the bundle source to restore from: "+err.Error(), err)
		}
	}
	meta, err := bundle.LoadMeta(sourceRoot)
	if err != nil {
		return errdefs.Wrap(errdefs.EBundleInvalid, err.Error(), err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Checking installation at %s\n\n", root)
	report := integrity.New(root, ownershipPatterns()).CheckAll(integrity.Options{})
	printHealthReport(cmd, report)

	if report.Passed {
		fmt.Fprintln(cmd.OutOrStdout(), "\n✓ Installation is healthy; nothing to repair.")
		return nil
	}

	if repairDryRun {
		fmt.Fprintf(cmd.OutOrStdout(),
			"\nDry run: would reinstall %s %s to restore the installation.\n", meta.Name, meta.Version)
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nReinstalling %s %s to restore the installation...\n", meta.Name, meta.Version)

	unlock, err := lock.New(root).Acquire("repair")
	if err != nil {
		return err
	}
	defer unlock()

	res, err := installer.New().Install(cmd.Context(), sourceRoot, root, installer.Options{
		Version: meta.Version,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Restored %d file(s).\n", res.FilesCopied)
	return nil
}
