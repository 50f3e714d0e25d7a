package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentpack-dev/agentpack/internal/bundle"
	"github.com/agentpack-dev/agentpack/internal/errdefs"
	"github.com/agentpack-dev/agentpack/internal/installer"
	"github.com/agentpack-dev/agentpack/internal/lock"
)

var (
	installScope        string
	installTarget       string
	installDryRun       bool
	installYes          bool
	installVerifySource bool
)

var installCmd = &cobra.Command{
	Use:   "install [<bundle-dir>]",
	Short: "Install the bundle into an installation root",
	Long: `Install the bundle's agent, command, and template assets. Files are
staged in full and swapped into place atomically; the target never holds a
partially written tree. Every written file is recorded in the manifest.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVar(&installScope, "scope", "", "Installation scope: global or project")
	installCmd.Flags().StringVar(&installTarget, "target", "", "Explicit installation root (overrides --scope)")
	installCmd.Flags().BoolVar(&installDryRun, "dry-run", false, "Preview without touching the filesystem")
	installCmd.Flags().BoolVarP(&installYes, "yes", "y", false, "Skip confirmation prompt")
	installCmd.Flags().BoolVar(&installVerifySource, "verify-source", false, "Validate bundle frontmatter before installing")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	sourceRoot := ""
	if len(args) == 1 {
		sourceRoot = args[0]
	} else {
		discovered, err := bundle.DiscoverSource()
		if err != nil {
			return errdefs.Wrap(errdefs.ESourceMissing, err.Error(), err)
		}
		sourceRoot = discovered
	}

	meta, err := bundle.LoadMeta(sourceRoot)
	if err != nil {
		return errdefs.Wrap(errdefs.EBundleInvalid, err.Error(), err)
	}

	if installVerifySource {
		_, issues, err := bundle.Load(sourceRoot)
		if err != nil {
			return errdefs.Wrap(errdefs.EBundleInvalid, err.Error(), err)
		}
		if len(issues) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Bundle validation found %d issue(s):\n", len(issues))
			for _, is := range issues {
				fmt.Fprintf(cmd.OutOrStdout(), "  ✗ %s\n", is)
			}
			return errdefs.Newf(errdefs.EBundleInvalid,
				"bundle %s failed validation; nothing was installed", meta.Name)
		}
	}

	root, err := resolveRoot(installScope, installTarget)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Installing %s %s into %s\n", meta.Name, meta.Version, root)

	if installDryRun {
		res, err := installer.New().Install(cmd.Context(), sourceRoot, root, installer.Options{
			Version: meta.Version,
			DryRun:  true,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Dry run: %d file(s) would be written:\n", res.FilesCopied)
		for _, pf := range res.Planned {
			line := fmt.Sprintf("  + %s (%d bytes)", pf.RelativePath, pf.Size)
			if pf.TokenHits > 0 {
				line += fmt.Sprintf(", %d path reference(s) rewritten", pf.TokenHits)
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	}

	if !installYes && !confirm(cmd, "Proceed with installation?") {
		fmt.Fprintln(cmd.OutOrStdout(), "Installation cancelled.")
		return nil
	}

	unlock, err := lock.New(root).Acquire("install")
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

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Installed %d file(s).\n", res.FilesCopied)
	fmt.Fprintf(cmd.OutOrStdout(), "  Manifest: %s\n", res.ManifestPath)
	return nil
}

// confirm prompts on stdin; empty input means yes.
func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "? %s (Y/n) ", prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
	return answer == "" || answer == "y" || answer == "yes"
}
