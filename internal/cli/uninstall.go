package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentpack-dev/agentpack/internal/backup"
	"github.com/agentpack-dev/agentpack/internal/config"
	"github.com/agentpack-dev/agentpack/internal/lock"
	"github.com/agentpack-dev/agentpack/internal/manifest"
	"github.com/agentpack-dev/agentpack/internal/pathscope"
	"github.com/agentpack-dev/agentpack/internal/uninstaller"
)

var (
	uninstallScope    string
	uninstallTarget   string
	uninstallDryRun   bool
	uninstallForce    bool
	uninstallNoBackup bool
	uninstallYes      bool
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove installed bundle assets from an installation root",
	Long: `Remove every file the bundle owns from the installation root. Only
files inside the bundle's namespaces are candidates; everything else in the
shared directory is left untouched. Directories emptied by the removal are
pruned, directories that still hold other content are preserved.`,
	RunE: runUninstall,
}

func init() {
	uninstallCmd.Flags().StringVar(&uninstallScope, "scope", "", "Installation scope: global or project")
	uninstallCmd.Flags().StringVar(&uninstallTarget, "target", "", "Explicit installation root (overrides --scope)")
	uninstallCmd.Flags().BoolVar(&uninstallDryRun, "dry-run", false, "Preview without deleting anything")
	uninstallCmd.Flags().BoolVar(&uninstallForce, "force", false, "Proceed without confirmation")
	uninstallCmd.Flags().BoolVar(&uninstallNoBackup, "no-backup", false, "Skip pre-delete backups")
	uninstallCmd.Flags().BoolVarP(&uninstallYes, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(uninstallScope, uninstallTarget)
	if err != nil {
		return err
	}

	if !pathscope.IsInstalled(root) && !hasOwnedContent(root) {
		fmt.Fprintf(cmd.OutOrStdout(), "Nothing installed at %s.\n", root)
		return nil
	}

	m, err := manifest.Load(root)
	if err != nil {
		var corrupt *manifest.CorruptError
		if !errors.As(err, &corrupt) {
			return err
		}
		// A manifest we cannot parse is worse than no manifest; trusting
		// partial data could delete the wrong files. Fall back to the
		// structural namespace scan.
		fmt.Fprintf(cmd.OutOrStdout(),
			"! Manifest at %s is unreadable; falling back to a namespace scan.\n", corrupt.Path)
		m = nil
	} else if m == nil {
		fmt.Fprintln(cmd.OutOrStdout(),
			"! No manifest found; falling back to a namespace scan.")
	}

	mode := "manifest"
	if m == nil {
		mode = "fallback (namespace scan)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Uninstalling from %s (%s)\n", root, mode)

	skipPrompt := uninstallYes || uninstallForce
	if !uninstallDryRun && !skipPrompt && !confirm(cmd, "Remove the bundle's files?") {
		fmt.Fprintln(cmd.OutOrStdout(), "Uninstall cancelled.")
		return nil
	}

	var unlock func() error
	if !uninstallDryRun {
		unlock, err = lock.New(root).Acquire("uninstall")
		if err != nil {
			return err
		}
		defer unlock()
	}

	retention := config.GetInt(config.KeyBackupRetention)
	if retention <= 0 {
		retention = backup.DefaultRetention
	}
	noBackup := uninstallNoBackup || !config.GetBool(config.KeyBackupEnabled)

	res, err := uninstaller.Uninstall(root, m, ownershipPatterns(), uninstaller.Options{
		DryRun:    uninstallDryRun,
		NoBackup:  noBackup,
		Retention: retention,
	})
	if err != nil {
		return err
	}

	printUninstallResult(cmd, res, uninstallDryRun)
	return nil
}

// hasOwnedContent reports whether any namespace root exists on disk.
// Covers the case where the bundle's metadata directory was deleted but
// its assets remain; those are still removable by structural match.
func hasOwnedContent(root string) bool {
	for _, rel := range ownershipPatterns().ScanRoots() {
		if info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

func printUninstallResult(cmd *cobra.Command, res *uninstaller.Result, dryRun bool) {
	out := cmd.OutOrStdout()
	verb := "Removed"
	if dryRun {
		verb = "Would remove"
	}

	fmt.Fprintf(out, "%s %d file(s).\n", verb, len(res.Removed))
	for _, rel := range res.Removed {
		fmt.Fprintf(out, "  - %s\n", rel)
	}
	for _, rel := range res.SkippedMissing {
		fmt.Fprintf(out, "  = %s (already absent)\n", rel)
	}
	for _, rel := range res.Divergent {
		fmt.Fprintf(out, "  ! %s had been modified since install\n", rel)
	}
	for _, dir := range res.PrunedDirs {
		fmt.Fprintf(out, "  - %s/ (emptied)\n", dir)
	}
	for _, dir := range res.PreservedDirs {
		fmt.Fprintf(out, "  = %s/ preserved (contains other files)\n", dir)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  ! %s\n", w)
	}
}
