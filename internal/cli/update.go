package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentpack-dev/agentpack/internal/backup"
	"github.com/agentpack-dev/agentpack/internal/bundle"
	"github.com/agentpack-dev/agentpack/internal/config"
	"github.com/agentpack-dev/agentpack/internal/errdefs"
	"github.com/agentpack-dev/agentpack/internal/installer"
	"github.com/agentpack-dev/agentpack/internal/integrity"
	"github.com/agentpack-dev/agentpack/internal/lock"
	"github.com/agentpack-dev/agentpack/internal/pathscope"
)

var (
	updateScope  string
	updateTarget string
	updateDryRun bool
	updateForce  bool
)

var updateCmd = &cobra.Command{
	Use:   "update [<bundle-dir>]",
	Short: "Update an installation to the bundle's current version",
	Long: `Compare the installed version against the bundle's version and, when
the bundle is newer, reinstall through the staged atomic swap. An update that
fails mid-flight leaves the previous installation in place.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().StringVar(&updateScope, "scope", "", "Installation scope: global or project")
	updateCmd.Flags().StringVar(&updateTarget, "target", "", "Explicit installation root (overrides --scope)")
	updateCmd.Flags().BoolVar(&updateDryRun, "dry-run", false, "Report whether an update would run without changing anything")
	updateCmd.Flags().BoolVar(&updateForce, "force", false, "Reinstall even when the installed version is not older")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(updateScope, updateTarget)
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
			return errdefs.Wrap(errdefs.ESourceMissing, err.Error(), err)
		}
	}
	meta, err := bundle.LoadMeta(sourceRoot)
	if err != nil {
		return errdefs.Wrap(errdefs.EBundleInvalid, err.Error(), err)
	}

	installed := installedVersion(root)
	fmt.Fprintf(cmd.OutOrStdout(), "Installed: %s\n", orUnknown(installed))
	fmt.Fprintf(cmd.OutOrStdout(), "Bundle:    %s\n", meta.Version)

	needsUpdate := updateForce
	if !needsUpdate {
		if installed == "" {
			// Missing marker; the safe direction is to reinstall.
			needsUpdate = true
		} else {
			newer, err := integrity.IsNewer(installed, meta.Version)
			if err != nil {
				return errdefs.Wrap(errdefs.EVersionInvalid, err.Error(), err)
			}
			needsUpdate = newer
		}
	}

	if !needsUpdate {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Already up to date.")
		return nil
	}

	if updateDryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "Dry run: would update to %s.\n", meta.Version)
		return nil
	}

	unlock, err := lock.New(root).Acquire("update")
	if err != nil {
		return err
	}
	defer unlock()

	// Locally modified files are about to be replaced; keep a copy.
	report := integrity.New(root, ownershipPatterns()).CheckAll(integrity.Options{})
	if len(report.DriftFiles) > 0 {
		retention := config.GetInt(config.KeyBackupRetention)
		mgr := backup.NewManager(root, retention)
		for _, rel := range report.DriftFiles {
			br := mgr.BackupFile(filepath.Join(root, filepath.FromSlash(rel)), rel)
			if br.Err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "! could not back up %s: %v\n", rel, br.Err)
			} else if br.BackupPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  saved %s -> %s\n", rel, br.BackupPath)
			}
		}
	}

	res, err := installer.New().Install(cmd.Context(), sourceRoot, root, installer.Options{
		Version: meta.Version,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Updated to %s (%d file(s)).\n", meta.Version, res.FilesCopied)
	return nil
}

// installedVersion reads the version marker; empty string when unreadable.
func installedVersion(root string) string {
	data, err := os.ReadFile(pathscope.VersionPath(root))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func orUnknown(v string) string {
	if v == "" {
		return "(unknown)"
	}
	return v
}
