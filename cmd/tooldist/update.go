package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toolchain-dist/tooldist/internal/update"
)

var (
	updateComponents     []string
	updateTargets        []string
	updateForce          bool
	updateAllowDowngrade bool
)

var updateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Reconcile an already-installed prefix against its channel's latest manifest",
	Long: `Update re-fetches the named prefix's channel manifest and reconciles
the installed component set against it, preserving previously installed
extensions and applying renames (spec.md §4.4/§4.5).

The prefix name must already exist (created by "tooldist install"); its
channel is recovered from the name's "<channel>-<host>" convention unless
overridden with --channel.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]
		a := newApp()
		inst := a.installerFor(name)

		channel, _ := cmd.Flags().GetString("channel")
		if channel == "" {
			channel = channelFromName(name, a.host)
		}

		storedHash := readUpdateHashSentinel(inst.prefix.Root)

		req := update.Request{
			Channel:               channel,
			ExplicitAddComponents: parseComponentIDs(updateComponents),
			AddTargets:            updateTargets,
			Force:                 updateForce,
			AllowDowngrade:        updateAllowDowngrade || a.settings.DefaultAllowDowngrade,
			StoredManifestHash:    storedHash,
		}

		result, err := inst.updater.Run(globalCtx, req)
		if err != nil {
			handleCoreError(err)
		}

		if result.ManifestHash != "" {
			writeUpdateHashSentinel(inst.prefix.Root, result.ManifestHash)
		}
		fmt.Printf("%s: %s (date %s)\n", name, result.Status, result.Date)
	},
}

func init() {
	updateCmd.Flags().String("channel", "", "override the channel recovered from the prefix name")
	updateCmd.Flags().StringSliceVarP(&updateComponents, "component", "c", nil, "additional component to install (repeatable)")
	updateCmd.Flags().StringSliceVarP(&updateTargets, "target", "t", nil, "additional cross-compilation target to install rust-std for (repeatable)")
	updateCmd.Flags().BoolVar(&updateForce, "force", false, "continue past unavailable components instead of failing")
	updateCmd.Flags().BoolVar(&updateAllowDowngrade, "allow-downgrade", false, "allow backtracking past the installed toolchain's own date")
}

// channelFromName recovers the channel from the "<channel>-<host>" prefix
// naming convention used by the install command's default --name.
func channelFromName(name, host string) string {
	if suffix := "-" + host; strings.HasSuffix(name, suffix) {
		return strings.TrimSuffix(name, suffix)
	}
	return name
}

// updateHashSentinelPath is spec.md §6.3's optional caller-persisted path,
// stored alongside the other per-prefix metadata.
func updateHashSentinelPath(prefixRoot string) string {
	return filepath.Join(prefixRoot, "lib", "rustlib", "update-hash")
}

func readUpdateHashSentinel(prefixRoot string) string {
	data, err := os.ReadFile(updateHashSentinelPath(prefixRoot))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func writeUpdateHashSentinel(prefixRoot, hash string) {
	path := updateHashSentinelPath(prefixRoot)
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	_ = os.WriteFile(path, []byte(hash), 0644)
}
