package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toolchain-dist/tooldist/internal/manifest"
	"github.com/toolchain-dist/tooldist/internal/update"
)

var (
	installProfile        string
	installComponents     []string
	installTargets        []string
	installForce          bool
	installAllowDowngrade bool
	installName           string
	installDate           string
)

var installCmd = &cobra.Command{
	Use:   "install <channel>",
	Short: "Install a channel (stable, beta, or nightly) into a fresh prefix",
	Long: `Install reconciles a fresh or existing prefix against the named
channel's manifest, expanding the requested profile on first install and
backtracking across nightly dates when a requested component is missing.

Examples:
  tooldist install stable
  tooldist install nightly --profile minimal
  tooldist install nightly -c rls --allow-downgrade
  tooldist install nightly --date 2019-09-13`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		channel := args[0]
		a := newApp()
		name := installName
		if name == "" {
			name = fmt.Sprintf("%s-%s", channel, a.host)
		}
		inst := a.installerFor(name)

		req := update.Request{
			Channel:               channel,
			Date:                  installDate,
			Profile:               installProfile,
			ExplicitAddComponents: parseComponentIDs(installComponents),
			AddTargets:            installTargets,
			Force:                 installForce,
			AllowDowngrade:        installAllowDowngrade || a.settings.DefaultAllowDowngrade,
		}

		result, err := inst.updater.Run(globalCtx, req)
		if err != nil {
			handleCoreError(err)
		}

		fmt.Printf("%s: %s (date %s)\n", name, result.Status, result.Date)
	},
}

func init() {
	installCmd.Flags().StringVar(&installProfile, "profile", "default", "profile to expand on first install (minimal, default, complete)")
	installCmd.Flags().StringSliceVarP(&installComponents, "component", "c", nil, "additional component to install (repeatable)")
	installCmd.Flags().StringSliceVarP(&installTargets, "target", "t", nil, "additional cross-compilation target to install rust-std for (repeatable)")
	installCmd.Flags().BoolVar(&installForce, "force", false, "continue past unavailable components instead of failing")
	installCmd.Flags().BoolVar(&installAllowDowngrade, "allow-downgrade", false, "allow backtracking past the installed toolchain's own date")
	installCmd.Flags().StringVar(&installName, "name", "", "prefix name (defaults to <channel>-<host-triple>)")
	installCmd.Flags().StringVar(&installDate, "date", "", "pin to a specific release date, disabling backtracking")
}

// parseComponentIDs turns "pkg" or "pkg@target" CLI args into ComponentIDs.
// A bare name is treated as wildcard (resolved to the host target inside
// manifestation.Update, per DESIGN.md's wildcard-normalization decision).
func parseComponentIDs(names []string) []manifest.ComponentID {
	ids := make([]manifest.ComponentID, 0, len(names))
	for _, n := range names {
		ids = append(ids, parseComponentID(n))
	}
	return ids
}

func parseComponentID(name string) manifest.ComponentID {
	if idx := strings.Index(name, "@"); idx >= 0 {
		return manifest.ComponentID{Pkg: name[:idx], Target: name[idx+1:]}
	}
	return manifest.ComponentID{Pkg: name, Target: manifest.Wildcard}
}
