package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/toolchain-dist/tooldist/internal/manifest"
	"github.com/toolchain-dist/tooldist/internal/manifestation"
	"github.com/toolchain-dist/tooldist/internal/state"
)

var componentCmd = &cobra.Command{
	Use:   "component",
	Short: "Add, remove, or list components within an installed prefix",
}

var componentAddCmd = &cobra.Command{
	Use:   "add <name> <component>...",
	Short: "Add one or more components (or extensions) to an installed prefix",
	Long: `component add reconciles against the prefix's own already-pinned
manifest (written by the last successful install/update), so it never
refetches the channel - it can only add components available on the date
the prefix is currently pinned to. Run "tooldist update <name>" first to
move to a newer date.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runComponentChange(args[0], parseComponentIDs(args[1:]), nil)
	},
}

var componentRemoveCmd = &cobra.Command{
	Use:   "remove <name> <component>...",
	Short: "Remove one or more installed components",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runComponentChange(args[0], nil, parseComponentIDs(args[1:]))
	},
}

var componentListCmd = &cobra.Command{
	Use:   "list <name>",
	Short: "List installed components for a prefix",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := newApp()
		inst := a.installerFor(args[0])
		cfg, err := state.Load(inst.prefix.InstalledConfigPath())
		if err != nil {
			printError(err)
			exitWithCode(ExitGeneral)
		}
		rows := append([]state.ComponentRow(nil), cfg.Components...)
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Pkg != rows[j].Pkg {
				return rows[i].Pkg < rows[j].Pkg
			}
			return rows[i].Target < rows[j].Target
		})
		for _, row := range rows {
			fmt.Printf("%s-%s\n", row.Pkg, row.Target)
		}
	},
}

func init() {
	componentCmd.AddCommand(componentAddCmd, componentRemoveCmd, componentListCmd)
}

// runComponentChange reconciles name's prefix against its own pinned
// manifest with the given add/remove delta, with no network fetch beyond
// the components' own tarballs.
func runComponentChange(name string, adds, removes []manifest.ComponentID) {
	a := newApp()
	inst := a.installerFor(name)

	raw, err := os.ReadFile(inst.prefix.ManifestConfigPath())
	if err != nil {
		printError(fmt.Errorf("no pinned manifest for %q - run \"tooldist install\" first: %w", name, err))
		exitWithCode(ExitUsage)
	}
	m, err := manifest.Parse(raw, inst.prefix.ManifestConfigPath())
	if err != nil {
		printError(err)
		exitWithCode(ExitGeneral)
	}

	dl := manifestation.DownloadConfig{Cache: inst.cache, Fetcher: inst.fetcher}
	status, err := inst.manifestation.Update(globalCtx, m, raw, manifestation.Changes{
		ExplicitAddComponents: adds,
		RemoveComponents:      removes,
	}, false, dl, m.Date, "")
	if err != nil {
		handleCoreError(err)
	}
	fmt.Printf("%s: %s\n", name, status)
}
