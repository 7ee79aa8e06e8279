package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Uninstall an entire toolchain prefix",
	Long: `remove deletes the named prefix and every file under it - a
coarser operation than "tooldist component remove", which reconciles
individual components through a Transaction. Whole-prefix removal has no
rollback: it is not resumable across crashes the way install/update is,
since there is no partial state worth preserving once the operator has
asked for the whole prefix gone.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := newApp()
		inst := a.installerFor(args[0])

		if _, err := os.Stat(inst.prefix.Root); os.IsNotExist(err) {
			printError(fmt.Errorf("no such prefix: %s", args[0]))
			exitWithCode(ExitUsage)
		}

		if err := os.RemoveAll(inst.prefix.Root); err != nil {
			printError(err)
			exitWithCode(ExitGeneral)
		}
		fmt.Printf("%s: removed\n", args[0])
	},
}
