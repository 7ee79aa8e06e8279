package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed toolchain prefixes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := newApp()
		entries, err := os.ReadDir(a.paths.PrefixDir)
		if err != nil {
			if os.IsNotExist(err) {
				return
			}
			printError(err)
			exitWithCode(ExitGeneral)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Println(n)
		}
	},
}
