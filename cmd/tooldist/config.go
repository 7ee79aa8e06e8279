package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toolchain-dist/tooldist/internal/settings"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or change user settings (settings.toml)",
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value of a setting",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := settings.Load()
		if err != nil {
			printError(err)
			exitWithCode(ExitGeneral)
		}
		v, err := s.Get(args[0])
		if err != nil {
			printError(err)
			exitWithCode(ExitUsage)
		}
		fmt.Println(v)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set and persist a setting",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := settings.Load()
		if err != nil {
			printError(err)
			exitWithCode(ExitGeneral)
		}
		if err := s.Set(args[0], args[1]); err != nil {
			printError(err)
			exitWithCode(ExitUsage)
		}
		if err := s.Save(); err != nil {
			printError(err)
			exitWithCode(ExitGeneral)
		}
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available setting keys",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(strings.Join(settings.AvailableKeys(), "\n"))
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configListCmd)
}
