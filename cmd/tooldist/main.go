// Command tooldist is a thin Cobra front-end over the reconciliation core
// (internal/update, internal/manifestation): CLI parsing, prompts, and
// progress rendering are explicitly out of the core's scope (spec.md §1),
// so this package owns them and consumes the core only through its
// exported types.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/toolchain-dist/tooldist/internal/ddlog"
	"github.com/toolchain-dist/tooldist/internal/distconfig"
)

var (
	quietFlag   bool
	verboseFlag bool
	debugFlag   bool
)

// globalCtx is canceled on SIGINT/SIGTERM; long-running commands pass it
// through to internal/update.Updater.Run and internal/manifestation.Update.
var globalCtx context.Context
var globalCancel context.CancelFunc

var rootCmd = &cobra.Command{
	Use:   "tooldist",
	Short: "A crash-safe installer for versioned toolchain components",
	Long: `tooldist reconciles a declarative channel manifest against an
installed prefix, performing atomic install/update/uninstall of a set of
versioned components - preserving previously chosen extensions across
channel updates, honoring minimal/default/complete profiles, and
backtracking across nightly dates when a requested component is missing.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Show errors only")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Show verbose output (INFO level)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Show debug output (includes source locations)")

	rootCmd.PersistentPreRun = initLogger

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(componentCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	globalCtx, globalCancel = context.WithCancel(context.Background())
	defer globalCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived %s, canceling operation...\n", sig)
		globalCancel()

		<-sigChan
		fmt.Fprintln(os.Stderr, "Forced exit")
		exitWithCode(ExitCancelled)
	}()

	if err := rootCmd.Execute(); err != nil {
		if globalCtx.Err() == context.Canceled {
			exitWithCode(ExitCancelled)
		}
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(ExitGeneral)
	}
}

// initLogger wires ddlog's global default from flags/env, following the
// same flags-over-env-over-default precedence as distconfig's tunables.
func initLogger(cmd *cobra.Command, args []string) {
	level := determineLogLevel()
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug})
	ddlog.SetDefault(ddlog.New(handler))
}

func determineLogLevel() slog.Level {
	if debugFlag {
		return slog.LevelDebug
	}
	if verboseFlag {
		return slog.LevelInfo
	}
	if quietFlag {
		return slog.LevelError
	}
	if isTruthy(os.Getenv("TOOLDIST_DEBUG")) {
		return slog.LevelDebug
	}
	if isTruthy(os.Getenv("TOOLDIST_VERBOSE")) {
		return slog.LevelInfo
	}
	if isTruthy(os.Getenv("TOOLDIST_QUIET")) {
		return slog.LevelError
	}
	return slog.LevelWarn
}

func isTruthy(s string) bool {
	s = strings.ToLower(s)
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

func printError(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
}

// distRoot returns the base URL tooldist resolves channel manifests
// against, overridable for pointing at a mirror or a test server.
func distRoot() string {
	if v := os.Getenv("TOOLDIST_DIST_ROOT"); v != "" {
		return v
	}
	return "https://dist.example.com"
}

func defaultPaths() *distconfig.Paths {
	paths, err := distconfig.DefaultPaths()
	if err != nil {
		printError(err)
		exitWithCode(ExitGeneral)
	}
	if err := paths.EnsureDirectories(); err != nil {
		printError(err)
		exitWithCode(ExitGeneral)
	}
	return paths
}
