package main

import "os"

// Exit codes for different failure modes, letting scripts distinguish
// them without parsing stderr.
const (
	ExitSuccess     = 0
	ExitGeneral     = 1
	ExitUsage       = 2
	ExitNetwork     = 3
	ExitInstallFail = 4
	ExitCancelled   = 5
)

func exitWithCode(code int) {
	os.Exit(code)
}
