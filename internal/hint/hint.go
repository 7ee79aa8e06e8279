// Package hint turns a raw core error into an actionable CLI-facing
// message: possible causes plus suggested next steps, dispatched off the
// core's own structured error types where available and falling back to
// message-sniffing for transport errors that don't carry one.
package hint

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/toolchain-dist/tooldist/internal/downloadcache"
	"github.com/toolchain-dist/tooldist/internal/manifestation"
	"github.com/toolchain-dist/tooldist/internal/update"
)

// Context supplies optional detail a hint can reference.
type Context struct {
	Channel string
}

// Format returns err's message followed by possible causes and
// suggestions. ctx may be nil for generic formatting.
func Format(err error, ctx *Context) string {
	if err == nil {
		return ""
	}

	var backtrackExhausted *update.BacktrackExhaustedError
	if errors.As(err, &backtrackExhausted) {
		return formatBacktrackExhausted(backtrackExhausted, ctx)
	}

	var downgradeRejected *update.DowngradeRejectedError
	if errors.As(err, &downgradeRejected) {
		return formatDowngradeRejected(downgradeRejected)
	}

	var missingRelease *update.MissingReleaseForToolchainError
	if errors.As(err, &missingRelease) {
		return formatMissingRelease(missingRelease)
	}

	var rotation *update.ManifestChecksumRotationError
	if errors.As(err, &rotation) {
		return formatRotation(rotation)
	}

	var checksumFailed *downloadcache.ChecksumFailedError
	if errors.As(err, &checksumFailed) {
		return formatChecksumFailed(checksumFailed)
	}

	var notExists *downloadcache.DownloadNotExistsError
	if errors.As(err, &notExists) {
		return formatNotExists(notExists)
	}

	var componentsMissing *manifestation.ComponentsMissingError
	if errors.As(err, &componentsMissing) {
		return formatComponentsMissing(componentsMissing, ctx)
	}

	var removeRequired *manifestation.RemoveRequiredError
	if errors.As(err, &removeRequired) {
		return formatRemoveRequired(removeRequired)
	}

	var fileConflict *manifestation.FileConflictError
	if errors.As(err, &fileConflict) {
		return formatFileConflict(fileConflict)
	}

	errMsg := err.Error()

	var netErr net.Error
	if errors.As(err, &netErr) {
		return formatNetworkError(netErr)
	}
	if isNetworkError(errMsg) {
		return formatGenericNetworkError(errMsg)
	}
	if isPermissionError(errMsg) {
		return formatPermissionError(errMsg)
	}

	return errMsg
}

func formatBacktrackExhausted(e *update.BacktrackExhaustedError, ctx *Context) string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	sb.WriteString("\n\nPossible causes:\n")
	sb.WriteString("  - The requested component has not been built for several days on this channel\n")
	sb.WriteString("  - The component was recently added or renamed and has no history yet\n")
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Increase the backtrack limit via the environment override and retry\n")
	sb.WriteString("  - Pass --allow-downgrade to search further back than the installed toolchain's date\n")
	if ctx != nil && ctx.Channel != "" {
		sb.WriteString(fmt.Sprintf("  - Check the %s channel's component availability page\n", ctx.Channel))
	}
	return sb.String()
}

func formatDowngradeRejected(e *update.DowngradeRejectedError) string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	sb.WriteString("\n\nPossible causes:\n")
	sb.WriteString("  - The component has never shipped on a date at or after the installed toolchain\n")
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Pass --allow-downgrade to search back past the installed toolchain's date\n")
	return sb.String()
}

func formatMissingRelease(e *update.MissingReleaseForToolchainError) string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	sb.WriteString("\n\nPossible causes:\n")
	sb.WriteString("  - The channel name is misspelled\n")
	sb.WriteString("  - The requested date predates this channel's first release\n")
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check the channel name (stable, beta, nightly, or a pinned version)\n")
	return sb.String()
}

func formatRotation(e *update.ManifestChecksumRotationError) string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	sb.WriteString("\n\nPossible causes:\n")
	sb.WriteString("  - The release server is mid-rotation and briefly inconsistent\n")
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Try again in a few minutes\n")
	return sb.String()
}

func formatChecksumFailed(e *downloadcache.ChecksumFailedError) string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	sb.WriteString("\n\nPossible causes:\n")
	sb.WriteString("  - A corrupted or truncated download was cached\n")
	sb.WriteString("  - The release server is serving inconsistent content\n")
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Clear the download cache entry for this URL and retry\n")
	return sb.String()
}

func formatNotExists(e *downloadcache.DownloadNotExistsError) string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	sb.WriteString("\n\nPossible causes:\n")
	sb.WriteString("  - This component or target combination does not exist\n")
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check the component and target names for typos\n")
	return sb.String()
}

func formatComponentsMissing(e *manifestation.ComponentsMissingError, ctx *Context) string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	sb.WriteString("\n\nPossible causes:\n")
	sb.WriteString("  - The component has not been built yet for this date/target\n")
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Retry on a nightly channel to let backtracking find an earlier date\n")
	sb.WriteString("  - Pass --force to install anyway, skipping unavailable components\n")
	return sb.String()
}

func formatRemoveRequired(e *manifestation.RemoveRequiredError) string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	sb.WriteString("\n\nPossible causes:\n")
	sb.WriteString("  - The channel manifest lists the component as required (not an extension) for this host\n")
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Remove the whole toolchain with \"tooldist remove\" instead\n")
	return sb.String()
}

func formatFileConflict(e *manifestation.FileConflictError) string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	sb.WriteString("\n\nPossible causes:\n")
	sb.WriteString("  - Another component already owns this file\n")
	sb.WriteString("  - A previous install left behind an untracked file at this path\n")
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Remove the conflicting component first\n")
	return sb.String()
}

func formatNetworkError(err net.Error) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n\nPossible causes:\n")
	if err.Timeout() {
		sb.WriteString("  - Request timed out\n")
		sb.WriteString("  - Slow or unstable network connection\n")
	} else {
		sb.WriteString("  - Network connectivity issue\n")
		sb.WriteString("  - DNS resolution failure\n")
	}
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check your internet connection\n")
	sb.WriteString("  - Try again in a few minutes\n")
	return sb.String()
}

func formatGenericNetworkError(errMsg string) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n\nPossible causes:\n")
	sb.WriteString("  - Network connectivity issue\n")
	sb.WriteString("  - Service temporarily unavailable\n")
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check your internet connection\n")
	sb.WriteString("  - Try again in a few minutes\n")
	return sb.String()
}

func formatPermissionError(errMsg string) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n\nPossible causes:\n")
	sb.WriteString("  - Insufficient permissions on the prefix directory\n")
	sb.WriteString("  - The prefix is owned by a different user\n")
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check ownership and permissions on the prefix directory\n")
	return sb.String()
}

func isNetworkError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "network is unreachable") ||
		strings.Contains(lower, "dial tcp") ||
		strings.Contains(lower, "i/o timeout")
}

func isPermissionError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "operation not permitted")
}
