package downloadcache

import (
	"context"
	"io"
)

// Fetcher is the sole transport contract this core consumes (spec.md §1:
// "only the fetch(url) -> bytes contract is consumed"). Implementations
// live outside the core (the CLI's HTTP client).
//
// Fetch retrieves url starting at byte offset `from` (0 for the whole
// resource). If the transport honors byte ranges it returns
// supportsRange=true and a stream starting exactly at `from`; otherwise it
// returns supportsRange=false and a stream starting at byte 0, and the
// cache restarts the download from scratch (spec.md §4.1 step 3).
type Fetcher interface {
	Fetch(ctx context.Context, url string, from int64) (stream io.ReadCloser, supportsRange bool, err error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string, from int64) (io.ReadCloser, bool, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string, from int64) (io.ReadCloser, bool, error) {
	return f(ctx, url, from)
}
