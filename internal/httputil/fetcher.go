package httputil

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	neturl "net/url"

	"github.com/toolchain-dist/tooldist/internal/downloadcache"
)

// HTTPFetcher adapts NewSecureClient into spec.md §1's sole transport
// contract: downloadcache.Fetcher. It is the only place in this repo that
// imports net/http directly — the core (downloadcache, manifestation,
// update, v1fallback, manifestsig) only ever sees the Fetcher interface,
// matching spec.md §1's "only the fetch(url) -> bytes contract is
// consumed" and §9's "pick one model... The Download cache should not
// leak the choice upward".
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a Fetcher backed by a hardened http.Client
// (SSRF/redirect protections, compression disabled) configured from opts.
func NewHTTPFetcher(opts ClientOptions) *HTTPFetcher {
	return &HTTPFetcher{client: NewSecureClient(opts)}
}

// Fetch issues a GET for url, requesting a byte range starting at from
// when from > 0. It reports supportsRange=true only when the server
// answered with 206 Partial Content; any other successful status means
// the stream starts at byte 0 regardless of what was requested, matching
// downloadcache.Fetcher's contract.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, from int64) (io.ReadCloser, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("httputil: failed to build request for %s: %w", url, err)
	}
	if from > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", from))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, false, &downloadcache.TransportError{URL: url, Err: err, Retriable: isRetriable(err)}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, false, nil
	case http.StatusPartialContent:
		return resp.Body, true, nil
	case http.StatusNotFound, http.StatusGone:
		resp.Body.Close()
		return nil, false, &downloadcache.DownloadNotExistsError{URL: url}
	case http.StatusRequestedRangeNotSatisfiable:
		resp.Body.Close()
		// The server considers `from` past EOF — most often a stale
		// .partial left over from a previous, now-superseded upload.
		// Restart from zero instead of failing outright.
		return f.fetchFromZero(ctx, url)
	default:
		resp.Body.Close()
		err := fmt.Errorf("unexpected status %s for %s", resp.Status, url)
		return nil, false, &downloadcache.TransportError{URL: url, Err: err, Retriable: resp.StatusCode >= 500}
	}
}

func (f *HTTPFetcher) fetchFromZero(ctx context.Context, url string) (io.ReadCloser, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("httputil: failed to build request for %s: %w", url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, false, &downloadcache.TransportError{URL: url, Err: err, Retriable: isRetriable(err)}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, false, &downloadcache.TransportError{URL: url, Err: fmt.Errorf("status %s", resp.Status), Retriable: resp.StatusCode >= 500}
	}
	return resp.Body, false, nil
}

// isRetriable classifies a transport-level error as transient (timeout,
// connection reset, DNS lookup failure) per spec.md §4.1 step 6 — any
// error surfaced through the net package's own error type.
func isRetriable(err error) bool {
	for err != nil {
		// *url.Error also satisfies net.Error, so look through it to the
		// cause instead of treating every client.Do failure as transient.
		if _, isURLErr := err.(*neturl.Error); !isURLErr {
			if _, ok := err.(net.Error); ok {
				return true
			}
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
