package update

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// sidecarPrefetchWindow/sidecarPrefetchConcurrency bound the speculative
// read-only probe of upcoming backtracking candidates: how many calendar
// dates ahead of the current failure to warm, and how many of those
// probes may be in flight at once.
const (
	sidecarPrefetchWindow      = 5
	sidecarPrefetchConcurrency = 3
)

// sidecarPrefetcher speculatively warms the `.sha256` sidecar cache for a
// band of candidate backtracking dates while the current date's install is
// still being attempted, so that a subsequent backtrack step can skip the
// sidecar round trip. This is a read-only probe: it never fetches or
// applies a manifest, and never affects Manifestation's own sequential
// apply order (spec.md §5).
type sidecarPrefetcher struct {
	mu      sync.Mutex
	results map[string]sidecarResult
}

type sidecarResult struct {
	hash string
	err  error
}

func newSidecarPrefetcher() *sidecarPrefetcher {
	return &sidecarPrefetcher{results: make(map[string]sidecarResult)}
}

// warm fetches the sidecar hash for each of the next sidecarPrefetchWindow
// calendar dates before date, stopping at floor. Individual fetch errors
// are cached per-date rather than surfaced: a failed prefetch just means
// the main loop fetches that date itself when (and if) it gets there.
func (p *sidecarPrefetcher) warm(ctx context.Context, u *Updater, channel, date, floor string) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sidecarPrefetchConcurrency)

	cursor := date
	for i := 0; i < sidecarPrefetchWindow; i++ {
		next, ok := stepBack(cursor, floor)
		if !ok {
			break
		}
		cursor = next
		d := next
		g.Go(func() error {
			url := manifestV2URL(u.DistRoot, channel, d)
			hash, err := u.fetchSidecarHash(gctx, url)
			p.mu.Lock()
			p.results[d] = sidecarResult{hash: hash, err: err}
			p.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

// lookup returns a previously prefetched sidecar result for date, if warm
// already reached it.
func (p *sidecarPrefetcher) lookup(date string) (sidecarResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.results[date]
	return r, ok
}
