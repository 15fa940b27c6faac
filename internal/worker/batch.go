package worker

import (
	"context"

	"github.com/mkravets/tectonic/internal/model"
)

// SourceFetcher fetches the items of one configured source
type SourceFetcher interface {
	FetchSource(ctx context.Context, source model.Source) ([]model.FetchedItem, error)
}

// FetchJob fetches one source through the pool
type FetchJob struct {
	Source  model.Source
	Fetcher SourceFetcher
}

// Execute runs the fetch
func (j *FetchJob) Execute(ctx context.Context) Result {
	items, err := j.Fetcher.FetchSource(ctx, j.Source)
	return &FetchResult{
		Source: j.Source,
		Items:  items,
		Error:  err,
	}
}

// FetchResult is the outcome of fetching one source
type FetchResult struct {
	Source model.Source
	Items  []model.FetchedItem
	Error  error
}

// GetError returns the fetch error, if any
func (r *FetchResult) GetError() error {
	return r.Error
}

// SourceBatcher fetches multiple sources concurrently
type SourceBatcher struct {
	fetcher     SourceFetcher
	concurrency int
}

// NewSourceBatcher creates a batcher over the given fetcher
func NewSourceBatcher(fetcher SourceFetcher, concurrency int) *SourceBatcher {
	return &SourceBatcher{
		fetcher:     fetcher,
		concurrency: concurrency,
	}
}

// FetchAll fetches every source through a worker pool. One result per source;
// failed sources carry their error rather than aborting the batch.
func (b *SourceBatcher) FetchAll(ctx context.Context, sources []model.Source) []*FetchResult {
	if len(sources) == 0 {
		return []*FetchResult{}
	}

	pool := NewPool(b.concurrency)
	pool.Start()

	for _, source := range sources {
		pool.Submit(&FetchJob{Source: source, Fetcher: b.fetcher})
	}

	results := pool.Wait()

	out := make([]*FetchResult, len(results))
	for i, r := range results {
		out[i] = r.(*FetchResult)
	}
	return out
}
