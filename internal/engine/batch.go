// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultBatchWorkers = 4

// BatchItem is the outcome of one request within a batch.
type BatchItem struct {
	Request Request
	Result  Result
	Err     error
}

// BatchSummary aggregates a finished batch run. Items preserve the order of
// the submitted requests.
type BatchSummary struct {
	Total     int
	Succeeded int
	Failed    int
	// Cached counts the successes served from the conversion cache.
	Cached   int
	Items    []BatchItem
	Duration time.Duration
}

// BatchProgressFunc observes batch completion, called once per finished file
// with the running completed count.
type BatchProgressFunc func(completed, total int, item BatchItem)

// ConvertBatch runs the requests with at most workers parallel conversions
// (<= 0 selects the default, 4). Individual failures do not stop the batch;
// cancelling ctx stops scheduling new conversions and the summary covers only
// the finished ones. onProgress may be nil.
func (e *Engine) ConvertBatch(ctx context.Context, requests []Request, workers int, onProgress BatchProgressFunc) BatchSummary {
	start := e.now()
	if workers <= 0 {
		workers = defaultBatchWorkers
	}

	items := make([]BatchItem, len(requests))
	scheduled := make([]bool, len(requests))
	var mu sync.Mutex
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, req := range requests {
		if gctx.Err() != nil {
			break
		}
		i, req := i, req
		scheduled[i] = true
		g.Go(func() error {
			res, err := e.Convert(gctx, req)
			item := BatchItem{Request: req, Result: res, Err: err}

			mu.Lock()
			items[i] = item
			completed++
			done := completed
			mu.Unlock()

			if onProgress != nil {
				onProgress(done, len(requests), item)
			}
			// Always nil: a single bad file must not cancel the group.
			return nil
		})
	}
	g.Wait()

	// Batches create many short-lived operations; sweep the ones past the
	// retention window so the tracker does not grow without bound.
	e.Tracker.Cleanup(e.retainFor)

	summary := BatchSummary{
		Total:    len(requests),
		Items:    items,
		Duration: e.now().Sub(start),
	}
	for i, item := range items {
		if !scheduled[i] {
			continue
		}
		if item.Err != nil {
			summary.Failed++
		} else {
			summary.Succeeded++
			if item.Result.FromCache {
				summary.Cached++
			}
		}
	}
	return summary
}
