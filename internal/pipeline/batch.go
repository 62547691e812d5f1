package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/bebop/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of fetches run at once.
const DefaultConcurrency = 4

// PageFetcher fetches and parses one page without recording it in any
// history. *navigation.Engine implements it.
type PageFetcher interface {
	Fetch(ctx context.Context, target string) (*model.Page, error)
}

// Result is the outcome of one fetch in a batch.
type Result struct {
	// Target is the URL as given to FetchAll.
	Target string

	// Page is the parsed page, nil when Err is set.
	Page *model.Page

	// Err is the error of this fetch alone.
	Err error

	// Elapsed is the time the fetch took.
	Elapsed time.Duration
}

// BatchFetcher fetches many URLs concurrently.
type BatchFetcher struct {
	fetcher     PageFetcher
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchFetcher.
type BatchOption func(*BatchFetcher)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchFetcher) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent fetches.
// Non-positive values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchFetcher) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchFetcher creates a BatchFetcher on top of f.
func NewBatchFetcher(f PageFetcher, opts ...BatchOption) *BatchFetcher {
	b := &BatchFetcher{
		fetcher:     f,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// FetchAll fetches every target and returns one Result per target, in
// input order. A failing fetch does not stop the others; its error is
// stored in its Result. Targets not started before ctx is done carry the
// context error.
func (b *BatchFetcher) FetchAll(ctx context.Context, targets []string) []Result {
	results := make([]Result, len(targets))
	_ = b.FetchEach(ctx, targets, func(r Result, i int) {
		results[i] = r
	})
	return results
}

// FetchEach fetches every target and calls fn with each result as soon as
// it is ready, together with the index of its target. fn is called from
// several goroutines but never twice for the same index. The returned
// error is the context error when the batch was cut short.
func (b *BatchFetcher) FetchEach(ctx context.Context, targets []string, fn func(r Result, index int)) error {
	b.logger.Debug("starting batch fetch",
		"total", len(targets),
		"concurrency", b.concurrency,
	)
	start := time.Now()

	g := new(errgroup.Group)
	g.SetLimit(b.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				fn(Result{Target: target, Err: err}, i)
				return nil
			}

			began := time.Now()
			page, err := b.fetcher.Fetch(ctx, target)
			r := Result{Target: target, Page: page, Err: err, Elapsed: time.Since(began)}
			if err != nil {
				r.Page = nil
				b.logger.Warn("fetch failed", "target", target, "error", err)
			} else {
				b.logger.Debug("fetch completed", "target", target, "elapsed", r.Elapsed)
			}
			fn(r, i)
			return nil
		})
	}
	_ = g.Wait()

	b.logger.Debug("batch fetch complete",
		"total", len(targets),
		"elapsed", time.Since(start),
	)
	return ctx.Err()
}
