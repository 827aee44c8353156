// Package fetch retrieves game metadata under bounded concurrency.
package fetch

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ryanm101/gami/internal/logging"
	"github.com/ryanm101/gami/internal/metrics"
	"github.com/ryanm101/gami/sdk"
)

const (
	// DefaultWorkers bounds concurrent requests against third-party APIs.
	DefaultWorkers = 8
	DefaultTimeout = 30 * time.Second
)

// Fetcher retrieves metadata for one game. A nil result with a nil error
// means the source has no metadata for the game. The engine treats an empty
// non-nil result the same way.
type Fetcher interface {
	Fetch(ctx context.Context, game sdk.GameRef) (*sdk.GameMetadata, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, game sdk.GameRef) (*sdk.GameMetadata, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, game sdk.GameRef) (*sdk.GameMetadata, error) {
	return f(ctx, game)
}

// ProgressFunc receives one tick per finished item.
type ProgressFunc func(current, total int)

// Engine runs metadata fetches on a fixed-size worker pool.
type Engine struct {
	workers int
	client  *http.Client
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the pool width. Values below one are ignored.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		if c != nil {
			e.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		workers: DefaultWorkers,
		client: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logging.Get(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Workers returns the pool width.
func (e *Engine) Workers() int {
	return e.workers
}

// Client returns the HTTP client fetches run on.
func (e *Engine) Client() *http.Client {
	return e.client
}

// FetchAll fetches metadata for every game and returns the ones that
// produced metadata, keyed by natural key. Failed and empty items are
// omitted. progress, if set, is called once per finished item from a
// single dispatcher goroutine and never holds up the workers.
//
// When ctx is cancelled workers stop taking new items and FetchAll returns
// what completed.
func (e *Engine) FetchAll(ctx context.Context, games []sdk.GameRef, f Fetcher, progress ProgressFunc) map[sdk.GameKey]sdk.GameMetadata {
	total := len(games)
	results := make(map[sdk.GameKey]sdk.GameMetadata, total)
	if total == 0 {
		return results
	}

	queue := make(chan sdk.GameRef, total)
	for _, g := range games {
		queue <- g
	}
	close(queue)

	// Sized to the batch so a tick never blocks a worker.
	ticks := make(chan struct{}, total)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		current := 0
		for range ticks {
			current++
			if progress != nil {
				progress(current, total)
			}
		}
	}()

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < min(e.workers, total); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for game := range queue {
				if ctx.Err() != nil {
					return
				}
				md, err := e.fetch(ctx, game, f)
				if err == nil && md != nil {
					mu.Lock()
					results[game.Key()] = *md
					mu.Unlock()
				}
				ticks <- struct{}{}
			}
		}()
	}

	wg.Wait()
	close(ticks)
	<-dispatched

	e.logger.Debug("metadata batch finished", "total", total, "found", len(results))
	return results
}

// FetchOne fetches metadata for a single game without a worker pool.
func (e *Engine) FetchOne(ctx context.Context, game sdk.GameRef, f Fetcher) (*sdk.GameMetadata, error) {
	return e.fetch(ctx, game, f)
}

func (e *Engine) fetch(ctx context.Context, game sdk.GameRef, f Fetcher) (*sdk.GameMetadata, error) {
	start := time.Now()
	md, err := f.Fetch(ctx, game)
	switch {
	case err != nil:
		result := "network_error"
		if IsKind(err, KindDecode) {
			result = "decode_error"
		}
		metrics.RecordFetch(result, start)
		e.logger.Warn("metadata fetch failed", "game", game.Key().String(), "error", err)
		return nil, err
	case md.IsEmpty():
		metrics.RecordFetch("empty", start)
		e.logger.Debug("no metadata for game", "game", game.Key().String())
		return nil, nil
	default:
		metrics.RecordFetch("success", start)
		return md, nil
	}
}
