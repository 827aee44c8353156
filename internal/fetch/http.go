package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ryanm101/gami/sdk"
)

// maxBodySize caps how much of a metadata response is read.
const maxBodySize = 4 << 20

// ContextDecoder is implemented by sources whose decoding should stop when
// the fetch is cancelled.
type ContextDecoder interface {
	DecodeMetadataContext(ctx context.Context, game sdk.GameRef, body []byte) (*sdk.GameMetadata, error)
}

// HTTPFetcher fetches metadata over HTTP using requests and decoding
// supplied by a metadata scanner.
type HTTPFetcher struct {
	client *http.Client
	source sdk.GameMetadataScanner
}

// NewHTTPFetcher returns a fetcher for source that runs on client.
func NewHTTPFetcher(client *http.Client, source sdk.GameMetadataScanner) *HTTPFetcher {
	return &HTTPFetcher{client: client, source: source}
}

// HTTPFetcher returns a fetcher for source sharing the engine's client.
func (e *Engine) HTTPFetcher(source sdk.GameMetadataScanner) *HTTPFetcher {
	return NewHTTPFetcher(e.client, source)
}

// Fetch implements Fetcher.
func (h *HTTPFetcher) Fetch(ctx context.Context, game sdk.GameRef) (*sdk.GameMetadata, error) {
	key := game.Key()

	req, err := h.source.NewRequest(ctx, game)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Game: key, Err: fmt.Errorf("build request: %w", err)}
	}
	// The round trip belongs to this fetch, whatever context the source used.
	req = req.WithContext(ctx)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Game: key, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Kind: KindNetwork, Game: key, Err: fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Game: key, Err: err}
	}
	if len(body) > maxBodySize {
		return nil, &FetchError{Kind: KindDecode, Game: key, Err: ErrBodyTooLarge}
	}

	md, err := h.decode(ctx, game, body)
	if err != nil {
		return nil, &FetchError{Kind: KindDecode, Game: key, Err: err}
	}
	return md, nil
}

func (h *HTTPFetcher) decode(ctx context.Context, game sdk.GameRef, body []byte) (*sdk.GameMetadata, error) {
	if d, ok := h.source.(ContextDecoder); ok {
		return d.DecodeMetadataContext(ctx, game, body)
	}
	return h.source.DecodeMetadata(game, body)
}
