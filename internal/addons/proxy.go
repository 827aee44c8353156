package addons

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ryanm101/gami/internal/fetch"
	"github.com/ryanm101/gami/sdk"
)

// capabilityRef is one reference to an addon library in the host's handle
// table. Every call through it pins the library until the addon returns.
type capabilityRef struct {
	addonID  string
	handle   uint64
	table    *handleTable
	released atomic.Bool
}

func newCapabilityRef(addonID string, handle uint64, table *handleTable) *capabilityRef {
	ref := &capabilityRef{addonID: addonID, handle: handle, table: table}
	if !table.retain(handle) {
		ref.released.Store(true)
	}
	return ref
}

func (r *capabilityRef) clone() *capabilityRef {
	if r.released.Load() {
		ref := &capabilityRef{addonID: r.addonID, handle: r.handle, table: r.table}
		ref.released.Store(true)
		return ref
	}
	return newCapabilityRef(r.addonID, r.handle, r.table)
}

func (r *capabilityRef) release() {
	if r.released.CompareAndSwap(false, true) {
		r.table.release(r.handle)
	}
}

func (r *capabilityRef) call(ctx context.Context, op string, timeout time.Duration, fn func(context.Context) error) error {
	if r.released.Load() || !r.table.retain(r.handle) {
		return ErrProxyReleased
	}
	if err := ctx.Err(); err != nil {
		r.table.release(r.handle)
		return err
	}
	return runGuarded(ctx, r.addonID, op, timeout, fn, func() { r.table.release(r.handle) })
}

// GameLibraryProxy is a GameLibrary registered by an addon. It keeps the
// addon library loaded until Release is called, and guards every call
// against panics and hangs.
type GameLibraryProxy struct {
	ref         *capabilityRef
	inner       sdk.GameLibrary
	callTimeout time.Duration
	scanTimeout time.Duration
}

// AddonID returns the id of the addon that registered the library.
func (p *GameLibraryProxy) AddonID() string {
	return p.ref.addonID
}

// Clone returns an independent proxy for the same library. Each clone must
// be released separately.
func (p *GameLibraryProxy) Clone() *GameLibraryProxy {
	c := *p
	c.ref = p.ref.clone()
	return &c
}

// Release drops the proxy's hold on the addon library. Calling it more than
// once is harmless.
func (p *GameLibraryProxy) Release() {
	p.ref.release()
}

// Scan lists the addon's games with normalized identifiers. Entries without
// a library id are dropped.
func (p *GameLibraryProxy) Scan(ctx context.Context) ([]sdk.ScannedGame, error) {
	var games []sdk.ScannedGame
	err := p.ref.call(ctx, "scan", p.scanTimeout, func(ctx context.Context) error {
		var err error
		games, err = p.inner.Scan(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]sdk.ScannedGame, 0, len(games))
	for _, g := range games {
		g = sdk.NormalizeScanned(g)
		if g.LibraryID == "" || g.LibraryType == "" {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (p *GameLibraryProxy) Launch(ctx context.Context, game sdk.GameRef) error {
	return p.ref.call(ctx, "launch", p.callTimeout, func(ctx context.Context) error {
		return p.inner.Launch(ctx, game)
	})
}

func (p *GameLibraryProxy) Install(ctx context.Context, game sdk.GameRef) error {
	return p.ref.call(ctx, "install", p.callTimeout, func(ctx context.Context) error {
		return p.inner.Install(ctx, game)
	})
}

func (p *GameLibraryProxy) Uninstall(ctx context.Context, game sdk.GameRef) error {
	return p.ref.call(ctx, "uninstall", p.callTimeout, func(ctx context.Context) error {
		return p.inner.Uninstall(ctx, game)
	})
}

func (p *GameLibraryProxy) CheckInstallStatus(ctx context.Context, game sdk.GameRef) (sdk.InstallStatus, error) {
	var status sdk.InstallStatus
	err := p.ref.call(ctx, "check install status", p.callTimeout, func(ctx context.Context) error {
		var err error
		status, err = p.inner.CheckInstallStatus(ctx, game)
		return err
	})
	if err != nil {
		return sdk.InLibrary, err
	}
	return status, nil
}

// MetadataScannerProxy is a GameMetadataScanner registered by an addon. The
// host performs the HTTP round trips on its fetch engine; the addon only
// builds requests and decodes bodies.
type MetadataScannerProxy struct {
	ref     *capabilityRef
	inner   sdk.GameMetadataScanner
	timeout time.Duration
	engine  *fetch.Engine
}

// AddonID returns the id of the addon that registered the scanner.
func (p *MetadataScannerProxy) AddonID() string {
	return p.ref.addonID
}

// Clone returns an independent proxy for the same scanner.
func (p *MetadataScannerProxy) Clone() *MetadataScannerProxy {
	c := *p
	c.ref = p.ref.clone()
	return &c
}

// Release drops the proxy's hold on the addon library.
func (p *MetadataScannerProxy) Release() {
	p.ref.release()
}

// NewRequest asks the addon to build the request for game. The request is
// bound to ctx, not to the guarded call's deadline, since the host sends it
// after the addon returns.
func (p *MetadataScannerProxy) NewRequest(ctx context.Context, game sdk.GameRef) (*http.Request, error) {
	var req *http.Request
	err := p.ref.call(ctx, "new request", p.timeout, func(context.Context) error {
		var err error
		req, err = p.inner.NewRequest(ctx, game)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// DecodeMetadata decodes a response body and normalizes the genre
// identifiers it carries.
func (p *MetadataScannerProxy) DecodeMetadata(game sdk.GameRef, body []byte) (*sdk.GameMetadata, error) {
	return p.DecodeMetadataContext(context.Background(), game, body)
}

// DecodeMetadataContext is DecodeMetadata bounded by ctx.
func (p *MetadataScannerProxy) DecodeMetadataContext(ctx context.Context, game sdk.GameRef, body []byte) (*sdk.GameMetadata, error) {
	var md *sdk.GameMetadata
	err := p.ref.call(ctx, "decode metadata", p.timeout, func(context.Context) error {
		var err error
		md, err = p.inner.DecodeMetadata(game, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	sdk.NormalizeMetadata(md)
	return md, nil
}

// GetMetadata fetches metadata for one game. A nil result with a nil error
// means the source has none.
func (p *MetadataScannerProxy) GetMetadata(ctx context.Context, game sdk.GameRef) (*sdk.GameMetadata, error) {
	return p.engine.FetchOne(ctx, game, p.engine.HTTPFetcher(p))
}

// GetMetadatas fetches metadata for a batch of games. Games whose fetch
// failed or returned nothing are absent from the result.
func (p *MetadataScannerProxy) GetMetadatas(ctx context.Context, games []sdk.GameRef, progress fetch.ProgressFunc) map[sdk.GameKey]sdk.GameMetadata {
	return p.engine.FetchAll(ctx, games, p.engine.HTTPFetcher(p), progress)
}

var _ fetch.ContextDecoder = (*MetadataScannerProxy)(nil)
