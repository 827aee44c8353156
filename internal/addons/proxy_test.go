package addons

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanm101/gami/addons/steam"
	"github.com/ryanm101/gami/internal/fetch"
	"github.com/ryanm101/gami/internal/logging"
	"github.com/ryanm101/gami/sdk"
)

type stubScanner struct {
	baseURL string
}

func (s stubScanner) NewRequest(ctx context.Context, game sdk.GameRef) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+game.LibraryID, nil)
}

func (s stubScanner) DecodeMetadata(_ sdk.GameRef, body []byte) (*sdk.GameMetadata, error) {
	var genres []sdk.GenreRef
	if err := json.Unmarshal(body, &genres); err != nil {
		return nil, err
	}
	return &sdk.GameMetadata{Genres: genres}, nil
}

func loadOne(t *testing.T, lib sdk.GameLibrary, opts ...Option) (*Host, *fakeLibrary) {
	t.Helper()
	fake := newFakeAddon("steam", func(r sdk.Registrar) { r.RegisterLibrary("steam", lib) })
	host := newTestHost(map[string]*fakeLibrary{"steam" + LibraryExt(): fake}, opts...)
	_, err := host.Load(context.Background(), libPath(t, t.TempDir(), "steam"))
	require.NoError(t, err)
	return host, fake
}

func TestProxy_OutlivesHost(t *testing.T) {
	lib := &stubLibrary{scan: func(context.Context) ([]sdk.ScannedGame, error) {
		return []sdk.ScannedGame{{Name: "Portal", LibraryType: "steam", LibraryID: "400"}}, nil
	}}
	host, fake := loadOne(t, lib)

	proxy, ok := host.GameLibrary("steam")
	require.True(t, ok)

	host.Shutdown()
	assert.Empty(t, host.Keys())
	assert.Zero(t, fake.closed.Load(), "library stays mapped while a proxy is held")

	games, err := proxy.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, games, 1)

	proxy.Release()
	assert.Eventually(t, func() bool { return fake.closed.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err = proxy.Scan(context.Background())
	assert.ErrorIs(t, err, ErrProxyReleased)

	proxy.Release()
	assert.Equal(t, int32(1), fake.closed.Load(), "release is idempotent")
}

func TestProxy_CloneIsIndependent(t *testing.T) {
	host, fake := loadOne(t, &stubLibrary{})

	proxy, ok := host.GameLibrary("steam")
	require.True(t, ok)
	clone := proxy.Clone()
	host.Shutdown()

	proxy.Release()
	assert.Zero(t, fake.closed.Load())
	_, err := clone.Scan(context.Background())
	assert.NoError(t, err)

	clone.Release()
	assert.Eventually(t, func() bool { return fake.closed.Load() == 1 }, time.Second, 5*time.Millisecond)

	dead := clone.Clone()
	_, err = dead.Scan(context.Background())
	assert.ErrorIs(t, err, ErrProxyReleased, "cloning a released proxy yields a released proxy")
}

func TestProxy_PanicIsIsolated(t *testing.T) {
	calls := 0
	lib := &stubLibrary{scan: func(context.Context) ([]sdk.ScannedGame, error) {
		calls++
		if calls == 1 {
			panic("index out of range")
		}
		return nil, nil
	}}
	host, _ := loadOne(t, lib)
	defer host.Shutdown()

	proxy, _ := host.GameLibrary("steam")
	defer proxy.Release()

	_, err := proxy.Scan(context.Background())
	var fault *AddonFaultError
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "steam", fault.AddonID)
	assert.Equal(t, "scan", fault.Op)
	assert.NotEmpty(t, fault.Stack)

	_, err = proxy.Scan(context.Background())
	assert.NoError(t, err, "addon stays usable after a fault")
}

func TestProxy_TimeoutKeepsLibraryPinned(t *testing.T) {
	unblock := make(chan struct{})
	lib := &stubLibrary{scan: func(context.Context) ([]sdk.ScannedGame, error) {
		<-unblock
		return nil, nil
	}}
	host, fake := loadOne(t, lib, WithScanTimeout(20*time.Millisecond))

	proxy, _ := host.GameLibrary("steam")
	_, err := proxy.Scan(context.Background())
	assert.ErrorIs(t, err, ErrAddonTimeout)

	host.Shutdown()
	proxy.Release()
	assert.Zero(t, fake.closed.Load(), "the hung call still holds the library")

	close(unblock)
	assert.Eventually(t, func() bool { return fake.closed.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestProxy_CallerCancellation(t *testing.T) {
	lib := &stubLibrary{scan: func(ctx context.Context) ([]sdk.ScannedGame, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	host, _ := loadOne(t, lib)
	defer host.Shutdown()
	proxy, _ := host.GameLibrary("steam")
	defer proxy.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := proxy.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrAddonTimeout)
}

func TestProxy_ScanNormalizesIdentifiers(t *testing.T) {
	lib := &stubLibrary{scan: func(context.Context) ([]sdk.ScannedGame, error) {
		return []sdk.ScannedGame{
			{Name: " Portal ", LibraryType: "steam ", LibraryID: " 400\n"},
			{Name: "Ghost", LibraryType: "steam", LibraryID: "   "},
		}, nil
	}}
	host, _ := loadOne(t, lib)
	defer host.Shutdown()
	proxy, _ := host.GameLibrary("steam")
	defer proxy.Release()

	games, err := proxy.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, sdk.GameKey{LibraryType: "steam", LibraryID: "400"}, games[0].Ref().Key())
	assert.Equal(t, "Portal", games[0].Name)
}

func TestMetadataScannerProxy_GetMetadatas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/2" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[{"LibraryID":" 1 ","Name":"Action"},{"LibraryID":"","Name":"Blank"}]`))
	}))
	defer srv.Close()

	fake := newFakeAddon("steam", func(r sdk.Registrar) {
		r.RegisterMetadataScanner("steam", stubScanner{baseURL: srv.URL})
	})
	host := newTestHost(map[string]*fakeLibrary{"steam" + LibraryExt(): fake},
		WithFetchEngine(fetch.New(fetch.WithLogger(logging.Discard()), fetch.WithWorkers(2))))
	defer host.Shutdown()
	_, err := host.Load(context.Background(), libPath(t, t.TempDir(), "steam"))
	require.NoError(t, err)

	scanner, ok := host.MetadataScanner("steam")
	require.True(t, ok)
	defer scanner.Release()

	games := []sdk.GameRef{
		{Name: "One", LibraryType: "steam", LibraryID: "1"},
		{Name: "Two", LibraryType: "steam", LibraryID: "2"},
		{Name: "Three", LibraryType: "steam", LibraryID: "3"},
	}
	ticks := 0
	results := scanner.GetMetadatas(context.Background(), games, func(int, int) { ticks++ })

	assert.Len(t, results, 2)
	assert.Equal(t, 3, ticks)
	assert.Equal(t, []sdk.GenreRef{{LibraryID: "1", Name: "Action"}}, results[games[0].Key()].Genres)

	md, err := scanner.GetMetadata(context.Background(), games[2])
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.Len(t, md.Genres, 1)

	_, err = scanner.GetMetadata(context.Background(), games[1])
	assert.True(t, fetch.IsKind(err, fetch.KindNetwork))
}

func loadStoreScanner(t *testing.T, baseURL string) *MetadataScannerProxy {
	t.Helper()
	fake := newFakeAddon("steam", func(r sdk.Registrar) {
		r.RegisterMetadataScanner("steam", &steam.StoreScanner{BaseURL: baseURL})
	})
	host := newTestHost(map[string]*fakeLibrary{"steam" + LibraryExt(): fake},
		WithFetchEngine(fetch.New(fetch.WithLogger(logging.Discard()))),
		WithCallTimeout(time.Second))
	t.Cleanup(host.Shutdown)
	_, err := host.Load(context.Background(), libPath(t, t.TempDir(), "steam"))
	require.NoError(t, err)

	scanner, ok := host.MetadataScanner("steam")
	require.True(t, ok)
	t.Cleanup(scanner.Release)
	return scanner
}

func TestMetadataScannerProxy_RequestOutlivesGuardedCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("appids")
		_, _ = w.Write([]byte(`{"` + id + `":{"success":true,"data":{` +
			`"detailed_description":"Teams of mercenaries",` +
			`"header_image":"https://cdn.example/header.jpg",` +
			`"genres":[{"id":"1","description":"Action"}]}}}`))
	}))
	defer srv.Close()

	scanner := loadStoreScanner(t, srv.URL)
	tf2 := sdk.GameRef{Name: "Team Fortress 2", LibraryType: "steam", LibraryID: "440"}

	md, err := scanner.GetMetadata(context.Background(), tf2)
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.Equal(t, []sdk.GenreRef{{LibraryID: "1", Name: "Action"}}, md.Genres)
	require.NotNil(t, md.Description)
	assert.Equal(t, "Teams of mercenaries", *md.Description)

	games := []sdk.GameRef{tf2, {Name: "Portal", LibraryType: "steam", LibraryID: "400"}}
	results := scanner.GetMetadatas(context.Background(), games, nil)
	assert.Len(t, results, 2)
}

func TestMetadataScannerProxy_DecodeHonorsCancellation(t *testing.T) {
	scanner := loadStoreScanner(t, "http://127.0.0.1:0")
	game := sdk.GameRef{Name: "Portal", LibraryType: "steam", LibraryID: "400"}
	body := []byte(`{"400":{"success":true,"data":{"genres":[{"id":" 2 ","description":"Strategy"}]}}}`)

	md, err := scanner.DecodeMetadataContext(context.Background(), game, body)
	require.NoError(t, err)
	assert.Equal(t, []sdk.GenreRef{{LibraryID: "2", Name: "Strategy"}}, md.Genres)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = scanner.DecodeMetadataContext(ctx, game, body)
	assert.ErrorIs(t, err, context.Canceled)
}
