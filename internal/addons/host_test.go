package addons

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanm101/gami/internal/logging"
	"github.com/ryanm101/gami/sdk"
)

type fakeLibrary struct {
	symbols map[string]any
	closed  atomic.Int32
}

func (l *fakeLibrary) Lookup(symbol string) (any, error) {
	s, ok := l.symbols[symbol]
	if !ok {
		return nil, errors.New("symbol not found")
	}
	return s, nil
}

func (l *fakeLibrary) Close() error {
	l.closed.Add(1)
	return nil
}

func newFakeAddon(id string, register func(sdk.Registrar)) *fakeLibrary {
	decl := sdk.NewDeclaration(register)
	return &fakeLibrary{symbols: map[string]any{
		sdk.MetadataSymbol: func() sdk.AddonMetadata {
			return sdk.AddonMetadata{ID: id, DisplayName: strings.ToUpper(id)}
		},
		sdk.DeclarationSymbol: &decl,
	}}
}

type stubLibrary struct {
	scan func(ctx context.Context) ([]sdk.ScannedGame, error)
}

func (s *stubLibrary) Scan(ctx context.Context) ([]sdk.ScannedGame, error) {
	if s.scan == nil {
		return nil, nil
	}
	return s.scan(ctx)
}

func (s *stubLibrary) Launch(context.Context, sdk.GameRef) error    { return nil }
func (s *stubLibrary) Install(context.Context, sdk.GameRef) error   { return nil }
func (s *stubLibrary) Uninstall(context.Context, sdk.GameRef) error { return nil }

func (s *stubLibrary) CheckInstallStatus(context.Context, sdk.GameRef) (sdk.InstallStatus, error) {
	return sdk.Installed, nil
}

func openerFor(libs map[string]*fakeLibrary) Opener {
	return OpenerFunc(func(path string) (Library, error) {
		lib, ok := libs[filepath.Base(path)]
		if !ok {
			return nil, errors.New("cannot map library")
		}
		return lib, nil
	})
}

func libPath(t *testing.T, root, addon string) string {
	t.Helper()
	dir := filepath.Join(root, addon)
	require.NoError(t, os.MkdirAll(dir, 0755))
	return filepath.Join(dir, addon+LibraryExt())
}

func newTestHost(libs map[string]*fakeLibrary, opts ...Option) *Host {
	return NewHost(append([]Option{WithOpener(openerFor(libs)), WithLogger(logging.Discard())}, opts...)...)
}

func TestLoad_RegistersCapabilities(t *testing.T) {
	lib := newFakeAddon(" steam ", func(r sdk.Registrar) {
		r.RegisterLibrary(" steam", &stubLibrary{})
		r.RegisterMetadataScanner("steam", stubScanner{})
		r.RegisterConfig([]sdk.ConfigSchemaEntry{
			{FieldKey: "api_key", DisplayName: "API key", Kind: sdk.KindString},
		})
	})
	host := newTestHost(map[string]*fakeLibrary{"steam" + LibraryExt(): lib})
	defer host.Shutdown()

	loaded, err := host.Load(context.Background(), libPath(t, t.TempDir(), "steam"))
	require.NoError(t, err)
	assert.Equal(t, "steam", loaded.Metadata.ID)

	assert.Equal(t, []string{"steam"}, host.Keys())
	assert.Equal(t, []sdk.AddonMetadata{{ID: "steam", DisplayName: " STEAM "}}, host.AddonMetadatas())

	gl, ok := host.GameLibrary("steam")
	require.True(t, ok)
	defer gl.Release()
	assert.Equal(t, "steam", gl.AddonID())

	ms, ok := host.MetadataScanner("steam")
	require.True(t, ok)
	ms.Release()

	schema, err := host.ConfigSchema("steam")
	require.NoError(t, err)
	require.Len(t, schema, 1)
	assert.Equal(t, "api_key", schema[0].FieldKey)

	_, ok = host.GameLibrary("gog")
	assert.False(t, ok)
}

func TestLoad_VersionGate(t *testing.T) {
	tests := []struct {
		name      string
		toolchain string
		core      string
	}{
		{"toolchain differs", "go0.0.1", sdk.CoreVersion},
		{"core differs", sdk.ToolchainVersion, "0.0.0"},
		{"both differ", "go0.0.1", "0.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registered := false
			lib := newFakeAddon("steam", func(r sdk.Registrar) {
				registered = true
				r.RegisterLibrary("steam", &stubLibrary{})
			})
			decl := lib.symbols[sdk.DeclarationSymbol].(*sdk.Declaration)
			decl.ToolchainVersion = tt.toolchain
			decl.CoreVersion = tt.core

			host := newTestHost(map[string]*fakeLibrary{"steam" + LibraryExt(): lib})
			_, err := host.Load(context.Background(), libPath(t, t.TempDir(), "steam"))

			assert.ErrorIs(t, err, ErrVersionMismatch)
			var loadErr *AddonLoadError
			assert.ErrorAs(t, err, &loadErr)
			assert.False(t, registered, "register must not run")
			assert.Empty(t, host.Keys())
			assert.Empty(t, host.AddonMetadatas())
			assert.Equal(t, int32(1), lib.closed.Load(), "rejected library is closed")
		})
	}
}

func TestLoad_SymbolErrors(t *testing.T) {
	valid := newFakeAddon("steam", func(sdk.Registrar) {})

	tests := []struct {
		name    string
		symbols map[string]any
		wantErr error
	}{
		{
			name:    "missing declaration",
			symbols: map[string]any{sdk.MetadataSymbol: valid.symbols[sdk.MetadataSymbol]},
			wantErr: ErrMissingSymbol,
		},
		{
			name:    "missing metadata",
			symbols: map[string]any{sdk.DeclarationSymbol: valid.symbols[sdk.DeclarationSymbol]},
			wantErr: ErrMissingSymbol,
		},
		{
			name: "declaration by value",
			symbols: map[string]any{
				sdk.MetadataSymbol:    valid.symbols[sdk.MetadataSymbol],
				sdk.DeclarationSymbol: sdk.NewDeclaration(func(sdk.Registrar) {}),
			},
			wantErr: ErrInvalidSymbol,
		},
		{
			name: "metadata wrong type",
			symbols: map[string]any{
				sdk.MetadataSymbol:    func() string { return "steam" },
				sdk.DeclarationSymbol: valid.symbols[sdk.DeclarationSymbol],
			},
			wantErr: ErrInvalidSymbol,
		},
		{
			name: "empty id",
			symbols: map[string]any{
				sdk.MetadataSymbol:    func() sdk.AddonMetadata { return sdk.AddonMetadata{ID: "  "} },
				sdk.DeclarationSymbol: valid.symbols[sdk.DeclarationSymbol],
			},
			wantErr: ErrInvalidSymbol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := &fakeLibrary{symbols: tt.symbols}
			host := newTestHost(map[string]*fakeLibrary{"steam" + LibraryExt(): lib})

			_, err := host.Load(context.Background(), libPath(t, t.TempDir(), "steam"))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, host.Keys())
			assert.Len(t, host.LoadErrors(), 1)
		})
	}
}

func TestLoad_OpenFailure(t *testing.T) {
	host := newTestHost(nil)

	_, err := host.Load(context.Background(), libPath(t, t.TempDir(), "steam"))
	assert.ErrorIs(t, err, ErrOpenLibrary)
}

func TestLoad_RegisterPanicRegistersNothing(t *testing.T) {
	lib := newFakeAddon("steam", func(r sdk.Registrar) {
		r.RegisterLibrary("steam", &stubLibrary{})
		panic("bad addon")
	})
	host := newTestHost(map[string]*fakeLibrary{"steam" + LibraryExt(): lib})

	_, err := host.Load(context.Background(), libPath(t, t.TempDir(), "steam"))

	var fault *AddonFaultError
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "register", fault.Op)
	assert.Equal(t, "bad addon", fault.Value)
	assert.Empty(t, host.Keys())
	assert.Eventually(t, func() bool { return lib.closed.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestLoad_DuplicateAddon(t *testing.T) {
	register := func(r sdk.Registrar) { r.RegisterLibrary("steam", &stubLibrary{}) }
	first := newFakeAddon("steam", register)
	second := newFakeAddon("steam", register)
	host := newTestHost(map[string]*fakeLibrary{
		"steam" + LibraryExt(): first,
		"copy" + LibraryExt():  second,
	})
	defer host.Shutdown()
	root := t.TempDir()

	_, err := host.Load(context.Background(), libPath(t, root, "steam"))
	require.NoError(t, err)
	_, err = host.Load(context.Background(), libPath(t, root, "copy"))

	assert.ErrorIs(t, err, ErrDuplicateAddon)
	assert.Equal(t, []string{"steam"}, host.Keys())
	assert.Eventually(t, func() bool { return second.closed.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, first.closed.Load())
}

func TestLoadAll_IsolatesFailures(t *testing.T) {
	root := t.TempDir()
	good := newFakeAddon("good", func(r sdk.Registrar) { r.RegisterLibrary("good", &stubLibrary{}) })
	host := newTestHost(map[string]*fakeLibrary{"good" + LibraryExt(): good})
	defer host.Shutdown()

	libPath(t, root, "broken") // no fake library behind it
	require.NoError(t, os.WriteFile(libPath(t, root, "broken"), nil, 0644))
	require.NoError(t, os.WriteFile(libPath(t, root, "good"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "good", SchemaFile), []byte(`{}`), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "README.md"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray"+LibraryExt()), nil, 0644))

	errs := host.LoadAll(context.Background(), root)

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrOpenLibrary)
	assert.Equal(t, []string{"good"}, host.Keys())
}

func TestLoadAll_MissingDir(t *testing.T) {
	host := newTestHost(nil)
	assert.Empty(t, host.LoadAll(context.Background(), filepath.Join(t.TempDir(), "nope")))
}

func TestInit_UsesAddonsDir(t *testing.T) {
	root := t.TempDir()
	good := newFakeAddon("good", func(r sdk.Registrar) { r.RegisterLibrary("good", &stubLibrary{}) })
	host := newTestHost(map[string]*fakeLibrary{"good" + LibraryExt(): good}, WithAddonsDir(root))
	defer host.Shutdown()
	require.NoError(t, os.WriteFile(libPath(t, root, "good"), nil, 0644))
	require.NoError(t, os.WriteFile(libPath(t, root, "bad"), nil, 0644))

	require.NoError(t, host.Init(context.Background()), "addon failures are not fatal")
	assert.Equal(t, []string{"good"}, host.Keys())
	assert.Len(t, host.LoadErrors(), 1)
}

func TestRegistrar_SealedAfterRegister(t *testing.T) {
	var stashed sdk.Registrar
	lib := newFakeAddon("steam", func(r sdk.Registrar) {
		stashed = r
		r.RegisterLibrary("steam", &stubLibrary{})
	})
	host := newTestHost(map[string]*fakeLibrary{"steam" + LibraryExt(): lib})
	defer host.Shutdown()

	_, err := host.Load(context.Background(), libPath(t, t.TempDir(), "steam"))
	require.NoError(t, err)

	stashed.RegisterLibrary("late", &stubLibrary{})
	stashed.RegisterConfig([]sdk.ConfigSchemaEntry{{FieldKey: "late"}})

	assert.Equal(t, []string{"steam"}, host.Keys())
	schema, err := host.ConfigSchema("steam")
	require.NoError(t, err)
	assert.Empty(t, schema)
}
