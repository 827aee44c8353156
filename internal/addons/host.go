// Package addons loads addon libraries and exposes the capabilities they
// register.
package addons

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ryanm101/gami/internal/fetch"
	"github.com/ryanm101/gami/internal/logging"
	"github.com/ryanm101/gami/internal/metrics"
	"github.com/ryanm101/gami/internal/tracing"
	"github.com/ryanm101/gami/sdk"
)

const (
	DefaultCallTimeout = 30 * time.Second
	DefaultScanTimeout = 5 * time.Minute
)

// LoadedAddon is an addon library the host accepted.
type LoadedAddon struct {
	Metadata sdk.AddonMetadata
	Path     string
	handle   uint64
}

// Dir returns the addon's directory.
func (a *LoadedAddon) Dir() string {
	return filepath.Dir(a.Path)
}

// Host owns every loaded addon and the capabilities they registered.
// Loading happens once through Init; lookups are safe for concurrent use.
type Host struct {
	opener      Opener
	dir         string
	engine      *fetch.Engine
	callTimeout time.Duration
	scanTimeout time.Duration
	logger      *slog.Logger
	table       *handleTable

	mu         sync.RWMutex
	addons     map[string]*LoadedAddon
	libraries  map[string]*GameLibraryProxy
	scanners   map[string]*MetadataScannerProxy
	settings   map[string]*SettingsStore
	loadErrors []error
}

// Option configures a Host.
type Option func(*Host)

// WithOpener replaces the native plugin opener.
func WithOpener(o Opener) Option {
	return func(h *Host) { h.opener = o }
}

// WithAddonsDir sets the directory Init loads from.
func WithAddonsDir(dir string) Option {
	return func(h *Host) { h.dir = dir }
}

// WithFetchEngine sets the engine metadata scanners fetch on.
func WithFetchEngine(e *fetch.Engine) Option {
	return func(h *Host) { h.engine = e }
}

// WithCallTimeout bounds every addon call except Scan.
func WithCallTimeout(d time.Duration) Option {
	return func(h *Host) { h.callTimeout = d }
}

// WithScanTimeout bounds GameLibrary.Scan.
func WithScanTimeout(d time.Duration) Option {
	return func(h *Host) { h.scanTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// NewHost creates a host with nothing loaded.
func NewHost(opts ...Option) *Host {
	h := &Host{
		opener:      NativeOpener(),
		callTimeout: DefaultCallTimeout,
		scanTimeout: DefaultScanTimeout,
		logger:      logging.Get(),
		addons:      make(map[string]*LoadedAddon),
		libraries:   make(map[string]*GameLibraryProxy),
		scanners:    make(map[string]*MetadataScannerProxy),
		settings:    make(map[string]*SettingsStore),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.engine == nil {
		h.engine = fetch.New(fetch.WithLogger(h.logger))
	}
	h.table = newHandleTable(h.logger)
	return h
}

// Init loads every addon under the configured addons directory. Individual
// addon failures are logged and kept in LoadErrors; only an unreadable
// addons directory is returned.
func (h *Host) Init(ctx context.Context) error {
	if h.dir == "" {
		return nil
	}
	errs := h.LoadAll(ctx, h.dir)
	for _, err := range errs {
		var loadErr *AddonLoadError
		if !errors.As(err, &loadErr) {
			return err
		}
	}
	return nil
}

// LoadAll loads the addon library found in each subdirectory of dir. A
// failing addon never stops the others. A missing dir loads nothing.
func (h *Host) LoadAll(ctx context.Context, dir string) []error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		h.logger.Debug("addons directory does not exist", "dir", dir)
		return nil
	}
	if err != nil {
		return []error{fmt.Errorf("read addons directory: %w", err)}
	}

	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path, err := findLibrary(filepath.Join(dir, entry.Name()))
		if err != nil {
			errs = append(errs, h.recordFailure(&AddonLoadError{Path: filepath.Join(dir, entry.Name()), Err: err}))
			continue
		}
		if path == "" {
			h.logger.Debug("no addon library in directory", "dir", entry.Name())
			continue
		}
		if _, err := h.Load(ctx, path); err != nil {
			errs = append(errs, err)
		}
	}

	h.logger.Info("addons loaded", "count", len(h.Keys()), "failed", len(errs))
	return errs
}

// findLibrary returns the one library file in dir, or "" if there is none.
func findLibrary(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var found []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsLibraryFile(e.Name()) {
			found = append(found, filepath.Join(dir, e.Name()))
		}
	}
	switch len(found) {
	case 0:
		return "", nil
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w: %d library files", ErrOpenLibrary, len(found))
	}
}

// Load maps one addon library, checks its version tags and runs its
// registration. On any failure nothing from the library is registered.
func (h *Host) Load(ctx context.Context, path string) (loaded *LoadedAddon, err error) {
	ctx, span := tracing.StartSpan(ctx, "addons.load")
	defer func() { tracing.EndSpan(span, err) }()

	lib, err := h.opener.Open(path)
	if err != nil {
		return nil, h.recordFailure(&AddonLoadError{Path: path, Err: fmt.Errorf("%w: %v", ErrOpenLibrary, err)})
	}
	handle := h.table.add(path, lib)
	// Dropped once the addon is registered; capabilities hold their own refs.
	defer h.table.release(handle)

	decl, metaFn, err := lookupSymbols(lib)
	if err != nil {
		return nil, h.recordFailure(&AddonLoadError{Path: path, Err: err})
	}
	if decl.ToolchainVersion != sdk.ToolchainVersion || decl.CoreVersion != sdk.CoreVersion {
		return nil, h.recordFailure(&AddonLoadError{Path: path, Err: fmt.Errorf(
			"%w: addon built with %s/core %s, host is %s/core %s", ErrVersionMismatch,
			decl.ToolchainVersion, decl.CoreVersion, sdk.ToolchainVersion, sdk.CoreVersion)})
	}

	var meta sdk.AddonMetadata
	err = runGuarded(ctx, filepath.Base(path), "metadata", h.callTimeout, func(context.Context) error {
		meta = metaFn()
		return nil
	}, h.pin(handle))
	if err != nil {
		return nil, h.recordFailure(&AddonLoadError{Path: path, Err: err})
	}
	meta.ID = sdk.NormalizeID(meta.ID)
	if meta.ID == "" {
		return nil, h.recordFailure(&AddonLoadError{Path: path, Err: fmt.Errorf("%w: empty addon id", ErrInvalidSymbol)})
	}
	if h.has(meta.ID) {
		return nil, h.recordFailure(&AddonLoadError{Path: path, AddonID: meta.ID, Err: ErrDuplicateAddon})
	}

	logger := logging.ForAddon(h.logger, meta.ID)
	settings := NewSettingsStore(filepath.Dir(path))
	reg := newRegistrar(settings, logger)
	err = runGuarded(ctx, meta.ID, "register", h.callTimeout, func(context.Context) error {
		decl.Register(reg)
		return nil
	}, h.pin(handle))
	libraries, scanners, schema := reg.seal()
	if err != nil {
		return nil, h.recordFailure(&AddonLoadError{Path: path, AddonID: meta.ID, Err: err})
	}

	if schema == nil {
		schema, err = ReadSchemaFile(filepath.Join(filepath.Dir(path), SchemaFile))
		if err != nil {
			logger.Warn("ignoring unreadable config schema", "error", err)
		}
	}
	settings.setSchema(schema)

	loaded = &LoadedAddon{Metadata: meta, Path: path, handle: handle}
	if err := h.merge(loaded, libraries, scanners, settings); err != nil {
		return nil, h.recordFailure(&AddonLoadError{Path: path, AddonID: meta.ID, Err: err})
	}

	logger.Info("addon loaded", "name", meta.DisplayName, "libraries", len(libraries), "scanners", len(scanners))
	return loaded, nil
}

func lookupSymbols(lib Library) (*sdk.Declaration, func() sdk.AddonMetadata, error) {
	declSym, err := lib.Lookup(sdk.DeclarationSymbol)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrMissingSymbol, sdk.DeclarationSymbol, err)
	}
	decl, ok := declSym.(*sdk.Declaration)
	if !ok || decl == nil || decl.Register == nil {
		return nil, nil, fmt.Errorf("%w: %s is %T", ErrInvalidSymbol, sdk.DeclarationSymbol, declSym)
	}

	metaSym, err := lib.Lookup(sdk.MetadataSymbol)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrMissingSymbol, sdk.MetadataSymbol, err)
	}
	metaFn, ok := metaSym.(func() sdk.AddonMetadata)
	if !ok || metaFn == nil {
		return nil, nil, fmt.Errorf("%w: %s is %T", ErrInvalidSymbol, sdk.MetadataSymbol, metaSym)
	}
	return decl, metaFn, nil
}

// pin holds the library for the duration of a guarded call.
func (h *Host) pin(handle uint64) func() {
	h.table.retain(handle)
	return func() { h.table.release(handle) }
}

func (h *Host) has(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.addons[id]
	return ok
}

// merge adds the addon's capabilities to the host maps, all or nothing.
func (h *Host) merge(a *LoadedAddon, libraries map[string]sdk.GameLibrary, scanners map[string]sdk.GameMetadataScanner, settings *SettingsStore) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.addons[a.Metadata.ID]; ok {
		return ErrDuplicateAddon
	}
	for name := range libraries {
		if _, ok := h.libraries[name]; ok {
			return fmt.Errorf("%w: library %q", ErrDuplicateAddon, name)
		}
	}
	for name := range scanners {
		if _, ok := h.scanners[name]; ok {
			return fmt.Errorf("%w: metadata scanner %q", ErrDuplicateAddon, name)
		}
	}

	h.table.retain(a.handle)
	h.addons[a.Metadata.ID] = a
	h.settings[a.Metadata.ID] = settings
	for name, lib := range libraries {
		h.libraries[name] = &GameLibraryProxy{
			ref:         newCapabilityRef(a.Metadata.ID, a.handle, h.table),
			inner:       lib,
			callTimeout: h.callTimeout,
			scanTimeout: h.scanTimeout,
		}
	}
	for name, scanner := range scanners {
		h.scanners[name] = &MetadataScannerProxy{
			ref:     newCapabilityRef(a.Metadata.ID, a.handle, h.table),
			inner:   scanner,
			timeout: h.callTimeout,
			engine:  h.engine,
		}
	}
	metrics.AddonsLoaded.Set(float64(len(h.addons)))
	return nil
}

func (h *Host) recordFailure(err *AddonLoadError) error {
	metrics.AddonLoadFailures.WithLabelValues(loadFailureReason(err)).Inc()
	h.logger.Warn("failed to load addon", "path", err.Path, "addon", err.AddonID, "error", err.Err)
	h.mu.Lock()
	h.loadErrors = append(h.loadErrors, err)
	h.mu.Unlock()
	return err
}

// LoadErrors returns the failures seen while loading.
func (h *Host) LoadErrors() []error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.loadErrors)
}

// Keys returns the names of the registered game libraries, sorted.
func (h *Host) Keys() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	keys := make([]string, 0, len(h.libraries))
	for k := range h.libraries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GameLibrary returns a proxy for the named library. The caller owns the
// proxy and must Release it.
func (h *Host) GameLibrary(name string) (*GameLibraryProxy, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.libraries[name]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// MetadataScanner returns a proxy for the named scanner. The caller owns the
// proxy and must Release it.
func (h *Host) MetadataScanner(name string) (*MetadataScannerProxy, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.scanners[name]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// AddonMetadatas returns the metadata of every loaded addon, sorted by id.
func (h *Host) AddonMetadatas() []sdk.AddonMetadata {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]sdk.AddonMetadata, 0, len(h.addons))
	for _, a := range h.addons {
		out = append(out, a.Metadata)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Addon returns a loaded addon by id.
func (h *Host) Addon(id string) (*LoadedAddon, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.addons[id]
	return a, ok
}

// ConfigSchema returns the config schema an addon declared.
func (h *Host) ConfigSchema(id string) ([]sdk.ConfigSchemaEntry, error) {
	s, err := h.Settings(id)
	if err != nil {
		return nil, err
	}
	return s.Schema(), nil
}

// Settings returns the config value store of an addon.
func (h *Host) Settings(id string) (*SettingsStore, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.settings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAddon, id)
	}
	return s, nil
}

// Shutdown drops the host's hold on every addon. Libraries stay loaded
// while proxies handed out earlier are still alive.
func (h *Host) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, p := range h.libraries {
		p.Release()
	}
	for _, p := range h.scanners {
		p.Release()
	}
	for _, a := range h.addons {
		h.table.release(a.handle)
	}
	clear(h.libraries)
	clear(h.scanners)
	clear(h.addons)
	clear(h.settings)
	metrics.AddonsLoaded.Set(0)
}
