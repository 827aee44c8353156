package addons

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/ryanm101/gami/sdk"
)

// registrar collects what an addon declares during its Register call. It is
// sealed as soon as Register returns; later calls are dropped.
type registrar struct {
	mu        sync.Mutex
	sealed    bool
	libraries map[string]sdk.GameLibrary
	scanners  map[string]sdk.GameMetadataScanner
	schema    []sdk.ConfigSchemaEntry
	settings  *SettingsStore
	logger    *slog.Logger
}

func newRegistrar(settings *SettingsStore, logger *slog.Logger) *registrar {
	return &registrar{
		libraries: make(map[string]sdk.GameLibrary),
		scanners:  make(map[string]sdk.GameMetadataScanner),
		settings:  settings,
		logger:    logger,
	}
}

func (r *registrar) RegisterLibrary(name string, lib sdk.GameLibrary) {
	name = sdk.NormalizeID(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.accept("library", name, lib == nil) {
		return
	}
	r.libraries[name] = lib
}

func (r *registrar) RegisterMetadataScanner(name string, scanner sdk.GameMetadataScanner) {
	name = sdk.NormalizeID(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.accept("metadata scanner", name, scanner == nil) {
		return
	}
	r.scanners[name] = scanner
}

func (r *registrar) RegisterConfig(schema []sdk.ConfigSchemaEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		r.logger.Warn("ignoring config registration after registration closed")
		return
	}
	r.schema = slices.Clone(schema)
	for i := range r.schema {
		r.schema[i].FieldKey = sdk.NormalizeID(r.schema[i].FieldKey)
	}
}

func (r *registrar) Settings() sdk.Settings {
	return r.settings
}

// accept must be called with r.mu held.
func (r *registrar) accept(kind, name string, isNil bool) bool {
	switch {
	case r.sealed:
		r.logger.Warn("ignoring registration after registration closed", "kind", kind, "name", name)
		return false
	case name == "":
		r.logger.Warn("ignoring registration without a name", "kind", kind)
		return false
	case isNil:
		r.logger.Warn("ignoring nil registration", "kind", kind, "name", name)
		return false
	}
	return true
}

// seal closes the registration window and returns what was collected.
func (r *registrar) seal() (map[string]sdk.GameLibrary, map[string]sdk.GameMetadataScanner, []sdk.ConfigSchemaEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	return r.libraries, r.scanners, r.schema
}
