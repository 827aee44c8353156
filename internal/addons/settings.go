package addons

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/gofrs/flock"
	"github.com/tidwall/gjson"

	"github.com/ryanm101/gami/sdk"
)

// Files an addon may keep next to its library.
const (
	SchemaFile = "schema.json"
	ConfigFile = "config.json"
)

// SettingsStore holds an addon's config values in <addon dir>/config.json
// as a flat key to string object. Reads and writes take a file lock so the
// CLI and a running addon never see a torn file.
type SettingsStore struct {
	path string
	lock *flock.Flock

	mu     sync.RWMutex
	schema []sdk.ConfigSchemaEntry
}

// NewSettingsStore returns the store for an addon living in dir.
func NewSettingsStore(dir string) *SettingsStore {
	return &SettingsStore{
		path: filepath.Join(dir, ConfigFile),
		lock: flock.New(filepath.Join(dir, "."+ConfigFile+".lock")),
	}
}

// Path returns the config.json path.
func (s *SettingsStore) Path() string {
	return s.path
}

// Schema returns the declared config schema in declaration order.
func (s *SettingsStore) Schema() []sdk.ConfigSchemaEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.schema)
}

func (s *SettingsStore) setSchema(schema []sdk.ConfigSchemaEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = slices.Clone(schema)
}

// Values returns the persisted values. A missing file yields an empty map.
func (s *SettingsStore) Values() (map[string]string, error) {
	if err := s.lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock %s: %w", s.path, err)
	}
	defer func() { _ = s.lock.Unlock() }()
	return s.read()
}

// Set validates value against the field's declared kind and persists it.
func (s *SettingsStore) Set(key, value string) error {
	key = sdk.NormalizeID(key)
	entry, ok := s.field(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	if err := validateValue(entry.Kind, value); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
	}

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", s.path, err)
	}
	defer func() { _ = s.lock.Unlock() }()

	values, err := s.read()
	if err != nil {
		return err
	}
	values[key] = value
	return s.write(values)
}

func (s *SettingsStore) field(key string) (sdk.ConfigSchemaEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.schema {
		if e.FieldKey == key {
			return e, true
		}
	}
	return sdk.ConfigSchemaEntry{}, false
}

func (s *SettingsStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	values := make(map[string]string)
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return values, nil
}

func (s *SettingsStore) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

func validateValue(kind sdk.ValueKind, value string) error {
	switch kind {
	case sdk.KindInt:
		_, err := strconv.ParseInt(value, 10, 64)
		return err
	case sdk.KindBoolean:
		_, err := strconv.ParseBool(value)
		return err
	default:
		return nil
	}
}

// ReadSchemaFile parses a schema.json of the form
//
//	{"field_key": {"name": "...", "hint": "...", "kind": "String"}}
//
// keeping the fields in file order. A missing file yields no schema.
func ReadSchemaFile(path string) ([]sdk.ConfigSchemaEntry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parse %s: invalid JSON", path)
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("parse %s: expected an object", path)
	}

	var schema []sdk.ConfigSchemaEntry
	var parseErr error
	root.ForEach(func(key, value gjson.Result) bool {
		entry := sdk.ConfigSchemaEntry{
			FieldKey:    sdk.NormalizeID(key.String()),
			DisplayName: value.Get("name").String(),
			Hint:        value.Get("hint").String(),
		}
		if kind := value.Get("kind"); kind.Exists() {
			entry.Kind, parseErr = sdk.ParseValueKind(kind.String())
			if parseErr != nil {
				parseErr = fmt.Errorf("parse %s: field %s: %w", path, entry.FieldKey, parseErr)
				return false
			}
		}
		schema = append(schema, entry)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return schema, nil
}

// MissingRequired returns schema keys that have no value yet, in schema
// order.
func MissingRequired(schema []sdk.ConfigSchemaEntry, values map[string]string) []string {
	var missing []string
	for _, e := range schema {
		if _, ok := values[e.FieldKey]; !ok {
			missing = append(missing, e.FieldKey)
		}
	}
	return missing
}

var _ sdk.Settings = (*SettingsStore)(nil)

