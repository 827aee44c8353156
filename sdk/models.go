package sdk

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// GameKey is the natural identity of a game across sync passes.
type GameKey struct {
	LibraryType string
	LibraryID   string
}

func (k GameKey) String() string {
	return k.LibraryType + ":" + k.LibraryID
}

// GameRef identifies a game to an addon.
type GameRef struct {
	Name        string
	LibraryType string
	LibraryID   string
}

// Key returns the natural key of the referenced game.
func (r GameRef) Key() GameKey {
	return GameKey{LibraryType: r.LibraryType, LibraryID: r.LibraryID}
}

func (r GameRef) String() string {
	return fmt.Sprintf("%s (%s: %s)", r.Name, r.LibraryType, r.LibraryID)
}

// InstallStatus reports where a game is in its install lifecycle.
type InstallStatus uint8

const (
	Installed InstallStatus = iota
	Installing
	InLibrary
	Queued
	Uninstalling
)

var installStatusNames = map[InstallStatus]string{
	Installed:    "installed",
	Installing:   "installing",
	InLibrary:    "in_library",
	Queued:       "queued",
	Uninstalling: "uninstalling",
}

func (s InstallStatus) String() string {
	if name, ok := installStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("install_status(%d)", uint8(s))
}

// ScannedGame is one entry of a GameLibrary scan.
type ScannedGame struct {
	Name          string
	LibraryType   string
	LibraryID     string
	LastPlayed    *time.Time
	InstallStatus InstallStatus
	PlaytimeSecs  uint64
	IconURL       *string
}

// Ref returns a reference to the scanned game.
func (g ScannedGame) Ref() GameRef {
	return GameRef{Name: g.Name, LibraryType: g.LibraryType, LibraryID: g.LibraryID}
}

// GenreRef is a genre as identified by the remote metadata source.
type GenreRef struct {
	LibraryID string
	Name      string
}

// GameMetadata is remotely fetched enrichment for a game. Nil fields are
// absent and must never overwrite known values.
type GameMetadata struct {
	Description *string
	Genres      []GenreRef
	ReleaseDate *time.Time
	IconURL     *string
	HeaderURL   *string
	CoverURL    *string
}

// IsEmpty reports whether the metadata carries no enrichment at all.
func (m *GameMetadata) IsEmpty() bool {
	return m == nil || (m.Description == nil && len(m.Genres) == 0 && m.ReleaseDate == nil &&
		m.IconURL == nil && m.HeaderURL == nil && m.CoverURL == nil)
}

// ValueKind is the type of a config field value.
type ValueKind uint8

const (
	KindString ValueKind = iota
	KindInt
	KindBoolean
)

func (k ValueKind) String() string {
	switch k {
	case KindInt:
		return "Int"
	case KindBoolean:
		return "Boolean"
	default:
		return "String"
	}
}

// MarshalJSON encodes the kind by name.
func (k ValueKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts the kind name in any case.
func (k *ValueKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	kind, err := ParseValueKind(s)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseValueKind parses a kind name in any case.
func ParseValueKind(s string) (ValueKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string":
		return KindString, nil
	case "int":
		return KindInt, nil
	case "boolean", "bool":
		return KindBoolean, nil
	}
	return KindString, fmt.Errorf("unknown config value kind %q", s)
}

// ConfigSchemaEntry declares one config field of an addon.
type ConfigSchemaEntry struct {
	FieldKey    string    `json:"-"`
	DisplayName string    `json:"name"`
	Hint        string    `json:"hint"`
	Kind        ValueKind `json:"kind"`
}
