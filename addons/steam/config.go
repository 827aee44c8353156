package steam

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ryanm101/gami/sdk"
)

// Config keys persisted by the host.
const (
	KeySteamID   = "steamId"
	KeyAPIKey    = "apiKey"
	KeySteamPath = "steamPath"
)

// Schema is the config schema the addon registers.
var Schema = []sdk.ConfigSchemaEntry{
	{FieldKey: KeySteamID, DisplayName: "Steam ID", Hint: "64-bit id of the account to import; detected from the local client when empty", Kind: sdk.KindInt},
	{FieldKey: KeyAPIKey, DisplayName: "Steam API key", Hint: "Web API key from https://steamcommunity.com/dev/apikey", Kind: sdk.KindString},
	{FieldKey: KeySteamPath, DisplayName: "Steam directory", Hint: "Steam client install directory; detected when empty", Kind: sdk.KindString},
}

// Config is the addon's resolved configuration.
type Config struct {
	SteamID   string
	APIKey    string
	SteamPath string
}

// HasAPIAccess reports whether the owned-games API can be called.
func (c Config) HasAPIAccess() bool {
	return c.SteamID != "" && c.APIKey != ""
}

// LoadConfig reads the persisted values and fills in what the local client
// can tell us.
func LoadConfig(settings sdk.Settings) (Config, error) {
	var cfg Config
	if settings != nil {
		values, err := settings.Values()
		if err != nil {
			return cfg, err
		}
		cfg.SteamID = strings.TrimSpace(values[KeySteamID])
		cfg.APIKey = strings.TrimSpace(values[KeyAPIKey])
		cfg.SteamPath = strings.TrimSpace(values[KeySteamPath])
	}
	if cfg.SteamPath == "" {
		cfg.SteamPath = DefaultSteamPath()
	}
	if cfg.SteamID == "" && cfg.SteamPath != "" {
		cfg.SteamID = mostRecentUser(filepath.Join(cfg.SteamPath, "config", "loginusers.vdf"))
	}
	return cfg, nil
}

// DefaultSteamPath returns the usual client install directory for the
// platform, or "" when none exists.
func DefaultSteamPath() string {
	if dir := os.Getenv("STEAM_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}

	var candidates []string
	switch runtime.GOOS {
	case "windows":
		candidates = []string{`C:\Program Files (x86)\Steam`, `C:\Program Files\Steam`}
	case "darwin":
		candidates = []string{filepath.Join(home, "Library", "Application Support", "Steam")}
	default:
		candidates = []string{
			filepath.Join(home, ".steam", "steam"),
			filepath.Join(home, ".steam", "debian-installation"),
			filepath.Join(home, ".local", "share", "Steam"),
		}
	}
	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}

// mostRecentUser returns the steam id flagged MostRecent in loginusers.vdf,
// falling back to the first listed account.
func mostRecentUser(path string) string {
	f, err := os.Open(path) //nolint:gosec // Path is derived from the Steam install directory
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	_, users, err := ParseVDF(f)
	if err != nil {
		return ""
	}
	first := ""
	for _, id := range users.Keys() {
		if first == "" {
			first = id
		}
		if users.Get(id, "MostRecent").String() == "1" {
			return id
		}
	}
	return first
}
