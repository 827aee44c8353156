package steam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ryanm101/gami/sdk"
)

// ID is the addon id and the library type of every game it reports.
const ID = "steam"

// URLOpener hands a steam:// URL to the desktop.
type URLOpener func(ctx context.Context, url string) error

// Library implements sdk.GameLibrary for the Steam client.
type Library struct {
	settings sdk.Settings
	client   *http.Client
	apiURL   string
	open     URLOpener
	logger   *slog.Logger
	backoff  func() backoff.BackOff
}

// LibraryOption configures a Library.
type LibraryOption func(*Library)

// WithHTTPClient sets the client used for Web API calls.
func WithHTTPClient(c *http.Client) LibraryOption {
	return func(l *Library) { l.client = c }
}

// WithAPIURL points Web API calls at another root.
func WithAPIURL(u string) LibraryOption {
	return func(l *Library) { l.apiURL = u }
}

// WithURLOpener replaces the desktop URL handler.
func WithURLOpener(open URLOpener) LibraryOption {
	return func(l *Library) { l.open = open }
}

// WithLogger sets the addon's logger.
func WithLogger(logger *slog.Logger) LibraryOption {
	return func(l *Library) { l.logger = logger }
}

// WithBackOff sets the retry policy for Web API calls.
func WithBackOff(b func() backoff.BackOff) LibraryOption {
	return func(l *Library) { l.backoff = b }
}

// NewLibrary returns a Library reading its configuration from settings.
func NewLibrary(settings sdk.Settings, opts ...LibraryOption) *Library {
	l := &Library{
		settings: settings,
		client:   &http.Client{Timeout: 30 * time.Second},
		apiURL:   DefaultAPIURL,
		open:     OpenURL,
		logger:   slog.Default().With("addon", ID),
		backoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Scan lists installed games from the local client and, when an API key and
// steam id are configured, every owned game from the Web API. A failing API
// call degrades to the local list.
func (l *Library) Scan(ctx context.Context) ([]sdk.ScannedGame, error) {
	cfg, err := LoadConfig(l.settings)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	local, errs := ScanLocal(cfg.SteamPath)
	for _, err := range errs {
		l.logger.Warn("Skipping app manifest", "error", err)
	}

	var owned []OwnedGame
	if cfg.HasAPIAccess() {
		owned, err = l.fetchOwned(ctx, cfg)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Warn("Owned games unavailable, using installed games only", "error", err)
		}
	} else {
		l.logger.Debug("No API key or steam id configured, using installed games only")
	}

	return mergeScan(cfg.SteamPath, local, owned), nil
}

func mergeScan(steamPath string, local map[string]LocalGame, owned []OwnedGame) []sdk.ScannedGame {
	games := make([]sdk.ScannedGame, 0, len(local)+len(owned))
	seen := make(map[string]bool, len(owned))
	for _, o := range owned {
		seen[o.AppID] = true
		game := sdk.ScannedGame{
			Name:          o.Name,
			LibraryType:   ID,
			LibraryID:     o.AppID,
			LastPlayed:    o.LastPlayed,
			InstallStatus: sdk.InLibrary,
			PlaytimeSecs:  o.PlaytimeSecs,
			IconURL:       o.IconURL,
		}
		if lg, ok := local[o.AppID]; ok {
			game.InstallStatus = lg.Status
			if game.LastPlayed == nil {
				game.LastPlayed = lg.LastPlayed
			}
		}
		if icon := localIcon(steamPath, o.AppID); icon != nil {
			game.IconURL = icon
		}
		games = append(games, game)
	}

	// Installed apps the API did not report, such as family-shared ones.
	ids := make([]string, 0, len(local))
	for id := range local {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		lg := local[id]
		games = append(games, sdk.ScannedGame{
			Name:          lg.Name,
			LibraryType:   ID,
			LibraryID:     id,
			LastPlayed:    lg.LastPlayed,
			InstallStatus: lg.Status,
			IconURL:       localIcon(steamPath, id),
		})
	}
	return games
}

// Launch starts the game through the Steam client.
func (l *Library) Launch(ctx context.Context, game sdk.GameRef) error {
	return l.open(ctx, "steam://rungameid/"+game.LibraryID)
}

// Install asks the Steam client to install the game.
func (l *Library) Install(ctx context.Context, game sdk.GameRef) error {
	return l.open(ctx, "steam://install/"+game.LibraryID)
}

// Uninstall asks the Steam client to remove the game.
func (l *Library) Uninstall(ctx context.Context, game sdk.GameRef) error {
	return l.open(ctx, "steam://uninstall/"+game.LibraryID)
}

// CheckInstallStatus reads the game's app manifest. Games without one are
// owned but not installed.
func (l *Library) CheckInstallStatus(_ context.Context, game sdk.GameRef) (sdk.InstallStatus, error) {
	cfg, err := LoadConfig(l.settings)
	if err != nil {
		return sdk.InLibrary, fmt.Errorf("load config: %w", err)
	}
	if cfg.SteamPath == "" {
		return sdk.InLibrary, nil
	}
	lg, err := readManifest(manifestPath(cfg.SteamPath, game.LibraryID))
	if errors.Is(err, os.ErrNotExist) {
		return sdk.InLibrary, nil
	}
	if err != nil {
		return sdk.InLibrary, err
	}
	return lg.Status, nil
}

// OpenURL opens url with the platform's default handler. The handler is
// detached and outlives ctx.
func OpenURL(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
