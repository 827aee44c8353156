package steam

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ryanm101/gami/sdk"
)

// LocalGame is an app described by an appmanifest file.
type LocalGame struct {
	AppID      string
	Name       string
	Status     sdk.InstallStatus
	LastPlayed *time.Time
}

func manifestPath(steamPath, appID string) string {
	return filepath.Join(steamPath, "steamapps", "appmanifest_"+appID+".acf")
}

// ScanLocal reads every appmanifest under steamPath. Unreadable manifests
// are skipped and reported in the returned error slice.
func ScanLocal(steamPath string) (map[string]LocalGame, []error) {
	games := make(map[string]LocalGame)
	if steamPath == "" {
		return games, nil
	}
	matches, err := filepath.Glob(filepath.Join(steamPath, "steamapps", "appmanifest_*.acf"))
	if err != nil {
		return games, []error{err}
	}

	var errs []error
	for _, path := range matches {
		game, err := readManifest(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		games[game.AppID] = game
	}
	return games, errs
}

func readManifest(path string) (LocalGame, error) {
	f, err := os.Open(path) //nolint:gosec // Path comes from a glob under the Steam directory
	if err != nil {
		return LocalGame{}, err
	}
	defer func() { _ = f.Close() }()

	_, state, err := ParseVDF(f)
	if err != nil {
		return LocalGame{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	appID := strings.TrimSpace(state.Get("appid").String())
	if appID == "" {
		return LocalGame{}, fmt.Errorf("%s: missing appid", filepath.Base(path))
	}

	game := LocalGame{
		AppID:  appID,
		Name:   state.Get("name").String(),
		Status: manifestStatus(state),
	}
	if secs, err := strconv.ParseInt(state.Get("LastPlayed").String(), 10, 64); err == nil && secs > 0 {
		t := time.Unix(secs, 0).UTC()
		game.LastPlayed = &t
	}
	return game, nil
}

func manifestStatus(state *Value) sdk.InstallStatus {
	downloaded := state.Get("BytesDownloaded")
	if downloaded == nil {
		return sdk.Queued
	}
	if downloaded.String() == state.Get("BytesToDownload").String() {
		return sdk.Installed
	}
	return sdk.Installing
}

// localIcon returns a file URL for the client's cached icon, if present.
func localIcon(steamPath, appID string) *string {
	if steamPath == "" {
		return nil
	}
	path := filepath.Join(steamPath, "appcache", "librarycache", appID+"_icon.jpg")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	u := (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
	return &u
}
