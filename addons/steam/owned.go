package steam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
)

// DefaultAPIURL is the Steam Web API root.
const DefaultAPIURL = "https://api.steampowered.com"

const (
	ownedGamesPath = "/IPlayerService/GetOwnedGames/v0001/"
	iconURLFormat  = "https://media.steampowered.com/steamcommunity/public/images/apps/%s/%s.jpg"
	maxOwnedBody   = 16 << 20
	ownedMaxTries  = 4
)

// ErrAPIStatus is returned when the Web API answers with a non-2xx status.
var ErrAPIStatus = errors.New("steam api: unexpected status")

// OwnedGame is one entry of the GetOwnedGames response.
type OwnedGame struct {
	AppID        string
	Name         string
	PlaytimeSecs uint64
	LastPlayed   *time.Time
	IconURL      *string
}

// fetchOwned calls GetOwnedGames, retrying transient failures.
func (l *Library) fetchOwned(ctx context.Context, cfg Config) ([]OwnedGame, error) {
	q := url.Values{}
	q.Set("key", cfg.APIKey)
	q.Set("steamid", cfg.SteamID)
	q.Set("include_appinfo", "1")
	q.Set("include_played_free_games", "1")
	q.Set("format", "json")
	endpoint := l.apiURL + ownedGamesPath + "?" + q.Encode()

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		return l.getOwned(ctx, endpoint)
	}, backoff.WithBackOff(l.backoff()), backoff.WithMaxTries(ownedMaxTries))
	if err != nil {
		return nil, fmt.Errorf("get owned games: %w", err)
	}
	return parseOwned(body)
}

func (l *Library) getOwned(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: %s", ErrAPIStatus, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrAPIStatus, resp.Status))
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxOwnedBody))
}

func parseOwned(body []byte) ([]OwnedGame, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("get owned games: malformed response")
	}
	games := gjson.GetBytes(body, "response.games")
	if !games.Exists() {
		return nil, nil
	}

	var owned []OwnedGame
	games.ForEach(func(_, g gjson.Result) bool {
		appID := g.Get("appid").String()
		if appID == "" || appID == "0" {
			return true
		}
		game := OwnedGame{
			AppID: appID,
			Name:  g.Get("name").String(),
			// playtime_forever is reported in minutes.
			PlaytimeSecs: g.Get("playtime_forever").Uint() * 60,
		}
		if ts := g.Get("rtime_last_played").Int(); ts > 0 {
			t := time.Unix(ts, 0).UTC()
			game.LastPlayed = &t
		}
		if hash := g.Get("img_icon_url").String(); hash != "" {
			icon := fmt.Sprintf(iconURLFormat, url.PathEscape(appID), url.PathEscape(hash))
			game.IconURL = &icon
		}
		owned = append(owned, game)
		return true
	})
	return owned, nil
}
