package steam

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ryanm101/gami/sdk"
)

// DefaultStoreURL is the Steam storefront root.
const DefaultStoreURL = "https://store.steampowered.com"

// ErrMalformedStore is returned for a body that is not a JSON object.
var ErrMalformedStore = errors.New("steam store: malformed appdetails response")

// releaseDateLayouts covers the storefront's day-first and month-first forms.
var releaseDateLayouts = []string{
	"2 Jan, 2006",
	"Jan 2, 2006",
	"2 January, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"Jan 2006",
}

// StoreScanner implements sdk.GameMetadataScanner against the storefront
// appdetails endpoint.
type StoreScanner struct {
	BaseURL  string
	Language string
}

// NewStoreScanner returns a scanner for the public storefront.
func NewStoreScanner() *StoreScanner {
	return &StoreScanner{BaseURL: DefaultStoreURL}
}

// NewRequest builds the appdetails request for game.
func (s *StoreScanner) NewRequest(ctx context.Context, game sdk.GameRef) (*http.Request, error) {
	q := url.Values{}
	q.Set("appids", game.LibraryID)
	if s.Language != "" {
		q.Set("l", s.Language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/api/appdetails?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// DecodeMetadata parses an appdetails envelope of the form
// {"<appid>": {"success": true, "data": {...}}}.
func (s *StoreScanner) DecodeMetadata(game sdk.GameRef, body []byte) (*sdk.GameMetadata, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedStore
	}
	root := gjson.ParseBytes(body)
	if root.Type == gjson.Null {
		return nil, nil
	}
	if !root.IsObject() {
		return nil, ErrMalformedStore
	}

	entry := root.Get(gjson.Escape(game.LibraryID))
	if !entry.Exists() {
		// Keyed by a different id form; take the first entry.
		root.ForEach(func(_, v gjson.Result) bool {
			entry = v
			return false
		})
	}
	if !entry.Get("success").Bool() {
		return nil, nil
	}
	data := entry.Get("data")
	if !data.IsObject() {
		return nil, nil
	}

	md := &sdk.GameMetadata{
		Description: nonEmpty(data.Get("detailed_description").String()),
		HeaderURL:   nonEmpty(data.Get("header_image").String()),
		CoverURL:    nonEmpty(data.Get("capsule_image").String()),
		ReleaseDate: parseReleaseDate(data.Get("release_date.date").String()),
	}
	data.Get("genres").ForEach(func(_, g gjson.Result) bool {
		md.Genres = append(md.Genres, sdk.GenreRef{
			LibraryID: g.Get("id").String(),
			Name:      g.Get("description").String(),
		})
		return true
	})
	if md.IsEmpty() {
		return nil, nil
	}
	return md, nil
}

func parseReleaseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range releaseDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
