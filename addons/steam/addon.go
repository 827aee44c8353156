// Package steam is the Steam addon: it imports the Steam library from the
// local client and the Web API, and enriches games from the storefront.
package steam

import (
	"log/slog"

	"github.com/ryanm101/gami/sdk"
)

// Metadata describes the addon.
func Metadata() sdk.AddonMetadata {
	return sdk.AddonMetadata{ID: ID, DisplayName: "Steam"}
}

// Register hands the addon's capabilities to the host.
func Register(r sdk.Registrar) {
	logger := slog.Default().With("addon", ID)
	r.RegisterConfig(Schema)
	r.RegisterLibrary(ID, NewLibrary(r.Settings(), WithLogger(logger)))
	r.RegisterMetadataScanner(ID, NewStoreScanner())
}

var (
	_ sdk.GameLibrary         = (*Library)(nil)
	_ sdk.GameMetadataScanner = (*StoreScanner)(nil)
)
