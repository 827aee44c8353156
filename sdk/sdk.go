// Package sdk defines the contract between gami and its addons.
//
// An addon is a Go plugin (built with -buildmode=plugin) that exports two
// symbols:
//
//	func AddonMetadata() sdk.AddonMetadata
//	var AddonDeclaration = sdk.Declaration{...}
//
// The host refuses any addon whose declaration carries version tags that
// differ from its own. When the tags match, the host calls Register exactly
// once with a Registrar that collects the addon's capabilities.
package sdk

import (
	"context"
	"net/http"
	"runtime"
)

// CoreVersion is the version of the addon contract. Bump it on any change to
// the types or interfaces in this package.
const CoreVersion = "0.4.0"

// ToolchainVersion is the Go toolchain the binary was built with. Go plugins
// only load into a host built by the same toolchain.
var ToolchainVersion = runtime.Version()

// Exported symbol names looked up by the host.
const (
	MetadataSymbol    = "AddonMetadata"
	DeclarationSymbol = "AddonDeclaration"
)

// AddonMetadata describes an addon to the host and the user.
type AddonMetadata struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Declaration is the static record an addon exports under DeclarationSymbol.
type Declaration struct {
	ToolchainVersion string
	CoreVersion      string
	Register         func(Registrar)
}

// NewDeclaration returns a declaration stamped with this build's version tags.
func NewDeclaration(register func(Registrar)) Declaration {
	return Declaration{
		ToolchainVersion: ToolchainVersion,
		CoreVersion:      CoreVersion,
		Register:         register,
	}
}

// Registrar is handed to Declaration.Register. It is only valid for the
// duration of that call.
type Registrar interface {
	RegisterLibrary(name string, lib GameLibrary)
	RegisterMetadataScanner(name string, scanner GameMetadataScanner)
	RegisterConfig(schema []ConfigSchemaEntry)

	// Settings gives the addon read access to its persisted config values.
	// The returned value stays usable after registration.
	Settings() Settings
}

// Settings exposes an addon's persisted config values.
type Settings interface {
	Values() (map[string]string, error)
}

// GameLibrary lists the games an addon knows about and acts on them.
type GameLibrary interface {
	Scan(ctx context.Context) ([]ScannedGame, error)
	Launch(ctx context.Context, game GameRef) error
	Install(ctx context.Context, game GameRef) error
	Uninstall(ctx context.Context, game GameRef) error
	CheckInstallStatus(ctx context.Context, game GameRef) (InstallStatus, error)
}

// GameMetadataScanner describes how to fetch and decode metadata for one of
// the addon's games. The host owns the network I/O and concurrency; the
// addon only builds the request and decodes the response body.
type GameMetadataScanner interface {
	NewRequest(ctx context.Context, game GameRef) (*http.Request, error)

	// DecodeMetadata parses a response body. A nil result with a nil error
	// means the remote reported no data for this game.
	DecodeMetadata(game GameRef, body []byte) (*GameMetadata, error)
}
