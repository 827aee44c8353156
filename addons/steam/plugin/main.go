// Command plugin builds the Steam addon as a loadable library:
//
//	go build -buildmode=plugin -o steam.so ./addons/steam/plugin
package main

import (
	"github.com/ryanm101/gami/addons/steam"
	"github.com/ryanm101/gami/sdk"
)

// AddonMetadata is looked up by the host.
func AddonMetadata() sdk.AddonMetadata {
	return steam.Metadata()
}

// AddonDeclaration is looked up by the host.
var AddonDeclaration = sdk.NewDeclaration(steam.Register)

func main() {}
