package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ryanm101/gami/internal/catalog"
	"github.com/ryanm101/gami/internal/logging"
	"github.com/ryanm101/gami/sdk"
)

// Action is something the user can do with a catalog game.
type Action string

const (
	ActionPlay      Action = "play"
	ActionInstall   Action = "install"
	ActionUninstall Action = "uninstall"
	ActionDelete    Action = "delete"
)

// AvailableActions lists the actions that make sense for a game in the
// given install state.
func AvailableActions(status sdk.InstallStatus) []Action {
	if status == sdk.Installed {
		return []Action{ActionPlay, ActionUninstall, ActionDelete}
	}
	return []Action{ActionInstall, ActionDelete}
}

// GameStore is the catalog access game actions need.
type GameStore interface {
	GetGame(ctx context.Context, id int64) (*catalog.Game, error)
	DeleteGame(ctx context.Context, id int64) error
}

// Actions forwards user actions on catalog games to the addon that owns
// them.
type Actions struct {
	source AddonSource
	games  GameStore
	logger *slog.Logger
}

// NewActions creates an Actions.
func NewActions(source AddonSource, games GameStore) *Actions {
	return &Actions{source: source, games: games, logger: logging.Get()}
}

// Launch starts a game.
func (a *Actions) Launch(ctx context.Context, gameID int64) error {
	return a.withLibrary(ctx, gameID, "launch", func(lib Library, ref sdk.GameRef) error {
		return lib.Launch(ctx, ref)
	})
}

// Install asks the owning addon to install a game.
func (a *Actions) Install(ctx context.Context, gameID int64) error {
	return a.withLibrary(ctx, gameID, "install", func(lib Library, ref sdk.GameRef) error {
		return lib.Install(ctx, ref)
	})
}

// Uninstall asks the owning addon to uninstall a game.
func (a *Actions) Uninstall(ctx context.Context, gameID int64) error {
	return a.withLibrary(ctx, gameID, "uninstall", func(lib Library, ref sdk.GameRef) error {
		return lib.Uninstall(ctx, ref)
	})
}

// InstallStatus asks the owning addon for a game's current install state.
func (a *Actions) InstallStatus(ctx context.Context, gameID int64) (sdk.InstallStatus, error) {
	status := sdk.InLibrary
	err := a.withLibrary(ctx, gameID, "check install status", func(lib Library, ref sdk.GameRef) error {
		var err error
		status, err = lib.CheckInstallStatus(ctx, ref)
		return err
	})
	return status, err
}

// Delete removes a game from the catalog. The addon is not involved.
func (a *Actions) Delete(ctx context.Context, gameID int64) error {
	return a.games.DeleteGame(ctx, gameID)
}

func (a *Actions) withLibrary(ctx context.Context, gameID int64, op string, fn func(Library, sdk.GameRef) error) error {
	game, err := a.games.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	lib, ok := a.source.Library(game.LibraryType)
	if !ok {
		return fmt.Errorf("%s %s: %w: %s", op, game.Name, ErrNoLibrary, game.LibraryType)
	}
	defer lib.Release()

	a.logger.Info("game action", "action", op, "game", game.Ref().String())
	if err := fn(lib, game.Ref()); err != nil {
		return fmt.Errorf("%s %s: %w", op, game.Name, err)
	}
	return nil
}
