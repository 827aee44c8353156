package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ryanm101/gami/internal/catalog"
	"github.com/ryanm101/gami/internal/syncer"
)

var (
	gamesSearch  string
	gamesLibrary string
)

var gamesCmd = &cobra.Command{
	Use:   "games",
	Short: "Browse and act on catalog games",
}

var gamesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog games",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		return runGamesList(cmd.Context(), db, catalog.Filter{Search: gamesSearch, LibraryType: gamesLibrary})
	},
}

var gamesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a game's details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseGameID(args[0])
		if err != nil {
			return err
		}
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		return runGamesShow(cmd.Context(), db, id)
	},
}

var gamesDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a game from the catalog",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseGameID(args[0])
		if err != nil {
			return err
		}
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		if err := syncer.NewActions(nil, db).Delete(cmd.Context(), id); err != nil {
			return err
		}
		PrintInfo("Deleted game %d\n", id)
		return nil
	},
}

var gamesStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Ask the owning addon for a game's install status",
	Args:  cobra.ExactArgs(1),
	RunE: withActions(func(ctx context.Context, actions *syncer.Actions, id int64) error {
		status, err := actions.InstallStatus(ctx, id)
		if err != nil {
			return err
		}
		if outputCfg.JSON {
			PrintResult(map[string]any{"id": id, "install_status": status.String(), "actions": syncer.AvailableActions(status)})
			return nil
		}
		fmt.Println(status)
		return nil
	}),
}

var gamesLaunchCmd = &cobra.Command{
	Use:     "launch <id>",
	Aliases: []string{"play"},
	Short:   "Launch a game",
	Args:    cobra.ExactArgs(1),
	RunE: withActions(func(ctx context.Context, actions *syncer.Actions, id int64) error {
		return actions.Launch(ctx, id)
	}),
}

var gamesInstallCmd = &cobra.Command{
	Use:   "install <id>",
	Short: "Install a game through its addon",
	Args:  cobra.ExactArgs(1),
	RunE: withActions(func(ctx context.Context, actions *syncer.Actions, id int64) error {
		return actions.Install(ctx, id)
	}),
}

var gamesUninstallCmd = &cobra.Command{
	Use:   "uninstall <id>",
	Short: "Uninstall a game through its addon",
	Args:  cobra.ExactArgs(1),
	RunE: withActions(func(ctx context.Context, actions *syncer.Actions, id int64) error {
		return actions.Uninstall(ctx, id)
	}),
}

func init() {
	gamesListCmd.Flags().StringVarP(&gamesSearch, "search", "s", "", "filter by name")
	gamesListCmd.Flags().StringVarP(&gamesLibrary, "library", "l", "", "filter by library type")

	rootCmd.AddCommand(gamesCmd)
	gamesCmd.AddCommand(gamesListCmd, gamesShowCmd, gamesDeleteCmd, gamesStatusCmd,
		gamesLaunchCmd, gamesInstallCmd, gamesUninstallCmd)
}

// withActions opens the catalog and addons around an action on one game.
func withActions(fn func(context.Context, *syncer.Actions, int64) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseGameID(args[0])
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), syncer.NewActions(syncer.FromHost(a.host), a.db), id)
	}
}

func parseGameID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid game id %q", s)
	}
	return id, nil
}

func runGamesList(ctx context.Context, db *catalog.DB, f catalog.Filter) error {
	games, err := db.ListGames(ctx, f)
	if err != nil {
		return err
	}
	if len(games) == 0 && !outputCfg.JSON {
		fmt.Println("No games found.")
		return nil
	}

	rows := make([][]string, 0, len(games))
	for _, g := range games {
		rows = append(rows, []string{
			strconv.FormatInt(g.ID, 10),
			g.Name,
			g.LibraryType,
			g.InstallStatus.String(),
			formatPlaytime(g.PlayTimeSecs),
			formatDate(g.LastPlayed, "never"),
		})
	}
	PrintTable([]string{"ID", "NAME", "LIBRARY", "STATUS", "PLAYTIME", "LAST PLAYED"}, rows)
	return nil
}

func runGamesShow(ctx context.Context, db *catalog.DB, id int64) error {
	g, err := db.GetGame(ctx, id)
	if err != nil {
		return err
	}
	genres, err := db.GameGenres(ctx, id)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(genres))
	for _, genre := range genres {
		names = append(names, genre.Name)
	}

	if outputCfg.JSON {
		PrintResult(map[string]any{
			"id":             g.ID,
			"name":           g.Name,
			"library_type":   g.LibraryType,
			"library_id":     g.LibraryID,
			"install_status": g.InstallStatus.String(),
			"playtime_secs":  g.PlayTimeSecs,
			"last_played":    g.LastPlayed,
			"release_date":   g.ReleaseDate,
			"description":    g.Description,
			"genres":         names,
			"icon_url":       g.IconURL,
			"header_url":     g.HeaderURL,
			"cover_url":      g.CoverURL,
			"actions":        syncer.AvailableActions(g.InstallStatus),
		})
		return nil
	}

	fmt.Printf("%s\n", g.Name)
	fmt.Printf("  Library:     %s (%s)\n", g.LibraryType, g.LibraryID)
	fmt.Printf("  Status:      %s\n", g.InstallStatus)
	fmt.Printf("  Playtime:    %s\n", formatPlaytime(g.PlayTimeSecs))
	fmt.Printf("  Last played: %s\n", formatDate(g.LastPlayed, "never"))
	fmt.Printf("  Released:    %s\n", formatDate(g.ReleaseDate, "unknown"))
	if len(names) > 0 {
		fmt.Printf("  Genres:      %s\n", strings.Join(names, ", "))
	}
	if g.Description != "" {
		fmt.Printf("\n%s\n", g.Description)
	}
	return nil
}

func formatPlaytime(secs int64) string {
	if secs <= 0 {
		return "-"
	}
	return (time.Duration(secs) * time.Second).Round(time.Minute).String()
}

func formatDate(t *time.Time, missing string) string {
	if t == nil {
		return missing
	}
	return t.Format("2006-01-02")
}
