package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ryanm101/gami/internal/addons"
)

var addonsCmd = &cobra.Command{
	Use:   "addons",
	Short: "Inspect and configure addons",
}

var addonsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded addons and load failures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		host, err := openHost(cmd.Context())
		if err != nil {
			return err
		}
		defer host.Shutdown()
		return runAddonsList(host)
	},
}

var addonsConfigCmd = &cobra.Command{
	Use:   "config <addon>",
	Short: "Show an addon's config schema and values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := openHost(cmd.Context())
		if err != nil {
			return err
		}
		defer host.Shutdown()
		return runAddonsConfig(host, args[0])
	},
}

var addonsSetCmd = &cobra.Command{
	Use:   "set <addon> <key> <value>",
	Short: "Set an addon config value",
	Long: `Set an addon config value. The key must be declared by the addon's
schema and the value must parse as the declared kind.

Examples:
  gami addons set steam apiKey 0123456789ABCDEF
  gami addons set steam steamId 76561197960287930`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := openHost(cmd.Context())
		if err != nil {
			return err
		}
		defer host.Shutdown()
		return runAddonsSet(host, args[0], args[1], args[2])
	},
}

func init() {
	rootCmd.AddCommand(addonsCmd)
	addonsCmd.AddCommand(addonsListCmd)
	addonsCmd.AddCommand(addonsConfigCmd)
	addonsCmd.AddCommand(addonsSetCmd)
}

func runAddonsList(host *addons.Host) error {
	rows := make([][]string, 0)
	for _, md := range host.AddonMetadatas() {
		path := ""
		if a, ok := host.Addon(md.ID); ok {
			path = a.Path
		}
		rows = append(rows, []string{md.ID, md.DisplayName, "loaded", path})
	}
	for _, err := range host.LoadErrors() {
		var loadErr *addons.AddonLoadError
		if errors.As(err, &loadErr) {
			rows = append(rows, []string{loadErr.AddonID, "", "failed: " + loadErr.Err.Error(), loadErr.Path})
			continue
		}
		rows = append(rows, []string{"", "", "failed: " + err.Error(), ""})
	}

	if len(rows) == 0 && !outputCfg.JSON {
		fmt.Printf("No addons found in %s\n", cfg.GetAddonsDir())
		return nil
	}
	PrintTable([]string{"ID", "NAME", "STATUS", "PATH"}, rows)
	return nil
}

func runAddonsConfig(host *addons.Host, id string) error {
	settings, err := host.Settings(id)
	if err != nil {
		return err
	}
	values, err := settings.Values()
	if err != nil {
		return fmt.Errorf("read %s: %w", settings.Path(), err)
	}

	schema := settings.Schema()
	rows := make([][]string, 0, len(schema))
	for _, e := range schema {
		rows = append(rows, []string{e.FieldKey, e.DisplayName, e.Kind.String(), values[e.FieldKey], e.Hint})
	}
	PrintTable([]string{"KEY", "NAME", "KIND", "VALUE", "HINT"}, rows)

	if missing := addons.MissingRequired(schema, values); len(missing) > 0 {
		PrintInfo("\nNot set: %v\n", missing)
	}
	return nil
}

func runAddonsSet(host *addons.Host, id, key, value string) error {
	settings, err := host.Settings(id)
	if err != nil {
		return err
	}
	if err := settings.Set(key, value); err != nil {
		return err
	}
	PrintInfo("Set %s.%s\n", id, key)
	return nil
}
