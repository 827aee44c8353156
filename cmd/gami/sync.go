package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ryanm101/gami/internal/logging"
	"github.com/ryanm101/gami/internal/metrics"
	"github.com/ryanm101/gami/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync [addon]",
	Short: "Import new games from addon libraries",
	Long: `Scan addon libraries and add games missing from the catalog, enriched
with remote metadata. Without an argument every addon library is synced
concurrently.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return runSync(ctx, a, args)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(ctx context.Context, a *app, args []string) error {
	orch := syncer.New(syncer.FromHost(a.host), syncer.FromCatalog(a.db))

	events := make(chan syncer.Event, 64)
	done := make(chan struct{})
	go reportProgress(events, done)

	var outcomes map[string]syncer.Outcome
	if len(args) == 1 {
		res, err := orch.Sync(ctx, args[0], events)
		outcomes = map[string]syncer.Outcome{args[0]: {Result: res, Err: err}}
	} else {
		outcomes = orch.SyncAll(ctx, events)
	}
	close(events)
	<-done

	if err := metrics.UpdateCatalogMetrics(ctx, a.db.Conn()); err != nil {
		logging.Get().Warn("Failed to update catalog metrics", "error", err)
	}
	return printOutcomes(outcomes)
}

// reportProgress renders one bar for the metadata fetches of every running
// pass.
func reportProgress(events <-chan syncer.Event, done chan<- struct{}) {
	defer close(done)

	var bar *progressbar.ProgressBar
	current := make(map[string]int)
	total := make(map[string]int)
	for ev := range events {
		if !showProgress() {
			continue
		}
		if bar == nil {
			bar = progressbar.Default(-1, "Syncing")
		}
		bar.Describe(ev.String())
		if ev.Phase != syncer.FetchingMetadata {
			continue
		}
		current[ev.AddonID] = ev.Current
		total[ev.AddonID] = ev.Total
		bar.ChangeMax(sum(total))
		_ = bar.Set(sum(current))
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
}

func sum(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

func printOutcomes(outcomes map[string]syncer.Outcome) error {
	ids := make([]string, 0, len(outcomes))
	for id := range outcomes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	failed := 0
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		out := outcomes[id]
		if out.Err != nil {
			failed++
			rows = append(rows, []string{id, "", "", "", "", "", "failed: " + out.Err.Error()})
			continue
		}
		r := out.Result
		rows = append(rows, []string{
			id,
			strconv.Itoa(r.Scanned),
			strconv.Itoa(r.New),
			strconv.Itoa(r.Enriched),
			strconv.Itoa(r.GenresCreated),
			r.Duration.Round(time.Millisecond).String(),
			"ok",
		})
	}

	if len(rows) == 0 {
		PrintInfo("No addon libraries to sync.\n")
		return nil
	}
	if !outputCfg.Quiet || outputCfg.JSON {
		PrintTable([]string{"ADDON", "SCANNED", "NEW", "ENRICHED", "GENRES", "DURATION", "STATUS"}, rows)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sync passes failed", failed, len(rows))
	}
	return nil
}
