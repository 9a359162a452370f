package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"racedash/internal/backend"
	"racedash/internal/batch"
	"racedash/internal/charts"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [CHART...]",
	Short: "Fetch chart payloads for a dataset",
	Long: `Fetch one or more charts for a CSV export in a single concurrent batch.
Without arguments every chart in the catalog is fetched.

Examples:
  racedash fetch --csv races.csv wpm-distribution
  racedash fetch --csv races.csv --json --stats`,
	RunE: runFetch,
}

var (
	fetchCSV   string
	fetchJSON  bool
	fetchStats bool
	fetchLimit int
)

func init() {
	fetchCmd.Flags().StringVar(&fetchCSV, "csv", "", "path to the race history CSV (- for stdin)")
	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "print payloads as JSON")
	fetchCmd.Flags().BoolVar(&fetchStats, "stats", false, "also fetch headline statistics")
	fetchCmd.Flags().IntVar(&fetchLimit, "concurrency", 0, "maximum requests in flight (0 = unlimited)")
	rootCmd.AddCommand(fetchCmd)
}

type fetchOutput struct {
	Stats  *backend.StatsPayload               `json:"stats,omitempty"`
	Charts map[charts.ID]*backend.ChartPayload `json:"charts"`
	Failed map[charts.ID]string                `json:"failed,omitempty"`
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ids := charts.All()
	if len(args) > 0 {
		ids = ids[:0]
		for _, a := range args {
			id, err := charts.Parse(a)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
	}

	dataset, err := readDataset(fetchCSV)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(ctx, nil)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	client, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	out := fetchOutput{Failed: make(map[charts.ID]string)}
	if fetchStats {
		if out.Stats, err = client.FetchStats(ctx, dataset); err != nil {
			return fmt.Errorf("fetching stats: %s", backend.DisplayMessage(err))
		}
	}

	start := time.Now()
	results := batch.New(client, batch.WithConcurrency(fetchLimit), batch.WithLogger(logger)).
		FetchAllDetailed(ctx, ids, dataset)
	elapsed := time.Since(start)

	out.Charts = make(map[charts.ID]*backend.ChartPayload, len(results))
	for id, r := range results {
		if r.Err != nil {
			out.Failed[id] = backend.DisplayMessage(r.Err)
			continue
		}
		out.Charts[id] = r.Payload
	}

	if fetchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if out.Stats != nil {
		fmt.Printf("Races:    %d (%d wins)\n", out.Stats.TotalRaces, out.Stats.TotalWins)
		fmt.Printf("WPM:      avg %.1f, best %.1f\n", out.Stats.AvgWPM, out.Stats.BestWPM)
		fmt.Printf("Accuracy: %.2f\n", out.Stats.AvgAccuracy)
		fmt.Printf("Range:    %s to %s\n\n", out.Stats.DateRange.Start, out.Stats.DateRange.End)
	}
	for _, id := range ids {
		r, ok := results[id]
		if !ok {
			continue
		}
		if r.Err != nil {
			fmt.Printf("FAIL %-28s %8s  %s\n", id, r.Duration.Round(time.Millisecond), backend.DisplayMessage(r.Err))
			continue
		}
		fmt.Printf("ok   %-28s %8s  %d series, %d insights\n",
			id, r.Duration.Round(time.Millisecond), len(r.Payload.Data), len(r.Payload.Insights))
	}
	fmt.Printf("\n%d/%d charts in %s\n", len(out.Charts), len(results), elapsed.Round(time.Millisecond))

	if len(out.Failed) > 0 {
		return fmt.Errorf("%d chart(s) failed", len(out.Failed))
	}
	return nil
}
