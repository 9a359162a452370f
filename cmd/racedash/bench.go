package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"racedash/internal/bench"
	"racedash/internal/charts"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark a full dashboard load",
	Long: `Measure a full dashboard load against the backend in three scenarios:
sequential chart loads, a parallel batch load and a cold then warm pass
through a session cache. The result is written as a Markdown report.

Examples:
  racedash bench --csv races.csv
  racedash bench --csv races.csv --charts wpm-distribution,top-texts --output report.md`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

var (
	benchCSV         string
	benchOutput      string
	benchCharts      string
	benchConcurrency int
)

func init() {
	benchCmd.Flags().StringVar(&benchCSV, "csv", "", "path to the race history CSV (- for stdin)")
	benchCmd.Flags().StringVarP(&benchOutput, "output", "o", "", "write the report to this file instead of stdout")
	benchCmd.Flags().StringVar(&benchCharts, "charts", "", "comma separated charts to load (default: all)")
	benchCmd.Flags().IntVar(&benchConcurrency, "concurrency", bench.DefaultConcurrency, "parallel scenario worker count")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	dataset, err := readDataset(benchCSV)
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

	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("cannot reach backend at %s: %w", cfg.BackendURL, err)
	}

	opts := []bench.Option{bench.WithConcurrency(benchConcurrency), bench.WithLogger(logger)}
	if benchCharts != "" {
		ids, err := charts.ParseList(benchCharts)
		if err != nil {
			return err
		}
		opts = append(opts, bench.WithCharts(ids...))
	}

	report := bench.NewRunner(client, dataset, opts...).RunAll(ctx)

	var w io.Writer = os.Stdout
	if benchOutput != "" {
		f, err := os.Create(benchOutput)
		if err != nil {
			return fmt.Errorf("creating report: %w", err)
		}
		defer f.Close()
		w = f
	}
	bench.NewMarkdownReport(w).Write(report)

	if benchOutput != "" {
		fmt.Fprintf(os.Stderr, "report written to %s\n", benchOutput)
	}
	return nil
}
