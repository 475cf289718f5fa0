package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/bilal/orion-agent/internal/metrics"
	"github.com/bilal/orion-agent/internal/promapi"
	"github.com/spf13/cobra"
)

var (
	trendWindow time.Duration
	trendStep   time.Duration
)

var trendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Print WAN bandwidth over a recent window",
	RunE:  runTrend,
}

func init() {
	trendCmd.Flags().DurationVar(&trendWindow, "window", time.Hour, "how far back to look")
	trendCmd.Flags().DurationVar(&trendStep, "step", time.Minute, "resolution of the range query")
}

func runTrend(cmd *cobra.Command, args []string) error {
	cfg, _, closer, err := bootstrap()
	if err != nil {
		return err
	}
	defer closer.Close()

	if trendStep <= 0 || trendWindow <= 0 {
		return fmt.Errorf("window and step must be positive")
	}

	end := time.Now()
	client := promapi.New(cfg.Prometheus.URL, cfg.QueryTimeout())
	samples, err := client.QueryRange(cmd.Context(), cfg.Prometheus.Queries.WANRx, end.Add(-trendWindow), end, trendStep)
	if err != nil {
		return fmt.Errorf("wan bandwidth range query: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tWAN Mbps")
	var peak float64
	for _, s := range samples {
		mbps := metrics.BytesToMbps(s.Value)
		if mbps > peak {
			peak = mbps
		}
		fmt.Fprintf(w, "%s\t%.2f\n", s.Time.Format("2006-01-02 15:04:05"), mbps)
	}
	fmt.Fprintf(w, "PEAK\t%.2f\n", peak)
	return w.Flush()
}
