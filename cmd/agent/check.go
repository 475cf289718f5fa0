package main

import (
	"fmt"

	"github.com/bilal/orion-agent/internal/alert"
	"github.com/bilal/orion-agent/internal/communicator"
	"github.com/bilal/orion-agent/internal/remote"
	"github.com/bilal/orion-agent/internal/report"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Collect and analyze once, print the report; never remediates",
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, log, closer, err := bootstrap()
	if err != nil {
		return err
	}
	defer closer.Close()

	var router remote.Executor
	if r, err := remote.NewSSH(cfg.Router); err != nil {
		// BGP falls back to its default instead
		log.Warn().Err(err).Msg("router executor unavailable")
	} else {
		router = r
	}

	snap := newCollector(cfg, router, log).Collect(cmd.Context())

	alerts := alert.NewEngine(alert.Thresholds{
		CPUPercent:    cfg.Thresholds.CPUPercent,
		MemoryPercent: cfg.Thresholds.MemoryPercent,
		LatencyMs:     cfg.Thresholds.LatencyMs,
	}, communicator.LogNotifier{Log: log}, log)
	alerts.Analyze(snap)

	fmt.Fprint(cmd.OutOrStdout(), report.NewGenerator(cfg.BGP.LocalAS).Render(snap, alerts.Open()))
	return nil
}
