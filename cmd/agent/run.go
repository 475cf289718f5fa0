package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bilal/orion-agent/internal/agent"
	"github.com/bilal/orion-agent/internal/alert"
	"github.com/bilal/orion-agent/internal/communicator"
	"github.com/bilal/orion-agent/internal/health"
	"github.com/bilal/orion-agent/internal/remediation"
	"github.com/bilal/orion-agent/internal/remote"
	"github.com/bilal/orion-agent/internal/report"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring loop until interrupted",
	RunE:  runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, log, closer, err := bootstrap()
	if err != nil {
		return err
	}
	defer closer.Close()

	log.Info().Str("agent", cfg.Agent.Name).Msg("starting orion agent")

	router, err := remote.NewSSH(cfg.Router)
	if err != nil {
		return fmt.Errorf("router executor: %w", err)
	}

	//------------------------------------------
	// HEALTH SERVER
	//------------------------------------------
	healthSrv := health.New(cfg.Health.Listen)

	//------------------------------------------
	// NOTIFIERS AND SINKS
	//------------------------------------------
	notifiers := alert.Notifiers{communicator.LogNotifier{Log: log}, healthSrv}
	var sinks []agent.SnapshotSink

	var comm *communicator.Communicator
	if cfg.Notify.WebhookURL != "" {
		comm = communicator.New(cfg, log)
		comm.Start()
		notifiers = append(notifiers, comm)
	}

	var producer *communicator.KafkaProducer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = communicator.NewKafkaProducer(cfg, log)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		notifiers = append(notifiers, producer)
		sinks = append(sinks, producer)
	}

	//------------------------------------------
	// CONTROL LOOP
	//------------------------------------------
	alerts := alert.NewEngine(alert.Thresholds{
		CPUPercent:    cfg.Thresholds.CPUPercent,
		MemoryPercent: cfg.Thresholds.MemoryPercent,
		LatencyMs:     cfg.Thresholds.LatencyMs,
	}, notifiers, log)
	healthSrv.SetAlertSource(func() int { return len(alerts.Open()) })

	loop := agent.New(agent.Components{
		Collector:  newCollector(cfg, router, log),
		Alerts:     alerts,
		Remediator: remediation.NewEngine(router, cfg.BGP.RestartCommand, cfg.RestartTimeout(), alerts, log),
		Reporter:   report.NewGenerator(cfg.BGP.LocalAS),
		Sinks:      sinks,
		Observer:   healthSrv,
	}, agent.Options{
		Interval:     cfg.Interval(),
		ReportMinute: cfg.Agent.ReportMinute,
	}, log)

	go func() {
		if err := healthSrv.Serve(); err != nil {
			log.Error().Err(err).Msg("health server stopped")
		}
	}()
	log.Info().Str("listen", cfg.Health.Listen).Msg("health endpoint running on /health and /metrics")

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// OS Signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	healthSrv.SetRunning(true)
	err = loop.Start(ctx)
	healthSrv.SetRunning(false)

	//------------------------------------------
	// SHUTDOWN SEQUENCE
	//------------------------------------------
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if comm != nil {
		log.Info().Msg("stopping communicator...")
		comm.Shutdown(shutdownCtx)
	}
	if producer != nil {
		if cerr := producer.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("kafka producer close failed")
		}
	}
	if serr := healthSrv.Shutdown(shutdownCtx); serr != nil {
		log.Error().Err(serr).Msg("health server shutdown failed")
	}

	if err != nil {
		return err
	}
	log.Info().Msg("agent stopped cleanly")
	return nil
}
