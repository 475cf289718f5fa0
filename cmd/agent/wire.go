package main

import (
	"fmt"
	"io"

	"github.com/bilal/orion-agent/internal/config"
	"github.com/bilal/orion-agent/internal/logger"
	"github.com/bilal/orion-agent/internal/monitor"
	"github.com/bilal/orion-agent/internal/promapi"
	"github.com/bilal/orion-agent/internal/remote"
	"github.com/rs/zerolog"
)

// bootstrap loads config and the logger. Either failing is fatal.
func bootstrap() (*config.Config, zerolog.Logger, io.Closer, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, zerolog.Nop(), nil, fmt.Errorf("load config: %w", err)
	}
	log, closer, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, zerolog.Nop(), nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, closer, nil
}

func newCollector(cfg *config.Config, router remote.Executor, log zerolog.Logger) *monitor.Collector {
	local := remote.Local{}

	var prober monitor.Prober
	switch cfg.Probe.Mode {
	case "command":
		prober = monitor.CommandProber{
			Exec:    local,
			Target:  cfg.Probe.Target,
			Count:   cfg.Probe.Count,
			Wait:    cfg.ProbeWait(),
			Timeout: cfg.QueryTimeout(),
		}
	default:
		prober = monitor.ICMPProber{
			Target:     cfg.Probe.Target,
			Count:      cfg.Probe.Count,
			Wait:       cfg.ProbeWait(),
			Privileged: cfg.Probe.Privileged,
		}
	}

	var conns monitor.ConnectionCounter
	switch cfg.Connections.Mode {
	case "command":
		conns = monitor.CommandCounter{Exec: local, Timeout: cfg.QueryTimeout()}
	case "netlink":
		conns = monitor.NetlinkCounter{}
	default:
		conns = monitor.SocketCounter{}
	}

	deps := monitor.Deps{
		Querier:     promapi.New(cfg.Prometheus.URL, cfg.QueryTimeout()),
		Router:      router,
		Prober:      prober,
		Connections: conns,
	}
	if cfg.Resources.Source == "local" {
		deps.Resources = monitor.LocalResources{}
	}
	return monitor.New(cfg, deps, log)
}
