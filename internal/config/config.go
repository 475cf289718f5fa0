package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
	File   string `mapstructure:"file"`   // empty = stdout only
}

type AgentConfig struct {
	Name            string `mapstructure:"name"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	ReportMinute    int    `mapstructure:"report_minute"`
}

type QueryConfig struct {
	WANRx  string `mapstructure:"wan_rx"`
	LANRx  string `mapstructure:"lan_rx"`
	CPU    string `mapstructure:"cpu"`
	Memory string `mapstructure:"memory"`
}

type PrometheusConfig struct {
	URL            string      `mapstructure:"url"`
	TimeoutSeconds int         `mapstructure:"timeout_seconds"`
	Queries        QueryConfig `mapstructure:"queries"`
}

type RouterConfig struct {
	Host                  string `mapstructure:"host"`
	Port                  int    `mapstructure:"port"`
	User                  string `mapstructure:"user"`
	KeyFile               string `mapstructure:"key_file"`
	KnownHostsFile        string `mapstructure:"known_hosts_file"`
	InsecureIgnoreHostKey bool   `mapstructure:"insecure_ignore_host_key"`
	TimeoutSeconds        int    `mapstructure:"timeout_seconds"`
}

type BGPConfig struct {
	PeerGroup             string `mapstructure:"peer_group"`
	StatusCommand         string `mapstructure:"status_command"`
	RestartCommand        string `mapstructure:"restart_command"`
	FallbackTotal         int    `mapstructure:"fallback_total"`
	RestartTimeoutSeconds int    `mapstructure:"restart_timeout_seconds"`
	LocalAS               int    `mapstructure:"local_as"`
}

type ProbeConfig struct {
	Target      string `mapstructure:"target"`
	Count       int    `mapstructure:"count"`
	WaitSeconds int    `mapstructure:"wait_seconds"`
	Mode        string `mapstructure:"mode"` // icmp or command
	Privileged  bool   `mapstructure:"privileged"`
}

type ConnectionsConfig struct {
	Mode string `mapstructure:"mode"` // socket, netlink or command
}

type ResourcesConfig struct {
	Source string `mapstructure:"source"` // prometheus or local
}

type ThresholdConfig struct {
	CPUPercent    float64 `mapstructure:"cpu_percent"`
	MemoryPercent float64 `mapstructure:"memory_percent"`
	LatencyMs     float64 `mapstructure:"latency_ms"`
}

type NotifyConfig struct {
	WebhookURL          string `mapstructure:"webhook_url"`
	AuthTokenEnv        string `mapstructure:"auth_token_env"` // e.g. ORION_WEBHOOK_TOKEN
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	SendIntervalSeconds int    `mapstructure:"send_interval_seconds"`
	MaxQueueSize        int    `mapstructure:"max_queue_size"`
	InsecureSkipVerify  bool   `mapstructure:"insecure_skip_verify"`
}

type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	AlertsTopic  string   `mapstructure:"alerts_topic"`
	MetricsTopic string   `mapstructure:"metrics_topic"`
}

type HealthConfig struct {
	Listen string `mapstructure:"listen"`
}

type Config struct {
	Agent       AgentConfig       `mapstructure:"agent"`
	Prometheus  PrometheusConfig  `mapstructure:"prometheus"`
	Router      RouterConfig      `mapstructure:"router"`
	BGP         BGPConfig         `mapstructure:"bgp"`
	Probe       ProbeConfig       `mapstructure:"probe"`
	Connections ConnectionsConfig `mapstructure:"connections"`
	Resources   ResourcesConfig   `mapstructure:"resources"`
	Thresholds  ThresholdConfig   `mapstructure:"thresholds"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Health      HealthConfig      `mapstructure:"health"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.name", "orion-agent")
	v.SetDefault("agent.interval_seconds", 60)
	v.SetDefault("agent.report_minute", 0)

	v.SetDefault("prometheus.url", "http://localhost:9090")
	v.SetDefault("prometheus.timeout_seconds", 10)
	v.SetDefault("prometheus.queries.wan_rx", `rate(node_network_receive_bytes_total{device="eth0"}[5m])`)
	v.SetDefault("prometheus.queries.lan_rx", `rate(node_network_receive_bytes_total{device="eth1"}[5m])`)
	v.SetDefault("prometheus.queries.cpu", `100 - (avg by (instance) (irate(node_cpu_seconds_total{mode="idle"}[5m])) * 100)`)
	v.SetDefault("prometheus.queries.memory", `(1 - (node_memory_MemAvailable_bytes / node_memory_MemTotal_bytes)) * 100`)

	v.SetDefault("router.host", "192.168.100.1")
	v.SetDefault("router.port", 22)
	v.SetDefault("router.user", "admin")
	v.SetDefault("router.key_file", "~/.ssh/id_ed25519")
	v.SetDefault("router.known_hosts_file", "~/.ssh/known_hosts")
	v.SetDefault("router.insecure_ignore_host_key", false)
	v.SetDefault("router.timeout_seconds", 10)

	v.SetDefault("bgp.peer_group", "telus_gw")
	v.SetDefault("bgp.status_command", "birdc show protocols")
	v.SetDefault("bgp.restart_command", "sudo systemctl restart bird2")
	v.SetDefault("bgp.fallback_total", 3)
	v.SetDefault("bgp.restart_timeout_seconds", 30)
	v.SetDefault("bgp.local_as", 394955)

	v.SetDefault("probe.target", "8.8.8.8")
	v.SetDefault("probe.count", 3)
	v.SetDefault("probe.wait_seconds", 2)
	v.SetDefault("probe.mode", "icmp")
	v.SetDefault("probe.privileged", false)

	v.SetDefault("connections.mode", "socket")
	v.SetDefault("resources.source", "prometheus")

	v.SetDefault("thresholds.cpu_percent", 90)
	v.SetDefault("thresholds.memory_percent", 95)
	v.SetDefault("thresholds.latency_ms", 100)

	v.SetDefault("notify.timeout_seconds", 5)
	v.SetDefault("notify.send_interval_seconds", 10)
	v.SetDefault("notify.max_queue_size", 1000)
	v.SetDefault("notify.insecure_skip_verify", false)

	v.SetDefault("kafka.alerts_topic", "orion.alerts")
	v.SetDefault("kafka.metrics_topic", "orion.metrics")

	v.SetDefault("health.listen", "127.0.0.1:8085")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")
}

// LoadConfig reads the YAML file at path. An empty path loads defaults and
// environment overrides only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// env overrides: ORION_ROUTER_HOST, ORION_PROMETHEUS_URL etc.
	v.SetEnvPrefix("orion")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations the agent cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Agent.IntervalSeconds < 1 {
		errs = append(errs, errors.New("agent.interval_seconds must be >= 1"))
	}
	if c.Agent.ReportMinute < 0 || c.Agent.ReportMinute > 59 {
		errs = append(errs, errors.New("agent.report_minute must be in [0,59]"))
	}
	if c.Prometheus.URL == "" {
		errs = append(errs, errors.New("prometheus.url is required"))
	}
	if c.Router.Host == "" {
		errs = append(errs, errors.New("router.host is required"))
	}
	if c.Probe.Count < 1 {
		errs = append(errs, errors.New("probe.count must be >= 1"))
	}
	switch c.Probe.Mode {
	case "icmp", "command":
	default:
		errs = append(errs, fmt.Errorf("probe.mode %q: want icmp or command", c.Probe.Mode))
	}
	switch c.Connections.Mode {
	case "socket", "netlink", "command":
	default:
		errs = append(errs, fmt.Errorf("connections.mode %q: want socket, netlink or command", c.Connections.Mode))
	}
	switch c.Resources.Source {
	case "prometheus", "local":
	default:
		errs = append(errs, fmt.Errorf("resources.source %q: want prometheus or local", c.Resources.Source))
	}
	if c.BGP.FallbackTotal < 0 {
		errs = append(errs, errors.New("bgp.fallback_total must be >= 0"))
	}
	return errors.Join(errs...)
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.Agent.IntervalSeconds) * time.Second
}

func (c *Config) QueryTimeout() time.Duration {
	return seconds(c.Prometheus.TimeoutSeconds, 10)
}

func (c *Config) RouterTimeout() time.Duration {
	return seconds(c.Router.TimeoutSeconds, 10)
}

func (c *Config) RestartTimeout() time.Duration {
	return seconds(c.BGP.RestartTimeoutSeconds, 30)
}

func (c *Config) ProbeWait() time.Duration {
	return seconds(c.Probe.WaitSeconds, 2)
}

func seconds(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}
