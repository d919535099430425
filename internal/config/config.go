// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/stallwatch/internal/core"
)

// RootKey is the top-level YAML key; env vars use the STALLWATCH_ prefix.
const RootKey = "stallwatch"

// GlobalConfig represents the top-level configuration.
// Maps to the `stallwatch:` root key in YAML.
type GlobalConfig struct {
	Node         NodeConfig         `mapstructure:"node"`
	Log          LogConfig          `mapstructure:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Poll         PollConfig         `mapstructure:"poll"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Networks     []NetworkConfig    `mapstructure:"networks"`
	Power        PowerConfig        `mapstructure:"power"`
	Kafka        GlobalKafkaConfig  `mapstructure:"kafka"`
	Reporters    ReportersConfig    `mapstructure:"reporters"`
}

// ─── Node Identity ───

// NodeConfig contains node identification settings.
type NodeConfig struct {
	IP       string            `mapstructure:"ip"`       // Empty = auto-detect
	Hostname string            `mapstructure:"hostname"` // Empty = os.Hostname()
	Tags     map[string]string `mapstructure:"tags"`
}

// ─── Polling ───

// PollConfig controls the sock_diag poll loop.
type PollConfig struct {
	Interval    string `mapstructure:"interval"`     // e.g. "10s"
	ReadTimeout string `mapstructure:"read_timeout"` // per netlink read, e.g. "3s"
	RecvBuffer  int    `mapstructure:"recv_buffer"`  // SO_RCVBUF bytes, 0 = kernel default
	NetNS       string `mapstructure:"netns"`        // namespace path, empty = current

	interval    time.Duration
	readTimeout time.Duration
}

// IntervalDuration returns the parsed poll interval.
func (p PollConfig) IntervalDuration() time.Duration { return p.interval }

// ReadTimeoutDuration returns the parsed read timeout.
func (p PollConfig) ReadTimeoutDuration() time.Duration { return p.readTimeout }

// ─── Stall Detection ───

// ConnectivityConfig holds the stall thresholds. The same keys are served
// live by Provider under the "connectivity" namespace.
type ConnectivityConfig struct {
	TCPPacketsFailPercentage int `mapstructure:"tcp_packets_fail_percentage"`
	TCPMinPacketsThreshold   int `mapstructure:"tcp_min_packets_threshold"`
}

// NetworkConfig describes one tracked logical network. Either Mark/Mask is
// given, or Table names the policy routing table whose fwmark rule is
// looked up at startup. With Table, a non-zero Mask overrides the rule's.
type NetworkConfig struct {
	Name  string `mapstructure:"name"`
	Mark  uint32 `mapstructure:"mark"`
	Mask  uint32 `mapstructure:"mask"`
	Table int    `mapstructure:"table"`
}

// Static reports whether the mark is configured directly.
func (n NetworkConfig) Static() bool {
	return n.Table == 0
}

// ─── Power ───

// PowerConfig configures the idle signal.
type PowerConfig struct {
	// IdleFile suspends polling while it exists and reads "1"/"true".
	IdleFile string `mapstructure:"idle_file"`
}

// ─── Kafka Global Default ───

// GlobalKafkaConfig provides shared Kafka connection defaults.
// reporters.kafka inherits from here when its fields are zero.
type GlobalKafkaConfig struct {
	Brokers []string   `mapstructure:"brokers"`
	SASL    SASLConfig `mapstructure:"sasl"`
	TLS     TLSConfig  `mapstructure:"tls"`
}

// SASLConfig contains SASL authentication settings.
type SASLConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Mechanism string `mapstructure:"mechanism"` // PLAIN | SCRAM-SHA-256 | SCRAM-SHA-512
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// TLSConfig contains TLS settings.
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CACert             string `mapstructure:"ca_cert"`
	ClientCert         string `mapstructure:"client_cert"`
	ClientKey          string `mapstructure:"client_key"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// ─── Reporters ───

// ReportersConfig selects where stall transitions are reported.
type ReportersConfig struct {
	Log   LogReporterConfig   `mapstructure:"log"`
	Kafka KafkaReporterConfig `mapstructure:"kafka"`
}

// LogReporterConfig enables reporting through the process logger.
type LogReporterConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// KafkaReporterConfig configures the Kafka stall event reporter.
// Brokers/SASL/TLS inherit from GlobalKafkaConfig when empty/zero.
type KafkaReporterConfig struct {
	Enabled      bool       `mapstructure:"enabled"`
	Brokers      []string   `mapstructure:"brokers"`
	Topic        string     `mapstructure:"topic"`
	Compression  string     `mapstructure:"compression"` // none|gzip|snappy|lz4|zstd
	BatchTimeout string     `mapstructure:"batch_timeout"`
	MaxAttempts  int        `mapstructure:"max_attempts"`
	SASL         SASLConfig `mapstructure:"sasl"`
	TLS          TLSConfig  `mapstructure:"tls"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`  // MB
	MaxAgeDays int  `mapstructure:"max_age_days"` // Days
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `stallwatch: ...`.
type configRoot struct {
	Stallwatch GlobalConfig `mapstructure:"stallwatch"`
}

// Load loads configuration from file.
// The YAML file uses `stallwatch:` as root key; env vars use STALLWATCH_ prefix (e.g., STALLWATCH_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// newViper reads path into a viper instance with env overrides and defaults.
func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// The `stallwatch.` key prefix maps to `STALLWATCH_` in env vars via the
	// key replacer (key "stallwatch.log.level" → env "STALLWATCH_LOG_LEVEL").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v, nil
}

func decode(v *viper.Viper) (*GlobalConfig, error) {
	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Stallwatch

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "stallwatch." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("stallwatch.log.level", "info")
	v.SetDefault("stallwatch.log.format", "json")
	v.SetDefault("stallwatch.log.outputs.file.enabled", false)
	v.SetDefault("stallwatch.log.outputs.file.path", "/var/log/stallwatch/stallwatch.log")
	v.SetDefault("stallwatch.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("stallwatch.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("stallwatch.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("stallwatch.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("stallwatch.metrics.enabled", true)
	v.SetDefault("stallwatch.metrics.listen", ":9092")
	v.SetDefault("stallwatch.metrics.path", "/metrics")

	// Poll defaults
	v.SetDefault("stallwatch.poll.interval", "10s")
	v.SetDefault("stallwatch.poll.read_timeout", "3s")
	v.SetDefault("stallwatch.poll.recv_buffer", 60000)

	// Stall detection defaults
	v.SetDefault("stallwatch.connectivity.tcp_packets_fail_percentage", 80)
	v.SetDefault("stallwatch.connectivity.tcp_min_packets_threshold", 10)

	// Reporter defaults
	v.SetDefault("stallwatch.reporters.log.enabled", true)
	v.SetDefault("stallwatch.reporters.kafka.enabled", false)
	v.SetDefault("stallwatch.reporters.kafka.topic", "stallwatch-events")
	v.SetDefault("stallwatch.reporters.kafka.compression", "snappy")
	v.SetDefault("stallwatch.reporters.kafka.batch_timeout", "100ms")
	v.SetDefault("stallwatch.reporters.kafka.max_attempts", 3)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: invalid log format: %s (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}

	// ── Poll validation ──
	var err error
	if cfg.Poll.interval, err = time.ParseDuration(cfg.Poll.Interval); err != nil || cfg.Poll.interval <= 0 {
		return fmt.Errorf("%w: invalid poll.interval: %q", core.ErrConfigInvalid, cfg.Poll.Interval)
	}
	if cfg.Poll.readTimeout, err = time.ParseDuration(cfg.Poll.ReadTimeout); err != nil || cfg.Poll.readTimeout < 0 {
		return fmt.Errorf("%w: invalid poll.read_timeout: %q", core.ErrConfigInvalid, cfg.Poll.ReadTimeout)
	}
	if cfg.Poll.RecvBuffer < 0 {
		return fmt.Errorf("%w: poll.recv_buffer must not be negative", core.ErrConfigInvalid)
	}

	// ── Threshold validation ──
	if p := cfg.Connectivity.TCPPacketsFailPercentage; p < 0 || p > 100 {
		return fmt.Errorf("%w: connectivity.tcp_packets_fail_percentage %d out of range 0-100", core.ErrConfigInvalid, p)
	}
	if cfg.Connectivity.TCPMinPacketsThreshold < 0 {
		return fmt.Errorf("%w: connectivity.tcp_min_packets_threshold must not be negative", core.ErrConfigInvalid)
	}

	// ── Networks ──
	if len(cfg.Networks) == 0 {
		return fmt.Errorf("%w: at least one network is required", core.ErrConfigInvalid)
	}
	seen := make(map[string]bool, len(cfg.Networks))
	for i, n := range cfg.Networks {
		if n.Name == "" {
			return fmt.Errorf("%w: networks[%d].name is required", core.ErrConfigInvalid, i)
		}
		if seen[n.Name] {
			return fmt.Errorf("%w: duplicate network %q", core.ErrConfigInvalid, n.Name)
		}
		seen[n.Name] = true
		if n.Static() && n.Mask == 0 {
			return fmt.Errorf("%w: network %q needs mark/mask or table", core.ErrConfigInvalid, n.Name)
		}
		if n.Table < 0 {
			return fmt.Errorf("%w: network %q has negative table", core.ErrConfigInvalid, n.Name)
		}
		if n.Static() && n.Mark&^n.Mask != 0 {
			return fmt.Errorf("%w: network %q mark 0x%x has bits outside mask 0x%x",
				core.ErrConfigInvalid, n.Name, n.Mark, n.Mask)
		}
	}

	// ── Node hostname auto-detect ──
	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}

	// ── Node IP resolution ──
	if cfg.Node.IP == "" {
		cfg.Node.IP = detectNodeIP()
	}

	// ── Kafka inheritance ──
	applyKafkaInheritance(cfg)

	rk := &cfg.Reporters.Kafka
	if rk.Enabled {
		if len(rk.Brokers) == 0 {
			return fmt.Errorf("%w: reporters.kafka.brokers is required when reporters.kafka.enabled=true", core.ErrConfigInvalid)
		}
		if rk.Topic == "" {
			return fmt.Errorf("%w: reporters.kafka.topic is required when reporters.kafka.enabled=true", core.ErrConfigInvalid)
		}
	}

	return nil
}

// detectNodeIP returns the first non-loopback, non-link-local IPv4 address,
// or "" when none is up. Events carry it for correlation only.
func detectNodeIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			// Skip link-local 169.254.x.x
			if ip4[0] == 169 && ip4[1] == 254 {
				continue
			}
			return ip4.String()
		}
	}

	return ""
}

// applyKafkaInheritance fills reporters.kafka connection fields from the
// global stallwatch.kafka section when they are empty/zero.
func applyKafkaInheritance(cfg *GlobalConfig) {
	global := &cfg.Kafka

	rk := &cfg.Reporters.Kafka
	if len(rk.Brokers) == 0 {
		rk.Brokers = global.Brokers
	}
	if !rk.SASL.Enabled && global.SASL.Enabled {
		rk.SASL = global.SASL
	}
	if !rk.TLS.Enabled && global.TLS.Enabled {
		rk.TLS = global.TLS
	}
}
