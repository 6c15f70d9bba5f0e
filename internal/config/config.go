package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from strings such as "60s" or "24h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// TimelineConfig holds the engine settings.
type TimelineConfig struct {
	MaxBufferSize    int      `yaml:"max_buffer_size"`
	SegmentDuration  Duration `yaml:"segment_duration"`
	AnomalyThreshold float64  `yaml:"anomaly_threshold"`
	AnomalyCooldown  Duration `yaml:"anomaly_cooldown"`
	AutoCleanup      *bool    `yaml:"auto_cleanup"`
	CleanupInterval  Duration `yaml:"cleanup_interval"`
	Retention        Duration `yaml:"retention"`
	StorageKey       string   `yaml:"storage_key"`
	NearestTolerance float64  `yaml:"nearest_tolerance"`
	MaxResults       int      `yaml:"max_results"`
}

// StorageConfig selects the durable blob store.
type StorageConfig struct {
	Type string `yaml:"type"` // memory, file or sqlite
	Path string `yaml:"path"`
}

// IngestConfig configures the NATS packet source.
type IngestConfig struct {
	Enabled bool   `yaml:"enabled"`
	NatsURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
	Codec   string `yaml:"codec"` // json or proto
}

// EventsConfig configures the NATS event fan-out.
type EventsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	NatsURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Codec         string `yaml:"codec"`
}

// APIConfig holds the listen addresses of the HTTP and gRPC servers.
type APIConfig struct {
	HTTPListenAddr string `yaml:"http_listen_addr"`
	GRPCListenAddr string `yaml:"grpc_listen_addr"`
}

// ClickHouseConfig holds the connection settings for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ArchiveConfig configures the archive of evicted packets.
type ArchiveConfig struct {
	Enabled       bool             `yaml:"enabled"`
	QueueSize     int              `yaml:"queue_size"`
	BatchSize     int              `yaml:"batch_size"`
	FlushInterval Duration         `yaml:"flush_interval"`
	ClickHouse    ClickHouseConfig `yaml:"clickhouse"`
}

// LoggingConfig configures the zap logger and its optional rotating file.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or console
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Timeline TimelineConfig `yaml:"timeline"`
	Storage  StorageConfig  `yaml:"storage"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Events   EventsConfig   `yaml:"events"`
	API      APIConfig      `yaml:"api"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	t := &c.Timeline
	if t.MaxBufferSize == 0 {
		t.MaxBufferSize = 10000
	}
	if t.SegmentDuration == 0 {
		t.SegmentDuration = Duration(60 * time.Second)
	}
	if t.AnomalyThreshold == 0 {
		t.AnomalyThreshold = 2.0
	}
	if t.AutoCleanup == nil {
		on := true
		t.AutoCleanup = &on
	}
	if t.CleanupInterval == 0 {
		t.CleanupInterval = Duration(60 * time.Second)
	}
	if t.Retention == 0 {
		t.Retention = Duration(24 * time.Hour)
	}
	if t.StorageKey == "" {
		t.StorageKey = "timeline-data"
	}
	if t.NearestTolerance == 0 {
		t.NearestTolerance = 1.0
	}
	if t.MaxResults == 0 {
		t.MaxResults = 1000
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	c.Storage.Type = strings.ToLower(c.Storage.Type)

	if c.Ingest.NatsURL == "" {
		c.Ingest.NatsURL = "nats://127.0.0.1:4222"
	}
	if c.Ingest.Subject == "" {
		c.Ingest.Subject = "timeline.packets"
	}
	if c.Ingest.Codec == "" {
		c.Ingest.Codec = "json"
	}
	if c.Events.NatsURL == "" {
		c.Events.NatsURL = c.Ingest.NatsURL
	}
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = "timeline.events"
	}
	if c.Events.Codec == "" {
		c.Events.Codec = "json"
	}

	if c.API.HTTPListenAddr == "" {
		c.API.HTTPListenAddr = ":8080"
	}
	if c.API.GRPCListenAddr == "" {
		c.API.GRPCListenAddr = ":50051"
	}

	a := &c.Archive
	if a.QueueSize == 0 {
		a.QueueSize = 1024
	}
	if a.BatchSize == 0 {
		a.BatchSize = 500
	}
	if a.FlushInterval == 0 {
		a.FlushInterval = Duration(5 * time.Second)
	}
	if a.ClickHouse.Host == "" {
		a.ClickHouse.Host = "localhost"
	}
	if a.ClickHouse.Port == 0 {
		a.ClickHouse.Port = 9000
	}
	if a.ClickHouse.Database == "" {
		a.ClickHouse.Database = "default"
	}
	if a.ClickHouse.Username == "" {
		a.ClickHouse.Username = "default"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.MaxSize == 0 {
		c.Logging.MaxSize = 100
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Timeline.MaxBufferSize < 0 {
		errs = append(errs, fmt.Errorf("timeline.max_buffer_size must be positive, got %d", c.Timeline.MaxBufferSize))
	}
	if c.Timeline.SegmentDuration < 0 {
		errs = append(errs, errors.New("timeline.segment_duration must be positive"))
	}
	if c.Timeline.AnomalyThreshold < 0 {
		errs = append(errs, errors.New("timeline.anomaly_threshold must be positive"))
	}
	switch c.Storage.Type {
	case "memory":
	case "file", "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for %s storage", c.Storage.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.type %q", c.Storage.Type))
	}
	for name, codec := range map[string]string{"ingest.codec": c.Ingest.Codec, "events.codec": c.Events.Codec} {
		if codec != "json" && codec != "proto" {
			errs = append(errs, fmt.Errorf("%s must be json or proto, got %q", name, codec))
		}
	}
	if c.Archive.QueueSize < 0 || c.Archive.BatchSize < 0 {
		errs = append(errs, errors.New("archive.queue_size and archive.batch_size must be positive"))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}
