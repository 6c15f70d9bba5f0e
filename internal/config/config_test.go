package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
timeline:
  max_buffer_size: 500
  segment_duration: 30s
  anomaly_cooldown: 5s
  auto_cleanup: false
  retention: 2h
storage:
  type: SQLite
  path: /tmp/timeline.db
ingest:
  enabled: true
  subject: capture.packets
  codec: proto
api:
  http_listen_addr: ":9090"
archive:
  enabled: true
  clickhouse:
    host: ch.local
    port: 9440
logging:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Timeline.MaxBufferSize)
	assert.Equal(t, 30*time.Second, cfg.Timeline.SegmentDuration.Std())
	assert.Equal(t, 5*time.Second, cfg.Timeline.AnomalyCooldown.Std())
	assert.Equal(t, 2*time.Hour, cfg.Timeline.Retention.Std())
	require.NotNil(t, cfg.Timeline.AutoCleanup)
	assert.False(t, *cfg.Timeline.AutoCleanup)
	assert.Equal(t, 2.0, cfg.Timeline.AnomalyThreshold)

	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "capture.packets", cfg.Ingest.Subject)
	assert.Equal(t, "proto", cfg.Ingest.Codec)
	assert.Equal(t, "json", cfg.Events.Codec)
	assert.Equal(t, cfg.Ingest.NatsURL, cfg.Events.NatsURL)
	assert.Equal(t, ":9090", cfg.API.HTTPListenAddr)
	assert.Equal(t, ":50051", cfg.API.GRPCListenAddr)
	assert.Equal(t, "ch.local", cfg.Archive.ClickHouse.Host)
	assert.Equal(t, 9440, cfg.Archive.ClickHouse.Port)
	assert.Equal(t, "default", cfg.Archive.ClickHouse.Database)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10000, cfg.Timeline.MaxBufferSize)
	assert.Equal(t, time.Minute, cfg.Timeline.SegmentDuration.Std())
	assert.Equal(t, 24*time.Hour, cfg.Timeline.Retention.Std())
	assert.True(t, *cfg.Timeline.AutoCleanup)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "timeline-data", cfg.Timeline.StorageKey)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestParseRejectsBadDuration(t *testing.T) {
	_, err := Parse([]byte("timeline:\n  retention: forever\n"))
	assert.ErrorContains(t, err, "invalid duration")
}

func TestValidate(t *testing.T) {
	_, err := Parse([]byte(`
storage:
  type: file
ingest:
  codec: xml
logging:
  format: text
`))
	require.Error(t, err)
	assert.ErrorContains(t, err, "storage.path is required")
	assert.ErrorContains(t, err, "ingest.codec")
	assert.ErrorContains(t, err, "logging.format")

	_, err = Parse([]byte("storage:\n  type: redis\n"))
	assert.ErrorContains(t, err, `unknown storage.type "redis"`)
}
