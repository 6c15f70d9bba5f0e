package archive

import (
	"Go2NetTimeline/internal/config"
	"Go2NetTimeline/internal/model"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS timeline_packets (
    Timestamp   DateTime64(3),
    PacketID    String,
    Seq         UInt64,
    Source      String,
    Destination String,
    Protocol    LowCardinality(String),
    Size        UInt32,
    SrcPort     Nullable(UInt16),
    DstPort     Nullable(UInt16),
    Summary     String
) ENGINE = MergeTree()
PARTITION BY toYYYYMMDD(Timestamp)
ORDER BY (Timestamp, Seq);
`

// ClickHouseArchiver writes evicted packets to the timeline_packets table.
type ClickHouseArchiver struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewClickHouseArchiver connects to ClickHouse and ensures the table exists.
func NewClickHouseArchiver(cfg config.ClickHouseConfig, logger *zap.Logger) (*ClickHouseArchiver, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	logger.Info("connected to ClickHouse", zap.String("host", cfg.Host), zap.Int("port", cfg.Port))
	return &ClickHouseArchiver{conn: conn, logger: logger}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Archive inserts packets in one batch.
func (a *ClickHouseArchiver) Archive(ctx context.Context, packets []model.PacketRecord) error {
	if len(packets) == 0 {
		return nil
	}
	batch, err := a.conn.PrepareBatch(ctx, "INSERT INTO timeline_packets")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, p := range packets {
		if err := batch.Append(packetRow(p)...); err != nil {
			return fmt.Errorf("failed to append packet to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	a.logger.Debug("archived packets", zap.Int("count", len(packets)))
	return nil
}

// Close closes the connection.
func (a *ClickHouseArchiver) Close() error {
	return a.conn.Close()
}

// packetRow orders a packet's values as the timeline_packets columns.
func packetRow(p model.PacketRecord) []interface{} {
	return []interface{}{
		secondsToTime(p.Timestamp),
		p.ID,
		p.Seq,
		p.Source,
		p.Destination,
		p.Protocol,
		uint32(max(p.Size, 0)),
		nullablePort(p.SrcPort),
		nullablePort(p.DstPort),
		p.Summary,
	}
}

func secondsToTime(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

func nullablePort(p *int) *uint16 {
	if p == nil || *p < 0 || *p > math.MaxUint16 {
		return nil
	}
	v := uint16(*p)
	return &v
}
