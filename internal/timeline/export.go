package timeline

import (
	"Go2NetTimeline/internal/model"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// csvHeader is the first line of a CSV export.
const csvHeader = "timestamp,source,destination,protocol,size,summary"

// ExportMetadata describes an export document.
type ExportMetadata struct {
	StartTime       float64   `json:"startTime"`
	EndTime         float64   `json:"endTime"`
	ExportedAt      time.Time `json:"exportedAt"`
	Format          string    `json:"format"`
	PacketCount     int       `json:"packetCount"`
	SegmentDuration float64   `json:"segmentDuration"`
}

// RangeStatistics summarises the packets of an exported range.
type RangeStatistics struct {
	TotalPackets         int            `json:"totalPackets"`
	TotalBytes           int64          `json:"totalBytes"`
	AverageSize          float64        `json:"averageSize"`
	ProtocolDistribution map[string]int `json:"protocolDistribution"`
	Duration             float64        `json:"duration"`
}

// ExportDocument is the JSON export of a time range.
type ExportDocument struct {
	Metadata   ExportMetadata   `json:"metadata"`
	Packets    []PacketView     `json:"packets"`
	Anomalies  []model.Anomaly  `json:"anomalies"`
	Bookmarks  []model.Bookmark `json:"bookmarks"`
	Markers    []model.Marker   `json:"markers"`
	Statistics RangeStatistics  `json:"statistics"`
}

// ExportSegment renders the packets, annotations and statistics of
// [start, end] as "json" or "csv".
func (e *Engine) ExportSegment(start, end float64, format string) ([]byte, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != FormatJSON && format != FormatCSV {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExportFormat, format)
	}
	start, err := NormalizeTimestamp(start)
	if err != nil {
		return nil, err
	}
	end, err = NormalizeTimestamp(end)
	if err != nil {
		return nil, err
	}

	doc := e.collectExport(start, end, format)
	if format == FormatCSV {
		return renderCSV(doc.Packets), nil
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return data, nil
}

func (e *Engine) collectExport(start, end float64, format string) ExportDocument {
	e.mu.Lock()
	defer e.mu.Unlock()

	packets := make([]PacketView, 0)
	stats := RangeStatistics{
		ProtocolDistribution: make(map[string]int),
		Duration:             math.Max(0, end-start),
	}
	if start <= end {
		e.packets.AscendGreaterOrEqual(&model.PacketRecord{Timestamp: start}, func(p *model.PacketRecord) bool {
			if p.Timestamp > end {
				return false
			}
			packets = append(packets, e.viewLocked(p, true))
			stats.TotalPackets++
			stats.TotalBytes += int64(p.Size)
			stats.ProtocolDistribution[p.Protocol]++
			return true
		})
	}
	if stats.TotalPackets > 0 {
		stats.AverageSize = float64(stats.TotalBytes) / float64(stats.TotalPackets)
	}

	return ExportDocument{
		Metadata: ExportMetadata{
			StartTime:       start,
			EndTime:         end,
			ExportedAt:      e.opts.Clock().UTC(),
			Format:          format,
			PacketCount:     len(packets),
			SegmentDuration: e.segments.duration,
		},
		Packets:    packets,
		Anomalies:  e.anomaliesInLocked(start, end),
		Bookmarks:  e.annotations.bookmarksIn(start, end),
		Markers:    e.annotations.markersIn(start, end),
		Statistics: stats,
	}
}

// renderCSV writes the header and one line per packet without a trailing
// newline. Every data field is double-quoted.
func renderCSV(packets []PacketView) []byte {
	var b strings.Builder
	b.WriteString(csvHeader)
	for _, p := range packets {
		b.WriteByte('\n')
		b.WriteString(strings.Join([]string{
			csvQuote(isoTimestamp(p.Timestamp)),
			csvQuote(p.Source),
			csvQuote(p.Destination),
			csvQuote(p.Protocol),
			csvQuote(strconv.Itoa(p.Size)),
			csvQuote(p.Summary),
		}, ","))
	}
	return []byte(b.String())
}

var csvLineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// csvQuote quotes a field. Line breaks become spaces so that every packet
// stays on one line.
func csvQuote(s string) string {
	return `"` + strings.ReplaceAll(csvLineBreaks.Replace(s), `"`, `""`) + `"`
}

// isoTimestamp formats seconds since the epoch as ISO-8601 UTC with milliseconds.
func isoTimestamp(ts float64) string {
	ms := int64(math.Round(ts * 1000))
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}
