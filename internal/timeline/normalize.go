package timeline

import (
	"Go2NetTimeline/internal/model"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NormalizeTimestamp converts a numeric timestamp in seconds or milliseconds
// into seconds. Values above 1e12 are taken to be milliseconds.
func NormalizeTimestamp(v interface{}) (float64, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if f > millisecondScaleBoundary {
		f /= 1000
	}
	return f, nil
}

func toFloat(v interface{}) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, n.String())
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, n)
		}
		f = parsed
	case nil:
		return 0, fmt.Errorf("%w: missing", ErrInvalidTimestamp)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidTimestamp, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTimestamp, f)
	}
	return f, nil
}

// recordFromRaw maps a raw packet onto a PacketRecord. Unrecognised keys are
// kept in Fields. The ID and Seq are assigned by the engine.
func recordFromRaw(raw model.RawPacket) (model.PacketRecord, error) {
	tsValue, ok := raw["ts"]
	if !ok {
		tsValue = raw["timestamp"]
	}
	ts, err := NormalizeTimestamp(tsValue)
	if err != nil {
		return model.PacketRecord{}, err
	}

	rec := model.PacketRecord{Timestamp: ts}
	for key, value := range raw {
		switch key {
		case "ts", "timestamp":
		case "id":
			rec.ID = stringValue(value)
		case "src", "source":
			rec.Source = stringValue(value)
		case "dst", "destination":
			rec.Destination = stringValue(value)
		case "proto", "protocol":
			rec.Protocol = stringValue(value)
		case "summary", "info":
			rec.Summary = stringValue(value)
		case "length", "size":
			if n, err := toFloat(value); err == nil {
				rec.Size = int(n)
			}
		case "sport":
			rec.SrcPort = portValue(value)
		case "dport":
			rec.DstPort = portValue(value)
		default:
			if rec.Fields == nil {
				rec.Fields = make(map[string]interface{})
			}
			rec.Fields[key] = value
		}
	}
	if rec.Protocol == "" {
		rec.Protocol = "Unknown"
	}
	return rec, nil
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

func portValue(v interface{}) *int {
	n, err := toFloat(v)
	if err != nil {
		return nil
	}
	p := int(n)
	return &p
}
