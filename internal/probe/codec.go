package probe

import (
	"Go2NetTimeline/internal/model"
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	CodecJSON  = "json"
	CodecProto = "proto"
)

// DecodePackets decodes an ingest message. JSON messages hold one packet
// object or an array of them. Proto messages hold a google.protobuf.Value
// wrapping a Struct or a ListValue of Structs.
func DecodePackets(codec string, data []byte) ([]model.RawPacket, error) {
	switch codec {
	case CodecJSON, "":
		return decodeJSONPackets(data)
	case CodecProto:
		return decodeProtoPackets(data)
	default:
		return nil, fmt.Errorf("unknown codec %q", codec)
	}
}

func decodeJSONPackets(data []byte) ([]model.RawPacket, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty message")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if data[0] == '[' {
		var packets []model.RawPacket
		if err := dec.Decode(&packets); err != nil {
			return nil, fmt.Errorf("failed to decode packet array: %w", err)
		}
		return packets, nil
	}
	var packet model.RawPacket
	if err := dec.Decode(&packet); err != nil {
		return nil, fmt.Errorf("failed to decode packet: %w", err)
	}
	return []model.RawPacket{packet}, nil
}

func decodeProtoPackets(data []byte) ([]model.RawPacket, error) {
	var v structpb.Value
	if err := proto.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal protobuf: %w", err)
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StructValue:
		return []model.RawPacket{kind.StructValue.AsMap()}, nil
	case *structpb.Value_ListValue:
		packets := make([]model.RawPacket, 0, len(kind.ListValue.GetValues()))
		for i, item := range kind.ListValue.GetValues() {
			s := item.GetStructValue()
			if s == nil {
				return nil, fmt.Errorf("list element %d is not a packet object", i)
			}
			packets = append(packets, s.AsMap())
		}
		return packets, nil
	default:
		return nil, fmt.Errorf("protobuf value is neither a packet nor a list of packets")
	}
}

// EncodePackets is the inverse of DecodePackets.
func EncodePackets(codec string, packets []model.RawPacket) ([]byte, error) {
	switch codec {
	case CodecJSON, "":
		return json.Marshal(packets)
	case CodecProto:
		values := make([]interface{}, 0, len(packets))
		for _, p := range packets {
			values = append(values, map[string]interface{}(p))
		}
		v, err := structpb.NewValue(values)
		if err != nil {
			return nil, fmt.Errorf("failed to convert packets: %w", err)
		}
		return proto.Marshal(v)
	default:
		return nil, fmt.Errorf("unknown codec %q", codec)
	}
}

// EncodeEvent serializes a timeline event as JSON or as a google.protobuf.Struct
// with the same field names.
func EncodeEvent(codec string, ev model.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	switch codec {
	case CodecJSON, "":
		return data, nil
	case CodecProto:
		var fields map[string]interface{}
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("failed to convert event: %w", err)
		}
		s, err := structpb.NewStruct(fields)
		if err != nil {
			return nil, fmt.Errorf("failed to convert event: %w", err)
		}
		return proto.Marshal(s)
	default:
		return nil, fmt.Errorf("unknown codec %q", codec)
	}
}
