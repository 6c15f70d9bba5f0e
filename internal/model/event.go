package model

import "time"

// EventName identifies a timeline state change.
type EventName string

const (
	EventPacketAdded     EventName = "packetAdded"
	EventPacketsAdded    EventName = "packetsAdded"
	EventBufferCleaned   EventName = "bufferCleaned"
	EventAnomalyDetected EventName = "anomalyDetected"
	EventBookmarkAdded   EventName = "bookmarkAdded"
	EventBookmarkRemoved EventName = "bookmarkRemoved"
	EventMarkerAdded     EventName = "markerAdded"
	EventMarkerRemoved   EventName = "markerRemoved"
	EventTimelineCleared EventName = "timelineCleared"

	EventAnomalyConfigChanged EventName = "anomalyConfigChanged"
)

// Event is delivered to every bus subscriber.
type Event struct {
	Name    EventName   `json:"event"`
	Payload interface{} `json:"payload"`
	At      time.Time   `json:"at"`
}

// PacketsAdded is the payload of a batch ingestion event.
type PacketsAdded struct {
	Added    int `json:"added"`
	Rejected int `json:"rejected"`
}

// BufferCleaned is the payload emitted after buffer-size enforcement evicts packets.
type BufferCleaned struct {
	Removed   int            `json:"removed"`
	Remaining int            `json:"remaining"`
	Evicted   []PacketRecord `json:"-"`
}

// AnomalyConfig is the payload of anomalyConfigChanged.
type AnomalyConfig struct {
	Threshold       float64 `json:"threshold"`
	CooldownSeconds float64 `json:"cooldownSeconds"`
}
