package model

import "context"

// BlobStore is the key-value store the timeline persists its durable state to.
type BlobStore interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
}

// Archiver persists packets evicted from the in-memory buffer to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, packets []PacketRecord) error
	Close() error
}
