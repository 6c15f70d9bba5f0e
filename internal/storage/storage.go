package storage

import (
	"Go2NetTimeline/internal/config"
	"Go2NetTimeline/internal/model"
	"fmt"
	"io"
)

// Store is a BlobStore that owns resources.
type Store interface {
	model.BlobStore
	io.Closer
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// Open creates the store selected by cfg.Type.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		s, err := NewFileStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
