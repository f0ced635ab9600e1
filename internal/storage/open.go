package storage

import (
	"context"
	"fmt"

	"github.com/chatify/apiserver/config"
	"github.com/chatify/apiserver/internal/db"
)

// Open builds the backend selected by cfg.Store.Backend.
func Open(ctx context.Context, cfg config.Config) (Backend, error) {
	switch cfg.Store.Backend {
	case "", config.StoreBackendMemory:
		return NewMemoryBackend(), nil
	case config.StoreBackendPostgres:
		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return NewPostgresBackend(conn), nil
	case config.StoreBackendMinio:
		backend, err := NewMinioBackend(cfg.Minio)
		if err != nil {
			return nil, err
		}
		if err := backend.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure minio bucket: %w", err)
		}
		return backend, nil
	case config.StoreBackendGCS:
		backend, err := NewGCSBackend(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		if err := backend.EnsureBucket(ctx); err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("ensure gcs bucket: %w", err)
		}
		return backend, nil
	case config.StoreBackendNATS:
		return NewNATSBackend(ctx, cfg.NATS)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
