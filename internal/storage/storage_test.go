package storage_test

import (
	"context"
	"testing"

	"github.com/chatify/apiserver/config"
	"github.com/chatify/apiserver/internal/storage"
	"github.com/stretchr/testify/require"
)

func TestStorage_PrefixesKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	s := storage.NewStorage(backend, "chatify/")

	require.NoError(t, s.Put(ctx, "posts", []byte(`[]`)))

	raw, err := backend.Get(ctx, "chatify/posts")
	require.NoError(t, err)
	require.Equal(t, `[]`, string(raw))

	raw, err = s.Get(ctx, "posts")
	require.NoError(t, err)
	require.Equal(t, `[]`, string(raw))
}

func TestMemoryBackend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()

		_, err := storage.NewMemoryBackend().Get(ctx, "users")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("values are copied", func(t *testing.T) {
		t.Parallel()

		backend := storage.NewMemoryBackend()
		value := []byte(`{"a":1}`)
		require.NoError(t, backend.Put(ctx, "k", value))
		value[0] = 'X'

		got, err := backend.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, `{"a":1}`, string(got))

		got[0] = 'Y'
		again, err := backend.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, `{"a":1}`, string(again))
	})
}

func TestOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("memory by default", func(t *testing.T) {
		t.Parallel()

		backend, err := storage.Open(ctx, config.Config{})
		require.NoError(t, err)
		require.IsType(t, &storage.MemoryBackend{}, backend)
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Parallel()

		_, err := storage.Open(ctx, config.Config{Store: config.StoreConfig{Backend: "floppy"}})
		require.Error(t, err)
	})

	t.Run("minio requires credentials", func(t *testing.T) {
		t.Parallel()

		_, err := storage.Open(ctx, config.Config{
			Store: config.StoreConfig{Backend: config.StoreBackendMinio},
			Minio: config.MinioConfig{Endpoint: "localhost:9000", Bucket: "chatify"},
		})
		require.Error(t, err)
	})
}
