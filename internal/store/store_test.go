package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatify/apiserver/internal/schema"
	"github.com/chatify/apiserver/internal/storage"
	"github.com/chatify/apiserver/internal/store"
	"github.com/chatify/apiserver/types"
	"github.com/stretchr/testify/require"
)

type failingKV struct {
	err error
}

func (f failingKV) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingKV) Put(context.Context, string, []byte) error   { return f.err }

func newStore(kv store.KV) *store.Store {
	return store.New(kv, store.DefaultSeed, nil)
}

func TestStore_LoadSeedsEmptyStorage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := storage.NewMemoryBackend()
	s := newStore(kv)

	snap, err := s.Load(ctx)
	require.NoError(t, err)

	seed := store.DefaultSeed()
	require.Equal(t, seed.Users, snap.Users)
	require.Equal(t, seed.Posts, snap.Posts)

	_, err = kv.Get(ctx, store.CollectionUsers)
	require.NoError(t, err)
	_, err = kv.Get(ctx, store.CollectionPosts)
	require.NoError(t, err)

	again, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, snap, again)
}

func TestStore_LoadDiscardsCorruptPayload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := storage.NewMemoryBackend()
	require.NoError(t, kv.Put(ctx, store.CollectionPosts, []byte(`[{"id": "p1",`)))
	require.NoError(t, kv.Put(ctx, store.CollectionUsers, []byte(`[]`)))

	snap, err := newStore(kv).Load(ctx)
	require.NoError(t, err)
	require.Empty(t, snap.Users)
	require.Equal(t, store.DefaultSeed().Posts, snap.Posts)

	raw, err := kv.Get(ctx, store.CollectionPosts)
	require.NoError(t, err)
	posts, err := schema.NewMigrator(nil, nil).DecodePosts(raw, nil)
	require.NoError(t, err)
	require.Len(t, posts, len(store.DefaultSeed().Posts))
}

func TestStore_LoadMigratesLegacyRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := storage.NewMemoryBackend()
	require.NoError(t, kv.Put(ctx, store.CollectionUsers, []byte(`[{"id":"u1","name":"Old Timer","role":"senior","createdAt":"2022-01-10"}]`)))
	require.NoError(t, kv.Put(ctx, store.CollectionPosts, []byte(`[{"id":"p1","content":"legacy","authorId":"u1","createdAt":"2022-01-11"}]`)))

	snap, err := newStore(kv).Load(ctx)
	require.NoError(t, err)

	require.Equal(t, types.RoleFaculty, snap.Users[0].Role)
	require.Len(t, snap.Posts, 1)
	require.Equal(t, "Old Timer", snap.Posts[0].Author.Name)
	require.Equal(t, types.RoleFaculty, snap.Posts[0].Author.Role)
	require.Equal(t, time.Date(2022, 1, 11, 0, 0, 0, 0, time.UTC), snap.Posts[0].CreatedAt)
	require.Equal(t, types.FlagPending, snap.Posts[0].IsFlagged)
}

func TestStore_SaveRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(storage.NewMemoryBackend())

	snap, err := s.Load(ctx)
	require.NoError(t, err)

	posts := snap.Posts[1:]
	require.NoError(t, s.SavePosts(ctx, posts))

	reloaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, posts, reloaded.Posts)
}

func TestStore_BackendFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	s := newStore(failingKV{err: boom})

	_, err := s.Load(context.Background())
	require.ErrorIs(t, err, boom)

	err = s.SavePosts(context.Background(), nil)
	require.ErrorIs(t, err, boom)
}
