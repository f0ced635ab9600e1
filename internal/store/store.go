// Package store persists the users and posts collections.
//
// Reads go through the schema migrator, so callers only ever see current
// records. Missing or corrupt collections are replaced by the seed dataset.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chatify/apiserver/internal/schema"
	"github.com/chatify/apiserver/internal/storage"
	"github.com/chatify/apiserver/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collection names, used as storage keys.
const (
	CollectionUsers = "users"
	CollectionPosts = "posts"
)

var saves = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chatify_store_saves_total",
	Help: "Collection writes by collection and result.",
}, []string{"collection", "result"})

// KV is the key-value primitive the store writes to.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Snapshot holds both collections.
type Snapshot struct {
	Users []types.User
	Posts []types.Post
}

// Store loads and saves collections.
type Store struct {
	kv       KV
	seed     func() Snapshot
	migrator *schema.Migrator
	logger   *slog.Logger
}

// New constructs a Store. seed builds the dataset used when a collection
// is missing or unreadable; it is called for a fresh copy every time.
func New(kv KV, seed func() Snapshot, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		kv:       kv,
		seed:     seed,
		migrator: schema.NewMigrator(seed().Users, logger),
		logger:   logger.With("component", "store"),
	}
}

// Load reads both collections. Missing and corrupt collections are
// replaced by the seed and persisted; only backend failures are returned.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	seed := s.seed()

	users, err := load(ctx, s, CollectionUsers, seed.Users, s.migrator.DecodeUsers)
	if err != nil {
		return Snapshot{}, err
	}

	posts, err := load(ctx, s, CollectionPosts, seed.Posts, func(raw []byte) ([]types.Post, error) {
		return s.migrator.DecodePosts(raw, users)
	})
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{Users: users, Posts: posts}, nil
}

// SaveUsers replaces the persisted users collection.
func (s *Store) SaveUsers(ctx context.Context, users []types.User) error {
	return save(ctx, s, CollectionUsers, users)
}

// SavePosts replaces the persisted posts collection.
func (s *Store) SavePosts(ctx context.Context, posts []types.Post) error {
	return save(ctx, s, CollectionPosts, posts)
}

func load[T any](ctx context.Context, s *Store, name string, seed []T, decode func([]byte) ([]T, error)) ([]T, error) {
	raw, err := s.kv.Get(ctx, name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.logger.Info("Collection missing, seeding", "collection", name, "records", len(seed))
		return reseed(ctx, s, name, seed), nil
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	records, err := decode(raw)
	if err != nil {
		s.logger.Warn("Discarding corrupt collection", "collection", name, "error", err)
		return reseed(ctx, s, name, seed), nil
	}
	return records, nil
}

// reseed persists the seed so later reads and writes agree with it. A failed
// write is logged; the seed is still served from memory.
func reseed[T any](ctx context.Context, s *Store, name string, seed []T) []T {
	if err := save(ctx, s, name, seed); err != nil {
		s.logger.Error("Failed to persist seed", "collection", name, "error", err)
	}
	return seed
}

func save[T any](ctx context.Context, s *Store, name string, collection []T) error {
	raw, err := schema.Encode(collection)
	if err != nil {
		saves.WithLabelValues(name, "error").Inc()
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := s.kv.Put(ctx, name, raw); err != nil {
		saves.WithLabelValues(name, "error").Inc()
		return fmt.Errorf("save %s: %w", name, err)
	}
	saves.WithLabelValues(name, "ok").Inc()
	return nil
}
