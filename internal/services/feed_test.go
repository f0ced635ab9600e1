package services_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chatify/apiserver/internal/moderation"
	"github.com/chatify/apiserver/internal/posts"
	"github.com/chatify/apiserver/internal/ranking"
	"github.com/chatify/apiserver/internal/services"
	"github.com/chatify/apiserver/internal/storage"
	"github.com/chatify/apiserver/internal/store"
	"github.com/chatify/apiserver/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)

type postSaver struct{}

func (postSaver) SavePosts(context.Context, []types.Post) error { return nil }

type recordingScheduler struct {
	mu        sync.Mutex
	scheduled []types.Post
}

func (s *recordingScheduler) Schedule(post types.Post) *moderation.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, post)
	return nil
}

type stubLoader struct {
	snapshot store.Snapshot
	err      error
}

func (l stubLoader) Load(context.Context) (store.Snapshot, error) { return l.snapshot, l.err }

type failingLoader struct {
	calls atomic.Int32
}

func (l *failingLoader) Load(context.Context) (store.Snapshot, error) {
	l.calls.Add(1)
	return store.Snapshot{}, errors.New("connection refused")
}

// flakyKV fails the first n reads and then delegates.
type flakyKV struct {
	store.KV
	failures atomic.Int32
}

func (f *flakyKV) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection reset")
	}
	return f.KV.Get(ctx, key)
}

var (
	alice = types.User{ID: "alice", Name: "Alice", Role: types.RoleStudent, CreatedAt: now}
	bob   = types.User{ID: "bob", Name: "Bob", Role: types.RoleFaculty, CreatedAt: now}
)

type fixture struct {
	feed      *services.FeedService
	repo      *posts.Repository
	scheduler *recordingScheduler
}

func newFeed(t *testing.T, seedPosts ...types.Post) fixture {
	t.Helper()

	repo := posts.NewRepository(postSaver{}, nil)
	repo.SetClock(func() time.Time { return now.Add(time.Minute) })
	users := services.NewUserService(&userSaver{}, nil)
	scheduler := &recordingScheduler{}

	feed := services.NewFeedService(repo, users, scheduler, nil)
	feed.SetClock(func() time.Time { return now })
	require.NoError(t, feed.Hydrate(context.Background(), stubLoader{snapshot: store.Snapshot{
		Users: []types.User{alice, bob},
		Posts: seedPosts,
	}}))
	return fixture{feed: feed, repo: repo, scheduler: scheduler}
}

func existing(id string, author types.User) types.Post {
	return types.Post{
		ID:        id,
		Content:   "existing #old",
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now.Add(-time.Hour),
		AuthorID:  author.ID,
		Author:    &author,
		Likes:     types.NewLikeSet(),
		Tags:      []string{"#old"},
		IsFlagged: types.FlagClear,
	}
}

func TestFeedService_CreatePost(t *testing.T) {
	t.Parallel()

	t.Run("optimistic pending post", func(t *testing.T) {
		t.Parallel()

		f := newFeed(t)
		post, err := f.feed.CreatePost(context.Background(), alice.ID, services.Draft{Content: "  hello #campus #campus #cs_101 "})
		require.NoError(t, err)
		require.NotEmpty(t, post.ID)
		require.Equal(t, "hello #campus #campus #cs_101", post.Content)
		require.Equal(t, types.FlagPending, post.IsFlagged)
		require.Equal(t, []string{"#campus", "#cs_101"}, post.Tags)
		require.Equal(t, now, post.CreatedAt)
		require.Equal(t, alice.ID, post.Author.ID)

		feed, err := f.feed.GetFeed("all", "latest")
		require.NoError(t, err)
		require.Len(t, feed, 1)
		require.Equal(t, post.ID, feed[0].ID)

		require.Len(t, f.scheduler.scheduled, 1)
		require.Equal(t, post.ID, f.scheduler.scheduled[0].ID)
	})

	t.Run("unique ids", func(t *testing.T) {
		t.Parallel()

		f := newFeed(t)
		first, err := f.feed.CreatePost(context.Background(), alice.ID, services.Draft{Content: "one"})
		require.NoError(t, err)
		second, err := f.feed.CreatePost(context.Background(), alice.ID, services.Draft{Content: "two"})
		require.NoError(t, err)
		require.NotEqual(t, first.ID, second.ID)
		require.Equal(t, []string{second.ID, first.ID}, lo.Map(f.repo.Snapshot(), func(p types.Post, _ int) string { return p.ID }))
	})

	t.Run("image only post", func(t *testing.T) {
		t.Parallel()

		f := newFeed(t)
		post, err := f.feed.CreatePost(context.Background(), alice.ID, services.Draft{Images: []string{"img://1"}})
		require.NoError(t, err)
		require.Equal(t, []string{"img://1"}, post.Images)
	})

	t.Run("rejects invalid drafts", func(t *testing.T) {
		t.Parallel()

		f := newFeed(t)
		_, err := f.feed.CreatePost(context.Background(), alice.ID, services.Draft{Content: "   "})
		require.ErrorIs(t, err, services.ErrEmptyPost)

		_, err = f.feed.CreatePost(context.Background(), alice.ID, services.Draft{Content: "x", Images: []string{"1", "2", "3", "4", "5"}})
		require.ErrorIs(t, err, services.ErrInvalidInput)

		_, err = f.feed.CreatePost(context.Background(), "", services.Draft{Content: "x"})
		require.ErrorIs(t, err, services.ErrUnauthenticated)

		_, err = f.feed.CreatePost(context.Background(), "mallory", services.Draft{Content: "x"})
		require.ErrorIs(t, err, services.ErrUnauthenticated)

		require.Empty(t, f.repo.Snapshot())
		require.Empty(t, f.scheduler.scheduled)
	})
}

func TestFeedService_UpdatePost(t *testing.T) {
	t.Parallel()

	f := newFeed(t, existing("p1", alice))

	content := "edited #new"
	post, ok, err := f.feed.UpdatePost(context.Background(), alice.ID, "p1", services.Edit{Content: &content})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "edited #new", post.Content)
	require.Equal(t, []string{"#new"}, post.Tags)
	require.Equal(t, types.FlagClear, post.IsFlagged)
	require.True(t, post.Edited())

	hijack := "hijacked"
	_, _, err = f.feed.UpdatePost(context.Background(), bob.ID, "p1", services.Edit{Content: &hijack})
	require.ErrorIs(t, err, services.ErrForbidden)
	stored, _ := f.repo.Get("p1")
	require.Equal(t, "edited #new", stored.Content)

	_, ok, err = f.feed.UpdatePost(context.Background(), alice.ID, "missing", services.Edit{Content: &content})
	require.NoError(t, err)
	require.False(t, ok)

	blank := " "
	_, _, err = f.feed.UpdatePost(context.Background(), alice.ID, "p1", services.Edit{Content: &blank})
	require.ErrorIs(t, err, services.ErrEmptyPost)
}

func TestFeedService_DeletePost(t *testing.T) {
	t.Parallel()

	f := newFeed(t, existing("p1", alice))

	require.ErrorIs(t, f.feed.DeletePost(context.Background(), bob.ID, "p1"), services.ErrForbidden)
	require.Len(t, f.repo.Snapshot(), 1)
	require.NoError(t, f.feed.DeletePost(context.Background(), alice.ID, "p1"))
	require.NoError(t, f.feed.DeletePost(context.Background(), alice.ID, "p1"))
	require.Empty(t, f.repo.Snapshot())
}

func TestFeedService_ToggleLike(t *testing.T) {
	t.Parallel()

	f := newFeed(t, existing("p1", alice))

	post, ok, err := f.feed.ToggleLike(context.Background(), bob.ID, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, post.Likes.Has(bob.ID))

	post, _, err = f.feed.ToggleLike(context.Background(), bob.ID, "p1")
	require.NoError(t, err)
	require.Zero(t, post.Likes.Len())

	_, ok, err = f.feed.ToggleLike(context.Background(), bob.ID, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFeedService_AddComment(t *testing.T) {
	t.Parallel()

	f := newFeed(t, existing("p1", alice))

	post, ok, err := f.feed.AddComment(context.Background(), bob.ID, "p1", services.CommentInput{Content: " nice "})
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, post.Comments, 1)

	comment := post.Comments[0]
	require.Equal(t, "nice", comment.Content)
	require.Equal(t, bob.ID, comment.AuthorID)
	require.Equal(t, "p1", comment.PostID)
	require.Equal(t, now, comment.CreatedAt)

	_, _, err = f.feed.AddComment(context.Background(), bob.ID, "p1", services.CommentInput{})
	require.ErrorIs(t, err, services.ErrEmptyPost)
}

func TestFeedService_GetFeed(t *testing.T) {
	t.Parallel()

	f := newFeed(t, existing("p1", alice), existing("p2", bob))

	feed, err := f.feed.GetFeed("faculty", "")
	require.NoError(t, err)
	require.Len(t, feed, 1)
	require.Equal(t, "p2", feed[0].ID)

	_, err = f.feed.GetFeed("alumni", "latest")
	require.ErrorIs(t, err, ranking.ErrUnknownFilter)

	_, err = f.feed.GetFeed("all", "oldest")
	require.ErrorIs(t, err, ranking.ErrUnknownSort)
}

func TestFeedService_Hydrate(t *testing.T) {
	t.Parallel()

	repo := posts.NewRepository(postSaver{}, nil)
	users := services.NewUserService(&userSaver{}, nil)
	feed := services.NewFeedService(repo, users, nil, nil)
	require.True(t, feed.Loading())

	require.NoError(t, feed.Hydrate(context.Background(), stubLoader{snapshot: store.DefaultSeed()}))
	require.False(t, feed.Loading())

	seed := store.DefaultSeed()
	require.Len(t, repo.Snapshot(), len(seed.Posts))
	require.Len(t, users.List(), len(seed.Users))

	post, err := feed.CreatePost(context.Background(), seed.Users[0].ID, services.Draft{Content: "no moderator configured"})
	require.NoError(t, err)
	require.Equal(t, types.FlagPending, post.IsFlagged)
}

func TestFeedService_HydrateRetriesUntilCanceled(t *testing.T) {
	t.Parallel()

	repo := posts.NewRepository(postSaver{}, nil)
	users := services.NewUserService(&userSaver{}, nil)
	feed := services.NewFeedService(repo, users, nil, nil)
	feed.SetRetryBackoff(time.Millisecond, 2*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	loader := &failingLoader{}
	err := feed.Hydrate(ctx, loader)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, feed.Loading())
	require.Greater(t, loader.calls.Load(), int32(1))
	require.Empty(t, repo.Snapshot())
}

func TestFeedService_LoadErrorKeepsDurableData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := &flakyKV{KV: storage.NewMemoryBackend()}
	st := store.New(kv, store.DefaultSeed, nil)
	require.NoError(t, st.SaveUsers(ctx, []types.User{alice, bob}))
	require.NoError(t, st.SavePosts(ctx, []types.Post{existing("durable-1", alice)}))
	kv.failures.Store(1)

	repo := posts.NewRepository(st, nil)
	users := services.NewUserService(st, nil)
	feed := services.NewFeedService(repo, users, nil, nil)
	feed.SetRetryBackoff(time.Millisecond, time.Millisecond)

	require.NoError(t, feed.Hydrate(ctx, st))
	require.False(t, feed.Loading())

	_, ok, err := feed.ToggleLike(ctx, bob.ID, "durable-1")
	require.NoError(t, err)
	require.True(t, ok)

	snap, err := st.Load(ctx)
	require.NoError(t, err)
	ids := lo.Map(snap.Posts, func(p types.Post, _ int) string { return p.ID })
	require.Equal(t, []string{"durable-1"}, ids)
	require.True(t, snap.Posts[0].Likes.Has(bob.ID))
}

func TestExtractTags(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"#a", "#B_2"}, services.ExtractTags("#a x #B_2 #a #-"))
	require.Empty(t, services.ExtractTags("no tags"))
}
