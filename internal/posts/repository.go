// Package posts holds the in-memory post collection and writes every
// change through to the persisted store.
package posts

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/chatify/apiserver/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultSaveTimeout = 10 * time.Second

var cachedPosts = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "chatify_posts_cached",
	Help: "Number of posts held by the repository.",
})

// Saver persists the full post collection.
type Saver interface {
	SavePosts(ctx context.Context, posts []types.Post) error
}

// CreateResult describes what Create did with the incoming post.
type CreateResult int

const (
	// Inserted means the post was new and pending and has been added.
	Inserted CreateResult = iota
	// Merged means a post with the same id existed; only its flag state
	// was taken from the incoming post.
	Merged
	// Rejected means the post was new but not pending and was dropped.
	Rejected
)

func (r CreateResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Merged:
		return "merged"
	default:
		return "rejected"
	}
}

// Repository caches the post collection. Every operation, including its
// write-through save, runs to completion under one lock, so mutations are
// applied and persisted in issue order.
//
// Mutations wait until the repository is hydrated; reads return an empty
// view until then.
type Repository struct {
	mu     sync.Mutex
	posts  []types.Post
	ready  chan struct{}
	loaded bool

	saver       Saver
	logger      *slog.Logger
	now         func() time.Time
	saveTimeout time.Duration
}

// NewRepository constructs an unhydrated repository.
func NewRepository(saver Saver, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		ready:       make(chan struct{}),
		saver:       saver,
		logger:      logger.With("component", "posts"),
		now:         func() time.Time { return time.Now().UTC() },
		saveTimeout: defaultSaveTimeout,
	}
}

// SetClock replaces the time source used to stamp UpdatedAt.
func (r *Repository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Hydrate installs the loaded collection. Only the first call has an effect.
func (r *Repository) Hydrate(posts []types.Post) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return
	}
	r.posts = make([]types.Post, 0, len(posts))
	for _, post := range posts {
		post = post.Clone()
		post.Normalize()
		r.posts = append(r.posts, post)
	}
	r.loaded = true
	cachedPosts.Set(float64(len(r.posts)))
	close(r.ready)
}

// Loading reports whether hydration is still in progress.
func (r *Repository) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.loaded
}

// Ready is closed once the repository is hydrated.
func (r *Repository) Ready() <-chan struct{} {
	return r.ready
}

// Snapshot returns a copy of the collection in insertion order, newest first.
func (r *Repository) Snapshot() []types.Post {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.Post, len(r.posts))
	for i, post := range r.posts {
		out[i] = post.Clone()
	}
	return out
}

// Get returns a copy of the post with the given id.
func (r *Repository) Get(id string) (types.Post, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return types.Post{}, false
	}
	return r.posts[i].Clone(), true
}

// Create inserts a new pending post. When the id is already present only
// the incoming flag state is merged into the stored post, and only if that
// moves it out of pending. A new post that is not pending is rejected.
func (r *Repository) Create(ctx context.Context, post types.Post) (CreateResult, error) {
	if err := r.wait(ctx); err != nil {
		return Rejected, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOf(post.ID); i >= 0 {
		existing := &r.posts[i]
		if existing.IsFlagged == types.FlagPending && post.IsFlagged.Concrete() {
			existing.IsFlagged = post.IsFlagged
			existing.UpdatedAt = r.stamp(existing.CreatedAt)
			r.persist(ctx, "create-merge")
		}
		return Merged, nil
	}

	if post.IsFlagged != types.FlagPending {
		r.logger.Warn("Rejecting create of already moderated post", "post_id", post.ID, "state", post.IsFlagged)
		return Rejected, nil
	}

	post = post.Clone()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = r.now()
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = post.CreatedAt
	}
	post.Normalize()

	r.posts = slices.Insert(r.posts, 0, post)
	r.persist(ctx, "create")
	return Inserted, nil
}

// Update replaces the stored post with the same id. It is a no-op when the
// id is absent. Once moderation has completed, the stored moderation fields
// are kept whatever the incoming copy carries; only Patch changes them.
func (r *Repository) Update(ctx context.Context, post types.Post) (bool, error) {
	if err := r.wait(ctx); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(post.ID)
	if i < 0 {
		return false, nil
	}

	stored := r.posts[i]
	post = post.Clone()
	if stored.IsFlagged.Concrete() {
		copyModeration(&post, stored)
	}
	post.UpdatedAt = r.stamp(post.CreatedAt)
	post.Normalize()

	r.posts[i] = post
	r.persist(ctx, "update")
	return true, nil
}

// Patch merges fields into the stored post and returns the result. It is a
// no-op when the id is absent. The flag state only ever moves from pending
// to a concrete value; a second verdict is ignored together with its
// moderation fields.
func (r *Repository) Patch(ctx context.Context, id string, patch types.PostPatch) (types.Post, bool, error) {
	if err := r.wait(ctx); err != nil {
		return types.Post{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return types.Post{}, false, nil
	}

	post := &r.posts[i]
	if patch.Content != nil {
		post.Content = *patch.Content
	}
	if patch.Images != nil {
		post.Images = slices.Clone(patch.Images)
	}
	if patch.Tags != nil {
		post.Tags = slices.Clone(patch.Tags)
	}
	if patch.IsFlagged != nil && post.IsFlagged.Concrete() {
		r.logger.Debug("Ignoring repeated moderation result", "post_id", id)
	} else {
		applyModeration(post, patch)
	}
	post.UpdatedAt = r.stamp(post.CreatedAt)
	post.Normalize()

	r.persist(ctx, "patch")
	return post.Clone(), true, nil
}

// Mutate applies fn to a copy of the stored post and persists the result.
// fn runs under the repository lock and must not call back into the
// repository. When fn returns an error nothing is changed and the error is
// returned. It is a no-op when the id is absent.
func (r *Repository) Mutate(ctx context.Context, id string, fn func(post *types.Post) error) (types.Post, bool, error) {
	if err := r.wait(ctx); err != nil {
		return types.Post{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return types.Post{}, false, nil
	}

	post := r.posts[i].Clone()
	if err := fn(&post); err != nil {
		return types.Post{}, true, err
	}
	post.ID = id
	post.UpdatedAt = r.stamp(post.CreatedAt)
	post.Normalize()

	r.posts[i] = post
	r.persist(ctx, "mutate")
	return post.Clone(), true, nil
}

// Delete removes the post. It is a no-op when the id is absent.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	return r.DeleteIf(ctx, id, nil)
}

// DeleteIf removes the post when check, run under the repository lock,
// returns nil. A nil check always deletes. It is a no-op when the id is
// absent.
func (r *Repository) DeleteIf(ctx context.Context, id string, check func(post types.Post) error) (bool, error) {
	if err := r.wait(ctx); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return false, nil
	}
	if check != nil {
		if err := check(r.posts[i]); err != nil {
			return false, err
		}
	}
	r.posts = slices.Delete(r.posts, i, i+1)
	r.persist(ctx, "delete")
	return true, nil
}

func (r *Repository) wait(ctx context.Context) error {
	select {
	case <-r.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Repository) indexOf(id string) int {
	return slices.IndexFunc(r.posts, func(post types.Post) bool {
		return post.ID == id
	})
}

// stamp returns the current time, never earlier than createdAt.
func (r *Repository) stamp(createdAt time.Time) time.Time {
	now := r.now()
	if now.Before(createdAt) {
		return createdAt
	}
	return now
}

// persist writes the collection through to the store. It must be called
// with r.mu held. Failures are logged and do not undo the change.
func (r *Repository) persist(ctx context.Context, op string) {
	cachedPosts.Set(float64(len(r.posts)))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.saveTimeout)
	defer cancel()

	if err := r.saver.SavePosts(ctx, r.posts); err != nil {
		r.logger.Error("Failed to persist posts", "op", op, "error", err)
	}
}

func applyModeration(post *types.Post, patch types.PostPatch) {
	if patch.IsFlagged != nil && patch.IsFlagged.Concrete() {
		post.IsFlagged = *patch.IsFlagged
	}
	if patch.ModerationScore != nil {
		score := *patch.ModerationScore
		post.ModerationScore = &score
	}
	if patch.ModerationDetails != nil {
		post.ModerationDetails = patch.ModerationDetails
	}
	if patch.ModerationCheckedAt != nil {
		checkedAt := *patch.ModerationCheckedAt
		post.ModerationCheckedAt = &checkedAt
	}
	if patch.ModerationError != nil {
		post.ModerationError = *patch.ModerationError
	}
}

func copyModeration(dst *types.Post, src types.Post) {
	dst.IsFlagged = src.IsFlagged
	dst.ModerationScore = src.ModerationScore
	dst.ModerationDetails = src.ModerationDetails
	dst.ModerationCheckedAt = src.ModerationCheckedAt
	dst.ModerationError = src.ModerationError
}
