package services

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/chatify/apiserver/internal/moderation"
	"github.com/chatify/apiserver/internal/posts"
	"github.com/chatify/apiserver/internal/ranking"
	"github.com/chatify/apiserver/internal/store"
	"github.com/chatify/apiserver/types"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/samber/lo"
)

var hashtagPattern = regexp.MustCompile(`#[a-zA-Z0-9_]+`)

// PostRepository is the post collection the feed reads and mutates.
type PostRepository interface {
	Hydrate(posts []types.Post)
	Loading() bool
	Ready() <-chan struct{}
	Snapshot() []types.Post
	Get(id string) (types.Post, bool)
	Create(ctx context.Context, post types.Post) (posts.CreateResult, error)
	Mutate(ctx context.Context, id string, fn func(post *types.Post) error) (types.Post, bool, error)
	DeleteIf(ctx context.Context, id string, check func(post types.Post) error) (bool, error)
}

// Scheduler starts a background moderation check for a new post.
type Scheduler interface {
	Schedule(post types.Post) *moderation.Job
}

// Loader reads the persisted collections.
type Loader interface {
	Load(ctx context.Context) (store.Snapshot, error)
}

// Draft is the user input for a new post.
type Draft struct {
	Content string   `json:"content" validate:"max=5000"`
	Images  []string `json:"images" validate:"max=4,dive,required"`
}

// Edit holds the fields a user may change on their own post. Nil fields
// are left unchanged.
type Edit struct {
	Content *string  `json:"content" validate:"omitempty,max=5000"`
	Images  []string `json:"images" validate:"omitempty,max=4,dive,required"`
}

// CommentInput is the user input for a new comment.
type CommentInput struct {
	Content  string `json:"content" validate:"max=2000"`
	ParentID string `json:"parentId"`
}

// FeedService implements the post operations behind the feed.
type FeedService struct {
	posts     PostRepository
	users     *UserService
	moderator Scheduler
	logger    *slog.Logger
	now       func() time.Time
	retryMin  time.Duration
	retryMax  time.Duration
}

const (
	defaultRetryMin = 500 * time.Millisecond
	defaultRetryMax = 30 * time.Second
)

func NewFeedService(repo PostRepository, users *UserService, moderator Scheduler, logger *slog.Logger) *FeedService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedService{
		posts:     repo,
		users:     users,
		moderator: moderator,
		logger:    logger.With("component", "feed"),
		now:       func() time.Time { return time.Now().UTC() },
		retryMin:  defaultRetryMin,
		retryMax:  defaultRetryMax,
	}
}

// SetClock overrides the time source used for new posts and comments.
func (s *FeedService) SetClock(now func() time.Time) {
	s.now = now
}

// SetRetryBackoff bounds the delay between failed hydration attempts.
func (s *FeedService) SetRetryBackoff(initial, max time.Duration) {
	s.retryMin = initial
	s.retryMax = max
}

// Hydrate loads the persisted collections into the user directory and the
// post repository. A failed load is retried with exponential backoff and
// the feed keeps reporting Loading until one succeeds. It returns ctx.Err()
// when ctx ends first.
func (s *FeedService) Hydrate(ctx context.Context, loader Loader) error {
	delay := s.retryMin
	for attempt := 1; ; attempt++ {
		snapshot, err := loader.Load(ctx)
		if err == nil {
			s.users.Hydrate(snapshot.Users)
			s.posts.Hydrate(snapshot.Posts)
			s.logger.Info("Feed hydrated", "users", len(snapshot.Users), "posts", len(snapshot.Posts), "attempts", attempt)
			return nil
		}
		s.logger.Error("Failed to load persisted data", "attempt", attempt, "retry_in", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, s.retryMax)
	}
}

// Loading reports whether the feed is still waiting for its first hydration.
func (s *FeedService) Loading() bool {
	return s.posts.Loading()
}

// GetFeed returns the ranked posts for the named filter and sort key.
func (s *FeedService) GetFeed(filter, sort string) ([]types.Post, error) {
	f, err := ranking.ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	key, err := ranking.ParseSortKey(sort)
	if err != nil {
		return nil, err
	}
	return ranking.Rank(s.posts.Snapshot(), f, key), nil
}

// CreatePost adds a pending post for authorID and schedules its moderation
// check. The returned post is the optimistic record.
func (s *FeedService) CreatePost(ctx context.Context, authorID string, draft Draft) (types.Post, error) {
	author, err := s.author(ctx, authorID)
	if err != nil {
		return types.Post{}, err
	}

	content := strings.TrimSpace(draft.Content)
	if content == "" && len(draft.Images) == 0 {
		return types.Post{}, ErrEmptyPost
	}
	if err := validateStruct(draft); err != nil {
		return types.Post{}, err
	}

	id, err := gonanoid.New()
	if err != nil {
		return types.Post{}, fmt.Errorf("generate post id: %w", err)
	}

	now := s.now()
	post := types.Post{
		ID:        id,
		Content:   content,
		Images:    lo.Compact(draft.Images),
		CreatedAt: now,
		UpdatedAt: now,
		AuthorID:  author.ID,
		Author:    &author,
		Likes:     types.NewLikeSet(),
		Comments:  []types.Comment{},
		Tags:      ExtractTags(content),
		IsFlagged: types.FlagPending,
	}
	post.Normalize()

	result, err := s.posts.Create(ctx, post)
	if err != nil {
		return types.Post{}, err
	}
	if result != posts.Inserted {
		return types.Post{}, fmt.Errorf("create post %s: %s", id, result)
	}

	if s.moderator != nil {
		s.moderator.Schedule(post)
	}
	return post, nil
}

// UpdatePost applies an edit to the caller's own post. Editing content
// recomputes its tags. A missing post is not an error: ok is false.
func (s *FeedService) UpdatePost(ctx context.Context, userID, postID string, edit Edit) (types.Post, bool, error) {
	if _, err := s.author(ctx, userID); err != nil {
		return types.Post{}, false, err
	}
	if err := validateStruct(edit); err != nil {
		return types.Post{}, false, err
	}

	post, ok, err := s.posts.Mutate(ctx, postID, func(p *types.Post) error {
		if err := ownedBy(*p, userID); err != nil {
			return err
		}
		content := p.Content
		if edit.Content != nil {
			content = strings.TrimSpace(*edit.Content)
		}
		images := p.Images
		if edit.Images != nil {
			images = lo.Compact(edit.Images)
		}
		if content == "" && len(images) == 0 {
			return ErrEmptyPost
		}

		if edit.Content != nil {
			p.Content = content
			p.Tags = ExtractTags(content)
		}
		p.Images = images
		return nil
	})
	if err != nil {
		return types.Post{}, false, err
	}
	return post, ok, nil
}

// DeletePost removes the caller's own post. Deleting a missing post
// succeeds.
func (s *FeedService) DeletePost(ctx context.Context, userID, postID string) error {
	if _, err := s.author(ctx, userID); err != nil {
		return err
	}

	_, err := s.posts.DeleteIf(ctx, postID, func(p types.Post) error {
		return ownedBy(p, userID)
	})
	return err
}

// ToggleLike adds or removes the caller's like on a post.
func (s *FeedService) ToggleLike(ctx context.Context, userID, postID string) (types.Post, bool, error) {
	if _, err := s.author(ctx, userID); err != nil {
		return types.Post{}, false, err
	}
	return s.posts.Mutate(ctx, postID, func(p *types.Post) error {
		if p.Likes == nil {
			p.Likes = types.NewLikeSet()
		}
		p.Likes.Toggle(userID)
		return nil
	})
}

// AddComment appends a comment by the caller to a post.
func (s *FeedService) AddComment(ctx context.Context, userID, postID string, in CommentInput) (types.Post, bool, error) {
	author, err := s.author(ctx, userID)
	if err != nil {
		return types.Post{}, false, err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return types.Post{}, false, ErrEmptyPost
	}
	if err := validateStruct(in); err != nil {
		return types.Post{}, false, err
	}

	id, err := gonanoid.New()
	if err != nil {
		return types.Post{}, false, fmt.Errorf("generate comment id: %w", err)
	}
	comment := types.Comment{
		ID:        id,
		Content:   content,
		CreatedAt: s.now(),
		AuthorID:  author.ID,
		Author:    &author,
		PostID:    postID,
		ParentID:  in.ParentID,
		Likes:     types.NewLikeSet(),
	}

	return s.posts.Mutate(ctx, postID, func(p *types.Post) error {
		p.Comments = append(p.Comments, comment)
		return nil
	})
}

// author resolves the caller once the directory has been hydrated.
func (s *FeedService) author(ctx context.Context, userID string) (types.User, error) {
	if strings.TrimSpace(userID) == "" {
		return types.User{}, ErrUnauthenticated
	}
	select {
	case <-s.posts.Ready():
	case <-ctx.Done():
		return types.User{}, ctx.Err()
	}
	user, err := s.users.Get(userID)
	if err != nil {
		return types.User{}, ErrUnauthenticated
	}
	return user, nil
}

func ownedBy(post types.Post, userID string) error {
	if post.AuthorID != userID {
		return ErrForbidden
	}
	return nil
}

// ExtractTags returns the distinct hashtags in content in order of first
// appearance.
func ExtractTags(content string) []string {
	return lo.Uniq(hashtagPattern.FindAllString(content, -1))
}
