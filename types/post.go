package types

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/samber/lo"
)

// MaxPostImages is the number of images a post may carry.
const MaxPostImages = 4

// LikeSet is the set of user ids that liked a post or comment.
// It is stored as a sorted JSON array.
type LikeSet map[string]struct{}

// NewLikeSet builds a set from the given user ids.
func NewLikeSet(userIDs ...string) LikeSet {
	set := make(LikeSet, len(userIDs))
	for _, id := range userIDs {
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether the user liked the record.
func (s LikeSet) Has(userID string) bool {
	_, ok := s[userID]
	return ok
}

// Len returns the number of likes.
func (s LikeSet) Len() int {
	return len(s)
}

// Toggle adds the user when absent and removes it otherwise.
// It reports whether the user is in the set afterwards.
func (s LikeSet) Toggle(userID string) bool {
	if s.Has(userID) {
		delete(s, userID)
		return false
	}
	s[userID] = struct{}{}
	return true
}

// IDs returns the user ids in sorted order.
func (s LikeSet) IDs() []string {
	ids := lo.Keys(s)
	slices.Sort(ids)
	return ids
}

// Clone returns an independent copy of the set.
func (s LikeSet) Clone() LikeSet {
	return NewLikeSet(lo.Keys(s)...)
}

func (s LikeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

func (s *LikeSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewLikeSet(ids...)
	return nil
}

// Comment is a reply permanently attached to one post.
type Comment struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	AuthorID  string    `json:"authorId"`
	Author    *User     `json:"author,omitempty"`
	PostID    string    `json:"postId"`
	ParentID  string    `json:"parentId,omitempty"`
	Likes     LikeSet   `json:"likes"`
}

// Clone returns a deep copy of the comment.
func (c Comment) Clone() Comment {
	if c.Author != nil {
		author := *c.Author
		c.Author = &author
	}
	c.Likes = c.Likes.Clone()
	return c
}

// Post is a feed entry together with its moderation state.
type Post struct {
	// ID is unique within the collection. It is chosen by the creator
	// and never reassigned.
	ID string `json:"id"`

	// Content is the post text.
	Content string `json:"content"`

	// Images are ordered image references, at most MaxPostImages.
	Images []string `json:"images,omitempty"`

	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is bumped by every mutation and is never before CreatedAt.
	UpdatedAt time.Time `json:"updatedAt"`

	AuthorID string `json:"authorId"`

	// Author is a denormalised copy of the author. After loading it is
	// always set, falling back to a placeholder user.
	Author *User `json:"author,omitempty"`

	Likes    LikeSet   `json:"likes"`
	Comments []Comment `json:"comments"`

	// Tags are the hashtags found in Content, in order of appearance.
	Tags []string `json:"tags"`

	// IsFlagged starts pending and moves once to clear or flagged.
	IsFlagged FlagState `json:"isFlagged"`

	ModerationScore     *float64   `json:"moderationScore"`
	ModerationDetails   any        `json:"moderationDetails"`
	ModerationCheckedAt *time.Time `json:"moderationCheckedAt"`

	// ModerationError is set when the moderation check failed and the
	// post was cleared without a verdict.
	ModerationError bool `json:"moderationError,omitempty"`
}

// Flagged reports whether moderation marked the post unsafe.
func (p Post) Flagged() bool {
	return p.IsFlagged == FlagFlagged
}

// Edited reports whether the post changed after creation.
func (p Post) Edited() bool {
	return !p.UpdatedAt.Equal(p.CreatedAt)
}

// Clone returns a deep copy of the post. Moderation details are treated
// as an immutable value and shared.
func (p Post) Clone() Post {
	if p.Author != nil {
		author := *p.Author
		p.Author = &author
	}
	p.Images = slices.Clone(p.Images)
	p.Tags = slices.Clone(p.Tags)
	p.Likes = p.Likes.Clone()
	if p.Comments != nil {
		comments := make([]Comment, len(p.Comments))
		for i, comment := range p.Comments {
			comments[i] = comment.Clone()
		}
		p.Comments = comments
	}
	if p.ModerationScore != nil {
		score := *p.ModerationScore
		p.ModerationScore = &score
	}
	if p.ModerationCheckedAt != nil {
		checkedAt := *p.ModerationCheckedAt
		p.ModerationCheckedAt = &checkedAt
	}
	return p
}

// Normalize fills empty collections and repairs the timestamp ordering.
func (p *Post) Normalize() {
	if p.Likes == nil {
		p.Likes = LikeSet{}
	}
	if p.Comments == nil {
		p.Comments = []Comment{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if len(p.Images) == 0 {
		p.Images = nil
	}
	if len(p.Images) > MaxPostImages {
		p.Images = p.Images[:MaxPostImages]
	}
	for i := range p.Comments {
		if p.Comments[i].Likes == nil {
			p.Comments[i].Likes = LikeSet{}
		}
	}
	if p.UpdatedAt.Before(p.CreatedAt) {
		p.UpdatedAt = p.CreatedAt
	}
}

// PostPatch lists fields to merge into an existing post. Nil fields are
// left unchanged.
type PostPatch struct {
	Content             *string
	Images              []string
	Tags                []string
	IsFlagged           *FlagState
	ModerationScore     *float64
	ModerationDetails   any
	ModerationCheckedAt *time.Time
	ModerationError     *bool
}
