// Package ranking orders posts for the feed.
package ranking

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/chatify/apiserver/types"
	"github.com/samber/lo"
)

var (
	ErrUnknownFilter = errors.New("unknown filter")
	ErrUnknownSort   = errors.New("unknown sort key")
)

// Filter selects posts by author role.
type Filter string

const (
	FilterAll     Filter = "all"
	FilterStudent Filter = Filter(types.RoleStudent)
	FilterFaculty Filter = Filter(types.RoleFaculty)
)

// SortKey selects the secondary ordering.
type SortKey string

const (
	SortLatest  SortKey = "latest"
	SortPopular SortKey = "popular"
)

// ParseFilter parses a filter name. The empty string means FilterAll.
func ParseFilter(value string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterStudent, FilterFaculty:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFilter, value)
	}
}

// ParseSortKey parses a sort key. The empty string means SortLatest.
func ParseSortKey(value string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(value))); k {
	case "":
		return SortLatest, nil
	case SortLatest, SortPopular:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSort, value)
	}
}

// Rank returns the posts matching filter, ordered with flagged posts last
// and then by key. The order is stable: ties keep their input order. The
// input slice is not modified.
func Rank(posts []types.Post, filter Filter, key SortKey) []types.Post {
	ranked := lo.Filter(posts, func(post types.Post, _ int) bool {
		if post.Author == nil {
			return false
		}
		return filter == FilterAll || Filter(post.Author.Role) == filter
	})

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Flagged() != b.Flagged() {
			return b.Flagged()
		}
		switch key {
		case SortPopular:
			return a.Likes.Len() > b.Likes.Len()
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
	return ranked
}
