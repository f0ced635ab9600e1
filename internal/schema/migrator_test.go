package schema_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/chatify/apiserver/internal/schema"
	"github.com/chatify/apiserver/types"
	"github.com/stretchr/testify/require"
)

var (
	seedAuthor = types.User{ID: "seed-1", Name: "Prof. Seed", Role: types.RoleFaculty, PasswordHash: "x"}
	storedUser = types.User{ID: "u-9", Name: "Stored", Role: types.RoleStudent, PasswordHash: "secret"}
)

func TestMigrator_DecodeUsers(t *testing.T) {
	t.Parallel()

	m := schema.NewMigrator(nil, nil)

	users, err := m.DecodeUsers([]byte(`[{"id":"u1","name":"Ada","role":"senior","createdAt":"2024-01-02"}]`))
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, types.RoleFaculty, users[0].Role)
	require.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), users[0].CreatedAt)

	users, err = m.DecodeUsers([]byte(`null`))
	require.NoError(t, err)
	require.Empty(t, users)

	_, err = m.DecodeUsers([]byte(`{"broken"`))
	require.Error(t, err)
}

func TestMigrator_DecodePosts_AuthorResolution(t *testing.T) {
	t.Parallel()

	m := schema.NewMigrator([]types.User{seedAuthor}, nil)

	raw := `[
		{"id":"p1","authorId":"seed-1","createdAt":"2024-01-01T00:00:00Z"},
		{"id":"p2","authorId":"u-9","createdAt":"2024-01-01T00:00:00Z"},
		{"id":"p3","authorId":"ghost","createdAt":"2024-01-01T00:00:00Z",
		 "comments":[{"id":"c1","authorId":"seed-1","createdAt":"2024-01-02T00:00:00Z"}]},
		{"id":"p4","authorId":"u-9","author":{"id":"u-9","name":"Embedded","role":"junior"}}
	]`

	posts, err := m.DecodePosts([]byte(raw), []types.User{storedUser})
	require.NoError(t, err)
	require.Len(t, posts, 4)

	require.Equal(t, "Prof. Seed", posts[0].Author.Name)
	require.Empty(t, posts[0].Author.PasswordHash)

	require.Equal(t, "Stored", posts[1].Author.Name)
	require.Empty(t, posts[1].Author.PasswordHash)

	require.Equal(t, types.PlaceholderUser("ghost", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), *posts[2].Author)
	require.Equal(t, "Prof. Seed", posts[2].Comments[0].Author.Name)
	require.Equal(t, "p3", posts[2].Comments[0].PostID)

	require.Equal(t, "Embedded", posts[3].Author.Name)
	require.Equal(t, types.RoleStudent, posts[3].Author.Role)
}

func TestMigrator_DecodePosts_Defaults(t *testing.T) {
	t.Parallel()

	m := schema.NewMigrator(nil, nil)

	posts, err := m.DecodePosts([]byte(`[{"id":"p1","authorId":"a","createdAt":"2024-02-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"}]`), nil)
	require.NoError(t, err)

	post := posts[0]
	require.Equal(t, types.FlagPending, post.IsFlagged)
	require.NotNil(t, post.Likes)
	require.NotNil(t, post.Comments)
	require.NotNil(t, post.Tags)
	require.Equal(t, post.CreatedAt, post.UpdatedAt)
}

func TestMigrator_SkipsMalformedRecords(t *testing.T) {
	t.Parallel()

	m := schema.NewMigrator(nil, nil)

	posts, err := m.DecodePosts([]byte(`[
		{"id":"p1","content":"fine","authorId":"a","createdAt":"2024-02-01T00:00:00Z"},
		{"id":"p2","content":123,"authorId":"a","createdAt":"2024-02-01T00:00:00Z"},
		null,
		{"id":"p3","content":"also fine","authorId":"a","createdAt":"2024-02-02T00:00:00Z"}
	]`), nil)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Equal(t, "p1", posts[0].ID)
	require.Equal(t, "p3", posts[1].ID)

	users, err := m.DecodeUsers([]byte(`[{"id":"u1","name":7},{"id":"u2","name":"Grace","role":"student"}]`))
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "u2", users[0].ID)
}

func TestEncode_RoundTrip(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	checked := created.Add(time.Minute)
	score := 0.42
	author := types.User{ID: "u1", Name: "Ada", Email: "ada@uni.edu", Department: "CS", Year: "3", Role: types.RoleStudent, CreatedAt: created}

	posts := []types.Post{{
		ID:        "p1",
		Content:   "hello #go",
		Images:    []string{"img-1"},
		CreatedAt: created,
		UpdatedAt: checked,
		AuthorID:  "u1",
		Author:    &author,
		Likes:     types.NewLikeSet("u2", "u3"),
		Comments: []types.Comment{{
			ID: "c1", Content: "nice", CreatedAt: created, AuthorID: "u1", Author: &author, PostID: "p1", Likes: types.NewLikeSet(),
		}},
		Tags:                []string{"#go"},
		IsFlagged:           types.FlagFlagged,
		ModerationScore:     &score,
		ModerationDetails:   map[string]any{"reason": "spam"},
		ModerationCheckedAt: &checked,
	}}

	raw, err := schema.Encode(posts)
	require.NoError(t, err)

	var stamped []map[string]any
	require.NoError(t, json.Unmarshal(raw, &stamped))
	require.EqualValues(t, schema.CurrentVersion, stamped[0][schema.VersionField])

	decoded, err := schema.NewMigrator(nil, nil).DecodePosts(raw, nil)
	require.NoError(t, err)
	require.Equal(t, posts, decoded)
}
