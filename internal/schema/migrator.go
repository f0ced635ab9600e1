package schema

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatify/apiserver/types"
)

// Migrator decodes persisted collections into current typed records.
type Migrator struct {
	seedUsers map[string]types.User
	logger    *slog.Logger
}

// NewMigrator constructs a Migrator. seedUsers are the first place a
// missing post or comment author is looked up.
func NewMigrator(seedUsers []types.User, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	index := make(map[string]types.User, len(seedUsers))
	for _, user := range seedUsers {
		index[user.ID] = user
	}
	return &Migrator{seedUsers: index, logger: logger.With("component", "schema")}
}

// DecodeUsers parses a users payload and upgrades every record. Records
// that do not fit the current shape are skipped.
func (m *Migrator) DecodeUsers(raw []byte) ([]types.User, error) {
	return decode[types.User](m, raw, KindUser)
}

// DecodePosts parses a posts payload, upgrades every record and resolves
// missing authors against the seed users and then the given persisted users.
// Records that do not fit the current shape are skipped.
func (m *Migrator) DecodePosts(raw []byte, users []types.User) ([]types.Post, error) {
	posts, err := decode[types.Post](m, raw, KindPost)
	if err != nil {
		return nil, err
	}

	authors := m.authors(users)
	for i := range posts {
		post := &posts[i]
		if post.Author == nil {
			author := authors.resolve(post.AuthorID, post.CreatedAt)
			post.Author = &author
		}
		for j := range post.Comments {
			comment := &post.Comments[j]
			if comment.Author == nil {
				author := authors.resolve(comment.AuthorID, comment.CreatedAt)
				comment.Author = &author
			}
			if comment.PostID == "" {
				comment.PostID = post.ID
			}
		}
		post.Normalize()
	}
	return posts, nil
}

// Encode serialises a collection and stamps every top-level record with
// CurrentVersion.
func Encode[T any](collection []T) ([]byte, error) {
	if collection == nil {
		collection = []T{}
	}
	raw, err := json.Marshal(collection)
	if err != nil {
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	for _, rec := range records {
		rec[VersionField] = CurrentVersion
	}
	return json.Marshal(records)
}

// decode fails only when the payload is not a JSON array. Each element is
// upgraded and decoded on its own so one malformed record does not cost the
// rest of the collection.
func decode[T any](m *Migrator, raw []byte, kind Kind) ([]T, error) {
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode %s collection: %w", kind, err)
	}

	out := make([]T, 0, len(records))
	for i, rec := range records {
		if rec == nil {
			continue
		}
		item, err := decodeRecord[T](Upgrade(rec, kind))
		if err != nil {
			m.logger.Warn("Skipping unreadable record", "kind", kind, "index", i, "id", rec["id"], "error", err)
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func decodeRecord[T any](rec Record) (T, error) {
	var item T
	normalized, err := json.Marshal(rec)
	if err != nil {
		return item, err
	}
	err = json.Unmarshal(normalized, &item)
	return item, err
}

type authorIndex struct {
	seed      map[string]types.User
	persisted map[string]types.User
}

func (m *Migrator) authors(users []types.User) authorIndex {
	persisted := make(map[string]types.User, len(users))
	for _, user := range users {
		persisted[user.ID] = user
	}
	return authorIndex{seed: m.seedUsers, persisted: persisted}
}

// resolve looks the author up in the seed users, then the persisted users,
// and falls back to a placeholder stamped with the referencing record's time.
func (a authorIndex) resolve(id string, createdAt time.Time) types.User {
	if user, ok := a.seed[id]; ok {
		return user.Public()
	}
	if user, ok := a.persisted[id]; ok {
		return user.Public()
	}
	return types.PlaceholderUser(id, createdAt)
}
