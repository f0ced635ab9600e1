// Package schema upgrades stored user, post and comment records to the
// current record shape.
//
// Every top-level record carries a schemaVersion marker (absent means 0).
// Upgrading applies, in order, every step whose target version is above the
// record's marker and stamps the record with CurrentVersion. Records nested
// inside a post or comment inherit the marker of their parent.
package schema

import (
	"github.com/chatify/apiserver/types"
)

// Kind identifies the shape of a record.
type Kind int

const (
	KindUser Kind = iota
	KindPost
	KindComment
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindPost:
		return "post"
	case KindComment:
		return "comment"
	default:
		return "unknown"
	}
}

// Record is a decoded JSON object.
type Record = map[string]any

const (
	// VersionField is the key holding the record's schema version.
	VersionField = "schemaVersion"

	// CurrentVersion is the version produced by Upgrade.
	CurrentVersion = 3
)

type step struct {
	to    int
	name  string
	apply func(rec Record, kind Kind)
}

var steps = []step{
	{to: 1, name: "canonical roles", apply: canonicalRoles},
	{to: 2, name: "timestamps", apply: normalizeTimestamps},
	{to: 3, name: "collections", apply: backfillCollections},
}

// Upgrade returns a copy of rec migrated to CurrentVersion. It never fails:
// fields it cannot interpret are dropped or replaced by their defaults.
// Upgrading an already current record returns an equal record.
func Upgrade(rec Record, kind Kind) Record {
	out := cloneRecord(rec)
	if out == nil {
		out = Record{}
	}
	upgrade(out, kind, 0)
	out[VersionField] = CurrentVersion
	return out
}

// Version returns the schema version marker of rec.
func Version(rec Record) int {
	return versionOf(rec, 0)
}

func upgrade(rec Record, kind Kind, inherited int) {
	from := versionOf(rec, inherited)

	switch kind {
	case KindPost:
		if author, ok := rec["author"].(Record); ok {
			upgrade(author, KindUser, from)
		}
		if comments, ok := rec["comments"].([]any); ok {
			for _, item := range comments {
				if comment, ok := item.(Record); ok {
					upgrade(comment, KindComment, from)
				}
			}
		}
	case KindComment:
		if author, ok := rec["author"].(Record); ok {
			upgrade(author, KindUser, from)
		}
	}

	for _, s := range steps {
		if s.to > from {
			s.apply(rec, kind)
		}
	}
}

func versionOf(rec Record, fallback int) int {
	switch v := rec[VersionField].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func canonicalRoles(rec Record, kind Kind) {
	if kind != KindUser {
		return
	}
	if role, ok := rec["role"].(string); ok {
		rec["role"] = types.CanonicalRole(role)
	}
}

func backfillCollections(rec Record, kind Kind) {
	switch kind {
	case KindPost:
		for _, field := range []string{"likes", "comments", "tags"} {
			if _, ok := rec[field].([]any); !ok {
				rec[field] = []any{}
			}
		}
		if images, ok := rec["images"].([]any); ok && len(images) > types.MaxPostImages {
			rec["images"] = images[:types.MaxPostImages]
		}
		if _, ok := rec["isFlagged"]; !ok {
			rec["isFlagged"] = nil
		}
	case KindComment:
		if _, ok := rec["likes"].([]any); !ok {
			rec["likes"] = []any{}
		}
	}
}

func cloneRecord(rec Record) Record {
	if rec == nil {
		return nil
	}
	out := make(Record, len(rec))
	for key, value := range rec {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case Record:
		return cloneRecord(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
