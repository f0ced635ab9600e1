package schema

import (
	"math"
	"strings"
	"time"
)

var timestampFields = map[Kind][]string{
	KindUser:    {"createdAt"},
	KindPost:    {"createdAt", "updatedAt", "moderationCheckedAt"},
	KindComment: {"createdAt"},
}

// Layouts accepted for legacy textual timestamps, tried in order.
var legacyLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	time.RFC1123Z,
	time.RFC1123,
}

func normalizeTimestamps(rec Record, kind Kind) {
	for _, field := range timestampFields[kind] {
		value, ok := rec[field]
		if !ok || value == nil {
			continue
		}
		normalized, ok := normalizeTimestamp(value)
		if !ok {
			delete(rec, field)
			continue
		}
		rec[field] = normalized
	}
}

// normalizeTimestamp returns value as RFC 3339 text. RFC 3339 input is
// returned unchanged.
func normalizeTimestamp(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		text := strings.TrimSpace(v)
		if _, err := time.Parse(time.RFC3339Nano, text); err == nil {
			return text, true
		}
		// Date.prototype.toString appends the zone name in parentheses.
		if i := strings.Index(text, " ("); i > 0 {
			text = text[:i]
		}
		for _, layout := range legacyLayouts {
			if t, err := time.Parse(layout, text); err == nil {
				return t.UTC().Format(time.RFC3339Nano), true
			}
		}
		return "", false
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", false
		}
		return time.UnixMilli(int64(v)).UTC().Format(time.RFC3339Nano), true
	case int64:
		return time.UnixMilli(v).UTC().Format(time.RFC3339Nano), true
	case int:
		return time.UnixMilli(int64(v)).UTC().Format(time.RFC3339Nano), true
	default:
		return "", false
	}
}
