package validation

import (
	"time"

	"github.com/relabs-tech/kurbisio-cms/core/entity"
)

// ApplyStatus converts the write-only status attribute into published_at.
// "draft" always clears published_at. Otherwise a non-empty published_at wins;
// an empty one counts as absent when a status is given. "published" keeps current
// if set, otherwise stamps now. The status key is removed in all cases.
// Returns true if the record becomes published with this write.
func ApplyStatus(attrs map[string]any, current *time.Time, now time.Time) bool {
	status, _ := attrs["status"].(string)
	delete(attrs, "status")

	if status == StatusDraft {
		attrs["published_at"] = nil
		return false
	}

	if v, ok := attrs["published_at"]; ok {
		if t, explicit := publishedAt(v); explicit {
			attrs["published_at"] = t
			return current == nil && !t.After(now)
		}
		if status == "" {
			attrs["published_at"] = nil
			return false
		}
		delete(attrs, "published_at")
	}

	if status == StatusPublished {
		if current != nil {
			return false
		}
		attrs["published_at"] = now
		return true
	}
	return false
}

// publishedAt returns the timestamp of a published_at value and whether it carries one
func publishedAt(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		return entity.ParseDatetime(t)
	}
	return time.Time{}, false
}
