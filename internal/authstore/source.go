package authstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Source is the env-pinned part of the allowlist: unset, a single ID, or a
// set of IDs.
type Source struct {
	ids []int64
}

// ParseSource reads an ALLOWED_USERS value: empty, "123", or "1,2,3".
func ParseSource(s string) (Source, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Source{}, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return Source{}, fmt.Errorf("allowed users entry %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return Source{ids: ids}, nil
}

// Contains reports whether the source pins userID.
func (s Source) Contains(userID int64) bool {
	for _, id := range s.ids {
		if id == userID {
			return true
		}
	}
	return false
}

// IDs returns the pinned IDs.
func (s Source) IDs() []int64 {
	return append([]int64(nil), s.ids...)
}
