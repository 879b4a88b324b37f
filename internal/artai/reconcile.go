package artai

import (
	"fmt"
	"strconv"
	"strings"
)

// The server replaces an image's category set as a whole, so add/remove
// intents are turned into the full resulting set before anything is sent.

// NormalizeCategorySet returns ids without duplicates, keeping the first
// occurrence of each. The result is never nil.
func NormalizeCategorySet(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// AddCategory returns current ∪ {id}. Adding an assigned id returns the same set.
func AddCategory(current []int64, id int64) []int64 {
	return NormalizeCategorySet(append(append([]int64(nil), current...), id))
}

// RemoveCategory returns current \ {id}.
func RemoveCategory(current []int64, id int64) []int64 {
	out := make([]int64, 0, len(current))
	for _, c := range NormalizeCategorySet(current) {
		if c != id {
			out = append(out, c)
		}
	}
	return out
}

// SameCategorySet reports whether a and b hold the same ids, ignoring order
// and duplicates.
func SameCategorySet(a, b []int64) bool {
	na, nb := NormalizeCategorySet(a), NormalizeCategorySet(b)
	if len(na) != len(nb) {
		return false
	}
	in := make(map[int64]struct{}, len(na))
	for _, id := range na {
		in[id] = struct{}{}
	}
	for _, id := range nb {
		if _, ok := in[id]; !ok {
			return false
		}
	}
	return true
}

// ParseCategoryCSV parses a comma-separated category id list into a
// normalized set. Blank entries are skipped.
func ParseCategoryCSV(csv string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id < 1 {
			return nil, fmt.Errorf("invalid category id %q", part)
		}
		ids = append(ids, id)
	}
	return NormalizeCategorySet(ids), nil
}
