package workflow

import "strings"

// DefaultCategory is assigned when a generation result carries no usable
// category tags.
const DefaultCategory = "Uncategorized"

// NormalizeCategories turns the raw category output of the synthesis backend
// into clean tag names: each entry is split on commas, trimmed, empties are
// dropped, and duplicates are removed preserving first occurrence. An empty
// result defaults to a single "Uncategorized" entry.
//
// The function is pure and never fails.
func NormalizeCategories(raw []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			name := strings.TrimSpace(part)
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return []string{DefaultCategory}
	}
	return out
}
