package models

import "slices"

// SameReaders compares reader sets ignoring order and duplicates.
func SameReaders(a, b []string) bool {
	x := normalize(a)
	y := normalize(b)
	return slices.Equal(x, y)
}

// WithReaders returns current extended by add. Existing order is kept, new
// identities are appended in the order given, duplicates and empty names are
// dropped.
func WithReaders(current, add []string) []string {
	out := make([]string, 0, len(current)+len(add))
	seen := make(map[string]struct{}, len(current)+len(add))
	for _, group := range [][]string{current, add} {
		for _, r := range group {
			if _, ok := seen[r]; ok || r == "" {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// WithoutReaders returns current minus remove, keeping order. Removing an
// absent identity is a no-op.
func WithoutReaders(current, remove []string) []string {
	out := make([]string, 0, len(current))
	for _, r := range WithReaders(current, nil) {
		if !slices.Contains(remove, r) {
			out = append(out, r)
		}
	}
	return out
}

func normalize(s []string) []string {
	out := WithReaders(nil, s)
	slices.Sort(out)
	return out
}
