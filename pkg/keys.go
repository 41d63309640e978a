package analyzer

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
