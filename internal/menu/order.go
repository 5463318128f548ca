package menu

import (
	"cmp"
	"slices"
)

// CompareOrder orders ascending, except that 0 always sorts last whatever
// the sign of the other operand. Zero means "no explicit order".
func CompareOrder(a, b float64) int {
	switch {
	case a == 0 && b != 0:
		return 1
	case a != 0 && b == 0:
		return -1
	}
	return cmp.Compare(a, b)
}

type ordered interface {
	SortOrder() float64
}

func sortByOrder[T ordered](list []T) {
	slices.SortStableFunc(list, func(a, b T) int {
		return CompareOrder(a.SortOrder(), b.SortOrder())
	})
}
