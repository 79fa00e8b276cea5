package term

// Comparator defines the canonical order of terms. Only keys are compared;
// coefficients never influence the order.
type Comparator interface {
	Compare(a, b Term) int
}

// CompareFunc adapts a function to a Comparator.
type CompareFunc func(a, b Term) int

// Compare implements Comparator.
func (f CompareFunc) Compare(a, b Term) int { return f(a, b) }

// Ascending orders keys lexicographically by cell value. A key that is a
// prefix of another sorts first.
type Ascending struct{}

// Compare implements Comparator.
func (Ascending) Compare(a, b Term) int {
	return compareCells(a.Key(), b.Key())
}

// Descending is the reverse of Ascending.
type Descending struct{}

// Compare implements Comparator.
func (Descending) Compare(a, b Term) int {
	return compareCells(b.Key(), a.Key())
}

func compareCells(ka, kb []Cell) int {
	n := min(len(ka), len(kb))
	for i := range n {
		if ka[i] != kb[i] {
			if ka[i] < kb[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ka) < len(kb):
		return -1
	case len(ka) > len(kb):
		return 1
	}

	return 0
}

// VariableOrder compares keys cell by cell using a caller supplied ranking.
// Ranked cells come first in rank order; unranked cells follow, ordered by
// value.
type VariableOrder struct {
	rank map[Cell]int
}

// NewVariableOrder ranks cells in the order given.
func NewVariableOrder(order ...Cell) *VariableOrder {
	rank := make(map[Cell]int, len(order))
	for i, c := range order {
		if _, ok := rank[c]; !ok {
			rank[c] = i
		}
	}

	return &VariableOrder{rank: rank}
}

// Compare implements Comparator.
func (v *VariableOrder) Compare(a, b Term) int {
	ka, kb := a.Key(), b.Key()
	n := min(len(ka), len(kb))
	for i := range n {
		if ka[i] == kb[i] {
			continue
		}
		ra, oka := v.rank[ka[i]]
		rb, okb := v.rank[kb[i]]
		switch {
		case oka && okb:
			if ra < rb {
				return -1
			}
			return 1
		case oka:
			return -1
		case okb:
			return 1
		case ka[i] < kb[i]:
			return -1
		default:
			return 1
		}
	}
	switch {
	case len(ka) < len(kb):
		return -1
	case len(ka) > len(kb):
		return 1
	}

	return 0
}

// EqualKeys reports whether a and b have identical keys.
func EqualKeys(a, b Term) bool {
	ka, kb := a.Key(), b.Key()
	if len(ka) != len(kb) {
		return false
	}
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}

	return true
}
