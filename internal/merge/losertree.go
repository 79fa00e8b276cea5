package merge

import "github.com/hupe1980/termsort/term"

// loserTree selects the smallest head among k sources. Leaves are the
// implicit nodes k..2k-1; node[1..k-1] hold the loser of each match and
// node[0] the overall winner. A nil head is an exhausted source and loses
// every match. Ties go to the lower source index.
type loserTree struct {
	cmp   term.Comparator
	heads []term.Term
	node  []int
}

func newLoserTree(cmp term.Comparator, heads []term.Term) *loserTree {
	lt := &loserTree{cmp: cmp, heads: heads, node: make([]int, max(len(heads), 1))}
	if len(heads) > 0 {
		lt.node[0] = lt.build(1)
	}

	return lt
}

func (lt *loserTree) build(n int) int {
	k := len(lt.heads)
	if n >= k {
		return n - k
	}
	a, b := lt.build(2*n), lt.build(2*n+1)
	if lt.beats(a, b) {
		lt.node[n] = b
		return a
	}
	lt.node[n] = a

	return b
}

// beats reports whether source a wins against source b.
func (lt *loserTree) beats(a, b int) bool {
	ha, hb := lt.heads[a], lt.heads[b]
	switch {
	case ha == nil && hb == nil:
		return a < b
	case ha == nil:
		return false
	case hb == nil:
		return true
	}
	if c := lt.cmp.Compare(ha, hb); c != 0 {
		return c < 0
	}

	return a < b
}

func (lt *loserTree) winner() int { return lt.node[0] }

// fix replays the path from leaf i after its head changed.
func (lt *loserTree) fix(i int) {
	k := len(lt.heads)
	w := i
	for n := (i + k) / 2; n >= 1; n /= 2 {
		if lt.beats(lt.node[n], w) {
			lt.node[n], w = w, lt.node[n]
		}
	}
	lt.node[0] = w
}
