package bpe

import (
	"cmp"
	"strings"

	"github.com/emirpasic/gods/v2/trees/binaryheap"
)

// node is one slot of the working symbol sequence, linked by index so
// merges splice in constant time. A consumed slot holds the empty string.
type node struct {
	prev, next int
	symbol     string
}

// candidate proposes merging the adjacent nodes at positions a and b. It
// records the vocabulary count at push time and the joined text, so merges
// applied after the push are detected as staleness on pop.
type candidate struct {
	a, b  int
	count int
	value string
}

// Segment greedily merges token's characters using the learned vocabulary
// and returns the space-delimited symbol sequence, marker last. Each step
// merges exactly one occurrence of the registered pair with the highest
// count, leftmost on ties. Characters never seen in training stay
// unmerged.
func (t *Tokenizer) Segment(token string) string {
	return strings.Join(t.segment(token), " ")
}

func (t *Tokenizer) segment(token string) []string {
	nodes := make([]node, 0, len(token)+1)
	for _, r := range token {
		nodes = append(nodes, node{symbol: string(r)})
	}
	nodes = append(nodes, node{symbol: t.marker})
	for i := range nodes {
		nodes[i].prev, nodes[i].next = i-1, i+1
	}

	pairwise := func(a, b int) *candidate {
		if a < 0 || b >= len(nodes) {
			return nil
		}

		left, right := nodes[a].symbol, nodes[b].symbol
		n, ok := t.vocab.Count(Pair{Left: left, Right: right})
		if !ok {
			return nil
		}

		return &candidate{a: a, b: b, count: n, value: left + right}
	}

	pairs := binaryheap.NewWith(func(i, j *candidate) int {
		if i.count != j.count {
			return cmp.Compare(j.count, i.count)
		}
		return cmp.Compare(i.a, j.a)
	})

	for i := 0; i < len(nodes)-1; i++ {
		if c := pairwise(i, i+1); c != nil {
			pairs.Push(c)
		}
	}

	for !pairs.Empty() {
		c, _ := pairs.Pop()

		left, right := nodes[c.a], nodes[c.b]
		// stale if either side was consumed or regrown since the push
		if left.symbol == "" || right.symbol == "" || left.symbol+right.symbol != c.value {
			continue
		}

		nodes[c.a].symbol = c.value
		nodes[c.b].symbol = ""

		nodes[c.a].next = right.next
		if right.next < len(nodes) {
			nodes[right.next].prev = c.a
		}

		if c := pairwise(nodes[c.a].prev, c.a); c != nil {
			pairs.Push(c)
		}
		if c := pairwise(c.a, nodes[c.a].next); c != nil {
			pairs.Push(c)
		}
	}

	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n.symbol != "" {
			out = append(out, n.symbol)
		}
	}

	return out
}
