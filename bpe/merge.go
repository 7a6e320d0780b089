package bpe

import (
	"strings"

	"github.com/emirpasic/gods/v2/maps/linkedhashmap"
	"golang.org/x/sync/errgroup"
)

// Sharded scans only pay off once there are enough entries to split.
const parallelScanFloor = 64

// FindBestPair scans every corpus entry and returns the adjacent symbol
// pair present in the most entries. Each distinct entry contributes one
// occurrence per adjacent position regardless of its count. Ties resolve
// to the pair seen first in corpus iteration order. ok is false when no
// entry holds two or more symbols.
func (t *Tokenizer) FindBestPair() (Pair, bool) {
	return t.findBestPair(1)
}

func (t *Tokenizer) findBestPair(parallel int) (Pair, bool) {
	keys := t.corpus.Keys()
	if parallel > 1 && len(keys) >= parallelScanFloor {
		return bestPairSharded(keys, parallel)
	}

	return bestPairSequential(keys)
}

func bestPairSequential(keys []string) (Pair, bool) {
	counts := linkedhashmap.New[Pair, int]()
	for _, repr := range keys {
		syms := strings.Split(repr, " ")
		for i := 1; i < len(syms); i++ {
			p := Pair{Left: syms[i-1], Right: syms[i]}
			n, _ := counts.Get(p)
			counts.Put(p, n+1)
		}
	}

	var best Pair
	var bestCount int
	it := counts.Iterator()
	for it.Next() {
		if it.Value() > bestCount {
			best, bestCount = it.Key(), it.Value()
		}
	}

	return best, bestCount > 0
}

// pairStat carries a shard-local tally. first encodes the earliest sighting
// as entry index in the high bits and pair position in the low bits, so
// merged shards reproduce the sequential first-seen order exactly.
type pairStat struct {
	count int
	first int64
}

func bestPairSharded(keys []string, parallel int) (Pair, bool) {
	shards := min(parallel, len(keys))
	results := make([]map[Pair]pairStat, shards)

	var g errgroup.Group
	for s := range shards {
		g.Go(func() error {
			stats := make(map[Pair]pairStat)
			for k := s; k < len(keys); k += shards {
				syms := strings.Split(keys[k], " ")
				for i := 1; i < len(syms); i++ {
					p := Pair{Left: syms[i-1], Right: syms[i]}
					at := int64(k)<<32 | int64(i-1)

					st, ok := stats[p]
					if !ok || at < st.first {
						st.first = at
					}
					st.count++
					stats[p] = st
				}
			}
			results[s] = stats
			return nil
		})
	}
	g.Wait()

	merged := make(map[Pair]pairStat)
	for _, stats := range results {
		for p, st := range stats {
			m, ok := merged[p]
			if !ok || st.first < m.first {
				m.first = st.first
			}
			m.count += st.count
			merged[p] = m
		}
	}

	var best Pair
	var bestStat pairStat
	var found bool
	for p, st := range merged {
		if !found || st.count > bestStat.count || (st.count == bestStat.count && st.first < bestStat.first) {
			best, bestStat, found = p, st, true
		}
	}

	return best, found
}

// ApplyMerge finds the current best pair, registers it in the vocabulary,
// and rewrites every corpus entry containing it, replacing each adjacent
// occurrence with the concatenated symbol. Returns false when no pair is
// available, the training termination signal.
func (t *Tokenizer) ApplyMerge() bool {
	_, ok := t.applyMerge(1)
	return ok
}

func (t *Tokenizer) applyMerge(parallel int) (Pair, bool) {
	pair, ok := t.findBestPair(parallel)
	if !ok {
		return Pair{}, false
	}

	t.vocab.RegisterMerge(pair)
	t.corpus.merge(pair)
	return pair, true
}

// mergeAdjacent replaces every adjacent (left, right) occurrence in syms
// with the concatenated symbol, scanning left to right without
// overlapping. It operates on whole symbols only: a pair whose joined text
// happens to appear inside a longer symbol is never touched.
func mergeAdjacent(syms []string, pair Pair) ([]string, bool) {
	var found bool
	for i := 0; i < len(syms)-1; i++ {
		if syms[i] == pair.Left && syms[i+1] == pair.Right {
			found = true
			break
		}
	}
	if !found {
		return syms, false
	}

	out := make([]string, 0, len(syms))
	for i := 0; i < len(syms); {
		if i+1 < len(syms) && syms[i] == pair.Left && syms[i+1] == pair.Right {
			out = append(out, pair.Left+pair.Right)
			i += 2
		} else {
			out = append(out, syms[i])
			i++
		}
	}

	return out, true
}
