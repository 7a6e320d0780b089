package bpe

import (
	"github.com/emirpasic/gods/v2/maps/linkedhashmap"
)

// Pair is an ordered pair of symbols. Seeded single characters set only
// Left; registered merges always carry both sides, so the two kinds of key
// never collide.
type Pair struct {
	Left  string
	Right string
}

// String returns the flattened form used by the symbol index.
func (p Pair) String() string {
	return p.Left + p.Right
}

// Vocabulary counts symbol pairs in first-registration order. Seed entries
// record the characters of the training words; merge entries record every
// pair ApplyMerge has chosen. Segmentation treats presence of a pair here
// as eligibility and its count as priority.
type Vocabulary struct {
	pairs *linkedhashmap.Map[Pair, int]
}

func NewVocabulary() *Vocabulary {
	return &Vocabulary{
		pairs: linkedhashmap.New[Pair, int](),
	}
}

// SeedFrom registers each distinct character across words as a
// single-symbol key, one increment per call no matter how often the
// character repeats. First appearance fixes iteration order.
func (v *Vocabulary) SeedFrom(words []string) {
	seen := make(map[string]bool)
	for _, word := range words {
		for _, r := range word {
			ch := string(r)
			if seen[ch] {
				continue
			}
			seen[ch] = true

			p := Pair{Left: ch}
			n, _ := v.pairs.Get(p)
			v.pairs.Put(p, n+1)
		}
	}
}

// RegisterMerge increments pair's count, appending it to iteration order
// when new.
func (v *Vocabulary) RegisterMerge(pair Pair) {
	n, _ := v.pairs.Get(pair)
	v.pairs.Put(pair, n+1)
}

// Count returns a pair's priority and whether it is registered at all.
func (v *Vocabulary) Count(pair Pair) (int, bool) {
	return v.pairs.Get(pair)
}

func (v *Vocabulary) Len() int {
	return v.pairs.Size()
}

// Pairs returns the keys as a fresh slice in registration order.
func (v *Vocabulary) Pairs() []Pair {
	return v.pairs.Keys()
}
