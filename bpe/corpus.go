package bpe

import (
	"strings"

	"github.com/emirpasic/gods/v2/maps/linkedhashmap"
)

// Corpus counts word representations: the characters of each ingested word
// joined by single spaces with the end-of-word marker last. Entries keep
// insertion order, which FindBestPair relies on for stable tie-breaks.
type Corpus struct {
	marker  string
	entries *linkedhashmap.Map[string, int]
}

func NewCorpus(marker string) *Corpus {
	return &Corpus{
		marker:  marker,
		entries: linkedhashmap.New[string, int](),
	}
}

// Represent returns the corpus key for word: its characters space-joined,
// marker appended.
func (c *Corpus) Represent(word string) string {
	var sb strings.Builder
	for _, r := range word {
		sb.WriteRune(r)
		sb.WriteByte(' ')
	}
	sb.WriteString(c.marker)
	return sb.String()
}

// Ingest adds one count per word occurrence. Empty words are skipped.
// Repeated calls accumulate into existing entries.
func (c *Corpus) Ingest(words []string) {
	for _, word := range words {
		if word == "" {
			continue
		}

		repr := c.Represent(word)
		n, _ := c.entries.Get(repr)
		c.entries.Put(repr, n+1)
	}
}

// Prune removes every entry seen fewer than min times. Counts are only
// ever removed, never altered.
func (c *Corpus) Prune(min int) {
	for _, repr := range c.Keys() {
		if n, ok := c.entries.Get(repr); ok && n < min {
			c.entries.Remove(repr)
		}
	}
}

// Count returns the occurrence count for a representation key.
func (c *Corpus) Count(repr string) (int, bool) {
	return c.entries.Get(repr)
}

func (c *Corpus) Len() int {
	return c.entries.Size()
}

// Keys returns the representation keys as a fresh slice in insertion
// order, safe to range over while mutating the corpus.
func (c *Corpus) Keys() []string {
	return c.entries.Keys()
}

// merge rewrites every entry containing the pair adjacently, replacing
// each occurrence with the concatenated symbol. Entries keep their
// iteration position; should a rewrite collide with an existing key, the
// earlier position wins and the later count overwrites.
func (c *Corpus) merge(pair Pair) {
	rebuilt := linkedhashmap.New[string, int]()
	it := c.entries.Iterator()
	for it.Next() {
		repr := it.Key()
		if syms, changed := mergeAdjacent(strings.Split(repr, " "), pair); changed {
			repr = strings.Join(syms, " ")
		}
		rebuilt.Put(repr, it.Value())
	}
	c.entries = rebuilt
}
