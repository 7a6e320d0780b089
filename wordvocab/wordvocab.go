// Package wordvocab reads a closed, fixed-size whole-word vocabulary from
// a word-frequency seed file. It is the simpler sibling of the subword
// path: no merges are learned, unseen words collapse to the unknown
// marker, and short lines pad at the front.
package wordvocab

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

const (
	Unknown = "<unk>"
	Pad     = "<pad>"
)

// Vocabulary maps the first limit-2 words of a seed file to their rank
// ids, with the unknown and pad markers at the two highest ids.
type Vocabulary struct {
	ids   map[string]int
	words []string
}

// Load reads a line-oriented word<TAB>frequency file top to bottom until
// limit-2 words are table-resident, then appends the unknown and pad
// markers. The frequency column fixes rank by file order and is otherwise
// unused. limit must be at least 2.
func Load(path string, limit int) (*Vocabulary, error) {
	if limit < 2 {
		return nil, fmt.Errorf("vocabulary limit must be at least 2, got %d", limit)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	v := &Vocabulary{ids: make(map[string]int, limit)}

	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan(); n++ {
		if len(v.words) == limit-2 {
			break
		}

		line := scanner.Text()
		word, _, ok := strings.Cut(line, "\t")
		if !ok || word == "" {
			return nil, fmt.Errorf("%s:%d: malformed seed line %q", path, n, line)
		}

		// duplicates keep their first rank
		if _, ok := v.ids[word]; ok {
			continue
		}
		v.add(word)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	v.add(Unknown)
	v.add(Pad)
	return v, nil
}

func (v *Vocabulary) add(word string) {
	v.ids[word] = len(v.words)
	v.words = append(v.words, word)
}

// ID returns the id for word, substituting the unknown id for anything
// outside the table.
func (v *Vocabulary) ID(word string) int {
	if id, ok := v.ids[word]; ok {
		return id
	}
	return v.UnknownID()
}

// Word returns the word at an id.
func (v *Vocabulary) Word(id int) (string, bool) {
	if id < 0 || id >= len(v.words) {
		return "", false
	}
	return v.words[id], true
}

func (v *Vocabulary) Len() int {
	return len(v.words)
}

func (v *Vocabulary) UnknownID() int { return len(v.words) - 2 }
func (v *Vocabulary) PadID() int     { return len(v.words) - 1 }

// Encode maps a line's whitespace-delimited words to exactly window ids.
// Short lines pad at the front with the pad id; long lines keep their
// last window words.
func (v *Vocabulary) Encode(line string, window int) ([]int, error) {
	if window < 1 {
		return nil, fmt.Errorf("window must be at least 1, got %d", window)
	}

	words := strings.Fields(line)
	if len(words) > window {
		words = words[len(words)-window:]
	}

	ids := make([]int, 0, window)
	for range window - len(words) {
		ids = append(ids, v.PadID())
	}
	for _, word := range words {
		ids = append(ids, v.ID(word))
	}

	return ids, nil
}

// Decode maps ids back to words. Out-of-range ids decode to the unknown
// marker.
func (v *Vocabulary) Decode(ids []int) []string {
	words := make([]string, len(ids))
	for i, id := range ids {
		w, ok := v.Word(id)
		if !ok {
			w = Unknown
		}
		words[i] = w
	}
	return words
}
