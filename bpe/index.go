package bpe

import (
	"slices"
)

// Index maps vocabulary symbols to dense integer ids and back. Ids follow
// vocabulary iteration order with the four reserved markers last, so the
// pad id is always the highest. An Index never mutates once built.
type Index struct {
	ids     map[string]int
	symbols []string
}

// BuildIndex rebuilds the symbol index from the current vocabulary:
// flattened pair keys in registration order, then the end-of-word,
// end-of-line, unknown and pad markers at the four highest ids. A
// flattened form that repeats, or collides with a reserved marker, keeps
// its first id, so the mapping stays bijective. Call again after the
// vocabulary grows; ids are not stable across training.
func (t *Tokenizer) BuildIndex() *Index {
	reserved := t.reserved()

	x := &Index{
		ids: make(map[string]int, t.vocab.Len()+len(reserved)),
	}
	for _, pair := range t.vocab.Pairs() {
		if s := pair.String(); !slices.Contains(reserved, s) {
			x.add(s)
		}
	}
	for _, marker := range reserved {
		x.add(marker)
	}

	t.index = x
	return x
}

func (x *Index) add(symbol string) {
	if _, ok := x.ids[symbol]; ok {
		return
	}
	x.ids[symbol] = len(x.symbols)
	x.symbols = append(x.symbols, symbol)
}

// ID returns the id for a flattened symbol.
func (x *Index) ID(symbol string) (int, bool) {
	id, ok := x.ids[symbol]
	return id, ok
}

// Symbol returns the flattened symbol for an id.
func (x *Index) Symbol(id int) (string, bool) {
	if id < 0 || id >= len(x.symbols) {
		return "", false
	}
	return x.symbols[id], true
}

func (x *Index) Len() int {
	return len(x.symbols)
}

// Symbols returns every indexed symbol in id order as a fresh slice.
func (x *Index) Symbols() []string {
	return slices.Clone(x.symbols)
}

func (x *Index) EndOfWordID() int { return len(x.symbols) - 4 }
func (x *Index) EndOfLineID() int { return len(x.symbols) - 3 }
func (x *Index) UnknownID() int   { return len(x.symbols) - 2 }
func (x *Index) PadID() int       { return len(x.symbols) - 1 }
