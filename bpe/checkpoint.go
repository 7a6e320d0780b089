package bpe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// Checkpoint layout: 4-byte magic, little-endian uint32 format version,
// then one CBOR document holding every trained structure. A checkpoint is
// self-contained; nothing outside the file is needed to reload.
const (
	checkpointMagic   = "SBTK"
	checkpointVersion = uint32(1)
)

// ErrCorruptCheckpoint marks a file that fails header, decode or
// consistency checks. Load never applies a partially valid checkpoint.
var ErrCorruptCheckpoint = errors.New("corrupt checkpoint")

type corpusEntry struct {
	Repr  string `cbor:"repr"`
	Count int    `cbor:"count"`
}

type vocabEntry struct {
	Left  string `cbor:"left"`
	Right string `cbor:"right,omitempty"`
	Count int    `cbor:"count"`
}

type checkpoint struct {
	Marker     string         `cbor:"marker"`
	Corpus     []corpusEntry  `cbor:"corpus"`
	Vocab      []vocabEntry   `cbor:"vocab"`
	SymbolToID map[string]int `cbor:"symbol_to_id,omitempty"`
	IDToSymbol []string       `cbor:"id_to_symbol,omitempty"`
}

// Save writes the tokenizer to path as one atomic unit: a temporary file
// in the destination directory, renamed over path once fully written.
func (t *Tokenizer) Save(path string) error {
	snap := checkpoint{Marker: t.marker}

	for _, repr := range t.corpus.Keys() {
		n, _ := t.corpus.Count(repr)
		snap.Corpus = append(snap.Corpus, corpusEntry{Repr: repr, Count: n})
	}
	for _, pair := range t.vocab.Pairs() {
		n, _ := t.vocab.Count(pair)
		snap.Vocab = append(snap.Vocab, vocabEntry{Left: pair.Left, Right: pair.Right, Count: n})
	}
	if t.index != nil {
		snap.IDToSymbol = t.index.Symbols()
		snap.SymbolToID = make(map[string]int, len(snap.IDToSymbol))
		for id, s := range snap.IDToSymbol {
			snap.SymbolToID[s] = id
		}
	}

	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return err
	}
	body, err := em.Marshal(snap)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), "checkpoint-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if _, err := f.Write([]byte(checkpointMagic)); err != nil {
		f.Close()
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, checkpointVersion); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(f.Name(), path)
}

// Load replaces the tokenizer's state with the checkpoint at path. State
// swaps only after the whole document validates: a short, garbled or
// inconsistent file leaves the receiver untouched and returns an error
// wrapping ErrCorruptCheckpoint.
func (t *Tokenizer) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return fmt.Errorf("%w: truncated header", ErrCorruptCheckpoint)
	}
	if string(magic[:]) != checkpointMagic {
		return fmt.Errorf("%w: bad magic %q", ErrCorruptCheckpoint, magic[:])
	}

	var version uint32
	if err := binary.Read(f, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("%w: truncated header", ErrCorruptCheckpoint)
	}
	if version != checkpointVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptCheckpoint, version)
	}

	body, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	var snap checkpoint
	if err := cbor.Unmarshal(body, &snap); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptCheckpoint, err)
	}

	marker, corpus, vocab, index, err := restore(snap)
	if err != nil {
		return err
	}

	t.marker = marker
	t.corpus = corpus
	t.vocab = vocab
	t.index = index
	return nil
}

// restore rebuilds in-memory stores from a decoded checkpoint, validating
// as it goes. Nothing is applied to any tokenizer until it succeeds.
func restore(snap checkpoint) (string, *Corpus, *Vocabulary, *Index, error) {
	if snap.Marker == "" {
		return "", nil, nil, nil, fmt.Errorf("%w: empty marker", ErrCorruptCheckpoint)
	}

	corpus := NewCorpus(snap.Marker)
	for _, e := range snap.Corpus {
		if e.Repr == "" || e.Count < 1 {
			return "", nil, nil, nil, fmt.Errorf("%w: corpus entry %q count %d", ErrCorruptCheckpoint, e.Repr, e.Count)
		}
		if _, ok := corpus.Count(e.Repr); ok {
			return "", nil, nil, nil, fmt.Errorf("%w: duplicate corpus entry %q", ErrCorruptCheckpoint, e.Repr)
		}
		corpus.entries.Put(e.Repr, e.Count)
	}

	vocab := NewVocabulary()
	for _, e := range snap.Vocab {
		if e.Left == "" || e.Count < 1 {
			return "", nil, nil, nil, fmt.Errorf("%w: vocab entry %q+%q count %d", ErrCorruptCheckpoint, e.Left, e.Right, e.Count)
		}
		p := Pair{Left: e.Left, Right: e.Right}
		if _, ok := vocab.Count(p); ok {
			return "", nil, nil, nil, fmt.Errorf("%w: duplicate vocab entry %q+%q", ErrCorruptCheckpoint, e.Left, e.Right)
		}
		vocab.pairs.Put(p, e.Count)
	}

	var index *Index
	if len(snap.IDToSymbol) > 0 || len(snap.SymbolToID) > 0 {
		if len(snap.IDToSymbol) != len(snap.SymbolToID) {
			return "", nil, nil, nil, fmt.Errorf("%w: index size mismatch %d != %d", ErrCorruptCheckpoint, len(snap.IDToSymbol), len(snap.SymbolToID))
		}
		if len(snap.IDToSymbol) < 4 {
			return "", nil, nil, nil, fmt.Errorf("%w: index smaller than reserved markers", ErrCorruptCheckpoint)
		}

		index = &Index{ids: make(map[string]int, len(snap.IDToSymbol))}
		for id, s := range snap.IDToSymbol {
			if got, ok := snap.SymbolToID[s]; !ok || got != id {
				return "", nil, nil, nil, fmt.Errorf("%w: index mapping disagrees on %q", ErrCorruptCheckpoint, s)
			}
			index.add(s)
		}

		markers := []string{snap.Marker, EndOfLine, Unknown, Pad}
		for i, want := range markers {
			if got := snap.IDToSymbol[len(snap.IDToSymbol)-4+i]; got != want {
				return "", nil, nil, nil, fmt.Errorf("%w: reserved symbol %q at id %d, want %q", ErrCorruptCheckpoint, got, len(snap.IDToSymbol)-4+i, want)
			}
		}
	}

	return snap.Marker, corpus, vocab, index, nil
}
