// Package bpe implements byte-pair-encoding subword vocabularies: training
// over a word corpus, greedy segmentation of new text, and fixed-width
// integer-id encoding for numeric consumers.
package bpe

import (
	"context"
	"errors"
)

// Reserved marker symbols. Every index places them at its four highest ids,
// in this order. EndOfWord is the default word marker; a loaded checkpoint
// may carry a different one.
const (
	EndOfWord = "</w>"
	EndOfLine = "</eol>"
	Unknown   = "<unk>"
	Pad       = "<pad>"
)

// ErrNoIndex marks encode and decode calls made before BuildIndex or Load.
var ErrNoIndex = errors.New("no symbol index: train a vocabulary or load a checkpoint")

// Tokenizer ties the training corpus, the merge vocabulary and the symbol
// index together. The corpus and vocabulary mutate only while training;
// segmentation and encoding read the vocabulary and index alone.
type Tokenizer struct {
	marker string
	corpus *Corpus
	vocab  *Vocabulary
	index  *Index
}

func New() *Tokenizer {
	return &Tokenizer{
		marker: EndOfWord,
		corpus: NewCorpus(EndOfWord),
		vocab:  NewVocabulary(),
	}
}

// Marker returns the end-of-word marker appended to every word
// representation.
func (t *Tokenizer) Marker() string { return t.marker }

func (t *Tokenizer) Corpus() *Corpus { return t.corpus }

func (t *Tokenizer) Vocabulary() *Vocabulary { return t.vocab }

// Index returns the symbol index, or nil before BuildIndex or Load.
func (t *Tokenizer) Index() *Index { return t.index }

// reserved lists the marker symbols appended to the index after the
// vocabulary, in their fixed order.
func (t *Tokenizer) reserved() []string {
	return []string{t.marker, EndOfLine, Unknown, Pad}
}

// TrainOptions shape one Train call.
type TrainOptions struct {
	// TargetVocabSize stops merging once the indexed vocabulary (pair
	// keys plus the four reserved markers) would reach this size. Zero
	// merges until no mergeable pair remains.
	TargetVocabSize int

	// MinCount prunes corpus entries seen fewer times before any merging.
	// Values of one or less keep everything.
	MinCount int

	// Parallel is the worker count for the corpus pair scan. One or less
	// scans sequentially. Sharded scans produce the same pair as the
	// sequential scan, including tie-breaks.
	Parallel int
}

// TrainUpdate reports one completed merge step.
type TrainUpdate struct {
	Merges     int  // merges applied so far in this call
	Pair       Pair // pair merged by this step
	VocabSize  int  // vocabulary size including reserved markers
	CorpusSize int  // distinct corpus entries remaining
}

// Train ingests words, seeds the character vocabulary, prunes rare entries,
// then applies merges until no pair remains or the target vocabulary size
// is reached, reporting each step through fn. The symbol index is rebuilt
// once at the end, so previously issued ids are invalidated.
func (t *Tokenizer) Train(ctx context.Context, words []string, opts TrainOptions, fn func(TrainUpdate)) error {
	t.corpus.Ingest(words)
	t.vocab.SeedFrom(words)

	if opts.MinCount > 1 {
		t.corpus.Prune(opts.MinCount)
	}

	var merges int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if opts.TargetVocabSize > 0 && t.vocab.Len()+len(t.reserved()) >= opts.TargetVocabSize {
			break
		}

		pair, ok := t.applyMerge(opts.Parallel)
		if !ok {
			break
		}

		merges++
		if fn != nil {
			fn(TrainUpdate{
				Merges:     merges,
				Pair:       pair,
				VocabSize:  t.vocab.Len() + len(t.reserved()),
				CorpusSize: t.corpus.Len(),
			})
		}
	}

	t.BuildIndex()
	return nil
}
