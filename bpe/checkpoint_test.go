package bpe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func TestCheckpointRoundTrip(t *testing.T) {
	tok := trained(t)
	path := filepath.Join(t.TempDir(), "tokenizer.bin")

	assert.NilError(t, tok.Save(path))

	loaded := New()
	assert.NilError(t, loaded.Load(path))

	assert.Equal(t, loaded.Marker(), tok.Marker())
	assert.DeepEqual(t, loaded.Corpus().Keys(), tok.Corpus().Keys())
	assert.DeepEqual(t, loaded.Vocabulary().Pairs(), tok.Vocabulary().Pairs())
	assert.DeepEqual(t, loaded.Index().Symbols(), tok.Index().Symbols())

	for _, repr := range tok.Corpus().Keys() {
		want, _ := tok.Corpus().Count(repr)
		got, _ := loaded.Corpus().Count(repr)
		assert.Equal(t, got, want, "count for %q", repr)
	}
	for _, pair := range tok.Vocabulary().Pairs() {
		want, _ := tok.Vocabulary().Count(pair)
		got, _ := loaded.Vocabulary().Count(pair)
		assert.Equal(t, got, want, "count for %v", pair)
	}
}

func TestCheckpointRoundTripUnindexed(t *testing.T) {
	tok := New()
	tok.Corpus().Ingest([]string{"low"})
	tok.Vocabulary().SeedFrom([]string{"low"})

	path := filepath.Join(t.TempDir(), "tokenizer.bin")
	assert.NilError(t, tok.Save(path))

	loaded := New()
	assert.NilError(t, loaded.Load(path))
	assert.Assert(t, loaded.Index() == nil)
	assert.DeepEqual(t, loaded.Corpus().Keys(), tok.Corpus().Keys())
}

func TestCheckpointLoadReplaces(t *testing.T) {
	tok := trained(t)
	path := filepath.Join(t.TempDir(), "tokenizer.bin")
	assert.NilError(t, tok.Save(path))

	other := New()
	other.Corpus().Ingest([]string{"unrelated", "words"})
	other.Vocabulary().SeedFrom([]string{"unrelated", "words"})
	other.BuildIndex()

	assert.NilError(t, other.Load(path))

	// loading replaces state outright, never merges
	assert.DeepEqual(t, other.Corpus().Keys(), tok.Corpus().Keys())
	assert.DeepEqual(t, other.Vocabulary().Pairs(), tok.Vocabulary().Pairs())
	assert.DeepEqual(t, other.Index().Symbols(), tok.Index().Symbols())
}

func TestCheckpointCorrupt(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.bin")
	assert.NilError(t, trained(t).Save(valid))
	body, err := os.ReadFile(valid)
	assert.NilError(t, err)

	cases := map[string][]byte{
		"empty":           {},
		"short header":    body[:3],
		"bad magic":       append([]byte("NOPE"), body[4:]...),
		"no body":         body[:8],
		"garbled body":    append(append([]byte{}, body[:8]...), 0xff, 0x01, 0x02),
		"truncated body":  body[:len(body)-5],
		"version unknown": append(append([]byte{}, body[:4]...), append([]byte{0xff, 0xff, 0xff, 0xff}, body[8:]...)...),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "corrupt.bin")
			assert.NilError(t, os.WriteFile(path, data, 0o644))

			tok := trained(t)
			before := tok.Corpus().Keys()

			err := tok.Load(path)
			assert.Assert(t, errors.Is(err, ErrCorruptCheckpoint), "err = %v", err)

			// failed loads leave the receiver untouched
			assert.DeepEqual(t, tok.Corpus().Keys(), before)
			assert.Assert(t, tok.Index() != nil)
		})
	}
}

func TestCheckpointMissingFile(t *testing.T) {
	tok := New()
	err := tok.Load(filepath.Join(t.TempDir(), "absent.bin"))
	assert.Assert(t, err != nil)
	assert.Assert(t, !errors.Is(err, ErrCorruptCheckpoint), "missing file is not corruption: %v", err)
}

func TestCheckpointSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokenizer.bin")

	first := trained(t)
	assert.NilError(t, first.Save(path))

	second := New()
	second.Corpus().Ingest([]string{"go"})
	second.Vocabulary().SeedFrom([]string{"go"})
	second.BuildIndex()
	assert.NilError(t, second.Save(path))

	loaded := New()
	assert.NilError(t, loaded.Load(path))
	assert.DeepEqual(t, loaded.Corpus().Keys(), second.Corpus().Keys())
}

func TestCheckpointAfterLoadEncodes(t *testing.T) {
	tok := trained(t)
	path := filepath.Join(t.TempDir(), "tokenizer.bin")
	assert.NilError(t, tok.Save(path))

	loaded := New()
	assert.NilError(t, loaded.Load(path))

	want, err := tok.Tokenize(context.Background(), []string{"newest low"}, EncodeOptions{Window: 10})
	assert.NilError(t, err)
	got, err := loaded.Tokenize(context.Background(), []string{"newest low"}, EncodeOptions{Window: 10})
	assert.NilError(t, err)
	assert.DeepEqual(t, got, want)
}
