package server

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/jmorganca/subtok/api"
	"github.com/jmorganca/subtok/bpe"
	"github.com/jmorganca/subtok/envconfig"
)

// readCorpusFile reads a whitespace-delimited word file from the server
// filesystem.
func readCorpusFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		words = append(words, scanner.Text())
	}

	return words, scanner.Err()
}

// trainCheckpoint runs one training job end to end: gather the corpus,
// merge until done, save the checkpoint at path and cache the tokenizer
// under name. Progress flows through fn, ending with a "success" update.
func trainCheckpoint(ctx context.Context, name, path string, req *api.TrainRequest, opts api.TrainOptions, fn func(api.TrainProgress)) error {
	job := uuid.New().String()

	words := req.Words
	if req.CorpusFile != "" {
		fn(api.TrainProgress{Status: "reading corpus", Job: job})

		fromFile, err := readCorpusFile(req.CorpusFile)
		if err != nil {
			return err
		}

		words = append(words, fromFile...)
	}

	trainOpts := bpe.TrainOptions{
		TargetVocabSize: opts.VocabSize,
		MinCount:        opts.MinCount,
		Parallel:        opts.Parallel,
	}
	if trainOpts.Parallel <= 0 {
		trainOpts.Parallel = envconfig.NumParallel
	}
	if envconfig.NoPrune {
		trainOpts.MinCount = 1
	}

	slog.Info("training checkpoint", "name", name, "job", job, "words", len(words), "target", opts.VocabSize)

	t := bpe.New()

	fn(api.TrainProgress{Status: "merging pairs", Job: job, Total: opts.VocabSize})

	err := t.Train(ctx, words, trainOpts, func(u bpe.TrainUpdate) {
		fn(api.TrainProgress{
			Status:    "merging pairs",
			Job:       job,
			Pair:      u.Pair.String(),
			Merges:    u.Merges,
			Total:     opts.VocabSize,
			VocabSize: u.VocabSize,
		})
	})
	if err != nil {
		return err
	}

	fn(api.TrainProgress{Status: "writing checkpoint", Job: job})

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	if err := t.Save(path); err != nil {
		return err
	}

	loaded.Store(name, t)

	slog.Info("trained checkpoint", "name", name, "job", job, "vocab", t.Index().Len())

	fn(api.TrainProgress{
		Status:    "success",
		Job:       job,
		VocabSize: t.Index().Len(),
	})

	return nil
}
