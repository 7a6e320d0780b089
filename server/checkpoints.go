package server

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/jmorganca/subtok/api"
	"github.com/jmorganca/subtok/bpe"
	"github.com/jmorganca/subtok/envconfig"
	"github.com/jmorganca/subtok/types/syncmap"
)

// loaded caches tokenizers by checkpoint name so repeated requests skip
// the disk round trip. Training and deleting a checkpoint update it.
var loaded = syncmap.NewSyncMap[string, *bpe.Tokenizer]()

var ErrInvalidName = errors.New("invalid checkpoint name")

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// CheckpointPath resolves name inside the checkpoints directory. Names
// with path separators or parent references are rejected so a request
// can never reach outside it.
func CheckpointPath(name string) (string, error) {
	if !namePattern.MatchString(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return filepath.Join(envconfig.CheckpointsDir(), name), nil
}

// loadTokenizer returns the cached tokenizer for name, reading its
// checkpoint from disk on first use.
func loadTokenizer(name string) (*bpe.Tokenizer, error) {
	if t, ok := loaded.Load(name); ok {
		return t, nil
	}

	path, err := CheckpointPath(name)
	if err != nil {
		return nil, err
	}

	t := bpe.New()
	if err := t.Load(path); err != nil {
		return nil, err
	}

	loaded.Store(name, t)
	return t, nil
}

func checkpointInfo(name string) (api.CheckpointResponse, error) {
	path, err := CheckpointPath(name)
	if err != nil {
		return api.CheckpointResponse{}, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		return api.CheckpointResponse{}, err
	}

	t, err := loadTokenizer(name)
	if err != nil {
		return api.CheckpointResponse{}, err
	}

	resp := api.CheckpointResponse{
		Name:       name,
		Size:       fi.Size(),
		ModifiedAt: fi.ModTime(),
	}

	if index := t.Index(); index != nil {
		resp.VocabSize = index.Len()
	}

	return resp, nil
}

func listCheckpoints() ([]api.CheckpointResponse, error) {
	checkpoints := make([]api.CheckpointResponse, 0)

	entries, err := os.ReadDir(envconfig.CheckpointsDir())
	if errors.Is(err, os.ErrNotExist) {
		return checkpoints, nil
	} else if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := checkpointInfo(entry.Name())
		if err != nil {
			slog.Warn("skipping checkpoint", "name", entry.Name(), "error", err)
			continue
		}

		checkpoints = append(checkpoints, info)
	}

	slices.SortFunc(checkpoints, func(a, b api.CheckpointResponse) int {
		return strings.Compare(a.Name, b.Name)
	})

	return checkpoints, nil
}

func deleteCheckpoint(name string) error {
	path, err := CheckpointPath(name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		return err
	}

	loaded.Delete(name)
	return nil
}
