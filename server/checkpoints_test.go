package server

import (
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorganca/subtok/envconfig"
)

func TestCheckpointPath(t *testing.T) {
	setTestHome(t)

	valid := []string{
		"base",
		"news.en-v2",
		"wiki_103",
		"8k-vocab",
		"a",
	}

	for _, name := range valid {
		t.Run(name, func(t *testing.T) {
			path, err := CheckpointPath(name)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(envconfig.CheckpointsDir(), name), path)
		})
	}

	invalid := []string{
		"",
		".",
		"..",
		"../escape",
		"nested/name",
		`windows\name`,
		".hidden",
		"-flagged",
		"dotted..middle",
		"spaced name",
	}

	for _, name := range invalid {
		t.Run("invalid "+name, func(t *testing.T) {
			_, err := CheckpointPath(name)
			assert.ErrorIs(t, err, ErrInvalidName)
		})
	}
}

func TestLoadTokenizerCaches(t *testing.T) {
	gin.SetMode(gin.TestMode)
	setTestHome(t)

	var s Server
	createTestCheckpoint(t, &s, "cached")

	// training caches the freshly built tokenizer
	first, ok := loaded.Load("cached")
	require.True(t, ok)

	got, err := loadTokenizer("cached")
	require.NoError(t, err)
	assert.Same(t, first, got)

	// a cold cache falls back to the checkpoint on disk
	loaded.Delete("cached")

	got, err = loadTokenizer("cached")
	require.NoError(t, err)
	assert.NotSame(t, first, got)
	assert.Equal(t, first.Index().Symbols(), got.Index().Symbols())

	_, ok = loaded.Load("cached")
	assert.True(t, ok)
}
