//go:build !wireinject
// +build !wireinject

package di

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcore/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "engine.db")
	cfg.Storage.VectorDataDir = filepath.Join(dir, "vectors")
	cfg.Storage.KeywordDataDir = filepath.Join(dir, "keyword")
	cfg.Storage.KeywordBackend = "bleve"
	cfg.Storage.GraphIndexURL = ""
	return cfg
}

func TestInitializeContainer(t *testing.T) {
	cfg := testConfig(t)

	container, err := InitializeContainer(cfg)
	require.NoError(t, err)
	require.NotNil(t, container)
	defer container.Shutdown(context.Background())

	assert.NotNil(t, container.Logger)
	assert.NotNil(t, container.Collector)
	assert.NotNil(t, container.DB)
	assert.NotNil(t, container.Vector)
	assert.NotNil(t, container.Keyword)
	assert.NotNil(t, container.Graph)
	assert.NotNil(t, container.Memories)
	assert.NotNil(t, container.Query)
	assert.NotNil(t, container.Indexer)
	assert.NotNil(t, container.Harness)
	assert.NotNil(t, container.Janitor)
	assert.NotNil(t, container.Handler)

	// Chat and embeddings ride the same provider client.
	assert.Same(t, container.Client, container.Embedder)
}

func TestInitializeContainerRejectsUnknownKeywordBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.KeywordBackend = "lucene"

	container, err := InitializeContainer(cfg)

	require.Error(t, err)
	assert.Nil(t, container)
}

func TestContainerShutdownIsSafeWithoutStart(t *testing.T) {
	cfg := testConfig(t)

	container, err := InitializeContainer(cfg)
	require.NoError(t, err)

	// The janitor was never started; Shutdown must not hang on it.
	container.Shutdown(context.Background())
}
