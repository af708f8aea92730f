package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.3, cfg.Retrieval.MinVectorScore)
	assert.Equal(t, 60, cfg.Retrieval.RRFK)
	assert.Equal(t, 100, cfg.Retrieval.DedupPrefixChars)
	assert.Equal(t, 10, cfg.Agent.MaxSteps)
	assert.Equal(t, 3, cfg.Agent.MaxRetries)
	assert.Equal(t, 3, cfg.Context.VerbatimTurns)
	assert.Equal(t, 2500, cfg.Tools.AdaptiveTokenBudget)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	base := `
llm:
  model: from-file
retrieval:
  vectorTopK: 7
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(base), 0o644))

	t.Setenv("LLM_MODEL", "from-env")
	t.Setenv("ENVIRONMENT", "development")

	cfg, err := NewLoader(dir, Development).Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.Equal(t, 7, cfg.Retrieval.VectorTopK)
	assert.Contains(t, cfg.LoadedFrom, filepath.Join(dir, "base.yaml"))
}

func TestLoader_MissingFilesFallBackToDefaults(t *testing.T) {
	cfg, err := NewLoader(t.TempDir(), Development).Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Retrieval.RRFK, cfg.Retrieval.RRFK)
}

func TestValidate_RejectsBadKeywordBackend(t *testing.T) {
	cfg := Default()
	cfg.Storage.KeywordBackend = "solr"
	assert.Error(t, cfg.Validate())
}

func TestValidate_ElasticsearchNeedsAddrs(t *testing.T) {
	cfg := Default()
	cfg.Storage.KeywordBackend = "elasticsearch"
	cfg.Storage.ElasticsearchAddrs = nil
	assert.Error(t, cfg.Validate())

	cfg.Storage.ElasticsearchAddrs = []string{"http://localhost:9200"}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ContextRatios(t *testing.T) {
	cfg := Default()
	cfg.Context.MemoryRatio = 0.5
	cfg.Context.HistoryRatio = 0.4
	cfg.Context.RetrievalRatio = 0.3
	assert.Error(t, cfg.Validate())
}

func TestValidate_Timezone(t *testing.T) {
	cfg := Default()
	cfg.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())

	cfg.Timezone = "Asia/Shanghai"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "Asia/Shanghai", cfg.Location().String())
}

func TestApplyEnv_ListVariables(t *testing.T) {
	t.Setenv("WEB_SEARCH_ENDPOINTS", "https://a.example/search, https://b.example/search")
	t.Setenv("ELASTICSEARCH_ADDRS", "http://es1:9200,http://es2:9200")

	cfg := Default()
	cfg.applyEnv()

	assert.Equal(t, []string{"https://a.example/search", "https://b.example/search"}, cfg.Web.SearchEndpoints)
	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.Storage.ElasticsearchAddrs)
}
