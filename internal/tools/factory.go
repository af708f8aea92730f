package tools

import (
	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/llm"
	"ragcore/internal/observability"
)

// Deps bundles everything the canonical tool set closes over.
type Deps struct {
	Fabric  Fabric
	Docs    DocumentFinder
	Client  llm.Client
	Fetcher *Fetcher
	Cfg     *config.Config
	Logger  *zap.Logger
	Metrics *observability.Collector
}

// NewDefaultRegistry builds the canonical tool set for one query, in the
// order the agent catalog lists them.
func NewDefaultRegistry(d Deps) *Registry {
	r := NewRegistry(d.Cfg.Tools, d.Logger, d.Metrics)

	fetcher := d.Fetcher
	if fetcher == nil {
		fetcher = NewFetcher(d.Cfg.Web, d.Logger)
	}

	r.Register(NewSearchKnowledge(d.Fabric))
	r.Register(NewDeepSearch(d.Fabric))
	r.Register(NewKeywordSearch(d.Fabric))
	r.Register(NewGraphSearch(d.Fabric, d.Cfg.Retrieval.GraphTimeout))
	r.Register(NewSummarizeTopic(d.Docs, d.Fabric, d.Cfg.Tools.SummarizeMaxChars))
	r.Register(NewWebSearch(d.Cfg.Web, fetcher, d.Cfg.Tools.FetchMaxChars, d.Logger))
	r.Register(NewFetchWebpage(fetcher, d.Cfg.Web.FetchTimeout, d.Cfg.Tools.FetchMaxChars))
	r.Register(NewCurrentDatetime(d.Cfg.Timezone))
	r.Register(NewGenerateDiagram(d.Client, d.Logger))
	return r
}
