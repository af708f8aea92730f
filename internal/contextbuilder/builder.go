package contextbuilder

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/domain"
	"ragcore/internal/retrieval"
)

// Recaller is the slice of the memory service the engine consumes.
type Recaller interface {
	Recall(ctx context.Context, kbID, query string, k int) ([]domain.ScoredMemory, error)
}

// Searcher is the slice of the retrieval fabric the engine consumes.
type Searcher interface {
	HybridSearch(ctx context.Context, kbID, query string, opts retrieval.SearchOptions) ([]domain.RetrievalResult, error)
}

// Section headers the downstream LLM reads positionally.
const (
	headerHistory   = "## Chat History"
	headerMemory    = "## User Memory"
	headerRetrieval = "## Retrieval"
)

// Request is one context build. Intent, when present, gates the memory
// and retrieval sections; the engine never re-runs intent analysis.
type Request struct {
	KBID      string
	SessionID string
	UserID    string
	Query     string
	History   []domain.ChatMessage
	MaxTokens int
	Intent    *domain.Intent
}

// Stats reports where the budget went.
type Stats struct {
	TotalTokens     int `json:"totalTokens"`
	MemoryTokens    int `json:"memoryTokens"`
	HistoryTokens   int `json:"historyTokens"`
	RetrievalTokens int `json:"retrievalTokens"`
}

// Result carries the composed context and its raw parts, so callers can
// reuse the retrieval results without a second search.
type Result struct {
	Context        string
	Memories       []domain.ScoredMemory
	Results        []domain.RetrievalResult
	HistorySummary string
	Stats          Stats
}

// Engine composes the four context sections under one token budget.
type Engine struct {
	memories   Recaller
	fabric     Searcher
	summarizer *Summarizer
	cfg        config.Context
	logger     *zap.Logger
}

// NewEngine wires the context engine. memories may be nil when the store
// is disabled; the memory section is then always empty.
func NewEngine(
	memories Recaller,
	fabric Searcher,
	summarizer *Summarizer,
	cfg config.Context,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		memories:   memories,
		fabric:     fabric,
		summarizer: summarizer,
		cfg:        cfg,
		logger:     logger,
	}
}

// Build assembles the context. Every external failure degrades to an
// empty section; the result is always well-shaped.
func (e *Engine) Build(ctx context.Context, req Request) *Result {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = e.cfg.MaxTokens
	}

	memoryBudget := int(float64(maxTokens) * e.cfg.MemoryRatio)
	historyBudget := int(float64(maxTokens) * e.cfg.HistoryRatio)
	retrievalBudget := int(float64(maxTokens) * e.cfg.RetrievalRatio)

	res := &Result{
		Memories: []domain.ScoredMemory{},
		Results:  []domain.RetrievalResult{},
	}

	needsMemory := req.Intent == nil || req.Intent.NeedsMemory
	needsRetrieval := req.Intent == nil || req.Intent.NeedsKnowledgeBase

	memorySection := ""
	if needsMemory && e.memories != nil {
		memorySection = e.buildMemorySection(ctx, req, memoryBudget, res)
	}

	historySection := e.buildHistorySection(ctx, req, historyBudget, res)

	retrievalSection := ""
	if needsRetrieval {
		retrievalSection = e.buildRetrievalSection(ctx, req, retrievalBudget, res)
	}

	var sections []string
	if historySection != "" {
		sections = append(sections, headerHistory+"\n"+historySection)
	}
	if memorySection != "" {
		sections = append(sections, headerMemory+"\n"+memorySection)
	}
	if retrievalSection != "" {
		sections = append(sections, headerRetrieval+"\n"+retrievalSection)
	}
	composed := strings.Join(sections, "\n\n")

	// Headers and separators eat into the budget too; the declared
	// budget is a hard ceiling on the final string.
	if EstimateTokens(composed) > maxTokens {
		composed = TruncateToTokens(composed, maxTokens)
	}

	res.Context = composed
	res.Stats = Stats{
		TotalTokens:     EstimateTokens(composed),
		MemoryTokens:    EstimateTokens(memorySection),
		HistoryTokens:   EstimateTokens(historySection),
		RetrievalTokens: EstimateTokens(retrievalSection),
	}
	return res
}

func (e *Engine) buildMemorySection(ctx context.Context, req Request, budget int, res *Result) string {
	if budget <= 0 {
		return ""
	}
	recalled, err := e.memories.Recall(ctx, req.KBID, req.Query, 0)
	if err != nil {
		e.logger.Warn("Memory recall failed, continuing without",
			zap.String("kbId", req.KBID),
			zap.Error(err))
		return ""
	}
	if len(recalled) == 0 {
		return ""
	}
	res.Memories = recalled

	var b strings.Builder
	for _, m := range recalled {
		line := "- " + m.Memory.Content
		if EstimateTokens(b.String())+EstimateTokens(line) > budget {
			break
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}

func (e *Engine) buildHistorySection(ctx context.Context, req Request, budget int, res *Result) string {
	if budget <= 0 || len(req.History) == 0 {
		return ""
	}

	verbatimCount := e.cfg.VerbatimTurns
	if verbatimCount > len(req.History) {
		verbatimCount = len(req.History)
	}
	older := req.History[:len(req.History)-verbatimCount]
	recent := req.History[len(req.History)-verbatimCount:]

	summary := ""
	if len(older) > 0 && e.summarizer != nil {
		summary = e.summarizer.Summarize(ctx, older, budget/2)
		res.HistorySummary = summary
	}

	verbatim := packTurnsTail(recent, budget-EstimateTokens(summary))

	switch {
	case summary != "" && verbatim != "":
		return "Earlier: " + summary + "\n\n" + verbatim
	case summary != "":
		return "Earlier: " + summary
	default:
		return verbatim
	}
}

// packTurnsTail keeps the most recent turns that fit the budget, whole
// turns first, truncating only the oldest kept turn.
func packTurnsTail(turns []domain.ChatMessage, budget int) string {
	if budget <= 0 {
		return ""
	}
	kept := make([]string, 0, len(turns))
	used := 0
	for i := len(turns) - 1; i >= 0; i-- {
		line := RenderTurns(turns[i : i+1])
		cost := EstimateTokens(line)
		if used+cost > budget {
			if remaining := budget - used; remaining > 0 && len(kept) == 0 {
				kept = append(kept, TruncateToTokens(line, remaining))
			}
			break
		}
		kept = append(kept, line)
		used += cost
	}
	// Reverse back into chronological order.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, "\n")
}

func (e *Engine) buildRetrievalSection(ctx context.Context, req Request, budget int, res *Result) string {
	if budget <= 0 {
		return ""
	}
	results, err := e.fabric.HybridSearch(ctx, req.KBID, req.Query, retrieval.SearchOptions{UseKeyword: true})
	if err != nil {
		e.logger.Warn("Pre-search failed, continuing without retrieval",
			zap.String("kbId", req.KBID),
			zap.Error(err))
		return ""
	}
	if len(results) == 0 {
		return ""
	}
	res.Results = results

	var b strings.Builder
	used := 0
	for i, r := range results {
		entry := FormatResult(i+1, r)
		cost := EstimateTokens(entry)
		if used+cost > budget {
			if remaining := budget - used; remaining > 0 && b.Len() == 0 {
				b.WriteString(TruncateToTokens(entry, remaining))
			}
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(entry)
		used += cost
	}
	return b.String()
}

// FormatResult renders one retrieval result for prompt consumption.
func FormatResult(position int, r domain.RetrievalResult) string {
	name := r.DocumentName
	if name == "" {
		name = "unknown"
	}
	return fmt.Sprintf("[%d] %s (score %.3f)\n%s", position, name, r.Score, r.Content)
}
