// Package retrieval is the hybrid search fabric. It runs the dense and
// sparse legs against the configured indexes, fuses them with reciprocal
// rank fusion and exposes a graph path that falls back to hybrid search.
package retrieval

import (
	"sort"

	"ragcore/internal/domain"
	"ragcore/internal/index"
)

const (
	// DefaultRRFK is the rank-smoothing constant of reciprocal rank fusion.
	DefaultRRFK = 60
	// DefaultDedupPrefix is how many leading characters of content identify
	// a chunk across the two lists. Wide enough to make near-duplicate
	// chunks collide, short enough to ignore trailing whitespace drift.
	DefaultDedupPrefix = 100
)

type fusedEntry struct {
	result      domain.RetrievalResult
	score       float64
	order       int
	fromVector  bool
	fromKeyword bool
}

func fuseKey(content string, prefixChars int) string {
	runes := []rune(content)
	if len(runes) > prefixChars {
		runes = runes[:prefixChars]
	}
	return string(runes)
}

// FuseRRF merges the two ranked lists. Each distinct chunk accumulates
// 1/(k+rank+1) from every list it appears in; ties keep first-seen order.
func FuseRRF(vector []index.VectorHit, keyword []index.KeywordHit, k, prefixChars int) []domain.RetrievalResult {
	if k <= 0 {
		k = DefaultRRFK
	}
	if prefixChars <= 0 {
		prefixChars = DefaultDedupPrefix
	}

	entries := make(map[string]*fusedEntry, len(vector)+len(keyword))
	order := 0

	for rank, hit := range vector {
		key := fuseKey(hit.Content, prefixChars)
		e, ok := entries[key]
		if !ok {
			e = &fusedEntry{
				result: domain.RetrievalResult{
					ID:           hit.ID,
					Content:      hit.Content,
					DocumentName: hit.DocumentName,
					ContentType:  hit.Type,
					Metadata:     hit.Metadata,
				},
				order: order,
			}
			order++
			entries[key] = e
		}
		e.score += 1.0 / float64(k+rank+1)
		e.fromVector = true
	}

	for _, hit := range keyword {
		key := fuseKey(hit.Content, prefixChars)
		e, ok := entries[key]
		if !ok {
			e = &fusedEntry{
				result: domain.RetrievalResult{
					ID:           hit.ID,
					Content:      hit.Content,
					DocumentName: hit.DocumentName,
					ContentType:  domain.ContentTypeDocument,
				},
				order: order,
			}
			order++
			entries[key] = e
		}
		e.score += 1.0 / float64(k+hit.Rank+1)
		e.fromKeyword = true
	}

	fused := make([]*fusedEntry, 0, len(entries))
	for _, e := range entries {
		fused = append(fused, e)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].order < fused[j].order
	})

	out := make([]domain.RetrievalResult, 0, len(fused))
	for _, e := range fused {
		r := e.result
		r.Score = e.score
		switch {
		case e.fromVector && e.fromKeyword:
			r.Origin = domain.OriginBoth
		case e.fromVector:
			r.Origin = domain.OriginVector
		default:
			r.Origin = domain.OriginKeyword
		}
		out = append(out, r)
	}
	return out
}
