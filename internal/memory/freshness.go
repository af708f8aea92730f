// Package memory is the long-lived user memory store: LLM extraction from
// finished exchanges, persistence with a vector side index, and recall
// weighted by similarity times freshness.
package memory

import (
	"math"
	"time"

	"ragcore/internal/domain"
)

// Freshness weights are contracts, not tuning knobs. Installations must
// score identically so memories stay comparable across them.
const (
	// FreshnessBase is the similarity floor every memory keeps.
	FreshnessBase = 0.4
	// FreshnessImportanceWeight scales the extractor's importance estimate.
	FreshnessImportanceWeight = 0.3
	// FreshnessRecencyWeight scales exponential age decay.
	FreshnessRecencyWeight = 0.2
	// FreshnessAccessWeight scales the capped access count.
	FreshnessAccessWeight = 0.1
	// FreshnessTauDays is the decay time constant in days.
	FreshnessTauDays = 30.0
	// FreshnessAccessCap saturates the access-count contribution.
	FreshnessAccessCap = 10
)

// Weight combines semantic similarity with the memory's freshness:
//
//	sim * (0.4 + 0.3*importance + 0.2*exp(-ageDays/30) + 0.1*min(n,10)/10)
//
// Monotone in recency and in access count.
func Weight(m *domain.Memory, similarity float64, now time.Time) float64 {
	ageDays := now.Sub(m.CreatedAt).Hours() / 24.0
	if ageDays < 0 {
		ageDays = 0
	}

	accesses := m.AccessCount
	if accesses > FreshnessAccessCap {
		accesses = FreshnessAccessCap
	}

	freshness := FreshnessBase +
		FreshnessImportanceWeight*m.Importance +
		FreshnessRecencyWeight*math.Exp(-ageDays/FreshnessTauDays) +
		FreshnessAccessWeight*float64(accesses)/FreshnessAccessCap

	return similarity * freshness
}
