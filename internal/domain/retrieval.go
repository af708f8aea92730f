package domain

// Origin names the index lists that contributed a retrieval result.
type Origin string

const (
	OriginVector  Origin = "vector"
	OriginKeyword Origin = "keyword"
	OriginBoth    Origin = "both"
)

// RetrievalResult is the normalized record every index signal is mapped
// into. Before fusion Score is only comparable within one origin; after
// fusion it is a reciprocal-rank sum.
type RetrievalResult struct {
	ID           string            `json:"id"`
	Content      string            `json:"content"`
	DocumentName string            `json:"documentName"`
	Score        float64           `json:"score"`
	ContentType  ContentType       `json:"contentType"`
	Origin       Origin            `json:"origin"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Preview returns the first n characters of the content, for traces.
func (r RetrievalResult) Preview(n int) string {
	runes := []rune(r.Content)
	if len(runes) <= n {
		return r.Content
	}
	return string(runes[:n]) + "..."
}
