package keyword

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	apperrors "ragcore/internal/errors"
	"ragcore/internal/index"
)

// ElasticIndex implements index.KeywordIndex against a remote cluster.
// Each KB maps to its own index so deletes stay scoped.
type ElasticIndex struct {
	client *elasticsearch.Client
	prefix string
	logger *zap.Logger
}

// NewElasticIndex connects to the given addresses. The connection itself is
// lazy; a down cluster surfaces through Healthy and per-call errors.
func NewElasticIndex(addrs []string, logger *zap.Logger) (*ElasticIndex, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addrs})
	if err != nil {
		return nil, apperrors.Fatal("KEYWORD_CONFIG", "create elasticsearch client", err)
	}
	return &ElasticIndex{client: client, prefix: "ragcore-", logger: logger}, nil
}

func (e *ElasticIndex) indexName(kbID string) string {
	return e.prefix + strings.ToLower(kbID)
}

// Index bulk-writes docs as ndjson.
func (e *ElasticIndex) Index(ctx context.Context, kbID string, docs []index.KeywordDoc) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, d := range docs {
		fmt.Fprintf(&buf, `{"index":{"_id":%q}}`+"\n", d.ID)
		line, err := json.Marshal(map[string]string{
			fieldContent: d.Content,
			fieldDocID:   d.DocumentID,
			fieldDocName: d.DocumentName,
			fieldType:    string(d.Type),
		})
		if err != nil {
			return apperrors.Fatal("KEYWORD_ENCODE", "encode bulk line", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	res, err := e.client.Bulk(bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName(kbID)),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return apperrors.Transient("KEYWORD_INDEX", "bulk index failed", err).WithOp("keyword.Index")
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperrors.Transient("KEYWORD_INDEX", "bulk index rejected", nil).
			WithDetails("status=%s", res.Status())
	}
	return nil
}

// Delete removes every chunk of one document via delete-by-query.
func (e *ElasticIndex) Delete(ctx context.Context, kbID, documentID string) error {
	body := fmt.Sprintf(`{"query":{"term":{"doc_id.keyword":%q}}}`, documentID)
	res, err := e.client.DeleteByQuery(
		[]string{e.indexName(kbID)},
		strings.NewReader(body),
		e.client.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return apperrors.Transient("KEYWORD_DELETE", "delete by query failed", err)
	}
	defer res.Body.Close()
	// 404 means the KB was never indexed, which is not an error for delete.
	if res.IsError() && res.StatusCode != 404 {
		return apperrors.Transient("KEYWORD_DELETE", "delete by query rejected", nil).
			WithDetails("status=%s doc=%s", res.Status(), documentID)
	}
	return nil
}

// Search runs a match query on content.
func (e *ElasticIndex) Search(ctx context.Context, kbID, query string, limit int) ([]index.KeywordHit, error) {
	body := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"match": map[string]interface{}{fieldContent: query},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, apperrors.Fatal("KEYWORD_ENCODE", "encode search body", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.indexName(kbID)),
		e.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, apperrors.Transient("KEYWORD_SEARCH", "keyword search failed", err).WithOp("keyword.Search")
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		// Empty KB, nothing indexed yet.
		return nil, nil
	}
	if res.IsError() {
		return nil, apperrors.Transient("KEYWORD_SEARCH", "keyword search rejected", nil).
			WithDetails("status=%s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string `json:"_id"`
				Source struct {
					Content string `json:"content"`
					DocID   string `json:"doc_id"`
					DocName string `json:"doc_name"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.Transient("KEYWORD_DECODE", "decode search response", err)
	}

	hits := make([]index.KeywordHit, 0, len(parsed.Hits.Hits))
	for rank, h := range parsed.Hits.Hits {
		hits = append(hits, index.KeywordHit{
			ID:           h.ID,
			DocumentID:   h.Source.DocID,
			DocumentName: h.Source.DocName,
			Content:      h.Source.Content,
			Rank:         rank,
		})
	}
	return hits, nil
}

// Healthy pings the cluster with a short deadline.
func (e *ElasticIndex) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		e.logger.Warn("Keyword backend unreachable", zap.Error(err))
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

// Close is a no-op for the HTTP client.
func (e *ElasticIndex) Close() error { return nil }
