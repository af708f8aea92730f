// Package graphidx talks to the external graph retrieval service over HTTP.
// The service owns entity extraction and graph traversal; this client only
// moves documents in and questions through, with a circuit breaker so a
// flapping service degrades to hybrid retrieval instead of stalling queries.
package graphidx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "ragcore/internal/errors"
	"ragcore/internal/index"
)

// Client implements index.GraphIndex against a graph service endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// New builds a graph client for baseURL. An empty baseURL yields a client
// whose Healthy always reports false, so the plane is simply absent.
func New(baseURL string, logger *zap.Logger) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "graph-index",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Graph service breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

type indexRequest struct {
	KBID      string           `json:"kb_id"`
	Documents []index.GraphDoc `json:"documents"`
}

type queryRequest struct {
	KBID  string `json:"kb_id"`
	Query string `json:"query"`
	Mode  string `json:"mode"`
}

type queryResponse struct {
	Response string `json:"response"`
}

// Index ships docs to the graph service for entity extraction.
func (c *Client) Index(ctx context.Context, kbID string, docs []index.GraphDoc) error {
	if c.baseURL == "" {
		return apperrors.Degraded("GRAPH_DISABLED", "graph service not configured", nil)
	}
	if len(docs) == 0 {
		return nil
	}
	_, err := c.execute(ctx, http.MethodPost, "/documents", indexRequest{KBID: kbID, Documents: docs})
	return err
}

// Query asks the graph service a question under the given traversal mode.
func (c *Client) Query(ctx context.Context, kbID, question string, mode index.GraphMode) (string, error) {
	if c.baseURL == "" {
		return "", apperrors.Degraded("GRAPH_DISABLED", "graph service not configured", nil)
	}
	if !index.ValidGraphMode(mode) {
		mode = index.GraphModeHybrid
	}

	body, err := c.execute(ctx, http.MethodPost, "/query", queryRequest{KBID: kbID, Query: question, Mode: string(mode)})
	if err != nil {
		return "", err
	}

	var parsed queryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", apperrors.Degraded("GRAPH_DECODE", "decode graph response", err)
	}
	if parsed.Response == "" {
		return "", apperrors.Degraded("GRAPH_EMPTY", "graph service returned no answer", nil)
	}
	return parsed.Response, nil
}

// Graph exports the stored graph for inspection.
func (c *Client) Graph(ctx context.Context, kbID string, limit int) (*index.GraphSnapshot, error) {
	if c.baseURL == "" {
		return nil, apperrors.Degraded("GRAPH_DISABLED", "graph service not configured", nil)
	}

	q := url.Values{"kb_id": {kbID}, "limit": {strconv.Itoa(limit)}}
	body, err := c.execute(ctx, http.MethodGet, "/graphs?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var snapshot index.GraphSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, apperrors.Degraded("GRAPH_DECODE", "decode graph snapshot", err)
	}
	return &snapshot, nil
}

// Healthy probes /health with a short deadline, outside the breaker.
func (c *Client) Healthy(ctx context.Context) bool {
	if c.baseURL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) execute(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, method, path, payload)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, apperrors.Degraded("GRAPH_BREAKER_OPEN", "graph service circuit open", err)
	}
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, apperrors.Fatal("GRAPH_ENCODE", "encode graph request", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, apperrors.Fatal("GRAPH_REQUEST", "build graph request", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Degraded("GRAPH_UNREACHABLE", "graph service call failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, apperrors.Degraded("GRAPH_READ", "read graph response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Degraded("GRAPH_STATUS", "graph service error", nil).
			WithDetails("status=%d body=%s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
