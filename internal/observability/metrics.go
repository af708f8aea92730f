package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// Collector holds every Prometheus metric family the engine exports.
type Collector struct {
	registry *prometheus.Registry

	// Query pipeline
	QueriesTotal   *prometheus.CounterVec
	QueryDuration  *prometheus.HistogramVec
	AgentSteps     prometheus.Histogram
	QualityRetries prometheus.Counter

	// Retrieval fabric
	RetrievalSearches *prometheus.CounterVec
	RetrievalDuration *prometheus.HistogramVec
	SignalsDropped    *prometheus.CounterVec

	// Tools
	ToolCalls    *prometheus.CounterVec
	ToolDuration *prometheus.HistogramVec

	// LLM client
	LLMCalls    *prometheus.CounterVec
	LLMDuration *prometheus.HistogramVec

	// Memory store
	MemoryOps *prometheus.CounterVec

	// Evaluator harness
	EvalQuestions  *prometheus.CounterVec
	EvalRunsActive prometheus.Gauge
}

// NewCollector creates the engine collector. A process-wide singleton keeps
// repeated construction in tests from tripping duplicate registration.
func NewCollector(namespace string) *Collector {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	if globalCollector != nil {
		return globalCollector
	}

	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total queries processed, by intent and terminal status",
		}, []string{"intent", "status"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end query latency",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"intent"}),
		AgentSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_steps",
			Help:      "ReAct steps consumed per query",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}),
		QualityRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quality_retries_total",
			Help:      "Answer retries requested by the quality judge",
		}),
		RetrievalSearches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_searches_total",
			Help:      "Index searches, by signal kind and status",
		}, []string{"kind", "status"}),
		RetrievalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Index search latency, by signal kind",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		SignalsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_signals_dropped_total",
			Help:      "Retrieval signals dropped after local failures",
		}, []string{"kind"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations, by tool and status",
		}, []string{"tool", "status"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool execution latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		LLMCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "LLM provider calls, by operation and status",
		}, []string{"operation", "status"}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "LLM provider call latency",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
		MemoryOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_operations_total",
			Help:      "Memory store operations, by op and status",
		}, []string{"operation", "status"}),
		EvalQuestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eval_questions_total",
			Help:      "Evaluated questions, by terminal status",
		}, []string{"status"}),
		EvalRunsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eval_runs_active",
			Help:      "Evaluation runs currently executing",
		}),
	}

	registry.MustRegister(
		c.QueriesTotal,
		c.QueryDuration,
		c.AgentSteps,
		c.QualityRetries,
		c.RetrievalSearches,
		c.RetrievalDuration,
		c.SignalsDropped,
		c.ToolCalls,
		c.ToolDuration,
		c.LLMCalls,
		c.LLMDuration,
		c.MemoryOps,
		c.EvalQuestions,
		c.EvalRunsActive,
	)

	globalCollector = c
	return c
}

// Handler serves the collector's registry for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveLLMCall records one provider call outcome.
func (c *Collector) ObserveLLMCall(operation string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.LLMCalls.WithLabelValues(operation, status).Inc()
	c.LLMDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveToolCall records one tool invocation outcome.
func (c *Collector) ObserveToolCall(tool string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.ToolCalls.WithLabelValues(tool, status).Inc()
	c.ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveSearch records one index search outcome.
func (c *Collector) ObserveSearch(kind string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.RetrievalSearches.WithLabelValues(kind, status).Inc()
	c.RetrievalDuration.WithLabelValues(kind).Observe(d.Seconds())
}
