package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragcore/internal/config"
	apperrors "ragcore/internal/errors"
	"ragcore/internal/observability"
)

// Registry holds the tool set for one query and dispatches calls. Execute
// never returns an error: every outcome becomes an observation so the agent
// loop can keep reasoning.
type Registry struct {
	cfg     config.Tools
	tools   map[string]Tool
	order   []string
	logger  *zap.Logger
	metrics *observability.Collector
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg config.Tools, logger *zap.Logger, metrics *observability.Collector) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:     cfg,
		tools:   make(map[string]Tool),
		logger:  logger,
		metrics: metrics,
	}
}

// Register adds a tool. Re-registering a name replaces the previous tool.
func (r *Registry) Register(t Tool) {
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Has reports whether a tool name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Catalog renders the tool list for the agent system prompt.
func (r *Registry) Catalog() string {
	var b strings.Builder
	for _, name := range r.order {
		t := r.tools[name]
		fmt.Fprintf(&b, "- %s: %s\n", name, t.Description())
		if schema := t.InputSchema(); schema != nil && schema.Properties != nil {
			keys := make([]string, 0, schema.Properties.Len())
			for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
				keys = append(keys, pair.Key)
			}
			if len(keys) > 0 {
				fmt.Fprintf(&b, "  input: JSON object with %s\n", strings.Join(keys, ", "))
			}
		}
	}
	return b.String()
}

// Execute dispatches one tool call and returns the observation. The call is
// logged into the tool context before returning, and the observer hook fires
// after the log entry exists.
func (r *Registry) Execute(ctx context.Context, tc *ToolContext, name, input string) string {
	tool, ok := r.tools[name]
	if !ok {
		obs := fmt.Sprintf("Unknown tool %q. Available tools: %s.", name, strings.Join(r.order, ", "))
		tc.RecordCall(name, input, obs, 0, true)
		tc.notify(name, input, obs)
		return obs
	}

	budget := r.cfg.CallTimeout
	if o, ok := tool.(timeoutOverride); ok {
		if d := o.CallTimeout(); d > 0 {
			budget = d
		}
	}
	callCtx := ctx
	var cancel context.CancelFunc
	if budget > 0 {
		callCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	start := time.Now()
	output, err := tool.Execute(callCtx, tc, input)
	elapsed := time.Since(start)
	if r.metrics != nil {
		r.metrics.ObserveToolCall(name, elapsed, err)
	}

	obs := output
	failed := false
	switch {
	case err == nil:
		tc.ResetInvalid(name)
	case apperrors.IsValidation(err):
		failed = true
		count := tc.MarkInvalid(name)
		if count >= r.maxInvalidCalls() {
			obs = fmt.Sprintf("%s %s received %d invalid calls in a row; stopping. Last error: %v",
				HardStopMarker, name, count, err)
			r.logger.Warn("tool hard stop",
				zap.String("tool", name),
				zap.Int("invalid_calls", count))
		} else {
			obs = fmt.Sprintf("Invalid input for %s: %v. Check the expected fields and retry.", name, err)
		}
	default:
		failed = true
		obs = fmt.Sprintf("Tool %s failed: %v", name, err)
		r.logger.Warn("tool call failed",
			zap.String("tool", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	}

	tc.RecordCall(name, input, obs, elapsed, failed)
	tc.notify(name, input, obs)
	return obs
}

func (r *Registry) maxInvalidCalls() int {
	if r.cfg.MaxInvalidCalls > 0 {
		return r.cfg.MaxInvalidCalls
	}
	return 3
}
