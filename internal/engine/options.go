package engine

import (
	"time"

	"github.com/smogili1/agentflow/internal/executor"
)

// Metrics is the narrow set of scheduler/approval/evolution observations
// the engine reports when configured with one, grounded on the fields the
// teacher's PrometheusMetrics tracks (inflight nodes, queue depth, step
// latency, retries, merge conflicts, backpressure events) but expressed as
// an interface here so internal/metrics can implement it without this
// package depending on Prometheus.
type Metrics interface {
	SetInFlight(n int)
	SetQueueDepth(n int)
	ObserveStepLatency(d time.Duration)
	IncRetries()
	IncMergeConflicts()
	IncBackpressureEvents()
}

// CostTracker is re-exported from executor so callers configuring an
// engine do not need to import internal/executor directly for this one
// type.
type CostTracker = executor.CostTracker

// Options configures a DAGEngine's scheduling and resource limits. New
// starts from the defaults documented on each field; a zero or negative
// MaxConcurrentNodes, QueueDepth or EvolutionDefaultMaxMutations set by an
// Option is replaced by its default, while a zero DefaultNodeTimeout or
// RunWallClockBudget disables that limit.
type Options struct {
	// MaxConcurrentNodes limits how many node executors run at once.
	// Default: 8.
	MaxConcurrentNodes int

	// QueueDepth sizes the buffered channel the scheduler drains completed
	// node results from. Default: 1024.
	QueueDepth int

	// DefaultNodeTimeout bounds an agent node's execution when its own
	// config carries no timeout. Default: 30s. Zero disables the default
	// (agent nodes without a configured timeout run unbounded). Other node
	// types do not read it.
	DefaultNodeTimeout time.Duration

	// RunWallClockBudget bounds one Execute call's total running time.
	// Default: 10m. Zero disables the budget.
	RunWallClockBudget time.Duration

	// Metrics receives scheduler observations, if set.
	Metrics Metrics

	// CostTracker receives per-call token usage from agent nodes, if set.
	CostTracker CostTracker

	// ApprovalDefaultTimeout is an approval node's timeout when its own
	// config omits timeoutMinutes. Default: 0 (unlimited).
	ApprovalDefaultTimeout time.Duration

	// EvolutionDefaultMaxMutations is kept on Options (default: 10) but is
	// not passed to executors or evolution hooks: a self-reflect node whose
	// config omits maxMutations gets the hooks' own budget (10 with the
	// default validator) whatever this field holds.
	EvolutionDefaultMaxMutations int

	// Decisions lets approval nodes resolve against a decision recorded by
	// a separate `agentflowd approve`/`reject` invocation. Nil disables
	// out-of-process approval.
	Decisions executor.ApprovalDecisionSource
}

// Option is a functional option for New, following the teacher's
// WithXxx(...) Option pattern.
type Option func(*Options)

// WithMaxConcurrentNodes sets the maximum number of node executors the
// engine dispatches at once.
func WithMaxConcurrentNodes(n int) Option {
	return func(o *Options) { o.MaxConcurrentNodes = n }
}

// WithQueueDepth sets the buffered completion channel's capacity.
func WithQueueDepth(n int) Option {
	return func(o *Options) { o.QueueDepth = n }
}

// WithDefaultNodeTimeout sets the fallback timeout for agent nodes without
// their own config.timeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(o *Options) { o.DefaultNodeTimeout = d }
}

// WithRunWallClockBudget bounds one Execute call's total running time.
func WithRunWallClockBudget(d time.Duration) Option {
	return func(o *Options) { o.RunWallClockBudget = d }
}

// WithMetrics attaches a Metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithCostTracker attaches a CostTracker sink.
func WithCostTracker(c CostTracker) Option {
	return func(o *Options) { o.CostTracker = c }
}

// WithApprovalDefaultTimeout sets the fallback timeout for approval nodes
// without their own config.timeoutMinutes.
func WithApprovalDefaultTimeout(d time.Duration) Option {
	return func(o *Options) { o.ApprovalDefaultTimeout = d }
}

// WithEvolutionDefaultMaxMutations sets Options.EvolutionDefaultMaxMutations,
// which is not passed on to self-reflect nodes (see that field).
func WithEvolutionDefaultMaxMutations(n int) Option {
	return func(o *Options) { o.EvolutionDefaultMaxMutations = n }
}

// WithDecisions attaches a decision source approval nodes poll for an
// out-of-process `approve`/`reject` decision.
func WithDecisions(d executor.ApprovalDecisionSource) Option {
	return func(o *Options) { o.Decisions = d }
}

func defaultOptions() Options {
	return Options{
		MaxConcurrentNodes:           8,
		QueueDepth:                   1024,
		DefaultNodeTimeout:           30 * time.Second,
		RunWallClockBudget:           10 * time.Minute,
		EvolutionDefaultMaxMutations: 10,
	}
}

func resolveOptions(opts []Option) Options {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxConcurrentNodes <= 0 {
		cfg.MaxConcurrentNodes = 8
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1024
	}
	if cfg.EvolutionDefaultMaxMutations <= 0 {
		cfg.EvolutionDefaultMaxMutations = 10
	}
	return cfg
}
