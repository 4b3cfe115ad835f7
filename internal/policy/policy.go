// Package policy implements the rejection-feedback retry policy attached to
// agent nodes (rejectionHandler.maxRetries/onMaxRetries), the per-node
// timeout precedence rule, and an exponential backoff helper (Backoff, not
// called by any executor in this module). Adapted from the teacher's graph.RetryPolicy /
// computeBackoff, narrowed from a generic transient-failure retry policy to
// this engine's specific rejection-count policy.
package policy

import (
	"math/rand"
	"time"
)

// OnMaxRetries is the configured behavior once a node's rejection-loop run
// counter would exceed RejectionHandler.MaxRetries.
type OnMaxRetries string

const (
	OnMaxRetriesFail         OnMaxRetries = "fail"
	OnMaxRetriesSkip         OnMaxRetries = "skip"
	OnMaxRetriesApproveAnyway OnMaxRetries = "approve-anyway"
)

// RejectionHandler is the agent-node config controlling how many times an
// ancestor may be re-entered by the rejection-feedback loop before the
// configured OnMaxRetries behavior takes over.
type RejectionHandler struct {
	MaxRetries      int
	OnMaxRetries    OnMaxRetries
	ContinueSession bool
	FeedbackTemplate string
}

// Exceeded reports whether runCount (the node's 1-based run counter after
// the current rejection re-entry) has exceeded h.MaxRetries. A zero or
// negative MaxRetries is treated as unlimited.
func (h *RejectionHandler) Exceeded(runCount int) bool {
	if h == nil || h.MaxRetries <= 0 {
		return false
	}
	return runCount > h.MaxRetries
}

// Backoff computes the delay before an attempt-th retry using exponential
// backoff with jitter: min(base*2^attempt, max) + jitter(0, base). attempt
// is zero-based (0 = first retry after the initial attempt).
func Backoff(attempt int, base, max time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base * time.Duration(1<<uint(attempt))
	if max > 0 && delay > max {
		delay = max
	}
	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- retry pacing, not security
	}
	return delay + jitter
}

// Timeout resolves the effective timeout for a node given a per-node
// override and the engine-wide default: per-node override wins if positive,
// else the default, else zero (unlimited).
func Timeout(nodeTimeout, defaultTimeout time.Duration) time.Duration {
	if nodeTimeout > 0 {
		return nodeTimeout
	}
	return defaultTimeout
}
