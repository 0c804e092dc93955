// Package ai routes model tasks to providers under cost, privacy and
// rate-limit governance. Callers describe WHAT they need via Task; the
// orchestrator decides WHERE it runs.
package ai

import (
	"context"
	"errors"
	"time"
)

// Provider preference expressed by the task, not a concrete vendor.
const (
	PreferFastCheap   = "fast-cheap"
	PreferBestQuality = "best-quality"
)

// Sentinel outcomes of task execution.
var (
	// ErrCostLimitExceeded means the task was refused before any provider
	// call because it would break the daily or monthly budget.
	ErrCostLimitExceeded = errors.New("ai: cost limit exceeded")
	// ErrProviderUnavailable means no configured provider can serve the
	// task's preference.
	ErrProviderUnavailable = errors.New("ai: no provider available")
	// ErrEmptyCompletion means the provider returned no usable content.
	ErrEmptyCompletion = errors.New("ai: empty completion")
)

// Task is one unit of model work.
type Task struct {
	Prompt                string
	SystemPrompt          string
	Preference            string
	Model                 string
	MaxTokens             int
	Temperature           float64
	EstimatedCost         float64
	RequiresAnonymization bool
}

// Completion is a provider's answer plus its accounting data.
type Completion struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
	Duration     time.Duration
}

// Provider is a single model backend.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string
	// Complete runs one task to completion.
	Complete(ctx context.Context, task Task) (Completion, error)
}

// RetryPolicy bounds how execution failures are retried.
type RetryPolicy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	InitialDelay   time.Duration
}

// NoRetry runs the task exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, AttemptTimeout: 30 * time.Second}
}

// DefaultRetry allows three attempts with backoff, 30s each.
func DefaultRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, AttemptTimeout: 30 * time.Second, InitialDelay: time.Second}
}

// LongTimeout is for batch prompts that legitimately run long.
func LongTimeout() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, AttemptTimeout: 60 * time.Second, InitialDelay: time.Second}
}
