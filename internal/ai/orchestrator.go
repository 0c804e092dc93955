package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tech1ee/finuts/internal/anonymize"
	"github.com/tech1ee/finuts/internal/common"
)

// Orchestrator routes tasks to providers under cost and privacy
// governance. Budget reservation happens before anything leaves the
// process; anonymization happens before anything leaves the device.
type Orchestrator struct {
	fast       Provider
	best       Provider
	tracker    *CostTracker
	anonymizer *anonymize.Anonymizer
	cache      *completionCache
	logger     *slog.Logger
}

// OrchestratorConfig wires the orchestrator's collaborators. Either
// provider may be nil; tasks preferring a missing provider fall back to
// the other, and fail with ErrProviderUnavailable if both are absent.
type OrchestratorConfig struct {
	FastProvider Provider
	BestProvider Provider
	Tracker      *CostTracker
	Anonymizer   *anonymize.Anonymizer
	CacheTTL     time.Duration
	Logger       *slog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("cost tracker is required: %w", common.ErrMissingConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	anonymizer := cfg.Anonymizer
	if anonymizer == nil {
		anonymizer = anonymize.New()
	}
	return &Orchestrator{
		fast:       cfg.FastProvider,
		best:       cfg.BestProvider,
		tracker:    cfg.Tracker,
		anonymizer: anonymizer,
		cache:      newCompletionCache(cfg.CacheTTL),
		logger:     logger,
	}, nil
}

// Execute runs one task: budget reservation, anonymization, provider
// call with retries, deanonymization, cost settlement. The cache is
// consulted first so repeated prompts cost nothing.
func (o *Orchestrator) Execute(ctx context.Context, task Task, policy RetryPolicy) (Completion, error) {
	key := cacheKey(task)
	if cached, ok := o.cache.get(key); ok {
		o.logger.Debug("completion served from cache", "preference", task.Preference)
		return cached, nil
	}

	// Budget governance comes before anything else: an exhausted budget
	// is reported even when no provider is configured.
	settle, err := o.tracker.Reserve(task.EstimatedCost)
	if err != nil {
		return Completion{}, err
	}

	provider, err := o.selectProvider(task.Preference)
	if err != nil {
		settle(0)
		return Completion{}, err
	}

	var mapping anonymize.Mapping
	if task.RequiresAnonymization {
		result := o.anonymizer.Anonymize(task.Prompt)
		task.Prompt = result.Text
		mapping = result.Mapping
		if len(result.Detections) > 0 {
			o.logger.Debug("prompt anonymized", "redactions", len(result.Detections))
		}
	}

	var completion Completion
	retryErr := common.WithRetry(ctx, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, policy.AttemptTimeout)
		defer cancel()

		var callErr error
		completion, callErr = provider.Complete(attemptCtx, task)
		return callErr
	}, common.Backoff{
		Attempts:  policy.MaxAttempts,
		BaseDelay: policy.InitialDelay,
	})
	if retryErr != nil {
		settle(0)
		return Completion{}, fmt.Errorf("provider %s: %w", provider.Name(), retryErr)
	}

	settle(completion.Cost)

	if len(mapping) > 0 {
		completion.Content = anonymize.Deanonymize(completion.Content, mapping)
	}

	o.logger.Info("ai task completed",
		"provider", provider.Name(),
		"model", completion.Model,
		"input_tokens", completion.InputTokens,
		"output_tokens", completion.OutputTokens,
		"cost_usd", completion.Cost,
		"duration", completion.Duration)

	o.cache.set(key, completion)
	return completion, nil
}

// ExecuteStructured runs the task and decodes its answer as JSON into
// out, stripping any markdown fence the model wrapped around it.
func (o *Orchestrator) ExecuteStructured(ctx context.Context, task Task, policy RetryPolicy, out any) error {
	completion, err := o.Execute(ctx, task, policy)
	if err != nil {
		return err
	}

	content := CleanMarkdownWrapper(completion.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("failed to parse structured response: %w", err)
	}
	return nil
}

// SpentToday exposes the tracker's daily spend for status output.
func (o *Orchestrator) SpentToday() float64 {
	return o.tracker.SpentToday()
}

// Close releases the cache's background goroutine.
func (o *Orchestrator) Close() {
	o.cache.Close()
}

func (o *Orchestrator) selectProvider(preference string) (Provider, error) {
	var primary, fallback Provider
	switch preference {
	case PreferBestQuality:
		primary, fallback = o.best, o.fast
	default:
		primary, fallback = o.fast, o.best
	}
	if primary != nil {
		return primary, nil
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, fmt.Errorf("%w for preference %q", ErrProviderUnavailable, preference)
}

// CleanMarkdownWrapper strips ```json fences that models often wrap
// around structured output.
func CleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		}
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	return strings.TrimSpace(content)
}
