package categorize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tech1ee/finuts/internal/ai"
	"github.com/tech1ee/finuts/internal/dedup"
	"github.com/tech1ee/finuts/internal/model"
	"github.com/tech1ee/finuts/internal/registry"
	"github.com/tech1ee/finuts/internal/service"
)

// batchSize caps how many leftover transactions go into one remote call.
const batchSize = 20

// Rough per-call budget estimates used for reservation before token
// counts are known.
const (
	singleTaskEstimate = 0.002
	batchTaskEstimate  = 0.01
)

// Executor runs remote model tasks. Satisfied by ai.Orchestrator.
type Executor interface {
	ExecuteStructured(ctx context.Context, task ai.Task, policy ai.RetryPolicy, out any) error
}

// Cascade resolves categories tier by tier, cheapest first. Remote tiers
// only see anonymized text and only run when every local tier abstained.
type Cascade struct {
	registry   *registry.Registry
	local      *LocalClassifier
	remote     Executor
	store      service.Storage
	logger     *slog.Logger
	learned    []model.LearnedMerchant
	categories []model.Category
	now        func() time.Time
}

// CascadeConfig wires the cascade's tiers. Local, remote and store are
// all optional; a tier that is absent simply abstains.
type CascadeConfig struct {
	Registry   *registry.Registry
	Local      *LocalClassifier
	Remote     Executor
	Store      service.Storage
	Learned    []model.LearnedMerchant
	Categories []model.Category
	Logger     *slog.Logger
}

// NewCascade creates a cascade.
func NewCascade(cfg CascadeConfig) *Cascade {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{
		registry:   cfg.Registry,
		local:      cfg.Local,
		remote:     cfg.Remote,
		store:      cfg.Store,
		learned:    cfg.Learned,
		categories: cfg.Categories,
		logger:     logger,
		now:        time.Now,
	}
}

// Categorize resolves one transaction through the cascade.
func (c *Cascade) Categorize(ctx context.Context, txn model.ImportedTransaction) model.CategorizationResult {
	if result, ok := c.fromLearned(txn); ok {
		return result
	}
	if result, ok := c.fromRules(txn); ok {
		return result
	}

	// The local classifier's verdict is kept as a fallback even when it
	// is too unsure to win outright.
	localResult, localOK := c.fromLocal(txn)
	if localOK && localResult.Confidence >= model.ConfidenceFlagged {
		return localResult
	}

	if c.remote != nil {
		if result, err := c.fromRemote(ctx, txn); err == nil {
			return result
		} else {
			c.logger.Warn("remote categorization failed", "transaction", txn.ID, "error", err)
		}
	}

	if localOK {
		localResult.RequiresConfirmation = true
		return localResult
	}
	return model.CategorizationResult{
		TransactionID:        txn.ID,
		RequiresConfirmation: true,
	}
}

// CategorizeBatch resolves many transactions, running the local tiers
// per item and batching whatever is left into as few remote calls as
// possible.
func (c *Cascade) CategorizeBatch(ctx context.Context, txns []model.ImportedTransaction) ([]model.CategorizationResult, error) {
	results := make([]model.CategorizationResult, len(txns))
	var pending []int

	for i, txn := range txns {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if result, ok := c.fromLearned(txn); ok {
			results[i] = result
			continue
		}
		if result, ok := c.fromRules(txn); ok {
			results[i] = result
			continue
		}
		if result, ok := c.fromLocal(txn); ok && result.Confidence >= model.ConfidenceFlagged {
			results[i] = result
			continue
		}
		results[i] = model.CategorizationResult{
			TransactionID:        txn.ID,
			RequiresConfirmation: true,
		}
		pending = append(pending, i)
	}

	if c.remote == nil || len(pending) == 0 {
		return results, nil
	}

	for start := 0; start < len(pending); start += batchSize {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		c.remoteBatch(ctx, txns, pending[start:end], results)
	}

	// Items the batch left unanswered or unsure get the same treatment a
	// single transaction would.
	for _, idx := range pending {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		switch r := results[idx]; {
		case r.Source == "":
			if single, err := c.fromRemote(ctx, txns[idx]); err == nil {
				results[idx] = single
			}
		case r.Confidence < model.ConfidenceFlagged:
			if escalated, err := c.remoteSingle(ctx, txns[idx], ai.PreferBestQuality, model.SourceRemoteBest); err == nil {
				results[idx] = escalated
			}
		}
	}

	return results, nil
}

// LearnCorrection records a user's category override so the same
// merchant resolves locally next time.
func (c *Cascade) LearnCorrection(ctx context.Context, txn model.ImportedTransaction, category string) error {
	key := merchantKey(txn)
	if key == "" {
		return nil
	}

	var merchant model.LearnedMerchant
	idx := -1
	for i, m := range c.learned {
		if m.Pattern == key {
			merchant = m
			idx = i
			break
		}
	}
	if idx < 0 {
		merchant = model.LearnedMerchant{
			Pattern:  key,
			Category: category,
			Source:   model.LearnedFromUser,
		}
	} else {
		merchant.Category = category
	}
	merchant.RecordSample(c.now())

	if idx < 0 {
		c.learned = append(c.learned, merchant)
	} else {
		c.learned[idx] = merchant
	}

	if c.store == nil {
		return nil
	}
	if err := c.store.UpsertLearnedMerchant(ctx, merchant); err != nil {
		return fmt.Errorf("failed to persist learned merchant %q: %w", key, err)
	}
	return nil
}

func (c *Cascade) fromLearned(txn model.ImportedTransaction) (model.CategorizationResult, bool) {
	normalized := dedup.NormalizeDescription(txn.Description + " " + txn.Merchant)
	if normalized == "" {
		return model.CategorizationResult{}, false
	}

	best := -1
	for i, m := range c.learned {
		if m.Pattern == "" || !strings.Contains(normalized, m.Pattern) {
			continue
		}
		if best < 0 || m.Confidence > c.learned[best].Confidence {
			best = i
		}
	}
	if best < 0 {
		return model.CategorizationResult{}, false
	}

	m := c.learned[best]
	return model.CategorizationResult{
		TransactionID:        txn.ID,
		Category:             m.Category,
		Source:               model.SourceLearned,
		Confidence:           m.Confidence,
		RequiresConfirmation: m.Confidence < model.ConfidenceFlagged,
	}, true
}

func (c *Cascade) fromRules(txn model.ImportedTransaction) (model.CategorizationResult, bool) {
	if c.registry == nil {
		return model.CategorizationResult{}, false
	}
	pattern, ok := c.registry.Match(txn.Description + " " + txn.Merchant)
	if !ok {
		return model.CategorizationResult{}, false
	}
	return model.CategorizationResult{
		TransactionID:        txn.ID,
		Category:             pattern.Category,
		Source:               model.SourceRule,
		Confidence:           pattern.Confidence,
		RequiresConfirmation: pattern.Confidence < model.ConfidenceFlagged,
	}, true
}

func (c *Cascade) fromLocal(txn model.ImportedTransaction) (model.CategorizationResult, bool) {
	if c.local == nil || !c.local.Ready() {
		return model.CategorizationResult{}, false
	}
	category, confidence, ok := c.local.Classify(txn.Description)
	if !ok {
		return model.CategorizationResult{}, false
	}
	return model.CategorizationResult{
		TransactionID:        txn.ID,
		Category:             category,
		Source:               model.SourceLocalML,
		Confidence:           confidence,
		RequiresConfirmation: confidence < model.ConfidenceFlagged,
	}, true
}

// fromRemote tries the fast tier first and escalates to the best tier
// when the answer is missing, malformed, unknown, or too unsure.
func (c *Cascade) fromRemote(ctx context.Context, txn model.ImportedTransaction) (model.CategorizationResult, error) {
	result, err := c.remoteSingle(ctx, txn, ai.PreferFastCheap, model.SourceRemoteFast)
	if err == nil && result.Confidence >= model.ConfidenceFlagged {
		return result, nil
	}

	escalated, escErr := c.remoteSingle(ctx, txn, ai.PreferBestQuality, model.SourceRemoteBest)
	if escErr == nil {
		return escalated, nil
	}
	if err == nil {
		// Fast answer was unsure but valid; better than nothing.
		result.RequiresConfirmation = true
		return result, nil
	}
	return model.CategorizationResult{}, escErr
}

func (c *Cascade) remoteSingle(ctx context.Context, txn model.ImportedTransaction, preference string, source model.CategorySource) (model.CategorizationResult, error) {
	var out struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	task := ai.Task{
		Prompt:                buildSinglePrompt(txn, c.categories),
		SystemPrompt:          systemPrompt,
		Preference:            preference,
		MaxTokens:             128,
		EstimatedCost:         singleTaskEstimate,
		RequiresAnonymization: true,
	}
	if err := c.remote.ExecuteStructured(ctx, task, ai.DefaultRetry(), &out); err != nil {
		return model.CategorizationResult{}, err
	}

	category, ok := c.knownCategory(out.Category)
	if !ok {
		return model.CategorizationResult{}, fmt.Errorf("model returned unknown category %q", out.Category)
	}
	confidence := clamp01(out.Confidence)

	return model.CategorizationResult{
		TransactionID:        txn.ID,
		Category:             category,
		Source:               source,
		Confidence:           confidence,
		RequiresConfirmation: confidence < model.ConfidenceFlagged,
	}, nil
}

// remoteBatch fills results for the given indices with one model call.
// Indices the model skips or mangles keep their requires-confirmation
// placeholder; the caller retries those individually.
func (c *Cascade) remoteBatch(ctx context.Context, txns []model.ImportedTransaction, indices []int, results []model.CategorizationResult) {
	chunk := make([]model.ImportedTransaction, len(indices))
	for i, idx := range indices {
		chunk[i] = txns[idx]
	}

	var out []struct {
		Index      int     `json:"index"`
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	task := ai.Task{
		Prompt:                buildBatchPrompt(chunk, indices, c.categories),
		SystemPrompt:          systemPrompt,
		Preference:            ai.PreferFastCheap,
		MaxTokens:             1024,
		EstimatedCost:         batchTaskEstimate,
		RequiresAnonymization: true,
	}
	if err := c.remote.ExecuteStructured(ctx, task, ai.LongTimeout(), &out); err != nil {
		c.logger.Warn("remote batch categorization failed", "size", len(indices), "error", err)
		return
	}

	allowed := make(map[int]bool, len(indices))
	for _, idx := range indices {
		allowed[idx] = true
	}
	for _, item := range out {
		if !allowed[item.Index] {
			continue
		}
		category, ok := c.knownCategory(item.Category)
		if !ok {
			continue
		}
		confidence := clamp01(item.Confidence)
		results[item.Index] = model.CategorizationResult{
			TransactionID:        txns[item.Index].ID,
			Category:             category,
			Source:               model.SourceRemoteFast,
			Confidence:           confidence,
			RequiresConfirmation: confidence < model.ConfidenceFlagged,
		}
	}
}

// knownCategory matches the model's answer against the configured
// category list, case-insensitively.
func (c *Cascade) knownCategory(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, cat := range c.categories {
		if strings.EqualFold(cat.Name, name) {
			return cat.Name, true
		}
	}
	return "", false
}

// merchantKey derives the learned-merchant lookup key: the normalized
// merchant name, or the leading tokens of the description when no
// merchant was extracted.
func merchantKey(txn model.ImportedTransaction) string {
	if key := dedup.NormalizeDescription(txn.Merchant); key != "" {
		return key
	}
	tokens := Tokenize(txn.Description)
	if len(tokens) > 3 {
		tokens = tokens[:3]
	}
	return strings.Join(tokens, " ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
