// Package importer drives one statement import end to end: detection,
// parsing, validation, duplicate checks, categorization, user review,
// and the final save. The pipeline is a forward-only state machine; a
// cancelled or failed run can only be restarted, never resumed.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tech1ee/finuts/internal/categorize"
	"github.com/tech1ee/finuts/internal/common"
	"github.com/tech1ee/finuts/internal/dedup"
	"github.com/tech1ee/finuts/internal/detect"
	"github.com/tech1ee/finuts/internal/model"
	"github.com/tech1ee/finuts/internal/parser"
	"github.com/tech1ee/finuts/internal/service"
)

// State names one phase of the import pipeline.
type State int

// Pipeline states in execution order.
const (
	StateIdle State = iota
	StateDetecting
	StateParsing
	StateValidating
	StateDeduplicating
	StateCategorizing
	StateAwaitingConfirmation
	StateSaving
	StateCompleted
	StateFailed
	StateCancelled
)

// String returns the state name for logs and progress output.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDetecting:
		return "detecting"
	case StateParsing:
		return "parsing"
	case StateValidating:
		return "validating"
	case StateDeduplicating:
		return "deduplicating"
	case StateCategorizing:
		return "categorizing"
	case StateAwaitingConfirmation:
		return "awaiting-confirmation"
	case StateSaving:
		return "saving"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// terminal reports whether no further transitions are allowed.
func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Progress is a snapshot of the pipeline's position, safe to read from
// any goroutine. After a failure Partial carries whatever transactions
// were extracted before the pipeline stopped, so the user can inspect
// what a retry would recover.
type Progress struct {
	Err         error
	Message     string
	Partial     []model.ImportedTransaction
	State       State
	Processed   int
	Total       int
	Recoverable bool
}

// Pipeline errors.
var (
	ErrNotAwaitingConfirmation = errors.New("import is not awaiting confirmation")
	ErrAlreadyStarted          = errors.New("import already started")
)

// Pipeline runs one import. It is single-use: create a new pipeline for
// each document.
type Pipeline struct {
	store      service.Storage
	cascade    *categorize.Cascade
	onProgress func(Progress)
	logger     *slog.Logger
	opts       parser.Options

	mu         sync.Mutex
	progress   Progress
	reviewable []model.ReviewableTransaction
	partial    []model.ImportedTransaction
}

// Config wires a pipeline. OnProgress, Logger and Cascade are optional.
type Config struct {
	Store      service.Storage
	Cascade    *categorize.Cascade
	Options    parser.Options
	OnProgress func(Progress)
	Logger     *slog.Logger
}

// New creates an idle pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required: %w", common.ErrMissingConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:      cfg.Store,
		cascade:    cfg.Cascade,
		opts:       cfg.Options,
		onProgress: cfg.OnProgress,
		logger:     logger,
		progress:   Progress{State: StateIdle},
	}, nil
}

// Progress returns the latest snapshot.
func (p *Pipeline) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// Run executes the pipeline up to the review gate. On return the
// pipeline is awaiting confirmation (or in a terminal failure state).
func (p *Pipeline) Run(ctx context.Context, data []byte, filename string) error {
	p.mu.Lock()
	if p.progress.State != StateIdle {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.mu.Unlock()

	if err := p.run(ctx, data, filename); err != nil {
		if errors.Is(err, context.Canceled) {
			p.setState(StateCancelled, Progress{Message: "import cancelled"})
		} else {
			p.mu.Lock()
			partial := p.partial
			p.mu.Unlock()
			p.setState(StateFailed, Progress{
				Err:         err,
				Message:     err.Error(),
				Partial:     partial,
				Recoverable: recoverable(err),
			})
		}
		return err
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, data []byte, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.setState(StateDetecting, Progress{Message: "detecting document type"})
	doc := detect.Detect(data, filename)
	if doc.Kind == model.DocUnknown {
		return fmt.Errorf("cannot import %s: %w", filename, common.ErrUnknownDocument)
	}
	p.logger.Info("document detected", "kind", doc.Kind, "encoding", doc.Encoding)

	p.setState(StateParsing, Progress{Message: "parsing " + doc.Kind.String()})
	fileParser, err := parser.ForDocument(doc, p.opts)
	if err != nil {
		return err
	}
	result := fileParser.Parse(ctx, data, doc)
	p.keepPartial(result.Transactions)
	switch result.Outcome {
	case parser.OutcomeError:
		return fmt.Errorf("parse failed: %s", result.Message)
	case parser.OutcomeNeedsUserInput:
		return fmt.Errorf("parse needs user input: %v", result.Issues)
	case parser.OutcomeEmpty:
		return common.ErrEmptyDocument
	}
	if len(result.Transactions) == 0 {
		return common.ErrEmptyDocument
	}
	p.logger.Info("document parsed",
		"transactions", len(result.Transactions),
		"confidence", result.Confidence,
		"issues", len(result.Issues))

	p.setState(StateValidating, Progress{Message: "validating transactions", Total: len(result.Transactions)})
	txns := validate(result.Transactions)
	p.keepPartial(txns)
	if len(txns) == 0 {
		return common.ErrEmptyDocument
	}

	p.setState(StateDeduplicating, Progress{Message: "checking for duplicates", Total: len(txns)})
	statuses, err := p.deduplicate(ctx, txns)
	if err != nil {
		return err
	}

	p.setState(StateCategorizing, Progress{Message: "categorizing", Total: len(txns)})
	categories, err := p.categorize(ctx, txns)
	if err != nil {
		return err
	}

	reviewable := make([]model.ReviewableTransaction, len(txns))
	for i, txn := range txns {
		txn.SuggestedCategory = categories[i].Category
		reviewable[i] = model.ReviewableTransaction{
			Transaction: txn,
			Duplicate:   statuses[i],
			Index:       i,
			// Duplicates start deselected; everything else is kept.
			Selected: !statuses[i].IsDuplicate(),
		}
	}

	p.mu.Lock()
	p.reviewable = reviewable
	p.mu.Unlock()
	p.setState(StateAwaitingConfirmation, Progress{
		Message:   "awaiting confirmation",
		Processed: len(txns),
		Total:     len(txns),
	})
	return nil
}

// Review returns the transactions pending confirmation.
func (p *Pipeline) Review() []model.ReviewableTransaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ReviewableTransaction, len(p.reviewable))
	copy(out, p.reviewable)
	return out
}

// SetSelected toggles whether a transaction will be saved.
func (p *Pipeline) SetSelected(index int, selected bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.progress.State != StateAwaitingConfirmation {
		return ErrNotAwaitingConfirmation
	}
	if index < 0 || index >= len(p.reviewable) {
		return fmt.Errorf("transaction index %d out of range", index)
	}
	p.reviewable[index].Selected = selected
	return nil
}

// OverrideCategory replaces the suggested category for one transaction
// and records the correction so future imports learn from it.
func (p *Pipeline) OverrideCategory(ctx context.Context, index int, category string) error {
	p.mu.Lock()
	if p.progress.State != StateAwaitingConfirmation {
		p.mu.Unlock()
		return ErrNotAwaitingConfirmation
	}
	if index < 0 || index >= len(p.reviewable) {
		p.mu.Unlock()
		return fmt.Errorf("transaction index %d out of range", index)
	}
	p.reviewable[index].CategoryOverride = category
	txn := p.reviewable[index].Transaction
	cascade := p.cascade
	p.mu.Unlock()

	if cascade == nil {
		return nil
	}
	return cascade.LearnCorrection(ctx, txn, category)
}

// Confirm saves the selected transactions and completes the import.
func (p *Pipeline) Confirm(ctx context.Context) error {
	p.mu.Lock()
	if p.progress.State != StateAwaitingConfirmation {
		p.mu.Unlock()
		return ErrNotAwaitingConfirmation
	}
	var selected []model.ImportedTransaction
	for _, r := range p.reviewable {
		if !r.Selected {
			continue
		}
		txn := r.Transaction
		txn.SuggestedCategory = r.EffectiveCategory()
		selected = append(selected, txn)
	}
	p.mu.Unlock()

	p.setState(StateSaving, Progress{Message: "saving", Total: len(selected)})
	if len(selected) > 0 {
		if err := p.store.SaveTransactions(ctx, selected); err != nil {
			err = fmt.Errorf("failed to save transactions: %w", err)
			p.setState(StateFailed, Progress{Err: err, Message: err.Error(), Recoverable: true})
			return err
		}
	}

	p.setState(StateCompleted, Progress{
		Message:   fmt.Sprintf("imported %d transactions", len(selected)),
		Processed: len(selected),
		Total:     len(selected),
	})
	p.logger.Info("import completed", "saved", len(selected), "skipped", len(p.reviewable)-len(selected))
	return nil
}

// Cancel abandons the import. Nothing is saved.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	if p.progress.State.terminal() {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.setState(StateCancelled, Progress{Message: "import cancelled"})
}

// keepPartial records the transactions extracted so far; a later failure
// snapshot surfaces them as the partial preview.
func (p *Pipeline) keepPartial(txns []model.ImportedTransaction) {
	p.mu.Lock()
	p.partial = txns
	p.mu.Unlock()
}

func (p *Pipeline) deduplicate(ctx context.Context, txns []model.ImportedTransaction) ([]model.DuplicateStatus, error) {
	window := dateWindow(txns)
	existing, err := p.store.QueryExistingTransactions(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing transactions: %w", err)
	}

	detector := dedup.NewDetector(existing)
	statuses := make([]model.DuplicateStatus, len(txns))
	for i, txn := range txns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		statuses[i] = detector.Classify(txn)
		p.advance(i + 1)
	}
	return statuses, nil
}

func (p *Pipeline) categorize(ctx context.Context, txns []model.ImportedTransaction) ([]model.CategorizationResult, error) {
	if p.cascade == nil {
		results := make([]model.CategorizationResult, len(txns))
		for i, txn := range txns {
			results[i] = model.CategorizationResult{TransactionID: txn.ID, RequiresConfirmation: true}
		}
		return results, nil
	}
	return p.cascade.CategorizeBatch(ctx, txns)
}

// validate drops transactions that cannot be stored: zero dates or
// missing identity. Hashes are computed here so dedup and storage see
// stable identities.
func validate(txns []model.ImportedTransaction) []model.ImportedTransaction {
	valid := txns[:0]
	for _, txn := range txns {
		if txn.Date.IsZero() || txn.ID == "" {
			continue
		}
		if txn.Hash == "" {
			txn.Hash = txn.GenerateHash()
		}
		valid = append(valid, txn)
	}
	return valid
}

// dateWindow spans the batch's dates padded by one day on each side to
// match the duplicate detector's tolerance.
func dateWindow(txns []model.ImportedTransaction) service.DateWindow {
	minDate, maxDate := txns[0].Date, txns[0].Date
	for _, txn := range txns[1:] {
		if txn.Date.Before(minDate) {
			minDate = txn.Date
		}
		if txn.Date.After(maxDate) {
			maxDate = txn.Date
		}
	}
	return service.DateWindow{
		Start: minDate.AddDate(0, 0, -1),
		End:   maxDate.AddDate(0, 0, 1),
	}
}

func (p *Pipeline) setState(state State, progress Progress) {
	p.mu.Lock()
	if p.progress.State.terminal() {
		p.mu.Unlock()
		return
	}
	progress.State = state
	if progress.Total == 0 {
		progress.Total = p.progress.Total
	}
	p.progress = progress
	callback := p.onProgress
	p.mu.Unlock()

	if callback != nil {
		callback(progress)
	}
}

func (p *Pipeline) advance(processed int) {
	p.mu.Lock()
	p.progress.Processed = processed
	progress := p.progress
	callback := p.onProgress
	p.mu.Unlock()

	if callback != nil {
		callback(progress)
	}
}

// recoverable reports whether a retry of the same import could succeed.
// Document-shape failures cannot be fixed by retrying.
func recoverable(err error) bool {
	return !errors.Is(err, common.ErrUnknownDocument) &&
		!errors.Is(err, common.ErrEmptyDocument)
}
