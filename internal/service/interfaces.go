// Package service defines the contracts for external collaborators the
// import pipeline consumes. The core never opens connections or spawns
// model runtimes itself; it receives snapshots and emits commands through
// these interfaces.
package service

import (
	"context"
	"time"

	"github.com/tech1ee/finuts/internal/model"
)

// DateWindow bounds a transaction query, inclusive on both ends.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether a date falls inside the window.
func (w DateWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Storage defines the contract for the persistence collaborator.
type Storage interface {
	// Transaction operations
	QueryExistingTransactions(ctx context.Context, window DateWindow) ([]model.ImportedTransaction, error)
	SaveTransactions(ctx context.Context, transactions []model.ImportedTransaction) error

	// Learned merchant operations
	GetLearnedMerchants(ctx context.Context) ([]model.LearnedMerchant, error)
	UpsertLearnedMerchant(ctx context.Context, merchant model.LearnedMerchant) error

	// Category operations
	ListCategories(ctx context.Context) ([]model.Category, error)

	Close() error
}

// BridgeCompletion is the result of one on-device inference call.
type BridgeCompletion struct {
	Text         string
	InputTokens  int
	OutputTokens int
	DurationMS   int64
}

// InferenceBridge is the on-device language-model runtime. The underlying
// engine executes at most one inference at a time; callers must serialize
// access (see ai.OnDeviceClient).
type InferenceBridge interface {
	LoadModel(ctx context.Context, path string) (bool, error)
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (*BridgeCompletion, error)
}

// Page is one rasterized page of a scanned document.
type Page struct {
	ImageBytes []byte
	Width      int
	Height     int
}

// BoundingBox locates a recognized text block on its page.
type BoundingBox struct {
	X, Y, Width, Height float64
}

// TextBlock is one recognized span of text with its confidence.
type TextBlock struct {
	Text       string
	Bounds     BoundingBox
	Confidence float64
}

// RecognizedText is the output of OCR over one image.
type RecognizedText struct {
	FullText          string
	Blocks            []TextBlock
	OverallConfidence float64
}

// OCRClient is the on-device OCR/PDF rasterization collaborator.
type OCRClient interface {
	ExtractPages(ctx context.Context, data []byte) ([]Page, error)
	RecognizeText(ctx context.Context, image []byte, language string) (*RecognizedText, error)
}
