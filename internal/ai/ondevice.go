package ai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tech1ee/finuts/internal/service"
)

// inferenceWait bounds how long a task may queue for the single on-device
// inference slot before giving up.
const inferenceWait = 120 * time.Second

// OnDeviceClient adapts the local inference bridge to the Provider
// interface. The underlying engine runs one inference at a time; a
// single-slot semaphore serializes callers instead of letting them crash
// the runtime.
type OnDeviceClient struct {
	bridge    service.InferenceBridge
	slot      *semaphore.Weighted
	modelPath string
	loadOnce  sync.Once
	loadErr   error
	loaded    atomic.Bool
}

// NewOnDeviceClient wraps a bridge. The model is loaded lazily on the
// first completion.
func NewOnDeviceClient(bridge service.InferenceBridge, modelPath string) *OnDeviceClient {
	return &OnDeviceClient{
		bridge:    bridge,
		modelPath: modelPath,
		slot:      semaphore.NewWeighted(1),
	}
}

// Name identifies the provider.
func (c *OnDeviceClient) Name() string { return "on-device" }

// Available reports whether the model loaded successfully. It is false
// until the first completion attempt resolves the lazy load.
func (c *OnDeviceClient) Available() bool {
	return c.loaded.Load()
}

// Complete runs one prompt through the local model. On-device inference
// is free; the returned completion always carries zero cost.
func (c *OnDeviceClient) Complete(ctx context.Context, task Task) (Completion, error) {
	waitCtx, cancel := context.WithTimeout(ctx, inferenceWait)
	defer cancel()

	if err := c.slot.Acquire(waitCtx, 1); err != nil {
		return Completion{}, fmt.Errorf("inference slot unavailable: %w", err)
	}
	defer c.slot.Release(1)

	c.loadOnce.Do(func() {
		ok, err := c.bridge.LoadModel(ctx, c.modelPath)
		if err != nil {
			c.loadErr = fmt.Errorf("failed to load model %s: %w", c.modelPath, err)
			return
		}
		if !ok {
			c.loadErr = fmt.Errorf("model %s rejected by runtime: %w", c.modelPath, ErrProviderUnavailable)
			return
		}
		c.loaded.Store(true)
		slog.Debug("on-device model loaded", "path", c.modelPath)
	})
	if c.loadErr != nil {
		return Completion{}, c.loadErr
	}

	prompt := task.Prompt
	if task.SystemPrompt != "" {
		prompt = task.SystemPrompt + "\n\n" + task.Prompt
	}
	maxTokens := task.MaxTokens
	if maxTokens == 0 {
		maxTokens = 512
	}

	result, err := c.bridge.Complete(ctx, prompt, maxTokens, task.Temperature)
	if err != nil {
		return Completion{}, fmt.Errorf("on-device inference failed: %w", err)
	}
	if result == nil || result.Text == "" {
		return Completion{}, ErrEmptyCompletion
	}

	return Completion{
		Content:      result.Text,
		Model:        "on-device",
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		Duration:     time.Duration(result.DurationMS) * time.Millisecond,
	}, nil
}
