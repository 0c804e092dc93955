package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tech1ee/finuts/internal/common"
)

const anthropicEndpoint = "https://api.anthropic.com/v1/messages"

// Per-million-token prices used for cost settlement.
var anthropicPricing = map[string]struct{ input, output float64 }{
	"claude-3-5-haiku-20241022":  {0.80, 4.00},
	"claude-3-5-sonnet-20241022": {3.00, 15.00},
}

// AnthropicProvider implements Provider against the Anthropic messages API.
type AnthropicProvider struct {
	httpClient *http.Client
	limiter    *rateLimiter
	apiKey     string
	model      string
}

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey            string
	Model             string
	RequestsPerMinute int
}

// NewAnthropicProvider creates an Anthropic-backed provider.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required: %w", common.ErrMissingConfig)
	}

	model := cfg.Model
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}

	return &AnthropicProvider{
		apiKey:  cfg.APIKey,
		model:   model,
		limiter: newRateLimiter(cfg.RequestsPerMinute),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Name identifies the provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete sends the task to the messages API and returns the text of the
// first content block with token accounting.
func (p *AnthropicProvider) Complete(ctx context.Context, task Task) (Completion, error) {
	if err := p.limiter.wait(ctx); err != nil {
		return Completion{}, err
	}

	model := task.Model
	if model == "" {
		model = p.model
	}
	maxTokens := task.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	requestBody := map[string]any{
		"model":       model,
		"max_tokens":  maxTokens,
		"temperature": task.Temperature,
		"messages": []map[string]string{
			{
				"role":    "user",
				"content": task.Prompt,
			},
		},
	}
	if task.SystemPrompt != "" {
		requestBody["system"] = task.SystemPrompt
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicEndpoint, strings.NewReader(string(jsonBody)))
	if err != nil {
		return Completion{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Completion{}, &common.RetryableError{Err: fmt.Errorf("request failed: %w", err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return Completion{}, common.ErrRateLimit
	}
	if resp.StatusCode >= 500 {
		return Completion{}, &common.RetryableError{
			Err:       fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, string(body)),
			Retryable: true,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return Completion{}, fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, string(body))
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return Completion{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(response.Content) == 0 {
		return Completion{}, ErrEmptyCompletion
	}

	return Completion{
		Content:      response.Content[0].Text,
		Model:        response.Model,
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
		Cost:         tokenCost(anthropicPricing, model, response.Usage.InputTokens, response.Usage.OutputTokens),
		Duration:     time.Since(start),
	}, nil
}

// anthropicResponse represents the Anthropic API response structure.
type anthropicResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// tokenCost converts token usage into USD using a per-million pricing
// table. Unknown models are billed at the most expensive known rate so
// cost tracking errs high, never low.
func tokenCost(pricing map[string]struct{ input, output float64 }, model string, inputTokens, outputTokens int) float64 {
	price, ok := pricing[model]
	if !ok {
		for _, p := range pricing {
			if p.output > price.output {
				price = p
			}
		}
	}
	return float64(inputTokens)/1e6*price.input + float64(outputTokens)/1e6*price.output
}
