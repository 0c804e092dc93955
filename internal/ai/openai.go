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

const openaiEndpoint = "https://api.openai.com/v1/chat/completions"

var openaiPricing = map[string]struct{ input, output float64 }{
	"gpt-4o-mini": {0.15, 0.60},
	"gpt-4o":      {2.50, 10.00},
}

// OpenAIProvider implements Provider against the OpenAI chat completions API.
type OpenAIProvider struct {
	httpClient *http.Client
	limiter    *rateLimiter
	apiKey     string
	model      string
}

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey            string
	Model             string
	RequestsPerMinute int
}

// NewOpenAIProvider creates an OpenAI-backed provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required: %w", common.ErrMissingConfig)
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAIProvider{
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
func (p *OpenAIProvider) Name() string { return "openai" }

// Complete sends the task as a chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, task Task) (Completion, error) {
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

	messages := []map[string]string{}
	if task.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": task.SystemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": task.Prompt})

	requestBody := map[string]any{
		"model":       model,
		"max_tokens":  maxTokens,
		"temperature": task.Temperature,
		"messages":    messages,
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openaiEndpoint, strings.NewReader(string(jsonBody)))
	if err != nil {
		return Completion{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

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
			Err:       fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(body)),
			Retryable: true,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return Completion{}, fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(body))
	}

	var response openaiResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return Completion{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(response.Choices) == 0 {
		return Completion{}, ErrEmptyCompletion
	}

	return Completion{
		Content:      response.Choices[0].Message.Content,
		Model:        response.Model,
		InputTokens:  response.Usage.PromptTokens,
		OutputTokens: response.Usage.CompletionTokens,
		Cost:         tokenCost(openaiPricing, model, response.Usage.PromptTokens, response.Usage.CompletionTokens),
		Duration:     time.Since(start),
	}, nil
}

// openaiResponse represents the OpenAI API response structure.
type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}
