package ai

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	calls    atomic.Int32
	response Completion
	err      error
	lastTask Task
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(_ context.Context, task Task) (Completion, error) {
	f.calls.Add(1)
	f.lastTask = task
	if f.err != nil {
		return Completion{}, f.err
	}
	return f.response, nil
}

func newTestOrchestrator(t *testing.T, fast, best Provider, limits CostLimits) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(OrchestratorConfig{
		FastProvider: fast,
		BestProvider: best,
		Tracker:      NewCostTracker(limits),
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)
	return o
}

func TestExecuteZeroBudgetNeverCallsProvider(t *testing.T) {
	provider := &fakeProvider{response: Completion{Content: "ok"}}
	o := newTestOrchestrator(t, provider, nil, CostLimits{})

	_, err := o.Execute(context.Background(), Task{
		Prompt:        "categorize this",
		Preference:    PreferFastCheap,
		EstimatedCost: 0.01,
	}, NoRetry())

	assert.ErrorIs(t, err, ErrCostLimitExceeded)
	assert.Equal(t, int32(0), provider.calls.Load())
}

func TestExecuteSettlesActualCost(t *testing.T) {
	provider := &fakeProvider{response: Completion{Content: "groceries", Cost: 0.002}}
	o := newTestOrchestrator(t, provider, nil, CostLimits{DailyUSD: 1, MonthlyUSD: 10})

	completion, err := o.Execute(context.Background(), Task{
		Prompt:        "categorize this",
		Preference:    PreferFastCheap,
		EstimatedCost: 0.01,
	}, NoRetry())

	require.NoError(t, err)
	assert.Equal(t, "groceries", completion.Content)
	assert.InDelta(t, 0.002, o.SpentToday(), 1e-9)
}

func TestExecuteReleasesReservationOnFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("boom")}
	o := newTestOrchestrator(t, provider, nil, CostLimits{DailyUSD: 1, MonthlyUSD: 10})

	_, err := o.Execute(context.Background(), Task{
		Prompt:        "categorize this",
		EstimatedCost: 0.5,
	}, NoRetry())

	require.Error(t, err)
	assert.Zero(t, o.SpentToday())
}

func TestExecuteAnonymizesPromptAndRestoresResponse(t *testing.T) {
	provider := &fakeProvider{response: Completion{Content: "category for [NAME_1]: transfers"}}
	o := newTestOrchestrator(t, provider, nil, CostLimits{DailyUSD: 1, MonthlyUSD: 10})

	completion, err := o.Execute(context.Background(), Task{
		Prompt:                "Transfer to John Smith",
		Preference:            PreferFastCheap,
		RequiresAnonymization: true,
	}, NoRetry())

	require.NoError(t, err)
	assert.Equal(t, "Transfer to [NAME_1]", provider.lastTask.Prompt)
	assert.Equal(t, "category for John Smith: transfers", completion.Content)
}

func TestExecuteCachesCompletions(t *testing.T) {
	provider := &fakeProvider{response: Completion{Content: "dining"}}
	o := newTestOrchestrator(t, provider, nil, CostLimits{DailyUSD: 1, MonthlyUSD: 10})

	task := Task{Prompt: "same prompt", Preference: PreferFastCheap}
	_, err := o.Execute(context.Background(), task, NoRetry())
	require.NoError(t, err)
	_, err = o.Execute(context.Background(), task, NoRetry())
	require.NoError(t, err)

	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestExecuteFallsBackWhenPreferredProviderMissing(t *testing.T) {
	fast := &fakeProvider{response: Completion{Content: "fast answer"}}
	o := newTestOrchestrator(t, fast, nil, CostLimits{DailyUSD: 1, MonthlyUSD: 10})

	completion, err := o.Execute(context.Background(), Task{
		Prompt:     "needs best",
		Preference: PreferBestQuality,
	}, NoRetry())

	require.NoError(t, err)
	assert.Equal(t, "fast answer", completion.Content)
}

func TestExecuteNoProvidersConfigured(t *testing.T) {
	o := newTestOrchestrator(t, nil, nil, CostLimits{DailyUSD: 1, MonthlyUSD: 10})

	_, err := o.Execute(context.Background(), Task{Prompt: "anything"}, NoRetry())
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	// The failed selection releases its reservation.
	assert.Zero(t, o.SpentToday())
}

func TestExecuteBudgetCheckedBeforeProviderSelection(t *testing.T) {
	o := newTestOrchestrator(t, nil, nil, CostLimits{})

	_, err := o.Execute(context.Background(), Task{
		Prompt:        "anything",
		EstimatedCost: 0.01,
	}, NoRetry())

	// No providers and no budget: the budget verdict wins.
	assert.ErrorIs(t, err, ErrCostLimitExceeded)
}

func TestExecuteStructuredStripsMarkdownFence(t *testing.T) {
	provider := &fakeProvider{response: Completion{
		Content: "```json\n{\"category\": \"groceries\", \"confidence\": 0.8}\n```",
	}}
	o := newTestOrchestrator(t, provider, nil, CostLimits{DailyUSD: 1, MonthlyUSD: 10})

	var out struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	err := o.ExecuteStructured(context.Background(), Task{Prompt: "p"}, NoRetry(), &out)

	require.NoError(t, err)
	assert.Equal(t, "groceries", out.Category)
	assert.InDelta(t, 0.8, out.Confidence, 1e-9)
}

func TestCleanMarkdownWrapper(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}\n", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanMarkdownWrapper(tt.input))
		})
	}
}
