package ai

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCostTrackerZeroBudgetRefusesEverything(t *testing.T) {
	tracker := NewCostTracker(CostLimits{DailyUSD: 0, MonthlyUSD: 0})

	_, err := tracker.Reserve(0.001)
	assert.ErrorIs(t, err, ErrCostLimitExceeded)
	assert.Zero(t, tracker.SpentToday())
}

func TestCostTrackerSettleReplacesEstimate(t *testing.T) {
	tracker := NewCostTracker(CostLimits{DailyUSD: 1.00, MonthlyUSD: 10.00})

	settle, err := tracker.Reserve(0.50)
	require.NoError(t, err)
	assert.InDelta(t, 0.50, tracker.SpentToday(), 1e-9)

	settle(0.12)
	assert.InDelta(t, 0.12, tracker.SpentToday(), 1e-9)
	assert.InDelta(t, 0.12, tracker.SpentThisMonth(), 1e-9)
}

func TestCostTrackerSettleZeroReleasesHold(t *testing.T) {
	tracker := NewCostTracker(CostLimits{DailyUSD: 0.50, MonthlyUSD: 5.00})

	settle, err := tracker.Reserve(0.50)
	require.NoError(t, err)

	// Budget is fully reserved; a second task must be refused.
	_, err = tracker.Reserve(0.01)
	assert.ErrorIs(t, err, ErrCostLimitExceeded)

	settle(0)
	_, err = tracker.Reserve(0.50)
	assert.NoError(t, err)
}

func TestCostTrackerSettleIsIdempotent(t *testing.T) {
	tracker := NewCostTracker(CostLimits{DailyUSD: 1.00, MonthlyUSD: 10.00})

	settle, err := tracker.Reserve(0.40)
	require.NoError(t, err)

	settle(0.10)
	settle(0.10)
	assert.InDelta(t, 0.10, tracker.SpentToday(), 1e-9)
}

func TestCostTrackerMonthlyLimitIndependentOfDaily(t *testing.T) {
	tracker := NewCostTracker(CostLimits{DailyUSD: 10.00, MonthlyUSD: 0.30})

	_, err := tracker.Reserve(0.40)
	assert.ErrorIs(t, err, ErrCostLimitExceeded)
}

func TestCostTrackerConcurrentReservationsNeverOvershoot(t *testing.T) {
	tracker := NewCostTracker(CostLimits{DailyUSD: 1.00, MonthlyUSD: 100.00})

	const workers = 50
	var wg sync.WaitGroup
	granted := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if settle, err := tracker.Reserve(0.10); err == nil {
				granted <- struct{}{}
				settle(0.10)
			}
		}()
	}
	wg.Wait()
	close(granted)

	assert.Len(t, granted, 10)
	assert.InDelta(t, 1.00, tracker.SpentToday(), 1e-9)
}

func TestCostTrackerDailyRollover(t *testing.T) {
	tracker := NewCostTracker(CostLimits{DailyUSD: 0.50, MonthlyUSD: 5.00})
	current := time.Date(2024, 1, 15, 23, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return current }

	settle, err := tracker.Reserve(0.50)
	require.NoError(t, err)
	settle(0.50)

	_, err = tracker.Reserve(0.10)
	require.ErrorIs(t, err, ErrCostLimitExceeded)

	// Next UTC day: daily budget resets, monthly carries over.
	current = time.Date(2024, 1, 16, 1, 0, 0, 0, time.UTC)
	_, err = tracker.Reserve(0.50)
	assert.NoError(t, err)
	assert.InDelta(t, 1.00, tracker.SpentThisMonth(), 1e-9)
}
