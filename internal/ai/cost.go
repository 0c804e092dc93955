package ai

import (
	"fmt"
	"sync"
	"time"
)

// CostLimits caps AI spend in USD. A zero limit means that budget is
// disabled (nothing may be spent against it).
type CostLimits struct {
	DailyUSD   float64
	MonthlyUSD float64
}

// CostTracker accounts AI spend per UTC day and per UTC month. Budget
// checks and reservations happen under one lock so concurrent tasks
// cannot jointly overshoot a limit.
type CostTracker struct {
	now     func() time.Time
	daily   map[string]float64
	monthly map[string]float64
	limits  CostLimits
	mu      sync.Mutex
}

// NewCostTracker creates a tracker with the given limits.
func NewCostTracker(limits CostLimits) *CostTracker {
	return &CostTracker{
		limits:  limits,
		daily:   make(map[string]float64),
		monthly: make(map[string]float64),
		now:     time.Now,
	}
}

func (t *CostTracker) keys() (day, month string) {
	now := t.now().UTC()
	return now.Format("2006-01-02"), now.Format("2006-01")
}

// Reserve puts the estimated cost on the books before the provider call.
// It returns a settle function that replaces the estimate with the actual
// cost once known; settle with zero on failure to release the hold.
func (t *CostTracker) Reserve(estimate float64) (settle func(actual float64), err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	day, month := t.keys()
	if t.daily[day]+estimate > t.limits.DailyUSD {
		return nil, fmt.Errorf("%w: daily budget %.2f USD, spent %.4f, task needs %.4f",
			ErrCostLimitExceeded, t.limits.DailyUSD, t.daily[day], estimate)
	}
	if t.monthly[month]+estimate > t.limits.MonthlyUSD {
		return nil, fmt.Errorf("%w: monthly budget %.2f USD, spent %.4f, task needs %.4f",
			ErrCostLimitExceeded, t.limits.MonthlyUSD, t.monthly[month], estimate)
	}

	t.daily[day] += estimate
	t.monthly[month] += estimate

	var once sync.Once
	settle = func(actual float64) {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			// Adjust against the same period keys the reservation used so
			// a settle after midnight does not leak into the new day.
			t.daily[day] += actual - estimate
			t.monthly[month] += actual - estimate
		})
	}
	return settle, nil
}

// SpentToday returns the current UTC day's spend.
func (t *CostTracker) SpentToday() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	day, _ := t.keys()
	return t.daily[day]
}

// SpentThisMonth returns the current UTC month's spend.
func (t *CostTracker) SpentThisMonth() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, month := t.keys()
	return t.monthly[month]
}
