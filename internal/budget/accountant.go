// Package budget enforces the daily oracle spend cap and projects the
// cost of upcoming cycles from recorded call history.
package budget

import (
	"errors"
	"sync"
	"time"

	"polyagent/internal/logger"
	"polyagent/internal/money"
)

// ErrBudgetExhausted means the daily cap would be exceeded; no further
// oracle calls until the UTC day boundary.
var ErrBudgetExhausted = errors.New("budget: daily oracle budget exhausted")

// CostFloor is the conservative per-call estimate used when there is
// no history yet.
var CostFloor = money.MustParse("0.05")

// costLookback is how many recent cost rows feed the rolling mean.
const costLookback = 20

// CostHistory is the slice of the repository the accountant reads.
type CostHistory interface {
	SumCostSince(t time.Time) (money.Money, error)
	RecentCosts(limit int) ([]money.Money, error)
}

type Accountant struct {
	history  CostHistory
	dailyCap money.Money
	// expectedCalls is how many oracle calls a full cycle makes; it
	// scales the per-call mean into a per-cycle estimate.
	expectedCalls int64
	nowFn         func() time.Time

	// reserved tracks projections granted by Allow whose costs have not
	// reached the store yet. Oracle calls run concurrently; without the
	// reservation two in-flight calls could both read yesterday's spend
	// and together blow the cap.
	mu       sync.Mutex
	reserved money.Money
}

func NewAccountant(history CostHistory, dailyCap money.Money, expectedCallsPerCycle int) *Accountant {
	if expectedCallsPerCycle <= 0 {
		expectedCallsPerCycle = 1
	}
	return &Accountant{
		history:       history,
		dailyCap:      dailyCap,
		expectedCalls: int64(expectedCallsPerCycle),
		nowFn:         time.Now,
	}
}

// Allow reports whether spending projectedCost now stays inside the
// daily cap, and reserves the projection when it does. The caller must
// pair every successful Allow with a Commit once the real cost is
// persisted (or the call abandoned). Repository failures deny the
// spend: over-conserving is recoverable, overspending is not.
func (a *Accountant) Allow(projectedCost money.Money) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	spent, err := a.history.SumCostSince(a.todayStart())
	if err != nil {
		logger.Errorf("budget: reading today's spend failed, denying call: %v", err)
		return false
	}
	if spent.Add(a.reserved).Add(projectedCost).GreaterThan(a.dailyCap) {
		return false
	}
	a.reserved = a.reserved.Add(projectedCost)
	return true
}

// Commit releases a reservation made by Allow; by now the actual cost
// is either in the store or the call never spent anything.
func (a *Accountant) Commit(projectedCost money.Money) {
	a.mu.Lock()
	a.reserved = a.reserved.Sub(projectedCost)
	if a.reserved.IsNegative() {
		a.reserved = money.Zero
	}
	a.mu.Unlock()
}

// SpentToday returns the oracle spend since the UTC midnight boundary.
func (a *Accountant) SpentToday() (money.Money, error) {
	return a.history.SumCostSince(a.todayStart())
}

// EstimateNextCycleCost projects the next cycle's oracle spend as
// expected calls × rolling mean per-call cost, floored at CostFloor
// per call.
func (a *Accountant) EstimateNextCycleCost() money.Money {
	perCall := a.MeanCallCost()
	return perCall.Mul(money.FromInt(a.expectedCalls))
}

// MeanCallCost is the rolling mean over the last recorded calls, never
// below CostFloor.
func (a *Accountant) MeanCallCost() money.Money {
	costs, err := a.history.RecentCosts(costLookback)
	if err != nil {
		logger.Warnf("budget: reading cost history failed, using floor: %v", err)
		return CostFloor
	}
	if len(costs) == 0 {
		return CostFloor
	}
	total := money.Zero
	for _, c := range costs {
		total = total.Add(c)
	}
	mean := total.Div(money.FromInt(int64(len(costs))))
	return money.Max(mean, CostFloor)
}

func (a *Accountant) todayStart() time.Time {
	now := a.nowFn().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
