// Package agent hosts the lifecycle controller: the state machine, the
// survival accounting, and the per-cycle orchestration of scan →
// value → size → execute → settle.
package agent

import (
	"polyagent/internal/market"
	"polyagent/internal/money"
)

// SurvivalInputs are the figures the state machine is a function of.
type SurvivalInputs struct {
	Bankroll      money.Money
	UnrealizedPnL money.Money
	NextCycleCost money.Money
}

// Thresholds come from the [agent] config table.
type Thresholds struct {
	Death      money.Money
	APIReserve money.Money
	LowFuel    money.Money
}

// SurvivalCheck computes the lifecycle state, first match wins:
//
//	bankroll + unrealized ≤ death           → Dead
//	bankroll < next cost + reserve          → CriticalSurvival
//	bankroll < low-fuel threshold           → LowFuel
//	otherwise                               → Alive
func SurvivalCheck(in SurvivalInputs, th Thresholds) market.AgentState {
	effective := in.Bankroll.Add(in.UnrealizedPnL)
	if effective.LessOrEqual(th.Death) {
		return market.StateDead
	}
	if in.Bankroll.LessThan(in.NextCycleCost.Add(th.APIReserve)) {
		return market.StateCriticalSurvival
	}
	if in.Bankroll.LessThan(th.LowFuel) {
		return market.StateLowFuel
	}
	return market.StateAlive
}
