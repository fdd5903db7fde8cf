// Package execution routes orders to the paper simulator (or, one day,
// a live signer), settles resolutions, and runs the stop-loss sweep.
package execution

import (
	"fmt"
	"sync"

	"polyagent/internal/logger"
	"polyagent/internal/money"
)

// PaperWallet holds the simulated bankroll: realized cash available for
// new positions. Oracle costs are real money even in paper mode, so
// they burn from this balance too. Debits may arrive from concurrent
// oracle calls; everything else runs on the cycle loop.
type PaperWallet struct {
	mu      sync.Mutex
	balance money.Money
}

func NewPaperWallet(initial money.Money) *PaperWallet {
	return &PaperWallet{balance: initial}
}

func (w *PaperWallet) Balance() money.Money {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance
}

// DebitOracleCost burns an oracle call cost. The balance may go
// negative here; the survival check catches it next cycle.
func (w *PaperWallet) DebitOracleCost(cost money.Money) {
	w.mu.Lock()
	w.balance = w.balance.Sub(cost)
	w.mu.Unlock()
}

// Reserve moves cash into a position. Fails if the balance cannot
// cover it; the caller simply skips the trade.
func (w *PaperWallet) Reserve(amount money.Money) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if amount.GreaterThan(w.balance) {
		return fmt.Errorf("wallet: insufficient balance %s for reservation %s", w.balance, amount)
	}
	w.balance = w.balance.Sub(amount)
	return nil
}

// Credit returns settlement or exit proceeds to the bankroll.
func (w *PaperWallet) Credit(amount money.Money) {
	if amount.IsNegative() {
		logger.Warnf("wallet: ignoring negative credit %s", amount)
		return
	}
	w.mu.Lock()
	w.balance = w.balance.Add(amount)
	w.mu.Unlock()
}
