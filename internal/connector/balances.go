package connector

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"ndax-connector/internal/core"
)

// BalanceLedger holds total and available balances per asset. Stream position
// events and REST snapshots both write here with overwrite semantics; the
// most recent report for an asset wins.
type BalanceLedger struct {
	mu        sync.RWMutex
	total     map[string]decimal.Decimal
	available map[string]decimal.Decimal
}

func NewBalanceLedger() *BalanceLedger {
	return &BalanceLedger{
		total:     make(map[string]decimal.Decimal),
		available: make(map[string]decimal.Decimal),
	}
}

// ApplyPosition overwrites one asset's balances from a position report.
// The report is authoritative for that asset at that instant.
func (l *BalanceLedger) ApplyPosition(asset string, amount, hold decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total[asset] = amount
	l.available[asset] = amount.Sub(hold)
}

// ReconcileSnapshot applies a REST balances snapshot. The snapshot is
// partial-assets: reported assets overwrite, unreported assets persist.
func (l *BalanceLedger) ReconcileSnapshot(entries []core.BalanceEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range entries {
		l.total[entry.Asset] = entry.Amount
		l.available[entry.Asset] = entry.Available()
	}
}

// Balance returns the total balance for the asset. An asset the venue never
// reported is a not-found condition, not a zero.
func (l *BalanceLedger) Balance(asset string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	amount, ok := l.total[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", core.ErrAssetNotFound, asset)
	}
	return amount, nil
}

// AvailableBalance returns total minus hold for the asset.
func (l *BalanceLedger) AvailableBalance(asset string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	amount, ok := l.available[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", core.ErrAssetNotFound, asset)
	}
	return amount, nil
}

// Balances returns a copy of all total balances.
func (l *BalanceLedger) Balances() map[string]decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(l.total))
	for asset, amount := range l.total {
		out[asset] = amount
	}
	return out
}
