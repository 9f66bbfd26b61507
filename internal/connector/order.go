package connector

import (
	"github.com/shopspring/decimal"

	"ndax-connector/internal/core"
)

// InFlightOrder is the authoritative local record of one submitted order,
// keyed by its client order id for the process lifetime.
type InFlightOrder struct {
	ClientOrderID   string
	ExchangeOrderID string
	Pair            string
	Side            core.Side
	OrderType       core.OrderType
	Price           decimal.Decimal
	Amount          decimal.Decimal
	ExecutedBase    decimal.Decimal
	ExecutedQuote   decimal.Decimal
	FeePaid         decimal.Decimal
	FeeAsset        string
	LastState       core.OrderState

	tradeIDs map[int64]struct{}
	failed   bool
}

func newInFlightOrder(clientOrderID, exchangeOrderID, pair string, side core.Side, price, amount decimal.Decimal, orderType core.OrderType) *InFlightOrder {
	return &InFlightOrder{
		ClientOrderID:   clientOrderID,
		ExchangeOrderID: exchangeOrderID,
		Pair:            pair,
		Side:            side,
		OrderType:       orderType,
		Price:           price,
		Amount:          amount,
		ExecutedBase:    decimal.Zero,
		ExecutedQuote:   decimal.Zero,
		FeePaid:         decimal.Zero,
		LastState:       core.OrderWorking,
		tradeIDs:        make(map[int64]struct{}),
	}
}

// IsDone reports whether the order reached any terminal state.
func (o *InFlightOrder) IsDone() bool {
	switch o.LastState {
	case core.OrderFullyExecuted, core.OrderCanceled, core.OrderRejected, core.OrderExpired:
		return true
	}
	return false
}

func (o *InFlightOrder) IsCancelled() bool {
	return o.LastState == core.OrderCanceled
}

// IsFailure distinguishes terminal failure from terminal success.
func (o *InFlightOrder) IsFailure() bool {
	return o.failed
}

// HasTrade reports whether the exchange trade id was already applied.
func (o *InFlightOrder) HasTrade(tradeID int64) bool {
	_, ok := o.tradeIDs[tradeID]
	return ok
}

// snapshot returns a copy safe to hand to callers; the applied-trade set is
// duplicated so the ledger's copy cannot be mutated through it.
func (o *InFlightOrder) snapshot() InFlightOrder {
	cp := *o
	cp.tradeIDs = make(map[int64]struct{}, len(o.tradeIDs))
	for id := range o.tradeIDs {
		cp.tradeIDs[id] = struct{}{}
	}
	return cp
}
