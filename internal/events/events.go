// Package events carries the externally observable order lifecycle
// notifications derived from ledger state transitions.
package events

import (
	"github.com/shopspring/decimal"

	"ndax-connector/internal/core"
)

type Kind string

const (
	KindOrderFilled        Kind = "order_filled"
	KindOrderCancelled     Kind = "order_cancelled"
	KindOrderFailure       Kind = "order_failure"
	KindBuyOrderCompleted  Kind = "buy_order_completed"
	KindSellOrderCompleted Kind = "sell_order_completed"
)

type Event interface {
	Kind() Kind
	OrderID() string
}

// OrderFilled reports one trade execution applied to a tracked order.
type OrderFilled struct {
	ClientOrderID   string
	ExchangeTradeID string
	Pair            string
	Side            core.Side
	OrderType       core.OrderType
	Price           decimal.Decimal
	Amount          decimal.Decimal
	FeeRate         decimal.Decimal
	Fee             decimal.Decimal
	FeeAsset        string
}

func (e OrderFilled) Kind() Kind      { return KindOrderFilled }
func (e OrderFilled) OrderID() string { return e.ClientOrderID }

// OrderCancelled reports a tracked order leaving the ledger as cancelled.
type OrderCancelled struct {
	ClientOrderID   string
	ExchangeOrderID string
}

func (e OrderCancelled) Kind() Kind      { return KindOrderCancelled }
func (e OrderCancelled) OrderID() string { return e.ClientOrderID }

// OrderFailure reports a terminal rejection, carrying the venue's reason.
type OrderFailure struct {
	ClientOrderID string
	OrderType     core.OrderType
	Reason        string
}

func (e OrderFailure) Kind() Kind      { return KindOrderFailure }
func (e OrderFailure) OrderID() string { return e.ClientOrderID }

// OrderCompleted reports full execution of a tracked order with its
// cumulative totals. Side selects the buy or sell completion kind.
type OrderCompleted struct {
	ClientOrderID   string
	ExchangeOrderID string
	Side            core.Side
	OrderType       core.OrderType
	BaseAsset       string
	QuoteAsset      string
	FeeAsset        string
	BaseAmount      decimal.Decimal
	QuoteAmount     decimal.Decimal
	Fee             decimal.Decimal
}

func (e OrderCompleted) Kind() Kind {
	if e.Side == core.Sell {
		return KindSellOrderCompleted
	}
	return KindBuyOrderCompleted
}

func (e OrderCompleted) OrderID() string { return e.ClientOrderID }

// Sink receives lifecycle events in emission order.
type Sink interface {
	Post(Event)
}
