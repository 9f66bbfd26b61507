package core

import (
	"github.com/shopspring/decimal"
)

type Side string

type OrderType string

// OrderState is the venue's order-state vocabulary as delivered on the wire.
type OrderState string

type NetworkStatus string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

const (
	Limit  OrderType = "Limit"
	Market OrderType = "Market"
)

const (
	OrderWorking       OrderState = "Working"
	OrderCanceled      OrderState = "Canceled"
	OrderRejected      OrderState = "Rejected"
	OrderExpired       OrderState = "Expired"
	OrderFullyExecuted OrderState = "FullyExecuted"
)

const (
	Connected    NetworkStatus = "CONNECTED"
	NotConnected NetworkStatus = "NOT_CONNECTED"
)

// Instrument maps a trading pair to its asset symbols and the venue's numeric id.
type Instrument struct {
	Pair       string
	BaseAsset  string
	QuoteAsset string
	VenueID    int64
}

// BalanceEntry is one asset-level balance report: total amount and the portion
// held against open orders.
type BalanceEntry struct {
	Asset  string
	Amount decimal.Decimal
	Hold   decimal.Decimal
}

// Available is the spendable portion of the entry.
func (b BalanceEntry) Available() decimal.Decimal {
	return b.Amount.Sub(b.Hold)
}

type BookLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBook is a depth snapshot for one pair. Book maintenance is owned by a
// separate data source; this core only registers and hands out books.
type OrderBook struct {
	Pair string
	Bids []BookLevel
	Asks []BookLevel
}
