package connector

import (
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"ndax-connector/internal/core"
	"ndax-connector/internal/events"
)

// OrderLedger owns every in-flight order. All mutation funnels through its
// methods under one mutex; both the stream dispatcher and REST reconciliation
// write here. Lifecycle events are emitted inside the critical section so
// their order matches the ledger transitions exactly.
type OrderLedger struct {
	mu      sync.Mutex
	orders  map[string]*InFlightOrder
	feeRate decimal.Decimal
	resolve func(pair string) (core.Instrument, bool)
	sink    events.Sink
}

func NewOrderLedger(feeRate decimal.Decimal, resolve func(pair string) (core.Instrument, bool), sink events.Sink) *OrderLedger {
	if sink == nil {
		sink = events.NewLog()
	}
	if resolve == nil {
		resolve = func(string) (core.Instrument, bool) { return core.Instrument{}, false }
	}
	return &OrderLedger{
		orders:  make(map[string]*InFlightOrder),
		feeRate: feeRate,
		resolve: resolve,
		sink:    sink,
	}
}

// StartTracking inserts a new order in the open state. A client order id that
// is already tracked is a logged no-op.
func (l *OrderLedger) StartTracking(clientOrderID, exchangeOrderID, pair string, side core.Side, price, amount decimal.Decimal, orderType core.OrderType) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.orders[clientOrderID]; exists {
		log.Printf("level=WARN event=order_already_tracked client_order_id=%q", clientOrderID)
		return core.ErrDuplicateClientOrderID
	}
	l.orders[clientOrderID] = newInFlightOrder(clientOrderID, exchangeOrderID, pair, side, price, amount, orderType)
	return nil
}

// StopTracking drops the order without emitting anything. Used when the
// owning layer abandons an order it never expects further events for.
func (l *OrderLedger) StopTracking(clientOrderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.orders, clientOrderID)
}

// ApplyOrderState maps a venue order-state report onto the local state
// machine. Reports for untracked orders are ignored.
func (l *OrderLedger) ApplyOrderState(clientOrderID string, state core.OrderState, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.orders[clientOrderID]
	if !ok {
		return
	}
	switch state {
	case core.OrderCanceled:
		order.LastState = core.OrderCanceled
		delete(l.orders, clientOrderID)
		l.sink.Post(events.OrderCancelled{
			ClientOrderID:   order.ClientOrderID,
			ExchangeOrderID: order.ExchangeOrderID,
		})
		log.Printf("level=INFO event=order_cancelled client_order_id=%q exchange_order_id=%q", order.ClientOrderID, order.ExchangeOrderID)
	case core.OrderRejected, core.OrderExpired:
		order.LastState = state
		order.failed = true
		delete(l.orders, clientOrderID)
		l.sink.Post(events.OrderFailure{
			ClientOrderID: order.ClientOrderID,
			OrderType:     order.OrderType,
			Reason:        reason,
		})
		log.Printf("level=INFO event=order_failed client_order_id=%q state=%q reason=%q", order.ClientOrderID, state, reason)
	default:
		order.LastState = state
	}
}

// ApplyTrade applies one execution report. Trade ids are applied at most once
// each; stream replays after a reconnect are no-ops. When cumulative executed
// base reaches the requested amount the order completes: one completion event,
// one removal.
func (l *OrderLedger) ApplyTrade(clientOrderID string, tradeID int64, quantity, price decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.orders[clientOrderID]
	if !ok {
		return
	}
	if order.HasTrade(tradeID) {
		return
	}
	order.tradeIDs[tradeID] = struct{}{}

	remaining := order.Amount.Sub(order.ExecutedBase)
	if quantity.Cmp(remaining) > 0 {
		log.Printf(
			"level=WARN event=fill_exceeds_order client_order_id=%q trade_id=%d quantity=%s remaining=%s",
			clientOrderID, tradeID, quantity.String(), remaining.String(),
		)
		quantity = remaining
	}
	if quantity.Sign() <= 0 {
		return
	}

	quote := quantity.Mul(price)
	order.ExecutedBase = order.ExecutedBase.Add(quantity)
	order.ExecutedQuote = order.ExecutedQuote.Add(quote)

	// The buy/sell fee asymmetry reproduces observed venue accounting:
	// buys pay a flat percentage of the base amount, sells a percentage of
	// base times quote.
	var fee decimal.Decimal
	if order.Side == core.Buy {
		fee = quantity.Mul(l.feeRate)
	} else {
		fee = quantity.Mul(quote).Mul(l.feeRate)
	}
	order.FeePaid = order.FeePaid.Add(fee)

	inst := l.instrumentFor(order.Pair)
	if order.FeeAsset == "" {
		order.FeeAsset = inst.QuoteAsset
	}

	l.sink.Post(events.OrderFilled{
		ClientOrderID:   order.ClientOrderID,
		ExchangeTradeID: strconv.FormatInt(tradeID, 10),
		Pair:            order.Pair,
		Side:            order.Side,
		OrderType:       order.OrderType,
		Price:           price,
		Amount:          quantity,
		FeeRate:         l.feeRate,
		Fee:             fee,
		FeeAsset:        order.FeeAsset,
	})

	if order.ExecutedBase.Cmp(order.Amount) >= 0 {
		order.LastState = core.OrderFullyExecuted
		delete(l.orders, clientOrderID)
		l.sink.Post(events.OrderCompleted{
			ClientOrderID:   order.ClientOrderID,
			ExchangeOrderID: order.ExchangeOrderID,
			Side:            order.Side,
			OrderType:       order.OrderType,
			BaseAsset:       inst.BaseAsset,
			QuoteAsset:      inst.QuoteAsset,
			FeeAsset:        order.FeeAsset,
			BaseAmount:      order.ExecutedBase,
			QuoteAmount:     order.ExecutedQuote,
			Fee:             order.FeePaid,
		})
		log.Printf(
			"level=INFO event=order_completed client_order_id=%q side=%q executed_base=%s executed_quote=%s fee_paid=%s",
			order.ClientOrderID, order.Side, order.ExecutedBase.String(), order.ExecutedQuote.String(), order.FeePaid.String(),
		)
	}
}

// Order returns a copy of one tracked order.
func (l *OrderLedger) Order(clientOrderID string) (InFlightOrder, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.orders[clientOrderID]
	if !ok {
		return InFlightOrder{}, false
	}
	return order.snapshot(), true
}

// Orders returns a copy of every tracked order keyed by client order id.
func (l *OrderLedger) Orders() map[string]InFlightOrder {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]InFlightOrder, len(l.orders))
	for id, order := range l.orders {
		out[id] = order.snapshot()
	}
	return out
}

func (l *OrderLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.orders)
}

// instrumentFor resolves pair assets via the registry, falling back to
// splitting the canonical BASE-QUOTE pair form.
func (l *OrderLedger) instrumentFor(pair string) core.Instrument {
	if inst, ok := l.resolve(pair); ok {
		return inst
	}
	inst := core.Instrument{Pair: pair}
	if base, quote, ok := strings.Cut(pair, "-"); ok {
		inst.BaseAsset = base
		inst.QuoteAsset = quote
	}
	return inst
}
