package connector

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"ndax-connector/internal/core"
	"ndax-connector/internal/events"
)

func newTestLedger(t *testing.T) (*OrderLedger, *events.Log) {
	t.Helper()
	sink := events.NewLog()
	resolve := func(pair string) (core.Instrument, bool) {
		if pair == "BTC-USD" {
			return core.Instrument{Pair: "BTC-USD", BaseAsset: "BTC", QuoteAsset: "USD", VenueID: 1}, true
		}
		return core.Instrument{}, false
	}
	return NewOrderLedger(decimal.RequireFromString("0.02"), resolve, sink), sink
}

func mustTrack(t *testing.T, l *OrderLedger, clientID string, side core.Side) {
	t.Helper()
	err := l.StartTracking(clientID, "9849", "BTC-USD", side, decimal.RequireFromString("35000"), decimal.NewFromInt(1), core.Limit)
	if err != nil {
		t.Fatalf("StartTracking() = %v, want nil", err)
	}
}

func TestStartTrackingRejectsDuplicateClientOrderID(t *testing.T) {
	ledger, _ := newTestLedger(t)
	mustTrack(t, ledger, "3", core.Sell)
	err := ledger.StartTracking("3", "9850", "BTC-USD", core.Buy, decimal.NewFromInt(1), decimal.NewFromInt(1), core.Limit)
	if !errors.Is(err, core.ErrDuplicateClientOrderID) {
		t.Fatalf("StartTracking(duplicate) = %v, want ErrDuplicateClientOrderID", err)
	}
	if got := ledger.Len(); got != 1 {
		t.Fatalf("ledger.Len() = %d, want 1", got)
	}
	order, ok := ledger.Order("3")
	if !ok {
		t.Fatalf("order 3 not tracked")
	}
	if order.Side != core.Sell {
		t.Fatalf("duplicate StartTracking overwrote the original order: side = %q", order.Side)
	}
}

func TestApplyOrderStateCanceledRemovesAndEmits(t *testing.T) {
	ledger, sink := newTestLedger(t)
	mustTrack(t, ledger, "3", core.Sell)

	ledger.ApplyOrderState("3", core.OrderCanceled, "UserModified")

	if _, ok := ledger.Order("3"); ok {
		t.Fatalf("canceled order still tracked")
	}
	evs := sink.Events()
	if len(evs) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(evs))
	}
	cancel, ok := evs[0].(events.OrderCancelled)
	if !ok {
		t.Fatalf("event type = %T, want OrderCancelled", evs[0])
	}
	if cancel.ClientOrderID != "3" {
		t.Fatalf("cancel.ClientOrderID = %q, want %q", cancel.ClientOrderID, "3")
	}
	if cancel.ExchangeOrderID != "9849" {
		t.Fatalf("cancel.ExchangeOrderID = %q, want %q", cancel.ExchangeOrderID, "9849")
	}
}

func TestApplyOrderStateRejectedEmitsFailureWithReason(t *testing.T) {
	ledger, sink := newTestLedger(t)
	mustTrack(t, ledger, "3", core.Sell)

	ledger.ApplyOrderState("3", core.OrderRejected, "OtherRejected")

	if _, ok := ledger.Order("3"); ok {
		t.Fatalf("rejected order still tracked")
	}
	evs := sink.Events()
	if len(evs) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(evs))
	}
	failure, ok := evs[0].(events.OrderFailure)
	if !ok {
		t.Fatalf("event type = %T, want OrderFailure", evs[0])
	}
	if failure.ClientOrderID != "3" {
		t.Fatalf("failure.ClientOrderID = %q, want %q", failure.ClientOrderID, "3")
	}
	if failure.Reason != "OtherRejected" {
		t.Fatalf("failure.Reason = %q, want %q", failure.Reason, "OtherRejected")
	}
}

func TestApplyOrderStateNonTerminalUpdatesStateOnly(t *testing.T) {
	ledger, sink := newTestLedger(t)
	mustTrack(t, ledger, "3", core.Sell)

	ledger.ApplyOrderState("3", core.OrderWorking, "NewInputAccepted")

	order, ok := ledger.Order("3")
	if !ok {
		t.Fatalf("working order no longer tracked")
	}
	if order.LastState != core.OrderWorking {
		t.Fatalf("order.LastState = %q, want %q", order.LastState, core.OrderWorking)
	}
	if sink.Len() != 0 {
		t.Fatalf("len(events) = %d, want 0", sink.Len())
	}
}

func TestApplyOrderStateIgnoresUntrackedOrder(t *testing.T) {
	ledger, sink := newTestLedger(t)
	ledger.ApplyOrderState("99", core.OrderCanceled, "")
	if sink.Len() != 0 {
		t.Fatalf("len(events) = %d, want 0", sink.Len())
	}
}

func TestApplyTradeCompletesBuyOrder(t *testing.T) {
	ledger, sink := newTestLedger(t)
	mustTrack(t, ledger, "3", core.Buy)

	ledger.ApplyTrade("3", 213, decimal.NewFromInt(1), decimal.RequireFromString("35000"))

	if _, ok := ledger.Order("3"); ok {
		t.Fatalf("fully executed order still tracked")
	}
	evs := sink.Events()
	if len(evs) != 2 {
		t.Fatalf("len(events) = %d, want 2 (fill then completion)", len(evs))
	}
	fill, ok := evs[0].(events.OrderFilled)
	if !ok {
		t.Fatalf("events[0] type = %T, want OrderFilled", evs[0])
	}
	if !fill.Price.Equal(decimal.RequireFromString("35000")) {
		t.Fatalf("fill.Price = %s, want 35000", fill.Price)
	}
	if !fill.Amount.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("fill.Amount = %s, want 1", fill.Amount)
	}
	if fill.ExchangeTradeID != "213" {
		t.Fatalf("fill.ExchangeTradeID = %q, want %q", fill.ExchangeTradeID, "213")
	}
	if !fill.FeeRate.Equal(decimal.RequireFromString("0.02")) {
		t.Fatalf("fill.FeeRate = %s, want 0.02", fill.FeeRate)
	}
	done, ok := evs[1].(events.OrderCompleted)
	if !ok {
		t.Fatalf("events[1] type = %T, want OrderCompleted", evs[1])
	}
	if done.Kind() != events.KindBuyOrderCompleted {
		t.Fatalf("completion kind = %q, want %q", done.Kind(), events.KindBuyOrderCompleted)
	}
	if !done.BaseAmount.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("done.BaseAmount = %s, want 1", done.BaseAmount)
	}
	if !done.QuoteAmount.Equal(decimal.RequireFromString("35000")) {
		t.Fatalf("done.QuoteAmount = %s, want 35000", done.QuoteAmount)
	}
	// Buys pay a flat percentage of the base amount.
	if !done.Fee.Equal(decimal.RequireFromString("0.02")) {
		t.Fatalf("done.Fee = %s, want 0.02", done.Fee)
	}
	if done.BaseAsset != "BTC" || done.QuoteAsset != "USD" {
		t.Fatalf("assets = %s/%s, want BTC/USD", done.BaseAsset, done.QuoteAsset)
	}
	if done.FeeAsset != "USD" {
		t.Fatalf("done.FeeAsset = %q, want USD", done.FeeAsset)
	}
}

func TestApplyTradeCompletesSellOrder(t *testing.T) {
	ledger, sink := newTestLedger(t)
	mustTrack(t, ledger, "3", core.Sell)

	ledger.ApplyTrade("3", 213, decimal.NewFromInt(1), decimal.RequireFromString("35000"))

	evs := sink.Events()
	if len(evs) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(evs))
	}
	done, ok := evs[1].(events.OrderCompleted)
	if !ok {
		t.Fatalf("events[1] type = %T, want OrderCompleted", evs[1])
	}
	if done.Kind() != events.KindSellOrderCompleted {
		t.Fatalf("completion kind = %q, want %q", done.Kind(), events.KindSellOrderCompleted)
	}
	// Sells pay a percentage of base times quote: 1 * 35000 * 0.02.
	if !done.Fee.Equal(decimal.RequireFromString("700")) {
		t.Fatalf("done.Fee = %s, want 700", done.Fee)
	}
}

func TestApplyTradeDuplicateTradeIDIsNoOp(t *testing.T) {
	ledger, sink := newTestLedger(t)
	err := ledger.StartTracking("7", "100", "BTC-USD", core.Buy, decimal.RequireFromString("35000"), decimal.NewFromInt(2), core.Limit)
	if err != nil {
		t.Fatalf("StartTracking() = %v", err)
	}

	ledger.ApplyTrade("7", 500, decimal.NewFromInt(1), decimal.RequireFromString("35000"))
	ledger.ApplyTrade("7", 500, decimal.NewFromInt(1), decimal.RequireFromString("35000"))

	order, ok := ledger.Order("7")
	if !ok {
		t.Fatalf("partially filled order no longer tracked")
	}
	if !order.ExecutedBase.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("order.ExecutedBase = %s, want 1 (duplicate applied twice)", order.ExecutedBase)
	}
	if !order.ExecutedQuote.Equal(decimal.RequireFromString("35000")) {
		t.Fatalf("order.ExecutedQuote = %s, want 35000", order.ExecutedQuote)
	}
	if sink.Len() != 1 {
		t.Fatalf("len(events) = %d, want 1", sink.Len())
	}
}

func TestApplyTradePartialThenComplete(t *testing.T) {
	ledger, sink := newTestLedger(t)
	err := ledger.StartTracking("7", "100", "BTC-USD", core.Buy, decimal.RequireFromString("35000"), decimal.NewFromInt(2), core.Limit)
	if err != nil {
		t.Fatalf("StartTracking() = %v", err)
	}

	ledger.ApplyTrade("7", 500, decimal.NewFromInt(1), decimal.RequireFromString("34000"))
	order, ok := ledger.Order("7")
	if !ok {
		t.Fatalf("partially filled order no longer tracked")
	}
	if order.LastState != core.OrderWorking {
		t.Fatalf("order.LastState = %q, want %q", order.LastState, core.OrderWorking)
	}

	ledger.ApplyTrade("7", 501, decimal.NewFromInt(1), decimal.RequireFromString("36000"))
	if _, ok := ledger.Order("7"); ok {
		t.Fatalf("fully executed order still tracked")
	}

	evs := sink.Events()
	if len(evs) != 3 {
		t.Fatalf("len(events) = %d, want 3 (two fills, one completion)", len(evs))
	}
	done, ok := evs[2].(events.OrderCompleted)
	if !ok {
		t.Fatalf("events[2] type = %T, want OrderCompleted", evs[2])
	}
	if !done.BaseAmount.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("done.BaseAmount = %s, want 2", done.BaseAmount)
	}
	if !done.QuoteAmount.Equal(decimal.RequireFromString("70000")) {
		t.Fatalf("done.QuoteAmount = %s, want 70000", done.QuoteAmount)
	}

	// No further fill on the completed order may double-count.
	ledger.ApplyTrade("7", 502, decimal.NewFromInt(1), decimal.RequireFromString("36000"))
	if sink.Len() != 3 {
		t.Fatalf("len(events) = %d after post-completion fill, want 3", sink.Len())
	}
}

func TestApplyTradeClampsOverFill(t *testing.T) {
	ledger, sink := newTestLedger(t)
	mustTrack(t, ledger, "3", core.Buy)

	ledger.ApplyTrade("3", 900, decimal.NewFromInt(5), decimal.RequireFromString("35000"))

	evs := sink.Events()
	if len(evs) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(evs))
	}
	done := evs[1].(events.OrderCompleted)
	if !done.BaseAmount.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("done.BaseAmount = %s, want clamp to requested amount 1", done.BaseAmount)
	}
}

func TestApplyTradeIgnoresUntrackedOrder(t *testing.T) {
	ledger, sink := newTestLedger(t)
	ledger.ApplyTrade("99", 1, decimal.NewFromInt(1), decimal.NewFromInt(1))
	if sink.Len() != 0 {
		t.Fatalf("len(events) = %d, want 0", sink.Len())
	}
}

func TestApplyTradeFallsBackToPairSplitForUnknownInstrument(t *testing.T) {
	ledger, sink := newTestLedger(t)
	err := ledger.StartTracking("5", "200", "ETH-USDT", core.Buy, decimal.NewFromInt(2000), decimal.NewFromInt(1), core.Limit)
	if err != nil {
		t.Fatalf("StartTracking() = %v", err)
	}
	ledger.ApplyTrade("5", 1, decimal.NewFromInt(1), decimal.NewFromInt(2000))
	evs := sink.Events()
	if len(evs) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(evs))
	}
	done := evs[1].(events.OrderCompleted)
	if done.BaseAsset != "ETH" || done.QuoteAsset != "USDT" {
		t.Fatalf("assets = %s/%s, want ETH/USDT", done.BaseAsset, done.QuoteAsset)
	}
}
