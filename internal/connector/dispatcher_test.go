package connector

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ndax-connector/internal/core"
	"ndax-connector/internal/events"
)

func envelopeFrame(t *testing.T, msgType int, seq int64, endpoint string, payload any) []byte {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame, err := json.Marshal(map[string]any{
		"m": msgType,
		"i": seq,
		"n": endpoint,
		"o": string(body),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return frame
}

func newTestConnector(t *testing.T) (*Connector, *events.Log) {
	t.Helper()
	sink := events.NewLog()
	conn := New(&fakeREST{}, nil, Options{
		FeeRate: decimal.RequireFromString("0.02"),
		Instruments: []core.Instrument{
			{Pair: "BTC-USD", BaseAsset: "BTC", QuoteAsset: "USD", VenueID: 1},
		},
		Events: sink,
	})
	return conn, sink
}

// drainLoop feeds the frames through the dispatcher and waits for it to exit
// so all side effects are visible to the caller.
func drainLoop(t *testing.T, conn *Connector, frames ...[]byte) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frameCh := make(chan []byte)
	errCh := make(chan error)
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- conn.userStreamEventLoop(ctx, frameCh, errCh)
	}()
	for _, frame := range frames {
		frameCh <- frame
	}
	close(frameCh)
	select {
	case err := <-loopDone:
		return err
	case <-ctx.Done():
		t.Fatalf("dispatcher loop did not exit")
		return nil
	}
}

func TestDispatcherAppliesAccountPositionEvent(t *testing.T) {
	conn, _ := newTestConnector(t)

	err := drainLoop(t, conn, envelopeFrame(t, 3, 2, "AccountPositionEvent", map[string]any{
		"OMSId":         1,
		"AccountId":     5,
		"ProductSymbol": "BTC",
		"ProductId":     1,
		"Amount":        10499.1,
		"Hold":          2.1,
	}))
	if err == nil || err.Error() != "user stream closed" {
		t.Fatalf("loop exit = %v, want user stream closed", err)
	}

	balance, err := conn.GetBalance("BTC")
	if err != nil {
		t.Fatalf("GetBalance(BTC) error = %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("10499.1")) {
		t.Fatalf("GetBalance(BTC) = %s, want 10499.1", balance)
	}
	available, err := conn.GetAvailableBalance("BTC")
	if err != nil {
		t.Fatalf("GetAvailableBalance(BTC) error = %v", err)
	}
	if !available.Equal(decimal.RequireFromString("10497")) {
		t.Fatalf("GetAvailableBalance(BTC) = %s, want 10497", available)
	}
	if conn.scheduler.LastStreamActivity().IsZero() {
		t.Fatalf("stream activity not recorded")
	}
}

func TestDispatcherCancelsInFlightOrderOnOrderStateEvent(t *testing.T) {
	conn, sink := newTestConnector(t)
	err := conn.StartTrackingOrder("3", "9849", "BTC-USD", core.Sell, decimal.RequireFromString("35000"), decimal.NewFromInt(1), core.Limit)
	if err != nil {
		t.Fatalf("StartTrackingOrder() = %v", err)
	}

	loopErr := drainLoop(t, conn, envelopeFrame(t, 3, 2, "OrderStateEvent", map[string]any{
		"Side":          "Sell",
		"OrderId":       9849,
		"Price":         35000,
		"Quantity":      1,
		"Instrument":    1,
		"Account":       4,
		"OrderType":     "Limit",
		"ClientOrderId": 3,
		"OrderState":    "Canceled",
		"OrigQuantity":  1,
		"ChangeReason":  "NewInputAccepted",
	}))
	if loopErr == nil || loopErr.Error() != "user stream closed" {
		t.Fatalf("loop exit = %v, want user stream closed", loopErr)
	}

	if _, tracked := conn.InFlightOrders()["3"]; tracked {
		t.Fatalf("canceled order still in flight")
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
}

func TestDispatcherFailsInFlightOrderOnRejectedState(t *testing.T) {
	conn, sink := newTestConnector(t)
	if err := conn.StartTrackingOrder("3", "9849", "BTC-USD", core.Sell, decimal.RequireFromString("35000"), decimal.NewFromInt(1), core.Limit); err != nil {
		t.Fatalf("StartTrackingOrder() = %v", err)
	}

	loopErr := drainLoop(t, conn, envelopeFrame(t, 3, 2, "OrderStateEvent", map[string]any{
		"ClientOrderId": 3,
		"OrderState":    "Rejected",
		"ChangeReason":  "OtherRejected",
	}))
	if loopErr == nil || loopErr.Error() != "user stream closed" {
		t.Fatalf("loop exit = %v, want user stream closed", loopErr)
	}

	evs := sink.Events()
	if len(evs) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(evs))
	}
	failure, ok := evs[0].(events.OrderFailure)
	if !ok {
		t.Fatalf("event type = %T, want OrderFailure", evs[0])
	}
	if failure.Reason != "OtherRejected" {
		t.Fatalf("failure.Reason = %q, want OtherRejected", failure.Reason)
	}
}

func TestDispatcherFillsAndCompletesOrderOnTradeEvent(t *testing.T) {
	conn, sink := newTestConnector(t)
	if err := conn.StartTrackingOrder("3", "9848", "BTC-USD", core.Buy, decimal.RequireFromString("35000"), decimal.NewFromInt(1), core.Limit); err != nil {
		t.Fatalf("StartTrackingOrder() = %v", err)
	}

	loopErr := drainLoop(t, conn, envelopeFrame(t, 3, 2, "OrderTradeEvent", map[string]any{
		"OMSId":         1,
		"TradeId":       213,
		"OrderId":       9848,
		"AccountId":     4,
		"ClientOrderId": 3,
		"InstrumentId":  1,
		"Side":          "Buy",
		"Quantity":      1,
		"Price":         35000,
		"Value":         35000,
	}))
	if loopErr == nil || loopErr.Error() != "user stream closed" {
		t.Fatalf("loop exit = %v, want user stream closed", loopErr)
	}

	if _, tracked := conn.InFlightOrders()["3"]; tracked {
		t.Fatalf("fully executed order still in flight")
	}
	evs := sink.Events()
	if len(evs) != 2 {
		t.Fatalf("len(events) = %d, want 2 (fill then completion)", len(evs))
	}
	if _, ok := evs[0].(events.OrderFilled); !ok {
		t.Fatalf("events[0] type = %T, want OrderFilled", evs[0])
	}
	done, ok := evs[1].(events.OrderCompleted)
	if !ok {
		t.Fatalf("events[1] type = %T, want OrderCompleted", evs[1])
	}
	if done.Kind() != events.KindBuyOrderCompleted {
		t.Fatalf("completion kind = %q, want %q", done.Kind(), events.KindBuyOrderCompleted)
	}
}

func TestDispatcherIgnoresUnknownEndpoint(t *testing.T) {
	conn, _ := newTestConnector(t)

	// An unknown endpoint must not abort the loop; the position event after
	// it still applies.
	err := drainLoop(t, conn,
		envelopeFrame(t, 3, 99, "UnknownEndpoint", map[string]any{}),
		envelopeFrame(t, 3, 100, "AccountPositionEvent", map[string]any{
			"ProductSymbol": "ETH",
			"Amount":        5,
			"Hold":          1,
		}),
	)
	if err == nil || err.Error() != "user stream closed" {
		t.Fatalf("loop exit = %v, want user stream closed", err)
	}
	balance, err := conn.GetBalance("ETH")
	if err != nil {
		t.Fatalf("GetBalance(ETH) error = %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("GetBalance(ETH) = %s, want 5", balance)
	}
}

func TestDispatcherSurvivesMalformedFrame(t *testing.T) {
	conn, _ := newTestConnector(t)

	// A frame that fails to decode is logged and retried past; the position
	// event behind it still applies.
	err := drainLoop(t, conn,
		[]byte(`{not json`),
		envelopeFrame(t, 3, 2, "AccountPositionEvent", map[string]any{
			"ProductSymbol": "BTC",
			"Amount":        10,
			"Hold":          1,
		}),
	)
	if err == nil || err.Error() != "user stream closed" {
		t.Fatalf("loop exit = %v, want user stream closed", err)
	}
	balance, err := conn.GetBalance("BTC")
	if err != nil {
		t.Fatalf("GetBalance(BTC) error = %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("GetBalance(BTC) = %s, want 10", balance)
	}
}

func TestDispatcherToleratesClosedErrorChannel(t *testing.T) {
	conn, _ := newTestConnector(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frameCh := make(chan []byte)
	errCh := make(chan error)
	close(errCh)
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- conn.userStreamEventLoop(ctx, frameCh, errCh)
	}()

	frameCh <- envelopeFrame(t, 3, 2, "AccountPositionEvent", map[string]any{
		"ProductSymbol": "ETH",
		"Amount":        5,
		"Hold":          0,
	})
	close(frameCh)

	select {
	case err := <-loopDone:
		if err == nil || err.Error() != "user stream closed" {
			t.Fatalf("loop exit = %v, want user stream closed", err)
		}
	case <-ctx.Done():
		t.Fatalf("dispatcher hung after error channel closed")
	}
	balance, err := conn.GetBalance("ETH")
	if err != nil {
		t.Fatalf("GetBalance(ETH) error = %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("GetBalance(ETH) = %s, want 5", balance)
	}
}

func TestDispatcherPropagatesCancellation(t *testing.T) {
	conn, _ := newTestConnector(t)
	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- conn.userStreamEventLoop(ctx, make(chan []byte), make(chan error))
	}()
	cancel()
	select {
	case err := <-loopDone:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("loop exit = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("dispatcher did not propagate cancellation")
	}
}

func TestDispatcherReturnsAuthenticationFailure(t *testing.T) {
	conn, _ := newTestConnector(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frameCh := make(chan []byte, 1)
	frameCh <- envelopeFrame(t, 1, 1, "AuthenticateUser", map[string]any{
		"Authenticated": false,
		"errormsg":      "invalid credentials",
	})
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- conn.userStreamEventLoop(ctx, frameCh, make(chan error))
	}()
	select {
	case err := <-loopDone:
		if !errors.Is(err, core.ErrAuthenticationFailed) {
			t.Fatalf("loop exit = %v, want ErrAuthenticationFailed", err)
		}
	case <-ctx.Done():
		t.Fatalf("dispatcher did not surface authentication failure")
	}
}

func TestDispatcherCachesAccountIDFromAuthReply(t *testing.T) {
	conn, _ := newTestConnector(t)
	err := drainLoop(t, conn, envelopeFrame(t, 1, 1, "AuthenticateUser", map[string]any{
		"Authenticated": true,
		"User": map[string]any{
			"UserId":    492,
			"AccountId": 528,
			"OMSId":     1,
		},
	}))
	if err == nil || err.Error() != "user stream closed" {
		t.Fatalf("loop exit = %v, want user stream closed", err)
	}
	id, ok := conn.AccountID()
	if !ok || id != 528 {
		t.Fatalf("AccountID() = %d, %v, want 528, true", id, ok)
	}
}

func TestDispatcherSurfacesTransportErrors(t *testing.T) {
	conn, _ := newTestConnector(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errCh := make(chan error, 1)
	errCh <- errors.New("read: connection reset")
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- conn.userStreamEventLoop(ctx, make(chan []byte), errCh)
	}()
	select {
	case err := <-loopDone:
		if err == nil || err.Error() != "read: connection reset" {
			t.Fatalf("loop exit = %v, want transport error", err)
		}
	case <-ctx.Done():
		t.Fatalf("dispatcher did not surface transport error")
	}
}
