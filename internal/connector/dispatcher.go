package connector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"ndax-connector/internal/core"
	"ndax-connector/internal/exchange/ndax"
)

const dispatcherRetryDelay = time.Second

// userStreamEventLoop is the single logical consumer of the inbound frame
// queue. Errors local to one venue message never abort the stream: they are
// caught at this boundary, logged at network severity, and the loop restarts
// after a fixed pause. Only cancellation and authentication failure propagate.
func (c *Connector) userStreamEventLoop(ctx context.Context, frames <-chan []byte, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-frames:
			if !ok {
				return errors.New("user stream closed")
			}
			c.scheduler.RecordStreamActivity(time.Now().UTC())
			if err := c.handleFrame(raw); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				if errors.Is(err, core.ErrAuthenticationFailed) {
					return err
				}
				log.Printf("level=NETWORK event=user_stream_error err=%q msg=%q", err.Error(), "Unknown error. Retrying after 1 seconds.")
				select {
				case <-time.After(dispatcherRetryDelay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		case err, ok := <-errs:
			if !ok {
				// A closed error channel must not spin the select.
				errs = nil
				continue
			}
			if err != nil {
				return err
			}
		}
	}
}

// handleFrame decodes one envelope and routes it by endpoint name. Unknown
// endpoints are logged and skipped so venue protocol additions never crash
// the stream.
func (c *Connector) handleFrame(raw []byte) error {
	env, err := ndax.DecodeEnvelope(raw)
	if err != nil {
		return err
	}
	switch ndax.KindOf(env.Endpoint) {
	case ndax.EventAuthResult:
		var result ndax.AuthResult
		if err := ndax.DecodePayload(env, &result); err != nil {
			return err
		}
		if !result.Authenticated {
			reason := result.ErrorMsg
			if reason == "" {
				reason = "venue reported Authenticated=false"
			}
			return fmt.Errorf("%w: %s", core.ErrAuthenticationFailed, reason)
		}
		c.setAccountID(result.User.AccountID)
	case ndax.EventAccountPosition:
		var position ndax.AccountPosition
		if err := ndax.DecodePayload(env, &position); err != nil {
			return err
		}
		c.balances.ApplyPosition(position.ProductSymbol, position.Amount, position.Hold)
	case ndax.EventOrderState:
		var state ndax.OrderState
		if err := ndax.DecodePayload(env, &state); err != nil {
			return err
		}
		c.orders.ApplyOrderState(
			strconv.FormatInt(state.ClientOrderID, 10),
			core.OrderState(state.OrderState),
			state.ChangeReason,
		)
	case ndax.EventOrderTrade:
		var trade ndax.OrderTrade
		if err := ndax.DecodePayload(env, &trade); err != nil {
			return err
		}
		c.orders.ApplyTrade(
			strconv.FormatInt(trade.ClientOrderID, 10),
			trade.TradeID,
			trade.Quantity,
			trade.Price,
		)
	default:
		log.Printf("level=DEBUG event=unknown_stream_event raw=%q", string(raw))
	}
	return nil
}
