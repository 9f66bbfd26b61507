// Package connector keeps the local order and balance ledgers synchronized
// with the venue over two channels: the authenticated websocket user stream
// for low-latency deltas and an adaptively scheduled REST poll for
// authoritative snapshots.
package connector

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"ndax-connector/internal/core"
	"ndax-connector/internal/events"
	"ndax-connector/internal/safety"
)

const (
	authRetryDelay       = time.Second
	maxReconnectInterval = 30 * time.Second
)

// RESTClient is the snapshot side of the venue, consumed at its boundary.
type RESTClient interface {
	AccountID(ctx context.Context) (int64, error)
	AccountPositions(ctx context.Context, accountID int64) ([]core.BalanceEntry, error)
	Ping(ctx context.Context) core.NetworkStatus
}

// Stream is one authenticated user-stream session.
type Stream interface {
	Frames(ctx context.Context) (<-chan []byte, <-chan error)
	Close() error
}

// StreamDialer opens a new authenticated session. Authentication failure must
// surface as core.ErrAuthenticationFailed.
type StreamDialer interface {
	Dial(ctx context.Context) (Stream, error)
}

type Options struct {
	ShortPollInterval time.Duration
	LongPollInterval  time.Duration
	StreamRecency     time.Duration
	Heartbeat         time.Duration
	// FeeRate is applied as given; zero means fee-free accrual. Defaulting
	// is the config layer's job.
	FeeRate           decimal.Decimal
	AuthRetryAttempts int
	Instruments       []core.Instrument
	Events            events.Sink
	Breaker           *safety.Breaker
}

// Connector is the owned aggregate both activity sources mutate. External
// callers get copies or read-only views, never the live maps.
type Connector struct {
	rest   RESTClient
	dialer StreamDialer

	orders    *OrderLedger
	balances  *BalanceLedger
	books     *bookRegistry
	scheduler *pollScheduler
	sink      events.Sink
	breaker   *safety.Breaker

	heartbeat         time.Duration
	authRetryAttempts int

	mu          sync.Mutex
	instruments map[string]core.Instrument
	accountID   int64
	accountSet  bool
}

func New(rest RESTClient, dialer StreamDialer, opts Options) *Connector {
	sink := opts.Events
	if sink == nil {
		sink = events.NewLog()
	}
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = time.Second
	}
	authRetries := opts.AuthRetryAttempts
	if authRetries <= 0 {
		authRetries = 3
	}
	instruments := make(map[string]core.Instrument, len(opts.Instruments))
	for _, inst := range opts.Instruments {
		instruments[inst.Pair] = inst
	}
	c := &Connector{
		rest:              rest,
		dialer:            dialer,
		balances:          NewBalanceLedger(),
		books:             newBookRegistry(),
		scheduler:         newPollScheduler(opts.ShortPollInterval, opts.LongPollInterval, opts.StreamRecency),
		sink:              sink,
		breaker:           opts.Breaker,
		heartbeat:         heartbeat,
		authRetryAttempts: authRetries,
		instruments:       instruments,
	}
	c.orders = NewOrderLedger(opts.FeeRate, c.lookupInstrument, sink)
	return c
}

// NewClientOrderID mints a process-unique client order id.
func NewClientOrderID() string {
	return "nc-" + uuid.NewString()
}

func (c *Connector) lookupInstrument(pair string) (core.Instrument, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.instruments[pair]
	return inst, ok
}

// RegisterInstrument adds or replaces a pair's symbol mapping.
func (c *Connector) RegisterInstrument(inst core.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instruments[inst.Pair] = inst
}

// StartTrackingOrder inserts a newly submitted order into the in-flight ledger.
func (c *Connector) StartTrackingOrder(clientOrderID, exchangeOrderID, pair string, side core.Side, price, amount decimal.Decimal, orderType core.OrderType) error {
	return c.orders.StartTracking(clientOrderID, exchangeOrderID, pair, side, price, amount, orderType)
}

// StopTrackingOrder abandons a tracked order without emitting events.
func (c *Connector) StopTrackingOrder(clientOrderID string) {
	c.orders.StopTracking(clientOrderID)
}

// InFlightOrders returns a copy of the ledger keyed by client order id.
func (c *Connector) InFlightOrders() map[string]InFlightOrder {
	return c.orders.Orders()
}

func (c *Connector) GetBalance(asset string) (decimal.Decimal, error) {
	return c.balances.Balance(asset)
}

func (c *Connector) GetAvailableBalance(asset string) (decimal.Decimal, error) {
	return c.balances.AvailableBalance(asset)
}

func (c *Connector) RegisterOrderBook(pair string, book *core.OrderBook) {
	c.books.Register(pair, book)
}

func (c *Connector) GetOrderBook(pair string) (*core.OrderBook, error) {
	return c.books.Get(pair)
}

// Tick drives the adaptive poll scheduler; callers invoke it once per
// heartbeat with the current timestamp.
func (c *Connector) Tick(now time.Time) {
	c.scheduler.Tick(now)
}

// CheckNetwork classifies venue reachability via the lightweight ping.
func (c *Connector) CheckNetwork(ctx context.Context) core.NetworkStatus {
	return c.rest.Ping(ctx)
}

// Run starts the two activity sources: the user-stream dispatcher and the
// scheduler-driven REST reconciliation. They share only the synchronized
// ledgers and stop together when either fails terminally or ctx is cancelled.
func (c *Connector) Run(ctx context.Context) error {
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(c.runUserStream)
	p.Go(c.runPollLoop)
	return p.Wait()
}

// runUserStream keeps one authenticated session alive: exponential backoff on
// transport faults, fixed 1-second delay and a bounded attempt budget on
// authentication failures, circuit breaker across the whole reconnect path.
func (c *Connector) runUserStream(ctx context.Context) error {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = maxReconnectInterval
	authFailures := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.breaker.Allow(); err != nil {
			wait := c.breaker.CooldownRemaining()
			if wait <= 0 {
				wait = time.Second
			}
			log.Printf("level=WARN event=reconnect_blocked err=%q wait=%s", err.Error(), wait)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		stream, err := c.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			_ = c.breaker.Record(err)
			if errors.Is(err, core.ErrAuthenticationFailed) {
				authFailures++
				if authFailures >= c.authRetryAttempts {
					log.Printf("level=ERROR event=user_stream_auth_exhausted attempts=%d err=%q", authFailures, err.Error())
					return err
				}
				log.Printf("level=NETWORK event=user_stream_auth_failed err=%q msg=%q", err.Error(), "Retrying after 1 seconds.")
				select {
				case <-time.After(authRetryDelay):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			wait := backoffCfg.NextBackOff()
			if wait == backoff.Stop {
				wait = maxReconnectInterval
			}
			log.Printf("level=NETWORK event=user_stream_connect_failed err=%q wait=%s", err.Error(), wait)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		authFailures = 0
		backoffCfg.Reset()
		c.breaker.Reset()

		frames, errs := stream.Frames(ctx)
		err = c.userStreamEventLoop(ctx, frames, errs)
		_ = stream.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, core.ErrAuthenticationFailed) {
			// Mid-stream deauthentication counts against the auth budget.
			authFailures++
			if authFailures >= c.authRetryAttempts {
				return err
			}
		}
		if err != nil {
			_ = c.breaker.Record(err)
			log.Printf("level=NETWORK event=user_stream_disconnected err=%q", err.Error())
		}
		wait := backoffCfg.NextBackOff()
		if wait == backoff.Stop {
			wait = maxReconnectInterval
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
