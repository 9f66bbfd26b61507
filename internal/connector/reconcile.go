package connector

import (
	"context"
	"fmt"
	"log"
	"time"

	"ndax-connector/internal/core"
)

// runPollLoop drives the adaptive scheduler off a wall-clock heartbeat and
// fires REST reconciliation whenever a refresh falls due. A failed REST call
// is logged and retried on the next due tick; it never disturbs the stream
// dispatcher.
func (c *Connector) runPollLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			c.scheduler.Tick(now.UTC())
			if !c.scheduler.ConsumeDue() {
				continue
			}
			if err := c.Reconcile(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("level=WARN event=reconcile_failed err=%q", err.Error())
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Reconcile runs one REST refresh: resolve the account id if needed, fetch
// the balances snapshot, merge it into the balance ledger.
func (c *Connector) Reconcile(ctx context.Context) error {
	accountID, err := c.ensureAccountID(ctx)
	if err != nil {
		return err
	}
	entries, err := c.rest.AccountPositions(ctx, accountID)
	if err != nil {
		return fmt.Errorf("fetch account positions: %w", err)
	}
	c.balances.ReconcileSnapshot(entries)
	return nil
}

// ensureAccountID resolves and caches the own account id. Nothing
// authenticated can proceed without it, so failure here is loud.
func (c *Connector) ensureAccountID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	if c.accountSet {
		id := c.accountID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	id, err := c.rest.AccountID(ctx)
	if err != nil {
		log.Printf("level=ERROR event=account_id_unresolved err=%q", err.Error())
		if ctx.Err() != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", core.ErrAccountNotResolved, err)
	}
	c.setAccountID(id)
	return id, nil
}

func (c *Connector) setAccountID(id int64) {
	if id == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accountID = id
	c.accountSet = true
}

// AccountID returns the cached account id, zero when not yet resolved.
func (c *Connector) AccountID() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accountID, c.accountSet
}
