package connector

import (
	"context"
	"time"

	"ndax-connector/internal/exchange/ndax"
)

// NDAXDialer adapts the venue client's user-stream constructor to the
// StreamDialer boundary the supervisor consumes.
type NDAXDialer struct {
	Client    *ndax.Client
	Keepalive time.Duration
}

func (d NDAXDialer) Dial(ctx context.Context) (Stream, error) {
	stream, err := d.Client.NewUserStream(ctx, d.Keepalive)
	if err != nil {
		return nil, err
	}
	return stream, nil
}
