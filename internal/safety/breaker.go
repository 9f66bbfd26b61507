// Package safety guards the stream reconnect loop with a circuit breaker so a
// persistently failing venue connection backs off instead of hammering it.
package safety

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type circuitState string

const (
	circuitClosed   circuitState = "closed"
	circuitOpen     circuitState = "open"
	circuitHalfOpen circuitState = "half_open"
)

const (
	defaultCooldown          = 30 * time.Second
	defaultHalfOpenSuccesses = 1
)

// Breaker tracks consecutive reconnect failures. After maxFailures it opens
// for a cooldown window, then half-opens and requires halfOpenSuccesses clean
// connections before closing again.
type Breaker struct {
	enabled bool

	mu              sync.Mutex
	maxFailures     int
	failures        int
	state           circuitState
	openedAt        time.Time
	openErr         error
	halfOpenSuccess int

	cooldown          time.Duration
	halfOpenSuccesses int
}

func NewBreaker(enabled bool, maxFailures int) *Breaker {
	return &Breaker{
		enabled:           enabled,
		maxFailures:       maxFailures,
		state:             circuitClosed,
		cooldown:          defaultCooldown,
		halfOpenSuccesses: defaultHalfOpenSuccesses,
	}
}

func (b *Breaker) SetRecovery(cooldown time.Duration, halfOpenSuccesses int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cooldown > 0 {
		b.cooldown = cooldown
	}
	if halfOpenSuccesses >= 1 {
		b.halfOpenSuccesses = halfOpenSuccesses
	}
}

// Allow reports whether a reconnect attempt may proceed. An open circuit whose
// cooldown has elapsed transitions to half-open and lets one probe through.
func (b *Breaker) Allow() error {
	if b == nil || !b.enabled {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != circuitOpen {
		return nil
	}
	if b.cooldown > 0 && time.Since(b.openedAt) < b.cooldown {
		err := b.openErr
		if err == nil {
			err = fmt.Errorf("%w: reconnect circuit is open", ErrCircuitOpen)
		}
		return err
	}
	b.state = circuitHalfOpen
	b.halfOpenSuccess = 0
	b.failures = 0
	b.openErr = nil
	log.Printf("level=INFO event=circuit_breaker_half_open cooldown_sec=%d", int64(b.cooldown/time.Second))
	return nil
}

// Record feeds the outcome of one reconnect attempt into the circuit.
// A nil err is a success; the returned error is non-nil when the circuit
// is (or just became) open.
func (b *Breaker) Record(err error) error {
	if b == nil || !b.enabled {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxFailures < 1 {
		return nil
	}

	if err == nil {
		switch b.state {
		case circuitHalfOpen:
			b.halfOpenSuccess++
			if b.halfOpenSuccess >= b.halfOpenSuccesses {
				log.Printf("level=INFO event=circuit_breaker_recovered previous_consecutive_failures=%d", b.failures)
				b.state = circuitClosed
				b.failures = 0
				b.openErr = nil
				b.openedAt = time.Time{}
				b.halfOpenSuccess = 0
			}
		case circuitClosed:
			b.failures = 0
		case circuitOpen:
			// A success cannot be observed while open; Allow gates the probe.
		}
		return nil
	}

	switch b.state {
	case circuitOpen:
		if b.openErr == nil {
			b.openErr = fmt.Errorf("%w: reconnect circuit is open", ErrCircuitOpen)
		}
		return b.openErr
	case circuitHalfOpen:
		return b.tripLocked(err, "half_open_probe_failed")
	default:
		b.failures++
		if b.failures >= b.maxFailures {
			return b.tripLocked(err, "failure_threshold_reached")
		}
		return nil
	}
}

func (b *Breaker) CooldownRemaining() time.Duration {
	if b == nil || !b.enabled {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != circuitOpen || b.cooldown <= 0 {
		return 0
	}
	elapsed := time.Since(b.openedAt)
	if elapsed >= b.cooldown {
		return 0
	}
	return b.cooldown - elapsed
}

func (b *Breaker) Reset() {
	if b == nil {
		return
	}
	_ = b.Record(nil)
}

func (b *Breaker) tripLocked(cause error, reason string) error {
	b.state = circuitOpen
	b.openedAt = time.Now().UTC()
	b.openErr = fmt.Errorf("%w: %s: %v", ErrCircuitOpen, reason, cause)
	b.halfOpenSuccess = 0
	log.Printf(
		"level=ERROR event=circuit_breaker_trip reason=%q threshold=%d last_error=%q",
		reason,
		b.maxFailures,
		cause.Error(),
	)
	return b.openErr
}
