package connector

import (
	"sync"
	"time"
)

const (
	// DefaultShortPollInterval applies while the user stream is silent: a dead
	// stream forces frequent REST reconciliation.
	DefaultShortPollInterval = 5 * time.Second
	// DefaultLongPollInterval applies while the stream is actively delivering
	// events and can be trusted to keep the ledger fresh.
	DefaultLongPollInterval = 120 * time.Second
	// DefaultStreamRecency is how recent the stream's last activity must be
	// for the long interval to apply.
	DefaultStreamRecency = 60 * time.Second
)

// pollScheduler decides on each heartbeat whether a REST refresh is due.
type pollScheduler struct {
	mu sync.Mutex

	shortInterval time.Duration
	longInterval  time.Duration
	streamRecency time.Duration

	lastTimestamp      time.Time
	lastPoll           time.Time
	pollDue            bool
	lastStreamActivity time.Time
}

func newPollScheduler(short, long, recency time.Duration) *pollScheduler {
	if short <= 0 {
		short = DefaultShortPollInterval
	}
	if long <= 0 {
		long = DefaultLongPollInterval
	}
	if recency <= 0 {
		recency = DefaultStreamRecency
	}
	return &pollScheduler{
		shortInterval: short,
		longInterval:  long,
		streamRecency: recency,
	}
}

// Tick records one heartbeat. The very first call always marks a refresh due.
// Afterwards the long interval applies only while the stream's last activity
// is recent relative to now; otherwise the short interval governs.
func (s *pollScheduler) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastTimestamp.IsZero() {
		s.lastTimestamp = now
		s.lastPoll = now
		s.pollDue = true
		return
	}
	interval := s.shortInterval
	if !s.lastStreamActivity.IsZero() && now.Sub(s.lastStreamActivity) <= s.streamRecency {
		interval = s.longInterval
	}
	if now.Sub(s.lastPoll) > interval {
		s.pollDue = true
		s.lastPoll = now
	}
	s.lastTimestamp = now
}

// ConsumeDue returns the refresh-due flag and clears it.
func (s *pollScheduler) ConsumeDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	due := s.pollDue
	s.pollDue = false
	return due
}

func (s *pollScheduler) PollDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollDue
}

func (s *pollScheduler) LastTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTimestamp
}

// RecordStreamActivity stamps the wall-clock time of the latest inbound frame.
func (s *pollScheduler) RecordStreamActivity(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastStreamActivity = now
}

func (s *pollScheduler) LastStreamActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStreamActivity
}
