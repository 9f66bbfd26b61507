package events

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultQueueSize          = 128
	defaultDropReportInterval = time.Minute
)

type BusOptions struct {
	QueueSize          int
	DropReportInterval time.Duration
}

// Bus decouples ledger mutation from slow event consumers: Post never blocks,
// events overflowing the bounded queue are counted and reported rather than
// stalling the dispatcher.
type Bus struct {
	downstream           Sink
	queue                chan Event
	stop                 chan struct{}
	done                 chan struct{}
	dropReportInterval   time.Duration
	droppedTotal         uint64
	droppedSinceReported uint64
	wg                   sync.WaitGroup
	mu                   sync.RWMutex
	closed               bool
}

func NewBus(downstream Sink) *Bus {
	return NewBusWithOptions(downstream, BusOptions{
		QueueSize:          defaultQueueSize,
		DropReportInterval: defaultDropReportInterval,
	})
}

func NewBusWithOptions(downstream Sink, opts BusOptions) *Bus {
	if downstream == nil {
		return nil
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	reportInterval := opts.DropReportInterval
	if reportInterval < 0 {
		reportInterval = 0
	}
	b := &Bus{
		downstream:         downstream,
		queue:              make(chan Event, queueSize),
		stop:               make(chan struct{}),
		done:               make(chan struct{}),
		dropReportInterval: reportInterval,
	}
	b.wg.Add(1)
	go b.loop()
	if b.dropReportInterval > 0 {
		b.wg.Add(1)
		go b.dropReportLoop()
	}
	go func() {
		b.wg.Wait()
		close(b.done)
	}()
	return b
}

func (b *Bus) Post(ev Event) {
	if b == nil || ev == nil {
		return
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	select {
	case b.queue <- ev:
		b.mu.RUnlock()
		return
	default:
		droppedTotal := atomic.AddUint64(&b.droppedTotal, 1)
		droppedInWindow := atomic.AddUint64(&b.droppedSinceReported, 1)
		b.mu.RUnlock()
		// Report the first drop in a window immediately; the periodic summary covers the rest.
		if droppedInWindow == 1 {
			log.Printf(
				"level=WARN event=event_queue_dropped kind=%q order_id=%q dropped_total=%d queue_len=%d queue_cap=%d",
				ev.Kind(),
				ev.OrderID(),
				droppedTotal,
				len(b.queue),
				cap(b.queue),
			)
		}
	}
}

// Close drains the queue and stops the delivery goroutines.
func (b *Bus) Close(ctx context.Context) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.stop)
	done := b.done
	b.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) loop() {
	defer b.wg.Done()
	for {
		select {
		case ev := <-b.queue:
			b.downstream.Post(ev)
		case <-b.stop:
			for {
				select {
				case ev := <-b.queue:
					b.downstream.Post(ev)
				default:
					b.reportDroppedSummary()
					return
				}
			}
		}
	}
}

func (b *Bus) dropReportLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.dropReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.reportDroppedSummary()
		case <-b.stop:
			b.reportDroppedSummary()
			return
		}
	}
}

func (b *Bus) reportDroppedSummary() {
	dropped := atomic.SwapUint64(&b.droppedSinceReported, 0)
	if dropped == 0 {
		return
	}
	droppedTotal := atomic.LoadUint64(&b.droppedTotal)
	log.Printf(
		"level=WARN event=event_queue_dropped_report dropped_since_last=%d dropped_total=%d queue_len=%d queue_cap=%d",
		dropped,
		droppedTotal,
		len(b.queue),
		cap(b.queue),
	)
}

func (b *Bus) droppedStats() (uint64, uint64) {
	if b == nil {
		return 0, 0
	}
	return atomic.LoadUint64(&b.droppedTotal), atomic.LoadUint64(&b.droppedSinceReported)
}
