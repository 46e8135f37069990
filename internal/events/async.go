package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned by AsyncPublisher.Publish when the queue has no room.
var ErrQueueFull = errors.New("candle event queue full")

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher closed")

const (
	DefaultQueueSize      = 1024
	DefaultPublishTimeout = 2 * time.Second
)

// AsyncPublisher queues events for a background goroutine that hands them to
// the wrapped publisher. Publish never waits on the broker; when the queue is
// full the event is dropped.
type AsyncPublisher struct {
	next    Publisher
	logger  logrus.FieldLogger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan CandleEvent
	done   chan struct{}

	dropped atomic.Int64
}

// NewAsyncPublisher starts the delivery goroutine. Non-positive size or
// timeout select the defaults.
func NewAsyncPublisher(next Publisher, size int, timeout time.Duration, logger logrus.FieldLogger) *AsyncPublisher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	p := &AsyncPublisher{
		next:    next,
		logger:  logger,
		timeout: timeout,
		queue:   make(chan CandleEvent, size),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.next.Publish(ctx, ev)
		cancel()
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"symbol": ev.Symbol,
				"index":  ev.Index,
			}).Warn("failed to publish candle event")
		}
	}
}

// Publish enqueues ev without blocking.
func (p *AsyncPublisher) Publish(_ context.Context, ev CandleEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.queue <- ev:
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (p *AsyncPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops accepting events, delivers what is queued and closes the
// wrapped publisher.
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.next.Close()
}
