// Package review delivers quality-gate rejections to the human correction
// queue without putting the queue on the request path.
package review

import (
	"context"
	"log/slog"
	"time"

	"civic/internal/quality"
)

// BatchPublisher is implemented by sinks that can ship several rejections
// in one round trip.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, rejs []quality.Rejection) error
}

// AsyncPublisher buffers rejections in memory and ships them from a
// background loop. Publish never blocks on the sink.
type AsyncPublisher struct {
	buffer    *RingBuffer
	sink      quality.ReviewPublisher
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	wake      chan struct{}
}

type AsyncOption func(*AsyncPublisher)

func WithBatchSize(n int) AsyncOption {
	return func(p *AsyncPublisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) AsyncOption {
	return func(p *AsyncPublisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithBufferCapacity(n int) AsyncOption {
	return func(p *AsyncPublisher) {
		p.buffer = NewRingBuffer(n)
	}
}

func WithLogger(logger *slog.Logger) AsyncOption {
	return func(p *AsyncPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewAsyncPublisher(sink quality.ReviewPublisher, opts ...AsyncOption) *AsyncPublisher {
	p := &AsyncPublisher{
		buffer:    NewRingBuffer(0),
		sink:      sink,
		batchSize: 100,
		interval:  time.Second,
		logger:    slog.Default(),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish enqueues the rejection. Under sustained sink failure the oldest
// queued rejections are dropped.
func (p *AsyncPublisher) Publish(ctx context.Context, rej quality.Rejection) error {
	if p.buffer.Enqueue(rej) {
		p.logger.WarnContext(ctx, "review buffer full, dropped oldest rejection", "dropped_total", p.buffer.Dropped())
	}
	if p.buffer.Len() >= p.batchSize {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Run drains the buffer until ctx is done, then makes a final flush.
func (p *AsyncPublisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			p.Flush(flushCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			p.Flush(ctx)
		case <-p.wake:
			p.Flush(ctx)
		}
	}
}

// Flush ships everything currently buffered. A failed batch is put back so
// it is retried on the next flush.
func (p *AsyncPublisher) Flush(ctx context.Context) {
	for {
		batch := p.buffer.DequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return
		}
		sent, err := p.send(ctx, batch)
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to ship review batch", "size", len(batch), "error", err)
			for _, rej := range batch[sent:] {
				p.buffer.Enqueue(rej)
			}
			return
		}
	}
}

// Pending reports how many rejections are waiting to be shipped.
func (p *AsyncPublisher) Pending() int {
	return p.buffer.Len()
}

// send returns how many leading rejections of batch were delivered.
func (p *AsyncPublisher) send(ctx context.Context, batch []quality.Rejection) (int, error) {
	if bp, ok := p.sink.(BatchPublisher); ok {
		if err := bp.PublishBatch(ctx, batch); err != nil {
			return 0, err
		}
		return len(batch), nil
	}
	for i, rej := range batch {
		if err := p.sink.Publish(ctx, rej); err != nil {
			return i, err
		}
	}
	return len(batch), nil
}
