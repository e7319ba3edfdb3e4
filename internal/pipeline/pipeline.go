package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-ambiance/internal/domain"
	"github.com/couchcryptid/storm-ambiance/internal/observability"
)

// BatchLoader writes multiple events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.AmbianceEvent) error
}

// drainTimeout bounds the final flush after Run's context is cancelled.
const drainTimeout = 5 * time.Second

// Publisher buffers emitted events and hands them to a BatchLoader. Loaders
// must not retain the slice passed to LoadBatch.
type Publisher struct {
	loader        BatchLoader
	logger        *slog.Logger
	metrics       *observability.Metrics
	events        chan domain.AmbianceEvent
	batchSize     int
	flushInterval time.Duration
	running       atomic.Bool
}

// New creates a Publisher. bufferSize bounds the number of events waiting for
// delivery; further events are dropped.
func New(l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int, flushInterval time.Duration, bufferSize int) *Publisher {
	if bufferSize < batchSize {
		bufferSize = batchSize
	}
	return &Publisher{
		loader:        l,
		logger:        logger,
		metrics:       metrics,
		events:        make(chan domain.AmbianceEvent, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Emit queues an event. It never blocks; when the buffer is full the event is
// dropped and counted.
func (p *Publisher) Emit(event domain.AmbianceEvent) {
	select {
	case p.events <- event:
	default:
		p.metrics.EventsDropped.Inc()
		p.logger.Debug("event dropped, publish buffer full", "type", event.Type)
	}
}

// CheckReadiness returns nil once the publisher is running.
func (p *Publisher) CheckReadiness(_ context.Context) error {
	if !p.running.Load() {
		return errors.New("event publisher is not running")
	}
	return nil
}

// Run delivers batches until the context is cancelled, then flushes whatever
// is still buffered.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("event publisher started", "batch_size", p.batchSize, "flush_interval", p.flushInterval)
	p.running.Store(true)
	defer p.running.Store(false)

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	batch := make([]domain.AmbianceEvent, 0, p.batchSize)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("event publisher stopping", "reason", ctx.Err())
			p.drain(batch)
			return nil
		case evt := <-p.events:
			batch = append(batch, evt)
			if len(batch) >= p.batchSize {
				p.deliver(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				p.deliver(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

// deliver loads one batch, retrying with backoff until it succeeds or ctx is
// cancelled.
func (p *Publisher) deliver(ctx context.Context, batch []domain.AmbianceEvent) {
	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		err := p.loader.LoadBatch(ctx, batch)
		if err == nil {
			p.metrics.EventsPublished.Add(float64(len(batch)))
			return
		}
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("load batch failed", "error", err, "batch_size", len(batch))
		if !sleepWithContext(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

// drain makes a single bounded attempt to deliver the pending batch plus
// anything still in the buffer.
func (p *Publisher) drain(batch []domain.AmbianceEvent) {
drained:
	for {
		select {
		case evt := <-p.events:
			batch = append(batch, evt)
		default:
			break drained
		}
	}
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := p.loader.LoadBatch(ctx, batch); err != nil {
		p.logger.Error("final flush failed", "error", err, "batch_size", len(batch))
		p.metrics.EventsDropped.Add(float64(len(batch)))
		return
	}
	p.metrics.EventsPublished.Add(float64(len(batch)))
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
