// Package queue provides the bounded two-tier message queue between input
// producers (routes, listen mode, live-chat ingestion) and the single
// turn serializer.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexcompanion/internal/metrics"
	"github.com/normanking/cortexcompanion/internal/turn"
)

// Priority selects the queue tier.
type Priority string

const (
	PriorityHigh Priority = "high"
	PriorityLow  Priority = "low"
)

// Source identifies the producer of an item.
type Source string

const (
	SourceInput        Source = "input"
	SourceExternalFeed Source = "external_feed"
)

// ErrClosed is returned by Next once the queue is closed and drained,
// and by Put after Close.
var ErrClosed = errors.New("queue closed")

// Item is one pending input waiting for the serializer.
type Item struct {
	ID           string
	Source       Source
	Priority     Priority
	Input        string
	ImageCaption string
	EnqueuedAt   time.Time

	// Reply, when set, receives the turn result so a blocking caller
	// (an HTTP handler) can wait on the serializer. The serializer
	// sends at most one value and never blocks on it.
	Reply chan turn.Result
}

// NewItem builds an item with a fresh ID and enqueue timestamp.
func NewItem(source Source, priority Priority, input string) *Item {
	return &Item{
		ID:         uuid.NewString(),
		Source:     source,
		Priority:   priority,
		Input:      input,
		EnqueuedAt: time.Now(),
	}
}

// Config sizes the tiers. The high tier should be generous: evicting
// there is an anomaly, not a normal path.
type Config struct {
	HighCapacity int
	LowCapacity  int
	PollInterval time.Duration
}

// DefaultConfig returns the standard sizing.
func DefaultConfig() Config {
	return Config{
		HighCapacity: 64,
		LowCapacity:  8,
		PollInterval: time.Second,
	}
}

// Queue is a bounded two-tier FIFO. Multiple producers may Put
// concurrently; exactly one consumer calls Next.
type Queue struct {
	mu     sync.Mutex
	high   []*Item
	low    []*Item
	closed bool
	config Config
	logger zerolog.Logger
}

// New creates an empty queue.
func New(config Config, logger zerolog.Logger) *Queue {
	if config.HighCapacity <= 0 {
		config.HighCapacity = DefaultConfig().HighCapacity
	}
	if config.LowCapacity <= 0 {
		config.LowCapacity = DefaultConfig().LowCapacity
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	return &Queue{
		config: config,
		logger: logger.With().Str("component", "queue").Logger(),
	}
}

// Put enqueues an item on its priority tier, evicting the oldest item in
// that tier when it is full.
func (q *Queue) Put(item *Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}

	switch item.Priority {
	case PriorityHigh:
		if len(q.high) >= q.config.HighCapacity {
			evicted := q.high[0]
			q.high = q.high[1:]
			metrics.QueueEvictions.WithLabelValues(string(PriorityHigh)).Inc()
			// High-tier overflow means the serializer is badly behind.
			q.logger.Warn().
				Str("evicted_id", evicted.ID).
				Msg("High-priority tier full, evicting oldest item")
		}
		q.high = append(q.high, item)
	default:
		item.Priority = PriorityLow
		if len(q.low) >= q.config.LowCapacity {
			q.low = q.low[1:]
			metrics.QueueEvictions.WithLabelValues(string(PriorityLow)).Inc()
			q.logger.Debug().Msg("Low-priority tier full, evicting oldest item")
		}
		q.low = append(q.low, item)
	}

	q.updateDepthLocked()
	return nil
}

// Next returns the next item, preferring any high-priority item over low
// ones and FIFO within a tier. When both tiers are empty it polls on
// PollInterval until an item arrives, ctx is cancelled, or the queue is
// closed and drained.
func (q *Queue) Next(ctx context.Context) (*Item, error) {
	for {
		q.mu.Lock()
		if item := q.popLocked(); item != nil {
			q.updateDepthLocked()
			q.mu.Unlock()
			return item, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, ErrClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.config.PollInterval):
		}
	}
}

// TryNext returns the next item without blocking, or nil.
func (q *Queue) TryNext() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := q.popLocked()
	if item != nil {
		q.updateDepthLocked()
	}
	return item
}

func (q *Queue) popLocked() *Item {
	if len(q.high) > 0 {
		item := q.high[0]
		q.high = q.high[1:]
		return item
	}
	if len(q.low) > 0 {
		item := q.low[0]
		q.low = q.low[1:]
		return item
	}
	return nil
}

// Resize changes the tier capacities, evicting oldest items from any
// tier that now overflows. Non-positive values leave a tier unchanged.
// Used by config hot reload.
func (q *Queue) Resize(highCap, lowCap int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if highCap > 0 {
		q.config.HighCapacity = highCap
		for len(q.high) > highCap {
			evicted := q.high[0]
			q.high = q.high[1:]
			metrics.QueueEvictions.WithLabelValues(string(PriorityHigh)).Inc()
			q.logger.Warn().
				Str("evicted_id", evicted.ID).
				Msg("High-priority tier shrunk, evicting oldest item")
		}
	}
	if lowCap > 0 {
		q.config.LowCapacity = lowCap
		for len(q.low) > lowCap {
			q.low = q.low[1:]
			metrics.QueueEvictions.WithLabelValues(string(PriorityLow)).Inc()
		}
	}
	q.updateDepthLocked()
}

// Len reports the pending item count per tier.
func (q *Queue) Len() (high, low int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high), len(q.low)
}

// Close stops accepting new items. Pending items remain consumable until
// drained, after which Next returns ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

func (q *Queue) updateDepthLocked() {
	metrics.QueueDepth.WithLabelValues(string(PriorityHigh)).Set(float64(len(q.high)))
	metrics.QueueDepth.WithLabelValues(string(PriorityLow)).Set(float64(len(q.low)))
}
