// Package ingest pulls live-chat messages into the priority queue so
// the companion occasionally reacts to its audience. One configurable
// worker covers every feed kind; the feed itself is an interface.
package ingest

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexcompanion/internal/bus"
	"github.com/normanking/cortexcompanion/internal/queue"
)

// FeedMessage is one message observed on a live-chat feed.
type FeedMessage struct {
	Author  string
	Content string
}

// Feed hands over the messages that arrived since the last poll.
type Feed interface {
	Poll(ctx context.Context) ([]FeedMessage, error)
	Close() error
}

// Config tunes the worker.
type Config struct {
	PollInterval time.Duration
	MaxLength    int
}

// DefaultConfig polls every five seconds and truncates long messages.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		MaxLength:    200,
	}
}

// Worker polls a feed and enqueues one randomly chosen message per poll
// at low priority. Start and Stop are idempotent; Stop joins the worker
// goroutine before returning.
type Worker struct {
	config Config
	feed   Feed
	sink   *queue.Queue
	events *bus.EventBus
	logger zerolog.Logger
	rng    *rand.Rand

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker builds a stopped worker. events may be nil.
func NewWorker(config Config, feed Feed, sink *queue.Queue, events *bus.EventBus, logger zerolog.Logger) *Worker {
	if config.PollInterval <= 0 {
		config = DefaultConfig()
	}
	return &Worker{
		config: config,
		feed:   feed,
		sink:   sink,
		events: events,
		logger: logger.With().Str("component", "ingest").Logger(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start launches the poll loop. Starting a running worker is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	go w.run(runCtx, done)
	w.logger.Info().Dur("interval", w.config.PollInterval).Msg("Ingestion worker started")
}

// Stop terminates the poll loop and waits for it to exit. Stopping a
// stopped worker is a no-op.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return
	}
	w.cancel()
	w.cancel = nil
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info().Msg("Ingestion worker stopped")
}

// run owns its done channel so a restart racing a Stop can never see
// it closed twice.
func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Worker) pollOnce(ctx context.Context) {
	messages, err := w.feed.Poll(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Feed poll failed")
		return
	}
	if len(messages) == 0 {
		return
	}

	picked := messages[w.rng.Intn(len(messages))]
	content := Truncate(picked.Content, w.config.MaxLength)
	if content == "" {
		return
	}
	if picked.Author != "" {
		content = picked.Author + " says: " + content
	}

	item := queue.NewItem(queue.SourceExternalFeed, queue.PriorityLow, content)
	if err := w.sink.Put(item); err != nil {
		w.logger.Warn().Err(err).Msg("Enqueue failed, queue closed")
		return
	}
	if w.events != nil {
		w.events.Publish(bus.Event{Type: bus.EventTypeFeedMessage, Data: map[string]any{
			"author":  picked.Author,
			"content": content,
		}})
	}
	w.logger.Debug().Int("seen", len(messages)).Msg("Chat message enqueued")
}

// Truncate cuts text to max runes, appending an ellipsis when it cut.
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
