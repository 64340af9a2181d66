package server

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexcompanion/internal/bus"
	"github.com/normanking/cortexcompanion/internal/history"
	"github.com/normanking/cortexcompanion/internal/mood"
	"github.com/normanking/cortexcompanion/internal/queue"
	"github.com/normanking/cortexcompanion/internal/turn"
)

// Serializer is the single consumer of the input queue. Every queued
// item, whatever its producer, becomes exactly one orchestrator turn,
// applied in dequeue order.
type Serializer struct {
	inputs       *queue.Queue
	orchestrator *turn.Orchestrator
	events       *bus.EventBus
	logger       zerolog.Logger
	done         chan struct{}

	// lastMood is only touched by the consume loop.
	lastMood mood.Label
}

// NewSerializer builds a stopped serializer.
func NewSerializer(inputs *queue.Queue, orchestrator *turn.Orchestrator, events *bus.EventBus, logger zerolog.Logger) *Serializer {
	return &Serializer{
		inputs:       inputs,
		orchestrator: orchestrator,
		events:       events,
		logger:       logger.With().Str("component", "serializer").Logger(),
		done:         make(chan struct{}),
		lastMood:     mood.LabelNeutral,
	}
}

// Start launches the consume loop.
func (s *Serializer) Start(ctx context.Context) {
	go s.run(ctx)
}

// Join blocks until the loop has drained the queue and exited.
func (s *Serializer) Join() {
	<-s.done
}

func (s *Serializer) run(ctx context.Context) {
	defer close(s.done)

	for {
		item, err := s.inputs.Next(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrClosed) && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("Queue consume failed")
			}
			return
		}
		s.process(ctx, item)
	}
}

func (s *Serializer) process(ctx context.Context, item *queue.Item) {
	result, err := s.orchestrator.RunTurn(ctx, turn.Input{
		Text:         item.Input,
		Role:         history.RoleUser,
		ImageCaption: item.ImageCaption,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("source", string(item.Source)).Msg("Turn rejected")
	}

	if item.Reply != nil {
		select {
		case item.Reply <- result:
		default:
		}
	}

	if result.MoodLabel != "" && result.MoodLabel != s.lastMood {
		s.lastMood = result.MoodLabel
		s.events.Publish(bus.Event{Type: bus.EventTypeMoodChanged, Data: map[string]any{
			"mood": string(result.MoodLabel),
		}})
	}

	eventType := bus.EventTypeTurnCompleted
	switch {
	case result.Fallback:
		eventType = bus.EventTypeTurnFallback
	case result.Moderated:
		eventType = bus.EventTypeTurnModerated
	}
	s.events.Publish(bus.Event{Type: eventType, Data: map[string]any{
		"source": string(item.Source),
		"input":  item.Input,
		"reply":  result.Reply,
		"mood":   string(result.MoodLabel),
	}})
}
