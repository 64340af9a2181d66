// Package listen runs continuous voice capture as a small state
// machine: a capture goroutine records and transcribes utterances and
// runs the resulting turns, while a controller loop tracks idle time
// and session teardown. The two sides communicate over a channel, never
// through shared flags.
package listen

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexcompanion/internal/ai"
	"github.com/normanking/cortexcompanion/internal/audio"
	"github.com/normanking/cortexcompanion/internal/history"
	"github.com/normanking/cortexcompanion/internal/metrics"
	"github.com/normanking/cortexcompanion/internal/persona"
	"github.com/normanking/cortexcompanion/internal/turn"
)

// State of a listen session.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateStopped    State = "stopped"
)

// EventKind tags the session events pushed to subscribers.
type EventKind string

const (
	EventResult   EventKind = "result"   // an utterance completed a turn
	EventPeriodic EventKind = "periodic" // idle prompt was emitted
	EventQuit     EventKind = "quit"     // user spoke the quit keyword
	EventError    EventKind = "error"    // capture or turn failed
	EventEnded    EventKind = "ended"    // session reached STOPPED
)

// Event is one observable session occurrence. Reply carries the
// assistant text for result and periodic events.
type Event struct {
	Kind       EventKind
	Transcript string
	Reply      string
	Err        error
}

// Config tunes the controller loop.
type Config struct {
	Tick           time.Duration
	IdleThreshold  time.Duration
	MaxIdlePrompts int
	QuitKeyword    string
}

// DefaultConfig matches the shipped daemon settings.
func DefaultConfig() Config {
	return Config{
		Tick:           100 * time.Millisecond,
		IdleThreshold:  45 * time.Second,
		MaxIdlePrompts: 3,
		QuitKeyword:    "goodbye",
	}
}

// Runner is the slice of the orchestrator the session needs.
type Runner interface {
	RunTurn(ctx context.Context, input turn.Input) (turn.Result, error)
}

// captureOutcome is the message the capture goroutine sends the
// controller when an utterance finishes processing.
type captureOutcome struct {
	transcript string
	reply      string
	quit       bool
	err        error
}

// Session is a restartable listen-mode controller. A stopped session
// returns to IDLE and may be started again.
type Session struct {
	config      Config
	capturer    audio.Capturer
	transcriber ai.Transcriber
	runner      Runner
	personas    *persona.Manager
	logger      zerolog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	events chan Event
}

// NewSession builds a session in IDLE.
func NewSession(config Config, capturer audio.Capturer, transcriber ai.Transcriber, runner Runner, personas *persona.Manager, logger zerolog.Logger) *Session {
	if config.Tick <= 0 {
		config = DefaultConfig()
	}
	return &Session{
		config:      config,
		capturer:    capturer,
		transcriber: transcriber,
		runner:      runner,
		personas:    personas,
		logger:      logger.With().Str("component", "listen").Logger(),
		state:       StateIdle,
		events:      make(chan Event, 16),
	}
}

// Events exposes the session event stream. Slow consumers lose events
// rather than stalling the controller.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins listening. Starting an already-active session is a
// no-op. A microphone that cannot initialize short-circuits to STOPPED
// after emitting an explanatory system turn.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateListening || s.state == StateProcessing {
		s.mu.Unlock()
		return nil
	}

	if err := s.capturer.Init(); err != nil {
		s.state = StateStopped
		s.mu.Unlock()

		s.logger.Error().Err(err).Msg("Microphone unavailable, listen mode degraded")
		s.emitDeviceFailure(ctx, err)
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	cfg := s.config
	s.cancel = cancel
	s.done = done
	s.state = StateListening
	s.mu.Unlock()

	metrics.ActiveListenSessions.Inc()
	s.logger.Info().Msg("Listen session started")

	outcomes := make(chan captureOutcome, 1)
	go s.captureLoop(runCtx, cfg, outcomes)
	go s.controllerLoop(runCtx, cancel, done, cfg, outcomes)
	return nil
}

// UpdateConfig replaces the tunables. A running session keeps the
// cadence it started with; the new values apply from the next Start.
func (s *Session) UpdateConfig(config Config) {
	if config.Tick <= 0 {
		return
	}
	s.mu.Lock()
	s.config = config
	s.mu.Unlock()
}

// Stop signals the session to end and returns immediately. It is safe
// to call on a session that is not running, and safe to call twice.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Join blocks until the controller loop has exited. Used by shutdown
// code; normal callers rely on Stop alone.
func (s *Session) Join() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// captureLoop records utterances until cancelled. It owns the full
// transcribe-and-run-turn path, so turns from voice input hold the same
// serialization the orchestrator enforces for every other producer.
func (s *Session) captureLoop(ctx context.Context, cfg Config, outcomes chan<- captureOutcome) {
	for {
		if ctx.Err() != nil {
			return
		}

		wav, err := s.capturer.Capture(ctx)
		if err != nil {
			s.send(ctx, outcomes, captureOutcome{err: err})
			return
		}
		if len(wav) == 0 {
			continue
		}

		transcript, err := s.transcriber.Transcribe(ctx, wav)
		if err != nil {
			s.send(ctx, outcomes, captureOutcome{err: err})
			return
		}
		transcript = strings.TrimSpace(transcript)
		if transcript == "" {
			continue
		}

		if IsQuitUtterance(transcript, cfg.QuitKeyword) {
			s.send(ctx, outcomes, captureOutcome{transcript: transcript, quit: true})
			return
		}

		result, err := s.runner.RunTurn(ctx, turn.Input{Text: transcript, Role: history.RoleUser})
		if err != nil {
			s.send(ctx, outcomes, captureOutcome{err: err})
			return
		}
		s.send(ctx, outcomes, captureOutcome{transcript: transcript, reply: result.Reply})
	}
}

func (s *Session) send(ctx context.Context, outcomes chan<- captureOutcome, out captureOutcome) {
	select {
	case outcomes <- out:
	case <-ctx.Done():
	}
}

// controllerLoop ticks the idle timer and reacts to capture outcomes.
// Teardown happens in one critical section and only touches the
// session fields if they still belong to this run, so a Start racing a
// stop can never have its fresh cancel or done channel clobbered.
func (s *Session) controllerLoop(ctx context.Context, cancel context.CancelFunc, done chan struct{}, cfg Config, outcomes <-chan captureOutcome) {
	defer func() {
		cancel()
		metrics.ActiveListenSessions.Dec()
		s.emit(Event{Kind: EventEnded})
		s.logger.Info().Msg("Listen session ended")

		s.mu.Lock()
		if s.done == done {
			s.cancel = nil
			s.done = nil
			s.state = StateIdle
		}
		s.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	var (
		idleTime    time.Duration
		paused      bool
		idlePrompts int
	)

	for {
		select {
		case <-ctx.Done():
			return

		case out := <-outcomes:
			s.setState(StateProcessing)
			switch {
			case out.err != nil:
				s.logger.Error().Err(out.err).Msg("Capture path failed")
				s.emit(Event{Kind: EventError, Err: out.err})
				return
			case out.quit:
				s.logger.Info().Str("transcript", out.transcript).Msg("Quit keyword detected")
				s.emit(Event{Kind: EventQuit, Transcript: out.transcript})
				return
			default:
				s.emit(Event{Kind: EventResult, Transcript: out.transcript, Reply: out.reply})
				idleTime = 0
				idlePrompts = 0
				paused = false
				s.setState(StateListening)
			}

		case <-ticker.C:
			if paused {
				continue
			}
			idleTime += cfg.Tick
			if idleTime < cfg.IdleThreshold {
				continue
			}

			paused = true
			idlePrompts++
			if idlePrompts >= cfg.MaxIdlePrompts {
				s.emitIdlePrompt(ctx, s.personas.Active().PeriodicFinal)
				return
			}

			s.emitIdlePrompt(ctx, s.passivePrompt(idlePrompts))
			idleTime = 0
			paused = false
		}
	}
}

func (s *Session) passivePrompt(n int) string {
	passive := s.personas.Active().PeriodicPassive
	if len(passive) == 0 {
		return "The user has been quiet for a while. Gently check in on them."
	}
	return passive[(n-1)%len(passive)]
}

// emitIdlePrompt runs a system turn for an idle nudge and publishes it.
func (s *Session) emitIdlePrompt(ctx context.Context, prompt string) {
	result, err := s.runner.RunTurn(ctx, turn.Input{Text: prompt, Role: history.RoleSystem})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Idle prompt turn failed")
		s.emit(Event{Kind: EventError, Err: err})
		return
	}
	s.emit(Event{Kind: EventPeriodic, Reply: result.Reply})
}

// emitDeviceFailure tells the user, through a normal turn, that the
// microphone is unusable and single-shot upload still works.
func (s *Session) emitDeviceFailure(ctx context.Context, cause error) {
	prompt := "The microphone could not be initialized, so continuous listening is off. " +
		"Apologize briefly and tell the user they can still send recorded audio or text."
	result, err := s.runner.RunTurn(ctx, turn.Input{Text: prompt, Role: history.RoleSystem})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Device failure turn failed")
	}
	s.emit(Event{Kind: EventError, Reply: result.Reply, Err: cause})
	s.emit(Event{Kind: EventEnded})
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// emit publishes without blocking; a full buffer drops the event.
func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
		s.logger.Warn().Str("kind", string(event.Kind)).Msg("Event dropped, subscriber too slow")
	}
}

// IsQuitUtterance reports whether the transcript is the quit keyword as
// a standalone utterance: case-insensitive exact match, or with one
// trailing period. The keyword inside a longer sentence does not count.
func IsQuitUtterance(transcript, keyword string) bool {
	if keyword == "" {
		return false
	}
	got := strings.ToLower(strings.TrimSpace(transcript))
	want := strings.ToLower(keyword)
	return got == want || got == want+"."
}
