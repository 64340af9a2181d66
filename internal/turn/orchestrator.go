// Package turn runs one conversational exchange end to end: mood
// update, prompt assembly, completion, moderation, censoring, and
// history bookkeeping. All turns against one Session are serialized
// through a single mutex.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexcompanion/internal/ai"
	"github.com/normanking/cortexcompanion/internal/history"
	"github.com/normanking/cortexcompanion/internal/metrics"
	"github.com/normanking/cortexcompanion/internal/moderation"
	"github.com/normanking/cortexcompanion/internal/mood"
	"github.com/normanking/cortexcompanion/internal/persona"
	"github.com/normanking/cortexcompanion/internal/store"
)

// ErrEmptyInput rejects a turn before any collaborator is called.
var ErrEmptyInput = errors.New("empty input and no image caption")

// Session owns the per-conversation state. It is injected into the
// orchestrator rather than living in package-level globals. The user
// name is settable at runtime from the settings surface, so access to
// it goes through Name/SetName.
type Session struct {
	History  *history.Buffer
	Mood     *mood.Tracker
	Personas *persona.Manager

	nameMu   sync.RWMutex
	userName string
}

// NewSession wires a fresh session.
func NewSession(historyMax int, moodConfig mood.Config, personas *persona.Manager, userName string) *Session {
	return &Session{
		History:  history.NewBuffer(historyMax),
		Mood:     mood.NewTracker(moodConfig),
		Personas: personas,
		userName: userName,
	}
}

// Name returns the user's display name.
func (s *Session) Name() string {
	s.nameMu.RLock()
	defer s.nameMu.RUnlock()
	return s.userName
}

// SetName renames the user for subsequent turns.
func (s *Session) SetName(name string) {
	s.nameMu.Lock()
	s.userName = name
	s.nameMu.Unlock()
}

// Restore warms the session from the persisted transcript and mood.
func (s *Session) Restore(ctx context.Context, transcripts store.TranscriptStore) error {
	turns, err := transcripts.RecentTurns(ctx, s.History.MaxMessages())
	if err != nil {
		return fmt.Errorf("restore transcript: %w", err)
	}
	s.History.Replace(turns)
	s.History.Trim()

	accumulator, err := transcripts.LoadMood(ctx)
	if err != nil {
		return fmt.Errorf("restore mood: %w", err)
	}
	s.Mood.Restore(accumulator)
	return nil
}

// Input is one inbound event for the orchestrator.
type Input struct {
	Text         string
	Role         history.Role
	ImageCaption string
}

// Result is what a completed turn hands back to the transport layer.
type Result struct {
	Reply     string
	MoodLabel mood.Label
	Moderated bool
	Category  moderation.Category
	Fallback  bool
}

// Config tunes the orchestrator.
type Config struct {
	Temperature        float64
	MaxTokens          int
	FallbackMessage    string
	ModerationFallback string
	SpeechTimeout      time.Duration
}

// DefaultConfig mirrors the settings the daemon ships with.
func DefaultConfig() Config {
	return Config{
		Temperature:        0.9,
		MaxTokens:          256,
		FallbackMessage:    "Sorry, I hit a snag talking to my brain. Give me a moment and try again.",
		ModerationFallback: "I'd rather not respond to that.",
		SpeechTimeout:      2 * time.Minute,
	}
}

// Collaborators groups the external services a turn may touch. Only
// Completer is mandatory.
type Collaborators struct {
	Completer   ai.Completer
	Moderator   ai.Moderator
	Classifier  mood.Classifier
	Searcher    ai.ContextSearcher
	Speaker     ai.Speaker
	Transcripts store.TranscriptStore
}

// Orchestrator executes turns against one Session.
type Orchestrator struct {
	session *Session
	config  Config
	collab  Collaborators
	censor  *moderation.Censor
	logger  zerolog.Logger

	mu sync.Mutex
	wg sync.WaitGroup
}

// New builds an orchestrator.
func New(session *Session, config Config, collab Collaborators, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		session: session,
		config:  config,
		collab:  collab,
		censor:  moderation.NewCensor(),
		logger:  logger.With().Str("component", "turn").Logger(),
	}
}

// Session exposes the injected session for transport handlers.
func (o *Orchestrator) Session() *Session {
	return o.session
}

// RunTurn executes the full exchange. An upstream completion failure
// returns the fallback apology with Fallback set and leaves history
// untouched; quota exhaustion additionally wipes the working history so
// the next turn starts from a clean slate.
func (o *Orchestrator) RunTurn(ctx context.Context, input Input) (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	defer func() {
		metrics.TurnDuration.Observe(time.Since(start).Seconds())
	}()

	text := strings.TrimSpace(input.Text)
	if text == "" && input.ImageCaption == "" {
		metrics.TurnCount.WithLabelValues(string(input.Role), "rejected").Inc()
		return Result{}, ErrEmptyInput
	}
	if text == "" {
		text = "(shared an image)"
	}

	if input.Role == history.RoleUser && o.collab.Classifier != nil {
		if c, err := o.collab.Classifier.Classify(ctx, text); err != nil {
			o.logger.Warn().Err(err).Msg("Sentiment classification failed, mood unchanged")
		} else {
			o.session.Mood.Apply(c)
		}
	}

	label, accumulated := o.session.Mood.Current()
	active := o.session.Personas.Active()

	messages := o.assembleMessages(ctx, active, label, text, input)

	reply, err := o.collab.Completer.Complete(ctx, messages, o.config.Temperature, o.config.MaxTokens)
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("completion").Inc()
		metrics.TurnCount.WithLabelValues(string(input.Role), "failed").Inc()
		o.logger.Error().Err(err).Str("role", string(input.Role)).Msg("Completion failed, turn discarded")

		if errors.Is(err, ai.ErrQuotaExceeded) {
			o.logger.Warn().Msg("Quota exhausted, clearing working history")
			o.session.History.Clear()
		}
		return Result{Reply: o.config.FallbackMessage, MoodLabel: label, Fallback: true}, nil
	}

	result := Result{Reply: reply, MoodLabel: label}
	if o.collab.Moderator != nil {
		res, err := o.collab.Moderator.Moderate(ctx, reply)
		if err != nil {
			metrics.UpstreamFailures.WithLabelValues("moderation").Inc()
			o.logger.Warn().Err(err).Msg("Moderation unavailable, passing reply through censor only")
		} else if res.Flagged {
			safe, category, ok := moderation.Resolve(res, active.ModerationReplies, o.config.ModerationFallback)
			if ok {
				o.logger.Info().Str("category", string(category)).Msg("Reply replaced by moderation")
				result.Reply = safe
				result.Moderated = true
				result.Category = category
			}
		}
	}
	result.Reply = o.censor.Clean(result.Reply)

	now := time.Now()
	userTurn := history.Turn{Role: input.Role, Content: text, Timestamp: now}
	assistantTurn := history.Turn{Role: history.RoleAssistant, Content: result.Reply, Timestamp: now}
	o.session.History.Append(userTurn)
	o.session.History.Append(assistantTurn)
	o.session.History.Trim()

	o.persist(ctx, userTurn, assistantTurn, accumulated)

	metrics.TurnCount.WithLabelValues(string(input.Role), "ok").Inc()
	o.logger.Debug().
		Str("role", string(input.Role)).
		Str("mood", string(label)).
		Int("history_len", o.session.History.Len()).
		Msg("Turn completed")

	o.speak(result.Reply)
	return result, nil
}

// Greeting opens the conversation with the active persona's greeting.
func (o *Orchestrator) Greeting(ctx context.Context) (Result, error) {
	active := o.session.Personas.Active()
	return o.RunTurn(ctx, Input{Text: active.GreetingPrompt, Role: history.RoleSystem})
}

// Reset wipes the working history, the mood, and the persisted
// transcript.
func (o *Orchestrator) Reset(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.session.History.Clear()
	o.session.Mood.Reset()
	if o.collab.Transcripts != nil {
		if err := o.collab.Transcripts.Clear(ctx); err != nil {
			return fmt.Errorf("clear transcript: %w", err)
		}
	}
	o.logger.Info().Msg("Session reset")
	return nil
}

// Wait blocks until in-flight speech side effects finish. Called on
// shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) assembleMessages(ctx context.Context, active *persona.Persona, label mood.Label, text string, input Input) []history.Turn {
	var system strings.Builder
	system.WriteString(active.RenderDescription(o.session.Name()))
	system.WriteString(" ")
	system.WriteString(active.MoodSentence(label))

	if o.collab.Searcher != nil && looksLikeQuestion(text) {
		if block := o.contextBlock(ctx, text); block != "" {
			system.WriteString("\n")
			system.WriteString(block)
		}
	}

	messages := make([]history.Turn, 0, o.session.History.Len()+3)
	messages = append(messages, history.Turn{Role: history.RoleSystem, Content: system.String()})
	messages = append(messages, o.session.History.TrimmedSnapshot()...)
	if input.ImageCaption != "" {
		messages = append(messages, history.Turn{
			Role:    history.RoleSystem,
			Content: "The user shared an image. It shows: " + input.ImageCaption,
		})
	}
	messages = append(messages, history.Turn{Role: input.Role, Content: text})
	return messages
}

func (o *Orchestrator) contextBlock(ctx context.Context, query string) string {
	matches, err := o.collab.Searcher.Search(ctx, query)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Context search failed, answering without background")
		return ""
	}
	if len(matches) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant background you may draw on:")
	for _, m := range matches {
		if m.Text == "" {
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(m.Text)
	}
	return b.String()
}

func (o *Orchestrator) persist(ctx context.Context, userTurn, assistantTurn history.Turn, accumulated float64) {
	if o.collab.Transcripts == nil {
		return
	}
	for _, turn := range []history.Turn{userTurn, assistantTurn} {
		if err := o.collab.Transcripts.SaveTurn(ctx, turn); err != nil {
			o.logger.Warn().Err(err).Msg("Transcript write failed")
		}
	}
	if err := o.collab.Transcripts.SaveMood(ctx, accumulated); err != nil {
		o.logger.Warn().Err(err).Msg("Mood write failed")
	}
}

// speak fires the speech side effect without letting it fail the turn.
func (o *Orchestrator) speak(text string) {
	if o.collab.Speaker == nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.config.SpeechTimeout)
		defer cancel()
		if err := o.collab.Speaker.SynthesizeAndPlay(ctx, text); err != nil {
			metrics.UpstreamFailures.WithLabelValues("speech").Inc()
			o.logger.Warn().Err(err).Msg("Speech synthesis failed")
		}
	}()
}

var questionPrefixes = []string{"who", "what", "when", "where", "why", "how", "is ", "are ", "do ", "does ", "can ", "could ", "should "}

func looksLikeQuestion(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	lower := strings.ToLower(text)
	for _, p := range questionPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}
