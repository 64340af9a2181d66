package listen

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexcompanion/internal/history"
	"github.com/normanking/cortexcompanion/internal/persona"
	"github.com/normanking/cortexcompanion/internal/turn"
)

// scriptedCapturer feeds pre-recorded utterances, then blocks until the
// context ends.
type scriptedCapturer struct {
	mu      sync.Mutex
	clips   [][]byte
	initErr error
}

func (c *scriptedCapturer) Init() error { return c.initErr }
func (c *scriptedCapturer) Close() error { return nil }

func (c *scriptedCapturer) Capture(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if len(c.clips) > 0 {
		clip := c.clips[0]
		c.clips = c.clips[1:]
		c.mu.Unlock()
		return clip, nil
	}
	c.mu.Unlock()
	<-ctx.Done()
	return nil, nil
}

type mapTranscriber struct {
	byClip map[string]string
	err    error
}

func (m mapTranscriber) Transcribe(_ context.Context, audio []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.byClip[string(audio)], nil
}

type recordingRunner struct {
	mu     sync.Mutex
	inputs []turn.Input
	err    error
}

func (r *recordingRunner) RunTurn(_ context.Context, input turn.Input) (turn.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return turn.Result{}, r.err
	}
	r.inputs = append(r.inputs, input)
	return turn.Result{Reply: "reply to: " + input.Text}, nil
}

func (r *recordingRunner) seen() []turn.Input {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]turn.Input(nil), r.inputs...)
}

func collect(t *testing.T, events <-chan Event, until EventKind, timeout time.Duration) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(timeout)
	for {
		select {
		case e := <-events:
			got = append(got, e)
			if e.Kind == until {
				return got
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s, got %v", until, got)
		}
	}
}

func newTestSession(config Config, capturer *scriptedCapturer, transcriber mapTranscriber, runner *recordingRunner) *Session {
	return NewSession(config, capturer, transcriber, runner, persona.NewManager(), zerolog.Nop())
}

func TestIsQuitUtterance(t *testing.T) {
	tests := []struct {
		transcript string
		want       bool
	}{
		{"goodbye", true},
		{"Goodbye", true},
		{"goodbye.", true},
		{"  GOODBYE.  ", true},
		{"goodbye everyone", false},
		{"well goodbye", false},
		{"goodbye..", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsQuitUtterance(tt.transcript, "goodbye"), "transcript %q", tt.transcript)
	}
}

func TestUtteranceRunsTurn(t *testing.T) {
	capturer := &scriptedCapturer{clips: [][]byte{[]byte("clip1")}}
	transcriber := mapTranscriber{byClip: map[string]string{"clip1": "hello there"}}
	runner := &recordingRunner{}
	s := newTestSession(DefaultConfig(), capturer, transcriber, runner)

	require.NoError(t, s.Start(context.Background()))
	defer func() { s.Stop(); s.Join() }()

	events := collect(t, s.Events(), EventResult, 2*time.Second)
	last := events[len(events)-1]
	assert.Equal(t, "hello there", last.Transcript)
	assert.Equal(t, "reply to: hello there", last.Reply)

	inputs := runner.seen()
	require.Len(t, inputs, 1)
	assert.Equal(t, history.RoleUser, inputs[0].Role)
}

func TestQuitKeywordEndsSession(t *testing.T) {
	capturer := &scriptedCapturer{clips: [][]byte{[]byte("clip1")}}
	transcriber := mapTranscriber{byClip: map[string]string{"clip1": "Goodbye."}}
	runner := &recordingRunner{}
	s := newTestSession(DefaultConfig(), capturer, transcriber, runner)

	require.NoError(t, s.Start(context.Background()))
	events := collect(t, s.Events(), EventEnded, 2*time.Second)
	s.Join()

	kinds := make([]EventKind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, EventQuit)
	assert.Empty(t, runner.seen(), "quit utterance must not run a turn")
}

func TestIdlePromptsThenFinal(t *testing.T) {
	capturer := &scriptedCapturer{}
	runner := &recordingRunner{}
	config := Config{
		Tick:           time.Millisecond,
		IdleThreshold:  10 * time.Millisecond,
		MaxIdlePrompts: 3,
		QuitKeyword:    "goodbye",
	}
	s := newTestSession(config, capturer, mapTranscriber{}, runner)

	require.NoError(t, s.Start(context.Background()))
	events := collect(t, s.Events(), EventEnded, 5*time.Second)
	s.Join()

	var periodic int
	for _, e := range events {
		if e.Kind == EventPeriodic {
			periodic++
		}
	}
	// Two passive nudges, then the final goodbye ends the session.
	assert.Equal(t, 3, periodic)

	inputs := runner.seen()
	require.Len(t, inputs, 3)
	for _, in := range inputs {
		assert.Equal(t, history.RoleSystem, in.Role)
	}
	assert.Equal(t, persona.NewManager().Active().PeriodicFinal, inputs[2].Text)
}

func TestMicInitFailureShortCircuits(t *testing.T) {
	capturer := &scriptedCapturer{initErr: errors.New("no such device")}
	runner := &recordingRunner{}
	s := newTestSession(DefaultConfig(), capturer, mapTranscriber{}, runner)

	require.NoError(t, s.Start(context.Background()))
	events := collect(t, s.Events(), EventEnded, time.Second)

	var sawError bool
	for _, e := range events {
		if e.Kind == EventError {
			sawError = true
		}
	}
	assert.True(t, sawError)
	assert.Equal(t, StateStopped, s.State())

	inputs := runner.seen()
	require.Len(t, inputs, 1)
	assert.Equal(t, history.RoleSystem, inputs[0].Role)
}

func TestTranscriptionErrorEndsSession(t *testing.T) {
	capturer := &scriptedCapturer{clips: [][]byte{[]byte("clip1")}}
	transcriber := mapTranscriber{err: errors.New("bad audio")}
	s := newTestSession(DefaultConfig(), capturer, transcriber, &recordingRunner{})

	require.NoError(t, s.Start(context.Background()))
	events := collect(t, s.Events(), EventEnded, 2*time.Second)
	s.Join()

	var sawError bool
	for _, e := range events {
		if e.Kind == EventError {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestStopIsIdempotent(t *testing.T) {
	capturer := &scriptedCapturer{}
	s := newTestSession(DefaultConfig(), capturer, mapTranscriber{}, &recordingRunner{})

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()
	s.Join()
	assert.Contains(t, []State{StateStopped, StateIdle}, s.State())
}

func TestStartWhileActiveIsNoOp(t *testing.T) {
	capturer := &scriptedCapturer{}
	s := newTestSession(DefaultConfig(), capturer, mapTranscriber{}, &recordingRunner{})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Join()
}

func TestSessionRestartable(t *testing.T) {
	capturer := &scriptedCapturer{}
	s := newTestSession(DefaultConfig(), capturer, mapTranscriber{}, &recordingRunner{})

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Join()

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Join()
}

func TestStartImmediatelyAfterStop(t *testing.T) {
	capturer := &scriptedCapturer{}
	s := newTestSession(DefaultConfig(), capturer, mapTranscriber{}, &recordingRunner{})

	// Start right on the heels of Stop, without waiting for teardown.
	// The old run's cleanup must never cancel or close a newer run's
	// fields, whichever way the interleaving falls.
	for i := 0; i < 200; i++ {
		require.NoError(t, s.Start(context.Background()))
		s.Stop()
		require.NoError(t, s.Start(context.Background()))
		s.Stop()
		s.Join()
	}

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Join()
}

func TestUpdateConfigAppliesOnNextStart(t *testing.T) {
	capturer := &scriptedCapturer{clips: [][]byte{[]byte("clip1")}}
	transcriber := mapTranscriber{byClip: map[string]string{"clip1": "farewell"}}
	runner := &recordingRunner{}
	s := newTestSession(DefaultConfig(), capturer, transcriber, runner)

	cfg := DefaultConfig()
	cfg.QuitKeyword = "farewell"
	s.UpdateConfig(cfg)

	require.NoError(t, s.Start(context.Background()))
	events := collect(t, s.Events(), EventQuit, time.Second)
	s.Join()

	assert.Equal(t, EventQuit, events[0].Kind)
	assert.Empty(t, runner.seen(), "a quit utterance must not run a turn")
}
