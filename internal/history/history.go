// Package history maintains the bounded rolling chat history for a
// conversation session.
package history

import (
	"sync"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one exchange unit. Immutable once appended.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Buffer is a bounded ordered log of turns. System turns are pinned:
// trimming only ever evicts non-system turns, oldest first.
type Buffer struct {
	mu          sync.RWMutex
	turns       []Turn
	maxMessages int
}

// NewBuffer creates an empty Buffer keeping at most maxMessages
// non-system turns.
func NewBuffer(maxMessages int) *Buffer {
	if maxMessages <= 0 {
		maxMessages = 4
	}
	return &Buffer{
		turns:       make([]Turn, 0, maxMessages+1),
		maxMessages: maxMessages,
	}
}

// Append adds a turn to the end unconditionally.
func (b *Buffer) Append(turn Turn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	b.turns = append(b.turns, turn)
}

// Trim drops the oldest non-system turns until at most maxMessages remain.
// The surviving turns are reordered system-first: all system turns (in
// original relative order) followed by the kept non-system turns (in
// original relative order). The reordering is deliberate even though it
// changes conversational chronology; system context must survive at the
// front of the prompt.
func (b *Buffer) Trim() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = trimmed(b.turns, b.maxMessages)
}

// Snapshot returns a copy of the current turns in order.
func (b *Buffer) Snapshot() []Turn {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Turn, len(b.turns))
	copy(out, b.turns)
	return out
}

// TrimmedSnapshot returns the turns as Trim would leave them, without
// mutating the buffer. Used when assembling a prompt before the turn is
// known to have succeeded.
func (b *Buffer) TrimmedSnapshot() []Turn {
	b.mu.RLock()
	defer b.mu.RUnlock()

	src := trimmed(b.turns, b.maxMessages)
	out := make([]Turn, len(src))
	copy(out, src)
	return out
}

// Len returns the total number of turns, system included.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.turns)
}

// MaxMessages returns the configured non-system bound.
func (b *Buffer) MaxMessages() int {
	return b.maxMessages
}

// Clear removes all turns. Called on explicit reset and on token-limit
// exhaustion.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = b.turns[:0]
}

// Replace swaps the buffer contents wholesale, applying the trim bound.
// Used when restoring a persisted transcript at startup.
func (b *Buffer) Replace(turns []Turn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = trimmed(append([]Turn(nil), turns...), b.maxMessages)
}

func trimmed(turns []Turn, maxMessages int) []Turn {
	var system, rest []Turn
	for _, t := range turns {
		if t.Role == RoleSystem {
			system = append(system, t)
		} else {
			rest = append(rest, t)
		}
	}

	if len(rest) > maxMessages {
		rest = rest[len(rest)-maxMessages:]
	}

	return append(system, rest...)
}
