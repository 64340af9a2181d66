// Package persona defines the companion's selectable personalities: the
// system-prompt description, the mood-label vocabulary, moderation
// replacement lines, and the periodic banter used by listen mode.
package persona

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/normanking/cortexcompanion/internal/moderation"
	"github.com/normanking/cortexcompanion/internal/mood"
)

// Persona is one personality the companion can assume.
type Persona struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Description is the base system prompt. The {user_name} placeholder
	// is substituted at render time.
	Description string `json:"description"`

	// Moods maps the tracker's discrete label to the word this persona
	// uses for it ("cheerful", "frustrated", ...).
	Moods map[mood.Label]string `json:"moods"`

	// ModerationReplies substitutes a canned in-character line when the
	// model's response violates a usage-policy category.
	ModerationReplies map[moderation.Category]string `json:"moderation_replies"`

	// PeriodicPassive are the prompts issued when listen mode has been
	// idle past its threshold; PeriodicFinal is issued on the third
	// consecutive idle prompt, right before the session ends.
	PeriodicPassive []string `json:"periodic_passive"`
	PeriodicFinal   string   `json:"periodic_final"`

	// GreetingPrompt seeds the opening turn when a client connects.
	GreetingPrompt string `json:"greeting_prompt"`
}

// RenderDescription substitutes the user's name into the description.
func (p *Persona) RenderDescription(userName string) string {
	return strings.ReplaceAll(p.Description, "{user_name}", userName)
}

// MoodSentence phrases the current mood for the system prompt.
func (p *Persona) MoodSentence(label mood.Label) string {
	word, ok := p.Moods[label]
	if !ok {
		word = string(label)
	}
	return fmt.Sprintf("You will emulate feeling %s.", word)
}

// Validate checks that the persona can serve every mood bucket.
func (p *Persona) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("persona has no id")
	}
	if p.Description == "" {
		return fmt.Errorf("persona %q has no description", p.ID)
	}
	for _, label := range []mood.Label{
		mood.LabelVeryPositive, mood.LabelPositive, mood.LabelNeutral,
		mood.LabelNegative, mood.LabelVeryNegative,
	} {
		if _, ok := p.Moods[label]; !ok {
			return fmt.Errorf("persona %q missing mood word for %s", p.ID, label)
		}
	}
	return nil
}

// Manager holds the registered personas and the active selection.
type Manager struct {
	mu       sync.RWMutex
	personas map[string]*Persona
	activeID string
}

// NewManager creates a Manager seeded with the built-in personas.
func NewManager() *Manager {
	m := &Manager{personas: make(map[string]*Persona)}
	for _, p := range builtIn() {
		m.personas[p.ID] = p
	}
	m.activeID = "debug"
	return m
}

// Get returns a persona by ID (case-insensitive).
func (m *Manager) Get(id string) (*Persona, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.personas[strings.ToLower(id)]
	if !ok {
		return nil, fmt.Errorf("unknown persona %q", id)
	}
	return p, nil
}

// Active returns the currently selected persona.
func (m *Manager) Active() *Persona {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.personas[m.activeID]
}

// Select makes the given persona active.
func (m *Manager) Select(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id = strings.ToLower(id)
	if _, ok := m.personas[id]; !ok {
		return fmt.Errorf("unknown persona %q", id)
	}
	m.activeID = id
	return nil
}

// Register adds or replaces a persona.
func (m *Manager) Register(p *Persona) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.personas[strings.ToLower(p.ID)] = p
	return nil
}

// List returns all persona IDs, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.personas))
	for id := range m.personas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
