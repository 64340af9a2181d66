package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_NotFlagged(t *testing.T) {
	_, _, ok := Resolve(Result{Flagged: false}, nil, "fallback")
	assert.False(t, ok)
}

func TestResolve_PicksHighestPriorityCategory(t *testing.T) {
	replies := map[Category]string{
		CategoryHate:     "hate reply",
		CategoryViolence: "violence reply",
	}

	res := Result{
		Flagged:    true,
		Categories: []Category{CategoryViolence, CategoryHate},
	}

	reply, cat, ok := Resolve(res, replies, "fallback")
	assert.True(t, ok)
	assert.Equal(t, CategoryHate, cat, "hate outranks violence in resolution order")
	assert.Equal(t, "hate reply", reply)
}

func TestResolve_FallsBackWhenNoReplyConfigured(t *testing.T) {
	res := Result{Flagged: true, Categories: []Category{CategoryViolence}}

	reply, cat, ok := Resolve(res, map[Category]string{}, "fallback")
	assert.True(t, ok)
	assert.Equal(t, "fallback", reply)
	assert.Equal(t, CategoryViolence, cat)
}

func TestAllCategories_Complete(t *testing.T) {
	cats := AllCategories()
	assert.Len(t, cats, 11)
	assert.Equal(t, CategorySexual, cats[0], "sexual resolves first")
	assert.Equal(t, CategoryViolence, cats[len(cats)-1], "violence resolves last")
}

func TestCensor_LeavesCleanTextAlone(t *testing.T) {
	c := NewCensor()
	text := "What a lovely afternoon for a walk."
	assert.Equal(t, text, c.Clean(text))
}

func TestCensor_MasksProfanity(t *testing.T) {
	c := NewCensor()
	cleaned := c.Clean("that was a shitty thing to say")
	assert.NotContains(t, cleaned, "shitty")
}
