// Package moderation maps usage-policy violations onto canned safe
// replies and censors residual profanity.
package moderation

import (
	goaway "github.com/TwiN/go-away"
)

// Category is a usage-policy violation class. A tagged enum rather than
// the provider's string keys so the replacement table can be checked for
// exhaustiveness.
type Category string

const (
	CategorySexual                Category = "sexual"
	CategoryHate                  Category = "hate"
	CategoryHarassment            Category = "harassment"
	CategorySelfHarm              Category = "self_harm"
	CategorySexualMinors          Category = "sexual_minors"
	CategoryHateThreatening       Category = "hate_threatening"
	CategoryViolenceGraphic       Category = "violence_graphic"
	CategorySelfHarmIntent        Category = "self_harm_intent"
	CategorySelfHarmInstructions  Category = "self_harm_instructions"
	CategoryHarassmentThreatening Category = "harassment_threatening"
	CategoryViolence              Category = "violence"
)

// resolutionOrder fixes which category wins when a response violates
// several at once.
var resolutionOrder = []Category{
	CategorySexual,
	CategoryHate,
	CategoryHarassment,
	CategorySelfHarm,
	CategorySexualMinors,
	CategoryHateThreatening,
	CategoryViolenceGraphic,
	CategorySelfHarmIntent,
	CategorySelfHarmInstructions,
	CategoryHarassmentThreatening,
	CategoryViolence,
}

// AllCategories returns every known category in resolution order.
func AllCategories() []Category {
	out := make([]Category, len(resolutionOrder))
	copy(out, resolutionOrder)
	return out
}

// Result is the outcome of a moderation check.
type Result struct {
	Flagged    bool
	Categories []Category
}

// Resolve picks the replacement reply for a flagged result. Replies maps
// categories to persona-specific safe lines; fallback is used when no
// entry matches the violated categories.
func Resolve(res Result, replies map[Category]string, fallback string) (string, Category, bool) {
	if !res.Flagged {
		return "", "", false
	}

	violated := make(map[Category]bool, len(res.Categories))
	for _, c := range res.Categories {
		violated[c] = true
	}

	for _, c := range resolutionOrder {
		if !violated[c] {
			continue
		}
		if reply, ok := replies[c]; ok {
			return reply, c, true
		}
	}

	if len(res.Categories) > 0 {
		return fallback, res.Categories[0], true
	}
	return fallback, "", true
}

// Censor masks profanity left over after moderation. Assistant text is
// spoken aloud, so this is the last line of defence before synthesis.
type Censor struct {
	detector *goaway.ProfanityDetector
}

// NewCensor builds a censor with the default wordlist.
func NewCensor() *Censor {
	return &Censor{detector: goaway.NewProfanityDetector()}
}

// Clean returns text with profane words masked.
func (c *Censor) Clean(text string) string {
	if !c.detector.IsProfane(text) {
		return text
	}
	return c.detector.Censor(text)
}
