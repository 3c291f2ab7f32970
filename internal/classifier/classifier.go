// Package classifier turns free-text console commands into structured
// intents.
//
// Classification flow:
//  1. Ordered rule cascade (pure, deterministic, first match wins)
//  2. Optional single-shot reasoning call (see Advanced), which falls back
//     to the cascade on any failure
package classifier

import (
	"strings"

	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// Classifier evaluates a rule cascade. It holds no mutable state and is safe
// for concurrent use.
type Classifier struct {
	rules []*Rule
}

// New creates a classifier over the default cascade.
func New() *Classifier {
	return &Classifier{rules: defaultRules()}
}

// NewWithRules creates a classifier over a custom cascade.
func NewWithRules(rules []*Rule) *Classifier {
	return &Classifier{rules: rules}
}

var std = New()

// Classify classifies text with the default cascade.
func Classify(text string) protocol.ParsedIntent {
	return std.Classify(text)
}

// Classify returns the intent of the first matching rule, or an unknown
// intent carrying the lowercased text as its query.
func (c *Classifier) Classify(text string) protocol.ParsedIntent {
	normalized := normalize(text)
	lower := strings.ToLower(normalized)

	if normalized != "" {
		for _, rule := range c.rules {
			m := rule.Match(normalized)
			if m == nil {
				continue
			}
			intent := rule.Extract(normalized, lower, m)
			intent.Rule = rule.ID
			return intent
		}
	}

	return protocol.ParsedIntent{Action: protocol.ActionUnknown, Query: lower}
}

// Rules returns the rule ids in evaluation order.
func (c *Classifier) Rules() []string {
	ids := make([]string, len(c.rules))
	for i, r := range c.rules {
		ids[i] = r.ID
	}
	return ids
}
