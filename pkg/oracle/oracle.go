// Package oracle talks to the external text services: phrase explanation,
// practice text generation and speech synthesis.
package oracle

import (
	"context"
	"strings"

	"github.com/japaniel/readmark/pkg/highlight"
)

// NoExample is used when an explanation carries no example sentence.
const NoExample = "No example provided"

// Examples holds the example sentences for one phrase.
type Examples struct {
	Original string `json:"original"`
	New      string `json:"new"`
}

// Details is the explanation payload for one phrase as returned by the oracle.
type Details struct {
	Meaning  string   `json:"meaning"`
	Grammar  string   `json:"grammar"`
	Examples Examples `json:"examples"`
}

// Entry is one element of an explanation response.
type Entry struct {
	Phrase      string  `json:"phrase"`
	Explanation Details `json:"explanation"`
}

// Example picks the new example, else the original one, else NoExample.
func (e Entry) Example() string {
	if s := strings.TrimSpace(e.Explanation.Examples.New); s != "" {
		return e.Explanation.Examples.New
	}
	if s := strings.TrimSpace(e.Explanation.Examples.Original); s != "" {
		return e.Explanation.Examples.Original
	}
	return NoExample
}

// Highlight converts the entry into the annotation stored on a highlight.
func (e Entry) Highlight() highlight.Explanation {
	return highlight.Explanation{
		Word:    e.Phrase,
		Meaning: e.Explanation.Meaning,
		Grammar: e.Explanation.Grammar,
		Example: e.Example(),
	}
}

// FromHighlight builds an entry from a stored annotation, for generation prompts.
func FromHighlight(text string, x *highlight.Explanation) Entry {
	e := Entry{Phrase: text}
	if x != nil {
		e.Explanation = Details{
			Meaning:  x.Meaning,
			Grammar:  x.Grammar,
			Examples: Examples{New: x.Example},
		}
	}
	return e
}

// Explainer explains phrases found in text. It is called once per batch.
type Explainer interface {
	Explain(ctx context.Context, text string, phrases []string) ([]Entry, error)
}

// Generator writes a short practice text that uses all given words.
type Generator interface {
	GenerateText(ctx context.Context, words []Entry) (string, error)
}

// Synthesizer turns text into audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ExplainerFunc adapts a function to Explainer.
type ExplainerFunc func(ctx context.Context, text string, phrases []string) ([]Entry, error)

func (f ExplainerFunc) Explain(ctx context.Context, text string, phrases []string) ([]Entry, error) {
	return f(ctx, text, phrases)
}
