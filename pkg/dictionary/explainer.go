package dictionary

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/japaniel/readmark/pkg/analyze"
	"github.com/japaniel/readmark/pkg/oracle"
)

// maxGlosses caps the glosses joined into one meaning.
const maxGlosses = 4

// Explainer answers explanation requests from the local dictionary instead of
// a remote model. Phrases the dictionary does not know are left out of the
// response, so their highlights stay pending.
type Explainer struct {
	dict     *Dictionary
	analyzer *analyze.Analyzer
	log      *zap.Logger
}

// NewExplainer creates an offline explainer. analyzer is optional; with it,
// inflected phrases such as 行った are looked up by their dictionary form.
func NewExplainer(dict *Dictionary, analyzer *analyze.Analyzer, log *zap.Logger) *Explainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Explainer{dict: dict, analyzer: analyzer, log: log}
}

func (e *Explainer) Explain(ctx context.Context, text string, phrases []string) ([]oracle.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sentences := analyze.SplitSentences(text)

	var out []oracle.Entry
	for _, phrase := range phrases {
		p := strings.TrimSpace(phrase)
		if p == "" {
			continue
		}
		matches := e.lookup(p)
		if len(matches) == 0 {
			e.log.Debug("no dictionary entry", zap.String("phrase", p))
			continue
		}
		out = append(out, oracle.Entry{
			Phrase: phrase,
			Explanation: oracle.Details{
				Meaning:  meaning(matches[0]),
				Grammar:  grammar(matches[0]),
				Examples: oracle.Examples{Original: sentenceWith(sentences, p)},
			},
		})
	}
	return out, nil
}

func (e *Explainer) lookup(phrase string) []JMdictEntry {
	if m := e.dict.Lookup(phrase, phrase, ""); len(m) > 0 {
		return m
	}
	if e.analyzer == nil {
		return nil
	}
	tokens := e.analyzer.Analyze(phrase)
	if len(tokens) == 0 {
		return nil
	}
	return e.dict.Lookup(tokens[0].Surface, tokens[0].BaseForm, "")
}

func meaning(entry JMdictEntry) string {
	var glosses []string
	for _, s := range entry.Sense {
		for _, g := range s.Gloss {
			if len(glosses) == maxGlosses {
				return strings.Join(glosses, "; ")
			}
			glosses = append(glosses, g.Text)
		}
	}
	return strings.Join(glosses, "; ")
}

func grammar(entry JMdictEntry) string {
	var pos []string
	seen := make(map[string]bool)
	for _, s := range entry.Sense {
		for _, p := range s.PartOfSpeech {
			if !seen[p] {
				seen[p] = true
				pos = append(pos, p)
			}
		}
	}
	reading := Reading(entry)
	switch {
	case reading != "" && len(pos) > 0:
		return fmt.Sprintf("%s (%s)", reading, strings.Join(pos, ", "))
	case reading != "":
		return reading
	default:
		return strings.Join(pos, ", ")
	}
}

func sentenceWith(sentences []string, phrase string) string {
	for _, s := range sentences {
		if strings.Contains(s, phrase) {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
