// Package dictionary loads JMdict-simplified data and serves offline lookups:
// definitions for imported vocabulary and explanations for highlighted phrases.
package dictionary

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/japaniel/readmark/pkg/analyze"
)

// JMdictEntry matches the structure of jmdict-simplified entries.
type JMdictEntry struct {
	Id    string          `json:"id"`
	Kanji []JMdictElement `json:"kanji"`
	Kana  []JMdictElement `json:"kana"`
	Sense []JMdictSense   `json:"sense"`
}

type JMdictElement struct {
	Text   string   `json:"text"`
	Common bool     `json:"common"`
	Tags   []string `json:"tags"`
}

type JMdictSense struct {
	PartOfSpeech []string      `json:"partOfSpeech"`
	Gloss        []JMdictGloss `json:"gloss"`
}

type JMdictGloss struct {
	Text string `json:"text"`
	Lang string `json:"lang"` // defaults to 'eng' if missing
}

// DefinitionEntry is one element of the JSON list stored in vocabulary.definitions.
type DefinitionEntry struct {
	Senses []string `json:"senses"`
	POS    []string `json:"pos"`
}

// LoadJMdictSimplified reads a JSON file holding either {"words": [...]} or a
// bare array of entries.
func LoadJMdictSimplified(path string) ([]JMdictEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var wrapper struct {
		Words []JMdictEntry `json:"words"`
	}
	if err := json.NewDecoder(f).Decode(&wrapper); err == nil {
		return wrapper.Words, nil
	}

	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	var entries []JMdictEntry
	if err := json.NewDecoder(f).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to parse dictionary as object or array: %w", err)
	}
	return entries, nil
}

// Dictionary is an in-memory index of entries by kanji and kana spelling.
type Dictionary struct {
	mu    sync.RWMutex
	index map[string][]JMdictEntry
}

// New indexes entries.
func New(entries []JMdictEntry) *Dictionary {
	idx := make(map[string][]JMdictEntry)
	for _, e := range entries {
		for _, k := range e.Kanji {
			idx[k.Text] = append(idx[k.Text], e)
		}
		for _, k := range e.Kana {
			idx[k.Text] = append(idx[k.Text], e)
		}
	}
	return &Dictionary{index: idx}
}

// Len returns the number of indexed spellings.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.index)
}

// Lookup finds entries spelled as word or lemma. When pronunciation is set
// only entries with a matching kana reading are kept. Results are sorted by
// entry id; nil means no match.
func (d *Dictionary) Lookup(word, lemma, pronunciation string) []JMdictEntry {
	candidates := make(map[string]JMdictEntry)
	search := func(term string) {
		if term == "" {
			return
		}
		d.mu.RLock()
		entries := d.index[term]
		d.mu.RUnlock()
		for _, e := range entries {
			candidates[e.Id] = e
		}
	}
	search(word)
	search(lemma)

	var results []JMdictEntry
	for _, entry := range candidates {
		if isMatch(entry, word, lemma, pronunciation) {
			results = append(results, entry)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Id < results[j].Id })
	return results
}

func isMatch(entry JMdictEntry, word, lemma, pronunciation string) bool {
	hasText := false
	for _, k := range entry.Kanji {
		if k.Text == word || k.Text == lemma {
			hasText = true
			break
		}
	}
	for _, k := range entry.Kana {
		if k.Text == word || k.Text == lemma {
			hasText = true
			break
		}
	}
	if !hasText {
		return false
	}
	if pronunciation == "" {
		return true
	}

	want := analyze.ToHiragana(pronunciation)
	for _, k := range entry.Kana {
		if analyze.ToHiragana(k.Text) == want {
			return true
		}
	}
	return false
}

// Reading returns the first common kana reading of the entry, else its first
// reading, in hiragana.
func Reading(e JMdictEntry) string {
	if len(e.Kana) == 0 {
		return ""
	}
	for _, k := range e.Kana {
		if k.Common {
			return analyze.ToHiragana(k.Text)
		}
	}
	return analyze.ToHiragana(e.Kana[0].Text)
}

// FormatDefinitions flattens the glosses and parts of speech of entries into
// the JSON list stored with vocabulary.
func FormatDefinitions(entries []JMdictEntry) (string, error) {
	defs := make([]DefinitionEntry, 0, len(entries))
	for _, e := range entries {
		var d DefinitionEntry
		for _, s := range e.Sense {
			for _, g := range s.Gloss {
				d.Senses = append(d.Senses, g.Text)
			}
			d.POS = append(d.POS, s.PartOfSpeech...)
		}
		defs = append(defs, d)
	}
	b, err := json.Marshal(defs)
	return string(b), err
}
