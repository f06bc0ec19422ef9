package analyze

import "regexp"

var asciiOnly = regexp.MustCompile(`^[a-zA-Z0-9\s[:punct:]]+$`)

// Word is a lemma counted across one or more sentences.
type Word struct {
	Lemma        string
	Reading      string // hiragana
	PartOfSpeech string
	Count        int
}

// skipped reports whether a token carries no vocabulary: symbols, particles,
// auxiliaries, numerals and ASCII runs.
func skipped(t Token) bool {
	switch t.PrimaryPOS {
	case "記号", "補助記号", "助詞", "助動詞":
		return true
	}
	if len(t.PartsOfSpeech) > 1 && t.PartsOfSpeech[1] == "数" {
		return true
	}
	return asciiOnly.MatchString(t.Surface)
}

// ExtractVocabulary counts the lemmas in sentences, in order of first
// appearance. The first non-empty reading seen for a lemma is kept.
func ExtractVocabulary(sentences []Sentence) []Word {
	index := make(map[string]int)
	var words []Word
	for _, s := range sentences {
		for _, t := range s.Tokens {
			if skipped(t) {
				continue
			}
			lemma := t.Surface
			if t.BaseForm != "" && t.BaseForm != "*" {
				lemma = t.BaseForm
			}
			i, ok := index[lemma]
			if !ok {
				index[lemma] = len(words)
				words = append(words, Word{
					Lemma:        lemma,
					Reading:      ToHiragana(t.Reading),
					PartOfSpeech: t.PrimaryPOS,
					Count:        1,
				})
				continue
			}
			if words[i].Reading == "" && t.Reading != "" {
				words[i].Reading = ToHiragana(t.Reading)
			}
			words[i].Count++
		}
	}
	return words
}
