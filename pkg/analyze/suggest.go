package analyze

import (
	"sort"
	"strings"
	"unicode"
)

// Match is an occurrence of a vocabulary word in a text, in rune offsets.
type Match struct {
	Word  string // the vocabulary entry that matched
	Text  string // the text as it appears in the document
	Start int
	End   int
}

// Suggest finds whole-word, case-insensitive occurrences of words in content.
// Longer words are matched first and a rune belongs to at most one match, so
// "Hund" inside an already matched "Hundehütte" is not reported. Words written
// in Han or kana are matched without word boundaries. Results are sorted by
// Start and never overlap.
func Suggest(content string, words []string) []Match {
	text := []rune(content)
	lower := make([]rune, len(text))
	for i, r := range text {
		lower[i] = unicode.ToLower(r)
	}

	terms := candidates(words)
	claimed := make([]bool, len(text))
	var out []Match
	for _, term := range terms {
		needle := []rune(strings.ToLower(term))
		n := len(needle)
		for i := 0; i+n <= len(lower); {
			if !equalAt(lower, needle, i) || anyClaimed(claimed, i, i+n) || !bounded(text, needle, i, i+n) {
				i++
				continue
			}
			for j := i; j < i+n; j++ {
				claimed[j] = true
			}
			out = append(out, Match{Word: term, Text: string(text[i : i+n]), Start: i, End: i + n})
			i += n
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// candidates trims and dedupes words case-insensitively, longest first.
func candidates(words []string) []string {
	seen := make(map[string]bool, len(words))
	var terms []string
	for _, w := range words {
		w = strings.TrimSpace(w)
		key := strings.ToLower(w)
		if w == "" || seen[key] {
			continue
		}
		seen[key] = true
		terms = append(terms, w)
	}
	sort.SliceStable(terms, func(i, j int) bool {
		return len([]rune(terms[i])) > len([]rune(terms[j]))
	})
	return terms
}

func equalAt(haystack, needle []rune, at int) bool {
	for k, r := range needle {
		if haystack[at+k] != r {
			return false
		}
	}
	return true
}

func anyClaimed(claimed []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana)
}

// bounded reports whether the match [start,end) is not glued to a letter or
// digit on a side where the word itself ends in one.
func bounded(text, needle []rune, start, end int) bool {
	first, last := needle[0], needle[len(needle)-1]
	if start > 0 && isWordRune(first) && !isCJK(first) && isWordRune(text[start-1]) {
		return false
	}
	if end < len(text) && isWordRune(last) && !isCJK(last) && isWordRune(text[end]) {
		return false
	}
	return true
}
