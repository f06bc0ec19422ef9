package db

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CEFRLevels are the accepted document levels, easiest first.
var CEFRLevels = []string{"A1", "A2", "B1", "B2", "C1", "C2"}

// ErrInvalidLevel is returned for levels outside CEFRLevels.
var ErrInvalidLevel = errors.New("invalid CEFR level")

// NormalizeLevel upper-cases a CEFR level. An empty level stays empty.
func NormalizeLevel(level string) (string, error) {
	level = strings.ToUpper(strings.TrimSpace(level))
	if level == "" {
		return "", nil
	}
	for _, l := range CEFRLevels {
		if l == level {
			return level, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLevel, level)
}

// Document is an article in the content store. Content is immutable once stored.
type Document struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Author   string    `json:"author,omitempty"`
	Site     string    `json:"site,omitempty"`
	URL      string    `json:"url,omitempty"`
	Language string    `json:"language,omitempty"`
	Level    string    `json:"level,omitempty"`
	// Topic holds comma separated topics.
	Topic    string    `json:"topic,omitempty"`
	Excerpt  string    `json:"excerpt,omitempty"`
	Content  string    `json:"content"`
	AddedAt  time.Time `json:"addedAt"`
}

// VocabularyEntry is a word recorded for a document at import time. Japanese
// words carry a reading and JMdict definitions; German words carry their
// article, plural and English gloss.
type VocabularyEntry struct {
	ID              int64  `json:"id"`
	DocumentID      string `json:"documentId"`
	Word            string `json:"word"`
	Reading         string `json:"reading,omitempty"`
	PartOfSpeech    string `json:"partOfSpeech,omitempty"`
	Definitions     string `json:"definitions,omitempty"`
	Article         string `json:"artikel,omitempty"`
	English         string `json:"english,omitempty"`
	Plural          string `json:"plural,omitempty"`
	OccurrenceCount int    `json:"occurrenceCount"`
}

// GrammarPattern is a grammar structure used in a document.
type GrammarPattern struct {
	Pattern     string `json:"pattern"`
	Example     string `json:"example,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

// ListFilter narrows ListDocuments. Empty fields match everything.
type ListFilter struct {
	Level string
	Topic string
}
