package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/japaniel/readmark/pkg/db"
)

// Detail is a prepared article: the document plus the vocabulary and grammar
// patterns selected for learners.
type Detail struct {
	Document   db.Document
	Vocabulary []db.VocabularyEntry
	Grammar    []db.GrammarPattern
}

type articleJSON struct {
	ID              string           `json:"id"`
	URL             string           `json:"url"`
	Title           string           `json:"title"`
	Author          *string          `json:"author"`
	SourceDomain    string           `json:"source_domain"`
	Language        string           `json:"language"`
	LanguageLevel   string           `json:"language_level"`
	Topics          []string         `json:"topics"`
	Vocabulary      []vocabularyJSON `json:"vocabulary"`
	GrammarPatterns []grammarJSON    `json:"grammar_patterns"`
	CleanedContent  string           `json:"cleaned_content"`
	Content         string           `json:"content"`
	CreatedAt       *time.Time       `json:"created_at"`
}

type vocabularyJSON struct {
	Word    string  `json:"word"`
	Artikel *string `json:"artikel"`
	English string  `json:"english"`
	Plural  *string `json:"plural"`
}

// grammarJSON accepts a bare pattern string or a pattern object.
type grammarJSON db.GrammarPattern

func (g *grammarJSON) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*g = grammarJSON{Pattern: s}
		return nil
	}
	var p db.GrammarPattern
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*g = grammarJSON(p)
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ReadDetails decodes exported articles, either one object or an array of
// them. Articles without a language are taken as German.
func ReadDetails(r io.Reader) ([]Detail, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read articles: %w", err)
	}
	data = bytes.TrimSpace(data)
	var articles []articleJSON
	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &articles)
	} else {
		var a articleJSON
		err = json.Unmarshal(data, &a)
		articles = []articleJSON{a}
	}
	if err != nil {
		return nil, fmt.Errorf("decode articles: %w", err)
	}

	out := make([]Detail, 0, len(articles))
	for i, a := range articles {
		content := a.CleanedContent
		if content == "" {
			content = a.Content
		}
		if strings.TrimSpace(content) == "" {
			return nil, fmt.Errorf("article %d (%s): no content", i, a.Title)
		}
		lang := a.Language
		if lang == "" {
			lang = DetectLanguage(content)
		}
		if lang == "" {
			lang = "de"
		}
		level, err := db.NormalizeLevel(a.LanguageLevel)
		if err != nil {
			return nil, fmt.Errorf("article %d (%s): %w", i, a.Title, err)
		}
		d := Detail{Document: db.Document{
			ID:       a.ID,
			Title:    a.Title,
			Author:   deref(a.Author),
			Site:     a.SourceDomain,
			URL:      a.URL,
			Language: lang,
			Level:    level,
			Topic:    strings.Join(a.Topics, ","),
			Excerpt:  excerpt(content),
			Content:  content,
		}}
		if a.CreatedAt != nil {
			d.Document.AddedAt = a.CreatedAt.UTC()
		}
		for _, v := range a.Vocabulary {
			if strings.TrimSpace(v.Word) == "" {
				continue
			}
			d.Vocabulary = append(d.Vocabulary, db.VocabularyEntry{
				Word:    strings.TrimSpace(v.Word),
				Article: deref(v.Artikel),
				English: v.English,
				Plural:  deref(v.Plural),
			})
		}
		for _, g := range a.GrammarPatterns {
			d.Grammar = append(d.Grammar, db.GrammarPattern(g))
		}
		out = append(out, d)
	}
	return out, nil
}
