package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/readmark/pkg/analyze"
	"github.com/japaniel/readmark/pkg/db"
	"github.com/japaniel/readmark/pkg/dictionary"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	return conn
}

func createDoc(t *testing.T, conn *sql.DB, id string) {
	t.Helper()
	if _, err := db.CreateOrGetDocument(context.Background(), conn, db.Document{ID: id, Content: "テスト"}); err != nil {
		t.Fatal(err)
	}
}

func testSentences(n int) []analyze.Sentence {
	sentences := make([]analyze.Sentence, n)
	for i := range sentences {
		sentences[i] = analyze.Sentence{
			Text: "テスト",
			Tokens: []analyze.Token{
				{Surface: "テスト", BaseForm: "テスト", Reading: "テスト", PartsOfSpeech: []string{"名詞"}, PrimaryPOS: "名詞"},
			},
		}
	}
	return sentences
}

func TestIngestCountsOccurrences(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	createDoc(t, conn, "doc")

	ingester := NewIngester(conn, nil, nil, nil)
	ingester.BatchSize = 2
	var lastProgress int32
	ingester.OnProgress = func(current, total int) { atomic.StoreInt32(&lastProgress, int32(current)) }

	count, err := ingester.Ingest(context.Background(), "doc", testSentences(10))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if count != 10 {
		t.Errorf("Expected 10 linked items, got %d", count)
	}
	if atomic.LoadInt32(&lastProgress) != 10 {
		t.Errorf("Expected final progress 10, got %d", lastProgress)
	}

	words, err := db.GetVocabulary(context.Background(), conn, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if len(words) != 1 || words[0].OccurrenceCount != 10 || words[0].Reading != "てすと" {
		t.Fatalf("unexpected vocabulary: %+v", words)
	}
}

func TestIngestContextCancel(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	createDoc(t, conn, "doc")

	ingester := NewIngester(conn, nil, nil, nil)
	ingester.BatchSize = 10

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	count, err := ingester.Ingest(ctx, "doc", testSentences(100))
	if count != 0 {
		t.Errorf("Expected 0 linked items with cancelled context, got %d", count)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled error, got %v", err)
	}
}

// failingPool always returns an error on Submit to simulate producer error.
type failingPool struct{}

func (f *failingPool) Start(ctx context.Context)                    {}
func (f *failingPool) Submit(job Job) error                         { return errors.New("submit failed") }
func (f *failingPool) SubmitCtx(ctx context.Context, job Job) error { return errors.New("submit failed") }
func (f *failingPool) Close()                                       {}

func TestIngestHandlesSubmitError(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	createDoc(t, conn, "doc")

	ingester := NewIngester(conn, nil, nil, nil)
	ingester.PoolFactory = func(workers, queue int) WorkerPoolInterface { return &failingPool{} }

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := ingester.Ingest(ctx, "doc", testSentences(10)); err == nil || !strings.Contains(err.Error(), "submit failed") {
		t.Fatalf("expected submit error, got %v", err)
	}
}

func TestIngestUnknownDocumentFails(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()

	_, err := NewIngester(conn, nil, nil, nil).Ingest(context.Background(), "missing", testSentences(3))
	if err == nil {
		t.Fatal("expected foreign key error for unknown document")
	}
}

func TestImport_JapaneseVocabulary(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	analyzer, err := analyze.NewAnalyzer()
	require.NoError(t, err)
	dict := dictionary.New([]dictionary.JMdictEntry{{
		Id:    "1",
		Kanji: []dictionary.JMdictElement{{Text: "犬", Common: true}},
		Kana:  []dictionary.JMdictElement{{Text: "いぬ", Common: true}},
		Sense: []dictionary.JMdictSense{{Gloss: []dictionary.JMdictGloss{{Text: "dog"}}, PartOfSpeech: []string{"n"}}},
	}})

	ig := NewIngester(conn, analyzer, dict, nil)
	ig.NewID = func() string { return "doc-ja" }
	res, err := ig.Import(context.Background(), db.Document{Title: "犬", Content: "犬が走る。犬が好きです。"})
	require.NoError(t, err)
	assert.Equal(t, "doc-ja", res.DocumentID)
	assert.False(t, res.Existing)
	assert.Greater(t, res.Words, 2)

	doc, err := db.GetDocument(context.Background(), conn, "doc-ja")
	require.NoError(t, err)
	assert.Equal(t, "ja", doc.Language)

	words, err := db.GetVocabulary(context.Background(), conn, "doc-ja")
	require.NoError(t, err)
	require.NotEmpty(t, words)
	assert.Equal(t, "犬", words[0].Word)
	assert.Equal(t, 2, words[0].OccurrenceCount)
	assert.Equal(t, "いぬ", words[0].Reading)
	assert.Contains(t, words[0].Definitions, "dog")
}

func TestImport_GermanSkipsVocabulary(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	analyzer, err := analyze.NewAnalyzer()
	require.NoError(t, err)

	res, err := NewIngester(conn, analyzer, nil, nil).Import(context.Background(), db.Document{Title: "Hund", Content: "Der Hund läuft schnell."})
	require.NoError(t, err)
	assert.Zero(t, res.Words)
	words, err := db.GetVocabulary(context.Background(), conn, res.DocumentID)
	require.NoError(t, err)
	assert.Empty(t, words)
}

func TestImport_ExistingURL(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	ig := NewIngester(conn, nil, nil, nil)
	doc := db.Document{Title: "A", URL: "https://example.com/a", Content: "Der Hund."}

	first, err := ig.Import(context.Background(), doc)
	require.NoError(t, err)
	second, err := ig.Import(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, second.Existing)
	assert.Equal(t, first.DocumentID, second.DocumentID)
}

const germanPage = `<html><head><title>%s</title></head><body>
<nav><a href="/">Start</a></nav>
<article><h1>%s</h1>
<p>Der Hund läuft schnell über die Wiese und bellt laut, während die Katze im Garten schläft.</p>
<p>Am Abend kommen beide zurück ins Haus, wo das Essen schon auf sie wartet und es warm ist.</p>
<p>So endet ein langer Tag auf dem Land, an dem nichts Besonderes passiert ist.</p>
</article></body></html>`

func TestImportURLs(t *testing.T) {
	var sawUA atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("User-Agent"), "Mozilla") {
			sawUA.Store(true)
		}
		name := strings.TrimPrefix(r.URL.Path, "/")
		fmt.Fprintf(w, germanPage, name, name)
	}))
	defer srv.Close()

	conn := setupDB(t)
	defer conn.Close()
	ig := NewIngester(conn, nil, nil, nil)
	ig.Fetcher.Client = srv.Client()
	ig.Level = "b1"

	results, err := ig.ImportURLs(context.Background(), []string{srv.URL + "/eins", srv.URL + "/zwei"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, srv.URL+"/eins", results[0].URL)
	assert.NotEqual(t, results[0].DocumentID, results[1].DocumentID)
	assert.True(t, sawUA.Load())

	docs, err := db.ListDocuments(context.Background(), conn, db.ListFilter{Level: "B1"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	doc, err := db.GetDocument(context.Background(), conn, results[1].DocumentID)
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "Der Hund läuft schnell")
	assert.Equal(t, "B1", doc.Level)
}

func TestFetch_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.Write([]byte(strings.Repeat("a", 2048)))
		}
	}))
	defer srv.Close()

	f := NewFetcher(nil)
	f.Client = srv.Client()
	f.MaxBodySize = 1024

	_, err := f.Fetch(context.Background(), srv.URL+"/forbidden")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)

	_, err = f.Fetch(context.Background(), srv.URL+"/big")
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	_, err = f.Fetch(context.Background(), "ftp://example.com/x")
	assert.Error(t, err)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "ja", DetectLanguage("今日は天気がいいです。"))
	assert.Equal(t, "ja", DetectLanguage("Mediumで記事を読む"))
	assert.Equal(t, "", DetectLanguage("Der Hund läuft schnell."))
	assert.Equal(t, "", DetectLanguage("1234 !!"))
}

const exportedArticles = `[
  {
    "id": "a1",
    "url": "https://example.de/hund",
    "title": "Der Hund",
    "author": null,
    "source_domain": "example.de",
    "language_level": "b1",
    "topics": ["Tiere", "Alltag"],
    "vocabulary": [
      {"word": "Hund", "artikel": "der", "english": "dog", "plural": "Hunde"},
      {"word": "laufen", "artikel": null, "english": "to run", "plural": null},
      {"word": " ", "english": "blank"}
    ],
    "grammar_patterns": [
      "Verb an zweiter Stelle",
      {"pattern": "Adverb nach dem Verb", "example": "läuft schnell", "explanation": "Adverbien folgen dem Verb."}
    ],
    "cleaned_content": "Der Hund läuft schnell. Der Hund bellt."
  },
  {"title": "Leer", "cleaned_content": "  "}
]`

func TestReadDetails(t *testing.T) {
	_, err := ReadDetails(strings.NewReader(exportedArticles))
	require.ErrorContains(t, err, "no content")

	one := exportedArticles[strings.Index(exportedArticles, "{"):strings.LastIndex(exportedArticles, `{"title": "Leer"`)]
	one = strings.TrimRight(strings.TrimSpace(one), ",")
	details, err := ReadDetails(strings.NewReader(one))
	require.NoError(t, err)
	require.Len(t, details, 1)

	d := details[0]
	assert.Equal(t, "de", d.Document.Language)
	assert.Equal(t, "B1", d.Document.Level)
	assert.Equal(t, "Tiere,Alltag", d.Document.Topic)
	assert.Equal(t, "example.de", d.Document.Site)
	require.Len(t, d.Vocabulary, 2)
	assert.Equal(t, db.VocabularyEntry{Word: "Hund", Article: "der", English: "dog", Plural: "Hunde"}, d.Vocabulary[0])
	assert.Empty(t, d.Vocabulary[1].Article)
	require.Len(t, d.Grammar, 2)
	assert.Equal(t, "Verb an zweiter Stelle", d.Grammar[0].Pattern)
	assert.Equal(t, "läuft schnell", d.Grammar[1].Example)

	_, err = ReadDetails(strings.NewReader(`{"language_level": "X1", "cleaned_content": "Hallo"}`))
	assert.ErrorIs(t, err, db.ErrInvalidLevel)
}

func TestImportDetail(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	ctx := context.Background()
	ig := NewIngester(conn, nil, nil, nil)

	d := Detail{
		Document: db.Document{Title: "Der Hund", Level: "B1", Content: "Der Hund läuft schnell. Der Hund bellt."},
		Vocabulary: []db.VocabularyEntry{
			{Word: "Hund", Article: "der", English: "dog", Plural: "Hunde"},
			{Word: "Katze", Article: "die", English: "cat"},
		},
		Grammar: []db.GrammarPattern{{Pattern: "Verb an zweiter Stelle"}},
	}
	res, err := ig.ImportDetail(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Words)
	assert.Equal(t, 1, res.Grammar)

	words, err := db.GetVocabulary(ctx, conn, res.DocumentID)
	require.NoError(t, err)
	require.Len(t, words, 2)
	assert.Equal(t, "Hund", words[0].Word)
	assert.Equal(t, 2, words[0].OccurrenceCount)
	assert.Equal(t, "dog", words[0].English)
	assert.Equal(t, 1, words[1].OccurrenceCount, "words absent from the text still count once")

	patterns, err := db.GetGrammarPatterns(ctx, conn, res.DocumentID)
	require.NoError(t, err)
	require.Len(t, patterns, 1)

	doc, err := db.GetDocument(ctx, conn, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "B1", doc.Level)

	_, err = ig.ImportDetail(ctx, Detail{Document: db.Document{Level: "Z1", Content: "x"}})
	assert.ErrorIs(t, err, db.ErrInvalidLevel)
}

func TestImportDetail_RollsBackOnFailure(t *testing.T) {
	conn := setupDB(t)
	defer conn.Close()
	ctx := context.Background()

	_, err := NewIngester(conn, nil, nil, nil).ImportDetail(ctx, Detail{
		Document:   db.Document{ID: "bad", Content: "Der Hund."},
		Vocabulary: []db.VocabularyEntry{{Word: "Hund", OccurrenceCount: -1}, {Word: "", OccurrenceCount: 1}},
	})
	require.Error(t, err)
	_, err = db.GetDocument(ctx, conn, "bad")
	assert.ErrorIs(t, err, db.ErrDocumentNotFound)
}
