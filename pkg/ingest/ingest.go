// Package ingest imports articles into the content store: it fetches pages,
// extracts their readable text and, for Japanese articles, records the
// vocabulary with dictionary definitions. Prepared articles that already carry
// vocabulary, grammar patterns and a level are imported as they are.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/japaniel/readmark/pkg/analyze"
	"github.com/japaniel/readmark/pkg/db"
	"github.com/japaniel/readmark/pkg/dictionary"
)

// WorkerPoolInterface abstracts the worker pool so tests can inject failing implementations.
type WorkerPoolInterface interface {
	Start(ctx context.Context)
	Submit(Job) error
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// Ingester imports documents and their vocabulary.
type Ingester struct {
	DB       *sql.DB
	Dict     *dictionary.Dictionary // optional; nil leaves definitions empty
	Analyzer *analyze.Analyzer      // optional; nil skips vocabulary extraction
	Fetcher  *Fetcher
	Log      *zap.Logger

	// OnProgress is called with the number of processed and total sentences.
	OnProgress func(current, total int)

	BatchSize int
	Workers   int

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
	// NewID generates document ids; UUIDv7 by default.
	NewID func() string
	// Level is assigned to documents fetched by ImportURLs.
	Level string
}

// NewIngester creates an Ingester with default batching and concurrency.
func NewIngester(conn *sql.DB, analyzer *analyze.Analyzer, dict *dictionary.Dictionary, log *zap.Logger) *Ingester {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingester{
		DB:        conn,
		Dict:      dict,
		Analyzer:  analyzer,
		Fetcher:   NewFetcher(log),
		Log:       log,
		BatchSize: 50,
		Workers:   4,
	}
}

// Result describes one imported document.
type Result struct {
	URL        string `json:"url,omitempty"`
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	// Existing is true when a document with the same URL was already stored.
	Existing bool `json:"existing"`
	// Words is the number of word occurrences recorded.
	Words int `json:"words"`
	// Grammar is the number of grammar patterns recorded.
	Grammar int `json:"grammar"`
}

func (ig *Ingester) newID() string {
	if ig.NewID != nil {
		return ig.NewID()
	}
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ImportURLs fetches and imports urls concurrently, at most Workers at a
// time. Results keep the order of urls. The first failure cancels the rest.
func (ig *Ingester) ImportURLs(ctx context.Context, urls []string) ([]Result, error) {
	results := make([]Result, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(ig.Workers, 1))
	for i, u := range urls {
		g.Go(func() error {
			article, err := ig.Fetcher.Fetch(gctx, u)
			if err != nil {
				return err
			}
			doc := DocumentFromArticle(article)
			doc.Level = ig.Level
			res, err := ig.Import(gctx, doc)
			if err != nil {
				return fmt.Errorf("import %s: %w", u, err)
			}
			res.URL = u
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// DocumentFromArticle maps an extracted article onto a document row.
func DocumentFromArticle(a Article) db.Document {
	return db.Document{
		Title:    a.Title,
		Author:   a.Byline,
		Site:     a.SiteName,
		URL:      a.URL,
		Language: a.Language,
		Excerpt:  a.Excerpt,
		Content:  a.Text,
	}
}

// Import stores doc and, for new Japanese documents when an Analyzer is set,
// its vocabulary. A document whose URL is already stored is returned as is.
func (ig *Ingester) Import(ctx context.Context, doc db.Document) (Result, error) {
	return ig.ImportDetail(ctx, Detail{Document: doc})
}

// ImportDetail stores a document with its prepared vocabulary and grammar
// patterns in one transaction. Japanese documents without prepared
// vocabulary are analyzed when an Analyzer is set. A document whose URL is
// already stored is returned as is.
func (ig *Ingester) ImportDetail(ctx context.Context, d Detail) (Result, error) {
	doc := d.Document
	if doc.ID == "" {
		doc.ID = ig.newID()
	}
	if doc.Language == "" {
		doc.Language = DetectLanguage(doc.Content)
	}
	if doc.AddedAt.IsZero() {
		doc.AddedAt = time.Now().UTC()
	}

	tx, err := ig.DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	id, err := db.CreateOrGetDocument(ctx, tx, doc)
	if err != nil {
		return Result{}, err
	}
	res := Result{DocumentID: id, Title: doc.Title, Existing: id != doc.ID}
	if res.Existing {
		ig.Log.Info("document already imported", zap.String("doc_id", id), zap.String("url", doc.URL))
		return res, nil
	}
	for _, v := range d.Vocabulary {
		v.DocumentID = id
		if v.OccurrenceCount < 1 {
			v.OccurrenceCount = max(len(analyze.Suggest(doc.Content, []string{v.Word})), 1)
		}
		if _, err := db.UpsertVocabulary(ctx, tx, v); err != nil {
			return Result{}, err
		}
		res.Words += v.OccurrenceCount
	}
	res.Grammar, err = db.ReplaceGrammarPatterns(ctx, tx, id, d.Grammar)
	if err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("commit import: %w", err)
	}

	if len(d.Vocabulary) == 0 && ig.Analyzer != nil && doc.Language == "ja" {
		sentences := ig.Analyzer.AnalyzeDocument(doc.Content)
		res.Words, err = ig.Ingest(ctx, id, sentences)
		if err != nil {
			return res, err
		}
	}
	ig.Log.Info("document imported",
		zap.String("doc_id", id),
		zap.String("level", doc.Level),
		zap.Int("words", res.Words),
		zap.Int("grammar", res.Grammar))
	return res, nil
}

// processedSentence is a sentence's vocabulary, ready to be written.
type processedSentence struct {
	Index int
	Words []db.VocabularyEntry
}

// Ingest records the vocabulary of sentences for docID. Sentences are
// analyzed by the worker pool and written in order through a batch writer.
// It returns the number of word occurrences recorded.
func (ig *Ingester) Ingest(ctx context.Context, docID string, sentences []analyze.Sentence) (int, error) {
	total := len(sentences)
	if total == 0 {
		return 0, ctx.Err()
	}
	workers := max(ig.Workers, 1)

	var wp WorkerPoolInterface
	if ig.PoolFactory != nil {
		wp = ig.PoolFactory(workers, workers*2)
	} else {
		wp = NewWorkerPool(workers, workers*2)
	}

	bw := NewBatchWriter(ig.DB, max(ig.BatchSize, 1), 100*time.Millisecond)
	var closeWriter sync.Once
	var writerErr error
	closeBatchWriter := func() error {
		closeWriter.Do(func() { writerErr = bw.Close() })
		return writerErr
	}
	defer closeBatchWriter()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan processedSentence, workers*2)
	doneCh := make(chan error, 1)
	var totalLinks int64

	wp.Start(ctx)

	// Consumer: buffers out-of-order results and submits them in sentence order.
	go func() {
		buffer := make(map[int]processedSentence)
		next := 0
		for res := range resultCh {
			buffer[res.Index] = res
			for {
				item, ok := buffer[next]
				if !ok {
					break
				}
				delete(buffer, next)
				if err := bw.Submit(ig.writeSentence(item, &totalLinks)); err != nil {
					cancel()
					doneCh <- err
					for range resultCh {
					}
					return
				}
				next++
				if ig.OnProgress != nil && (next%max(ig.BatchSize, 1) == 0 || next == total) {
					ig.OnProgress(next, total)
				}
			}
		}
		doneCh <- nil
	}()

	var submitErr error
	for i, sent := range sentences {
		if ctx.Err() != nil {
			break
		}
		job := func(ctx context.Context) error {
			res := ig.processSentence(docID, i, sent)
			select {
			case resultCh <- res:
			case <-ctx.Done():
			}
			return nil
		}
		if err := wp.SubmitCtx(ctx, job); err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, ErrPoolClosed) {
				submitErr = err
			}
			break
		}
	}

	// Workers are done once Close returns, so no job can send on a closed channel.
	wp.Close()
	close(resultCh)
	consumerErr := <-doneCh

	writeErr := closeBatchWriter()
	switch {
	case submitErr != nil:
		return int(atomic.LoadInt64(&totalLinks)), submitErr
	case consumerErr != nil:
		return int(atomic.LoadInt64(&totalLinks)), consumerErr
	case writeErr != nil:
		return int(atomic.LoadInt64(&totalLinks)), writeErr
	}
	return int(atomic.LoadInt64(&totalLinks)), ctx.Err()
}

func (ig *Ingester) writeSentence(item processedSentence, links *int64) WriteFunc {
	return func(ctx context.Context, tx db.DBExecutor) error {
		for _, w := range item.Words {
			if tx != nil {
				if _, err := db.UpsertVocabulary(ctx, tx, w); err != nil {
					return fmt.Errorf("failed to persist word %s: %w", w.Word, err)
				}
			}
			atomic.AddInt64(links, int64(w.OccurrenceCount))
		}
		return nil
	}
}

// processSentence performs the CPU-heavy token filtering and dictionary lookup.
func (ig *Ingester) processSentence(docID string, index int, sentence analyze.Sentence) processedSentence {
	words := analyze.ExtractVocabulary([]analyze.Sentence{sentence})
	out := processedSentence{Index: index, Words: make([]db.VocabularyEntry, 0, len(words))}
	for _, w := range words {
		entry := db.VocabularyEntry{
			DocumentID:      docID,
			Word:            w.Lemma,
			Reading:         w.Reading,
			PartOfSpeech:    w.PartOfSpeech,
			OccurrenceCount: w.Count,
		}
		if ig.Dict != nil {
			if matches := ig.Dict.Lookup(w.Lemma, w.Lemma, ""); len(matches) > 0 {
				if defs, err := dictionary.FormatDefinitions(matches); err == nil {
					entry.Definitions = defs
				}
				// The dictionary's primary reading is preferred over the tokenizer's.
				if r := dictionary.Reading(matches[0]); r != "" {
					entry.Reading = r
				}
			}
		}
		if strings.TrimSpace(entry.Word) != "" {
			out.Words = append(out.Words, entry)
		}
	}
	return out
}
