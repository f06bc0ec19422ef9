// Package library is the application service behind the CLI and HTTP
// surfaces. It opens documents into highlight sessions, persists every
// mutation, and runs the oracle-backed features: explanations, practice text
// and speech.
package library

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/japaniel/readmark/pkg/db"
	"github.com/japaniel/readmark/pkg/highlight"
	"github.com/japaniel/readmark/pkg/oracle"
	"github.com/japaniel/readmark/pkg/persist"
	"github.com/japaniel/readmark/pkg/reconcile"
)

var (
	// ErrExplainInFlight is returned when a document already has an explanation request running.
	ErrExplainInFlight = errors.New("explanation already in progress")
	// ErrGroupNotFound is returned for unknown group ids.
	ErrGroupNotFound = errors.New("group not found")
	// ErrEmptyGroup is returned when practice text is requested for a group without words.
	ErrEmptyGroup = errors.New("group has no words")
	// ErrInvalidName is returned for blank group names.
	ErrInvalidName = errors.New("name must not be blank")
	// ErrEmptyText is returned when speech is requested for blank text.
	ErrEmptyText = errors.New("text must not be blank")
)

// DocumentSource is the read-only content store.
type DocumentSource interface {
	GetDocument(ctx context.Context, id string) (db.Document, error)
}

// DocumentLister lists documents; implemented by db.Documents.
type DocumentLister interface {
	ListDocuments(ctx context.Context, f db.ListFilter) ([]db.Document, error)
}

// VocabularySource returns the words recorded for a document at import time.
type VocabularySource interface {
	Vocabulary(ctx context.Context, id string) ([]db.VocabularyEntry, error)
}

// GrammarSource returns the grammar patterns recorded for a document.
type GrammarSource interface {
	GrammarPatterns(ctx context.Context, id string) ([]db.GrammarPattern, error)
}

// Options configures a Library. Docs and Store are required; the oracles are
// optional and their features fail with oracle.ErrNotConfigured when unset.
type Options struct {
	Docs       DocumentSource
	Vocabulary VocabularySource
	Grammar    GrammarSource
	Store      *persist.Adapter
	Explainer  oracle.Explainer
	Generator  oracle.Generator
	Speech     oracle.Synthesizer
	Log        *zap.Logger

	// SetOptions are passed to every highlight.Set, e.g. to fix ids in tests.
	SetOptions []highlight.Option
	// NewID and Now generate group ids and timestamps.
	NewID func() string
	Now   func() time.Time
	// SpeechTimeout bounds background Speak calls. Defaults to 30s.
	SpeechTimeout time.Duration
}

// Library caches one Session per opened document.
type Library struct {
	opts       Options
	log        *zap.Logger
	reconciler *reconcile.Reconciler

	mu       sync.Mutex
	sessions map[string]*Session

	groupsMu sync.Mutex
}

// New creates a Library.
func New(opts Options) (*Library, error) {
	if opts.Docs == nil {
		return nil, errors.New("library: document source is required")
	}
	if opts.Store == nil {
		return nil, errors.New("library: persistence adapter is required")
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.NewID == nil {
		opts.NewID = func() string {
			id, err := uuid.NewV7()
			if err != nil {
				return uuid.NewString()
			}
			return id.String()
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SpeechTimeout <= 0 {
		opts.SpeechTimeout = 30 * time.Second
	}
	l := &Library{
		opts:     opts,
		log:      opts.Log,
		sessions: make(map[string]*Session),
	}
	if opts.Explainer != nil {
		l.reconciler = reconcile.New(opts.Explainer, opts.Log)
	}
	return l, nil
}

// Open returns the session for docID, loading the document and its persisted
// highlights on first use.
func (l *Library) Open(ctx context.Context, docID string) (*Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.sessions[docID]; ok {
		return s, nil
	}

	doc, err := l.opts.Docs.GetDocument(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("open document %s: %w", docID, err)
	}
	snap, err := l.opts.Store.Load(ctx, docID)
	if err != nil {
		return nil, err
	}
	set, err := highlight.NewSet(doc.Content, snap.Highlights, l.opts.SetOptions...)
	if err != nil {
		return nil, fmt.Errorf("restore highlights for %s: %w", docID, err)
	}
	s := &Session{
		lib:   l,
		doc:   doc,
		set:   set,
		saved: snap.SavedIDs,
		log:   l.log.With(zap.String("doc_id", docID)),
	}
	l.sessions[docID] = s
	s.log.Debug("document opened", zap.Int("highlights", set.Len()), zap.Int("saved", len(snap.SavedIDs)))
	return s, nil
}

// cached returns the open sessions.
func (l *Library) cached() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		out = append(out, s)
	}
	return out
}

// Documents lists the content store when it supports listing.
func (l *Library) Documents(ctx context.Context, f db.ListFilter) ([]db.Document, error) {
	lister, ok := l.opts.Docs.(DocumentLister)
	if !ok {
		return nil, errors.New("library: document source cannot list documents")
	}
	return lister.ListDocuments(ctx, f)
}

// Vocabulary returns the words recorded for a document, or none when no
// vocabulary source is configured.
func (l *Library) Vocabulary(ctx context.Context, docID string) ([]db.VocabularyEntry, error) {
	if l.opts.Vocabulary == nil {
		return nil, nil
	}
	words, err := l.opts.Vocabulary.Vocabulary(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}
	return words, nil
}

// GrammarPatterns returns the grammar patterns of a document, or none when no
// grammar source is configured.
func (l *Library) GrammarPatterns(ctx context.Context, docID string) ([]db.GrammarPattern, error) {
	if l.opts.Grammar == nil {
		return nil, nil
	}
	patterns, err := l.opts.Grammar.GrammarPatterns(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("load grammar patterns: %w", err)
	}
	return patterns, nil
}

// MarkRead marks or unmarks a document as read.
func (l *Library) MarkRead(ctx context.Context, docID string, read bool) error {
	return l.opts.Store.SetRead(ctx, docID, read)
}

// IsRead reports whether a document is marked read.
func (l *Library) IsRead(ctx context.Context, docID string) (bool, error) {
	return l.opts.Store.IsRead(ctx, docID)
}

// ReadArticles lists the documents marked read.
func (l *Library) ReadArticles(ctx context.Context) ([]string, error) {
	return l.opts.Store.ReadArticles(ctx)
}

// ToggleSavedArticle flips the bookmark on a document and returns the new state.
func (l *Library) ToggleSavedArticle(ctx context.Context, docID string) (bool, error) {
	return l.opts.Store.ToggleSavedArticle(ctx, docID)
}

// SavedArticles lists the bookmarked documents.
func (l *Library) SavedArticles(ctx context.Context) ([]string, error) {
	return l.opts.Store.SavedArticles(ctx)
}
