package library

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/japaniel/readmark/pkg/analyze"
	"github.com/japaniel/readmark/pkg/db"
	"github.com/japaniel/readmark/pkg/highlight"
	"github.com/japaniel/readmark/pkg/oracle"
	"github.com/japaniel/readmark/pkg/reconcile"
	"github.com/japaniel/readmark/pkg/render"
	"github.com/japaniel/readmark/pkg/selection"
)

// Session is one open document with its highlight set and saved ids. Every
// mutation is written through to the store before it returns.
type Session struct {
	lib *Library
	doc db.Document
	set *highlight.Set
	log *zap.Logger

	// mu orders mutations with their writes and guards saved.
	mu    sync.Mutex
	saved []string

	explaining atomic.Bool
}

// Document returns the opened document.
func (s *Session) Document() db.Document { return s.doc }

// Highlights returns the highlights in list order (custom order, then creation).
func (s *Session) Highlights() []highlight.Highlight { return s.set.Ordered() }

// Get returns one highlight.
func (s *Session) Get(id string) (highlight.Highlight, error) { return s.set.Get(id) }

// Segments projects the document into plain and highlighted runs.
func (s *Session) Segments() []highlight.Segment {
	return highlight.Project(s.doc.Content, s.set.List())
}

// Tree renders the document as an HTML tree that selections resolve against.
func (s *Session) Tree() *html.Node { return render.Tree(s.Segments()) }

// HTML renders the document markup.
func (s *Session) HTML() (string, error) { return render.HTML(s.Segments()) }

// change names the persisted views a mutation touched.
type change uint8

const (
	highlightsChanged change = 1 << iota
	savedChanged
	orderChanged
)

// commitLocked runs fn against the set and saved ids and writes the views it
// reports as changed. When fn or a write fails, memory is restored to its state
// before fn and the restored views are written back, so a failed mutation is
// never visible. s.mu must be held.
func (s *Session) commitLocked(ctx context.Context, fn func() (change, error)) error {
	items := s.set.List()
	saved := slices.Clone(s.saved)
	c, err := fn()
	if err != nil {
		s.set.Restore(items)
		s.saved = saved
		return err
	}
	if err := s.writeLocked(ctx, c); err != nil {
		s.set.Restore(items)
		s.saved = saved
		if rerr := s.writeLocked(context.WithoutCancel(ctx), c); rerr != nil {
			s.log.Warn("restoring persisted highlights failed", zap.Error(rerr))
		}
		return err
	}
	return nil
}

func (s *Session) writeLocked(ctx context.Context, c change) error {
	store := s.lib.opts.Store
	if c&highlightsChanged != 0 {
		if err := store.Save(ctx, s.doc.ID, s.set.List()); err != nil {
			return err
		}
	}
	if c&orderChanged != 0 {
		ordered := s.set.Ordered()
		ids := make([]string, len(ordered))
		for i, h := range ordered {
			ids[i] = h.ID
		}
		if err := store.SaveOrder(ctx, s.doc.ID, ids); err != nil {
			return err
		}
	}
	if c&savedChanged != 0 {
		if err := store.SaveSaved(ctx, s.doc.ID, s.saved); err != nil {
			return err
		}
	}
	return nil
}

// Add admits a candidate range and persists it.
func (s *Session) Add(ctx context.Context, c highlight.Candidate) (highlight.Highlight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var h highlight.Highlight
	err := s.commitLocked(ctx, func() (change, error) {
		var err error
		h, err = s.set.Add(c)
		return highlightsChanged, err
	})
	if err != nil {
		return highlight.Highlight{}, err
	}
	s.log.Debug("highlight added", zap.String("highlight_id", h.ID), zap.Int("start", h.Start), zap.Int("end", h.End))
	return h, nil
}

// Select resolves a selection made in root, a tree rendered from this
// session, and adds it with color. Overlaps fail with highlight.ErrOverlap and
// leave the set unchanged; the caller is expected to clear the selection.
func (s *Session) Select(ctx context.Context, r selection.Resolver, sel selection.Selection, root *html.Node, color string) (highlight.Highlight, error) {
	res, err := r.Resolve(sel, root)
	if err != nil {
		return highlight.Highlight{}, err
	}
	return s.Add(ctx, highlight.Candidate{Text: res.Text, Color: color, Start: res.Start, End: res.End})
}

// Remove deletes a highlight. A saved highlight is unsaved too.
func (s *Session) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.commitLocked(ctx, func() (change, error) {
		if err := s.set.Remove(id); err != nil {
			return 0, err
		}
		if removeID(&s.saved, id) {
			return highlightsChanged | savedChanged, nil
		}
		return highlightsChanged, nil
	})
	if err != nil {
		return err
	}
	s.log.Debug("highlight removed", zap.String("highlight_id", id))
	return nil
}

// Edit applies a user edit. Assigning a group requires the group to exist and
// saves the highlight, as AssignToGroup does.
func (s *Session) Edit(ctx context.Context, id string, p highlight.Patch) (highlight.Highlight, error) {
	if p.GroupID != nil && *p.GroupID != "" {
		if _, err := s.lib.group(ctx, *p.GroupID); err != nil {
			return highlight.Highlight{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var h highlight.Highlight
	err := s.commitLocked(ctx, func() (change, error) {
		var err error
		h, err = s.set.Update(id, p)
		if err != nil {
			return 0, err
		}
		return highlightsChanged | s.markSavedLocked(h), nil
	})
	if err != nil {
		return highlight.Highlight{}, err
	}
	return h, nil
}

// Explain asks the explanation oracle about every pending highlight in one
// batch and persists what came back. Only one request per document may run
// at a time; a second call fails with ErrExplainInFlight.
func (s *Session) Explain(ctx context.Context) (reconcile.Report, error) {
	if s.lib.reconciler == nil {
		return reconcile.Report{}, oracle.ErrNotConfigured
	}
	if !s.explaining.CompareAndSwap(false, true) {
		return reconcile.Report{}, ErrExplainInFlight
	}
	defer s.explaining.Store(false)

	batch, err := s.lib.reconciler.Fetch(ctx, s.set)
	if err != nil {
		return batch.Report(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var report reconcile.Report
	err = s.commitLocked(ctx, func() (change, error) {
		var err error
		report, err = batch.Apply(s.set)
		if err != nil || report.Matched == 0 {
			return 0, err
		}
		return highlightsChanged, nil
	})
	if err != nil {
		report.Matched = 0
	}
	return report, err
}

// Explaining reports whether an explanation request is running.
func (s *Session) Explaining() bool { return s.explaining.Load() }

// SavedIDs returns the ids of saved highlights.
func (s *Session) SavedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saved...)
}

// IsSaved reports whether the highlight is in the saved-words list.
func (s *Session) IsSaved(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return indexOf(s.saved, id) >= 0
}

// Save adds a highlight to the saved-words list.
func (s *Session) Save(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, func() (change, error) {
		if _, err := s.set.Get(id); err != nil {
			return 0, err
		}
		if indexOf(s.saved, id) >= 0 {
			return 0, nil
		}
		s.saved = append(s.saved, id)
		return savedChanged, nil
	})
}

// markSavedLocked saves h if it belongs to a group and is not saved yet.
func (s *Session) markSavedLocked(h highlight.Highlight) change {
	if !h.Grouped() || indexOf(s.saved, h.ID) >= 0 {
		return 0
	}
	s.saved = append(s.saved, h.ID)
	return savedChanged
}

// Unsave removes a highlight from the saved-words list and from its group.
func (s *Session) Unsave(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, func() (change, error) {
		h, err := s.set.Get(id)
		if err != nil {
			return 0, err
		}
		var c change
		if h.Grouped() {
			none := ""
			if _, err := s.set.Update(id, highlight.Patch{GroupID: &none}); err != nil {
				return 0, err
			}
			c |= highlightsChanged
		}
		if removeID(&s.saved, id) {
			c |= savedChanged
		}
		return c, nil
	})
}

// Reorder sets the list order of the document's highlights. Ids not named
// keep their relative order after the named ones.
func (s *Session) Reorder(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, func() (change, error) {
		if err := s.set.Reorder(ids); err != nil {
			return 0, err
		}
		return orderChanged | highlightsChanged, nil
	})
}

// assignLocked puts a highlight into groupID and saves it. s.mu must be held.
func (s *Session) assignLocked(ctx context.Context, id, groupID string, only bool) (highlight.Highlight, error) {
	var h highlight.Highlight
	err := s.commitLocked(ctx, func() (change, error) {
		var err error
		h, err = s.set.Update(id, highlight.Patch{GroupID: &groupID, OnlyShowInGroup: &only})
		if err != nil {
			return 0, err
		}
		return highlightsChanged | s.markSavedLocked(h), nil
	})
	if err != nil {
		return highlight.Highlight{}, err
	}
	return h, nil
}

// detachLocked clears groupID from every member. s.mu must be held.
func (s *Session) detachLocked(ctx context.Context, groupID string) (int, error) {
	n := 0
	err := s.commitLocked(ctx, func() (change, error) {
		none := ""
		for _, h := range s.set.List() {
			if h.GroupID != groupID {
				continue
			}
			if _, err := s.set.Update(h.ID, highlight.Patch{GroupID: &none}); err != nil {
				return 0, err
			}
			n++
		}
		if n == 0 {
			return 0, nil
		}
		return highlightsChanged, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Suggestion is a vocabulary match and, when applied, the highlight created for it.
type Suggestion struct {
	analyze.Match
	HighlightID string `json:"highlightId,omitempty"`
	// Skipped is true when the match overlapped an existing highlight.
	Skipped bool `json:"skipped,omitempty"`
}

// Suggest matches vocabulary against the document: words when given, else the
// vocabulary recorded at import. With apply, every match becomes a highlight
// of the given color; matches overlapping existing highlights are skipped.
func (s *Session) Suggest(ctx context.Context, words []string, color string, apply bool) ([]Suggestion, error) {
	if len(words) == 0 {
		vocab, err := s.lib.Vocabulary(ctx, s.doc.ID)
		if err != nil {
			return nil, err
		}
		for _, v := range vocab {
			words = append(words, v.Word)
		}
	}
	matches := analyze.Suggest(s.doc.Content, words)
	out := make([]Suggestion, len(matches))
	for i, m := range matches {
		out[i] = Suggestion{Match: m}
	}
	if !apply || len(matches) == 0 {
		return out, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	err := s.commitLocked(ctx, func() (change, error) {
		for i, m := range matches {
			h, err := s.set.Add(highlight.Candidate{Text: m.Text, Color: color, Start: m.Start, End: m.End})
			if errors.Is(err, highlight.ErrOverlap) {
				out[i].Skipped = true
				continue
			}
			if err != nil {
				return 0, err
			}
			out[i].HighlightID = h.ID
			added++
		}
		if added == 0 {
			return 0, nil
		}
		return highlightsChanged, nil
	})
	if err != nil {
		return nil, err
	}
	if added > 0 {
		s.log.Info("vocabulary suggestions applied", zap.Int("added", added), zap.Int("matches", len(matches)))
	}
	return out, nil
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func removeID(ids *[]string, id string) bool {
	i := indexOf(*ids, id)
	if i < 0 {
		return false
	}
	*ids = append((*ids)[:i], (*ids)[i+1:]...)
	return true
}
