// Package persist stores highlight sets, saved-word lists, custom orders,
// groups and article flags in a key-value store, namespaced per document.
package persist

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/japaniel/readmark/pkg/highlight"
	"github.com/japaniel/readmark/pkg/kv"
)

const (
	highlightsPrefix = "highlights_"
	savedPrefix      = "savedWords_"
	orderPrefix      = "wordOrder_"

	groupsKey        = "groups"
	readArticlesKey  = "readArticles"
	savedArticlesKey = "savedArticles"
	globalOrderKey   = "globalWordOrder"
)

// HighlightsKey is the key holding a document's highlights.
func HighlightsKey(docID string) string { return highlightsPrefix + docID }

// SavedKey is the key holding a document's saved highlight ids.
func SavedKey(docID string) string { return savedPrefix + docID }

// OrderKey is the key holding a document's custom highlight order.
func OrderKey(docID string) string { return orderPrefix + docID }

// Snapshot is everything persisted for one document.
type Snapshot struct {
	Highlights []highlight.Highlight
	SavedIDs   []string
}

// Saved reports whether id is in the saved set.
func (s Snapshot) Saved(id string) bool {
	for _, v := range s.SavedIDs {
		if v == id {
			return true
		}
	}
	return false
}

// SavedWord is a saved highlight together with the document it belongs to.
type SavedWord struct {
	DocumentID string `json:"documentId"`
	highlight.Highlight
}

// Adapter reads and writes engine state through a kv.Store.
type Adapter struct {
	store kv.Store
	codec kv.Codec
	log   *zap.Logger
}

// New creates an Adapter. A nil codec selects kv.JSON and a nil logger disables logging.
func New(store kv.Store, codec kv.Codec, log *zap.Logger) *Adapter {
	if codec == nil {
		codec = kv.JSON
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{store: store, codec: codec, log: log}
}

func (a *Adapter) get(ctx context.Context, key string, v any) (bool, error) {
	return kv.GetValue(ctx, a.store, a.codec, key, v)
}

func (a *Adapter) set(ctx context.Context, key string, v any) error {
	return kv.SetValue(ctx, a.store, a.codec, key, v)
}

// Load returns a document's highlights in display order together with its saved ids.
// The persisted custom order wins when present; ids it names that no longer exist
// are skipped and highlights it does not name follow in creation order.
func (a *Adapter) Load(ctx context.Context, docID string) (Snapshot, error) {
	var hs []highlight.Highlight
	if _, err := a.get(ctx, HighlightsKey(docID), &hs); err != nil {
		return Snapshot{}, fmt.Errorf("load highlights for %s: %w", docID, err)
	}
	saved, err := a.LoadSaved(ctx, docID)
	if err != nil {
		return Snapshot{}, err
	}
	order, _, err := a.LoadOrder(ctx, docID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Highlights: applyOrder(hs, order), SavedIDs: saved}, nil
}

// applyOrder puts hs in the sequence named by order, then the rest by creation.
func applyOrder(hs []highlight.Highlight, order []string) []highlight.Highlight {
	rest := make([]highlight.Highlight, len(hs))
	copy(rest, hs)
	sort.SliceStable(rest, func(i, j int) bool {
		if !rest[i].CreatedAt.Equal(rest[j].CreatedAt) {
			return rest[i].CreatedAt.Before(rest[j].CreatedAt)
		}
		return rest[i].ID < rest[j].ID
	})
	if len(order) == 0 {
		return rest
	}

	byID := make(map[string]int, len(rest))
	for i, h := range rest {
		byID[h.ID] = i
	}
	out := make([]highlight.Highlight, 0, len(rest))
	used := make([]bool, len(rest))
	for _, id := range order {
		i, ok := byID[id]
		if !ok || used[i] {
			continue
		}
		used[i] = true
		out = append(out, rest[i])
	}
	for i, h := range rest {
		if !used[i] {
			out = append(out, h)
		}
	}
	return out
}

// Save replaces a document's highlights. An empty set deletes the key.
func (a *Adapter) Save(ctx context.Context, docID string, hs []highlight.Highlight) error {
	if len(hs) == 0 {
		return a.store.Delete(ctx, HighlightsKey(docID))
	}
	if err := a.set(ctx, HighlightsKey(docID), hs); err != nil {
		return fmt.Errorf("save highlights for %s: %w", docID, err)
	}
	a.log.Debug("saved highlights", zap.String("doc_id", docID), zap.Int("count", len(hs)))
	return nil
}

// LoadSaved returns the saved highlight ids of a document.
func (a *Adapter) LoadSaved(ctx context.Context, docID string) ([]string, error) {
	var ids []string
	if _, err := a.get(ctx, SavedKey(docID), &ids); err != nil {
		return nil, fmt.Errorf("load saved ids for %s: %w", docID, err)
	}
	return ids, nil
}

// SaveSaved replaces the saved ids of a document. Duplicates are dropped.
func (a *Adapter) SaveSaved(ctx context.Context, docID string, ids []string) error {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return a.store.Delete(ctx, SavedKey(docID))
	}
	return a.set(ctx, SavedKey(docID), ids)
}

// LoadOrder returns the custom order of a document. The boolean is false when none was saved.
func (a *Adapter) LoadOrder(ctx context.Context, docID string) ([]string, bool, error) {
	var ids []string
	ok, err := a.get(ctx, OrderKey(docID), &ids)
	if err != nil {
		return nil, false, fmt.Errorf("load order for %s: %w", docID, err)
	}
	return ids, ok, nil
}

// SaveOrder stores the custom order of a document.
func (a *Adapter) SaveOrder(ctx context.Context, docID string, ids []string) error {
	return a.set(ctx, OrderKey(docID), dedupe(ids))
}

// LoadGlobalOrder returns the custom order of the saved-words list.
func (a *Adapter) LoadGlobalOrder(ctx context.Context) ([]string, bool, error) {
	var ids []string
	ok, err := a.get(ctx, globalOrderKey, &ids)
	if err != nil {
		return nil, false, fmt.Errorf("load global order: %w", err)
	}
	return ids, ok, nil
}

// SaveGlobalOrder stores the custom order of the saved-words list.
func (a *Adapter) SaveGlobalOrder(ctx context.Context, ids []string) error {
	return a.set(ctx, globalOrderKey, dedupe(ids))
}

// LoadGroups returns all groups ordered by Order, then creation time.
func (a *Adapter) LoadGroups(ctx context.Context) ([]highlight.Group, error) {
	var groups []highlight.Group
	if _, err := a.get(ctx, groupsKey, &groups); err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Order != groups[j].Order {
			return groups[i].Order < groups[j].Order
		}
		return groups[i].CreatedAt.Before(groups[j].CreatedAt)
	})
	return groups, nil
}

// SaveGroups replaces the group list.
func (a *Adapter) SaveGroups(ctx context.Context, groups []highlight.Group) error {
	if groups == nil {
		groups = []highlight.Group{}
	}
	return a.set(ctx, groupsKey, groups)
}

// Documents lists the ids of every document that has stored highlights.
func (a *Adapter) Documents(ctx context.Context) ([]string, error) {
	keys, err := a.store.Keys(ctx, highlightsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list highlight keys: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, highlightsPrefix))
	}
	return ids, nil
}

// SavedWords aggregates the saved highlights of every document into one list,
// in the global custom order when present, else by creation time.
func (a *Adapter) SavedWords(ctx context.Context) ([]SavedWord, error) {
	docs, err := a.Documents(ctx)
	if err != nil {
		return nil, err
	}
	var words []SavedWord
	for _, docID := range docs {
		snap, err := a.Load(ctx, docID)
		if err != nil {
			return nil, err
		}
		for _, h := range snap.Highlights {
			if snap.Saved(h.ID) {
				words = append(words, SavedWord{DocumentID: docID, Highlight: h})
			}
		}
	}

	sort.SliceStable(words, func(i, j int) bool {
		if !words[i].CreatedAt.Equal(words[j].CreatedAt) {
			return words[i].CreatedAt.Before(words[j].CreatedAt)
		}
		return words[i].ID < words[j].ID
	})

	order, ok, err := a.LoadGlobalOrder(ctx)
	if err != nil || !ok {
		return words, err
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		if _, dup := pos[id]; !dup {
			pos[id] = i
		}
	}
	sort.SliceStable(words, func(i, j int) bool {
		pi, iok := pos[words[i].ID]
		pj, jok := pos[words[j].ID]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		}
		return false
	})
	return words, nil
}

// Rewrite applies fn to the highlights of every document and writes back the
// documents for which fn reports a change. It returns the number of documents written.
func (a *Adapter) Rewrite(ctx context.Context, fn func(docID string, hs []highlight.Highlight) bool) (int, error) {
	docs, err := a.Documents(ctx)
	if err != nil {
		return 0, err
	}
	written := 0
	for _, docID := range docs {
		var hs []highlight.Highlight
		if _, err := a.get(ctx, HighlightsKey(docID), &hs); err != nil {
			return written, fmt.Errorf("load highlights for %s: %w", docID, err)
		}
		if !fn(docID, hs) {
			continue
		}
		if err := a.Save(ctx, docID, hs); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// DetachGroup clears groupId and onlyShowInGroup on every member of groupID
// across all documents. It returns the number of highlights detached.
func (a *Adapter) DetachGroup(ctx context.Context, groupID string) (int, error) {
	detached := 0
	_, err := a.Rewrite(ctx, func(_ string, hs []highlight.Highlight) bool {
		changed := false
		for i := range hs {
			if hs[i].GroupID == groupID {
				hs[i].GroupID = ""
				hs[i].OnlyShowInGroup = false
				detached++
				changed = true
			}
		}
		return changed
	})
	return detached, err
}

// IsRead reports whether a document is marked read.
func (a *Adapter) IsRead(ctx context.Context, docID string) (bool, error) {
	ids, err := a.stringSet(ctx, readArticlesKey)
	if err != nil {
		return false, err
	}
	return contains(ids, docID), nil
}

// SetRead marks or unmarks a document as read.
func (a *Adapter) SetRead(ctx context.Context, docID string, read bool) error {
	return a.updateStringSet(ctx, readArticlesKey, docID, read)
}

// ReadArticles lists documents marked read.
func (a *Adapter) ReadArticles(ctx context.Context) ([]string, error) {
	return a.stringSet(ctx, readArticlesKey)
}

// ToggleSavedArticle flips the bookmark on a document and returns the new state.
func (a *Adapter) ToggleSavedArticle(ctx context.Context, docID string) (bool, error) {
	ids, err := a.stringSet(ctx, savedArticlesKey)
	if err != nil {
		return false, err
	}
	saved := !contains(ids, docID)
	return saved, a.updateStringSet(ctx, savedArticlesKey, docID, saved)
}

// SavedArticles lists bookmarked documents.
func (a *Adapter) SavedArticles(ctx context.Context) ([]string, error) {
	return a.stringSet(ctx, savedArticlesKey)
}

func (a *Adapter) stringSet(ctx context.Context, key string) ([]string, error) {
	var ids []string
	if _, err := a.get(ctx, key, &ids); err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return ids, nil
}

func (a *Adapter) updateStringSet(ctx context.Context, key, id string, present bool) error {
	ids, err := a.stringSet(ctx, key)
	if err != nil {
		return err
	}
	out := make([]string, 0, len(ids)+1)
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	if present {
		out = append(out, id)
	}
	return a.set(ctx, key, out)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
