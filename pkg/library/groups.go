package library

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/japaniel/readmark/pkg/highlight"
	"github.com/japaniel/readmark/pkg/oracle"
	"github.com/japaniel/readmark/pkg/persist"
)

// SavedFilter narrows the saved-words list. With GroupID set only that
// group's members are returned; otherwise members hidden by OnlyShowInGroup
// are left out.
type SavedFilter struct {
	GroupID string
}

// SavedWords lists saved highlights across all documents in review order.
func (l *Library) SavedWords(ctx context.Context, f SavedFilter) ([]persist.SavedWord, error) {
	words, err := l.opts.Store.SavedWords(ctx)
	if err != nil {
		return nil, err
	}
	out := words[:0]
	for _, w := range words {
		if f.GroupID != "" {
			if w.GroupID == f.GroupID {
				out = append(out, w)
			}
			continue
		}
		if w.Listed() {
			out = append(out, w)
		}
	}
	return out, nil
}

// ReorderSaved sets the global order of the saved-words list.
func (l *Library) ReorderSaved(ctx context.Context, ids []string) error {
	return l.opts.Store.SaveGlobalOrder(ctx, ids)
}

// Groups lists all groups in display order.
func (l *Library) Groups(ctx context.Context) ([]highlight.Group, error) {
	l.groupsMu.Lock()
	defer l.groupsMu.Unlock()
	return l.opts.Store.LoadGroups(ctx)
}

func (l *Library) group(ctx context.Context, id string) (highlight.Group, error) {
	groups, err := l.Groups(ctx)
	if err != nil {
		return highlight.Group{}, err
	}
	for _, g := range groups {
		if g.ID == id {
			return g, nil
		}
	}
	return highlight.Group{}, fmt.Errorf("%w: %s", ErrGroupNotFound, id)
}

// updateGroups loads the group list, applies fn and writes it back.
func (l *Library) updateGroups(ctx context.Context, fn func([]highlight.Group) ([]highlight.Group, error)) error {
	l.groupsMu.Lock()
	defer l.groupsMu.Unlock()
	groups, err := l.opts.Store.LoadGroups(ctx)
	if err != nil {
		return err
	}
	groups, err = fn(groups)
	if err != nil {
		return err
	}
	return l.opts.Store.SaveGroups(ctx, groups)
}

func findGroup(groups []highlight.Group, id string) int {
	for i, g := range groups {
		if g.ID == id {
			return i
		}
	}
	return -1
}

// CreateGroup adds a named group at the end of the list.
func (l *Library) CreateGroup(ctx context.Context, name string) (highlight.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return highlight.Group{}, ErrInvalidName
	}
	g := highlight.Group{ID: l.opts.NewID(), Name: name, CreatedAt: l.opts.Now().UTC()}
	err := l.updateGroups(ctx, func(groups []highlight.Group) ([]highlight.Group, error) {
		for _, o := range groups {
			g.Order = max(g.Order, o.Order+1)
		}
		return append(groups, g), nil
	})
	if err != nil {
		return highlight.Group{}, err
	}
	l.log.Info("group created", zap.String("group_id", g.ID), zap.String("name", g.Name))
	return g, nil
}

// RenameGroup changes a group's name.
func (l *Library) RenameGroup(ctx context.Context, id, name string) (highlight.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return highlight.Group{}, ErrInvalidName
	}
	var out highlight.Group
	err := l.updateGroups(ctx, func(groups []highlight.Group) ([]highlight.Group, error) {
		i := findGroup(groups, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, id)
		}
		groups[i].Name = name
		out = groups[i]
		return groups, nil
	})
	return out, err
}

// DeleteGroup removes a group. Its members stay highlighted and saved but
// are detached from the group in every document.
func (l *Library) DeleteGroup(ctx context.Context, id string) error {
	if _, err := l.group(ctx, id); err != nil {
		return err
	}
	detached := 0
	for _, s := range l.cached() {
		s.mu.Lock()
		n, err := s.detachLocked(ctx, id)
		s.mu.Unlock()
		if err != nil {
			return err
		}
		detached += n
	}
	n, err := l.opts.Store.DetachGroup(ctx, id)
	if err != nil {
		return err
	}
	detached += n
	err = l.updateGroups(ctx, func(groups []highlight.Group) ([]highlight.Group, error) {
		if i := findGroup(groups, id); i >= 0 {
			groups = append(groups[:i], groups[i+1:]...)
		}
		return groups, nil
	})
	if err != nil {
		return err
	}
	l.log.Info("group deleted", zap.String("group_id", id), zap.Int("detached", detached))
	return nil
}

// AssignToGroup moves a highlight into a group and saves it. An empty
// groupID detaches it. onlyInGroup hides it from the ungrouped listing.
func (l *Library) AssignToGroup(ctx context.Context, docID, highlightID, groupID string, onlyInGroup bool) (highlight.Highlight, error) {
	if groupID != "" {
		if _, err := l.group(ctx, groupID); err != nil {
			return highlight.Highlight{}, err
		}
	} else {
		onlyInGroup = false
	}
	s, err := l.Open(ctx, docID)
	if err != nil {
		return highlight.Highlight{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignLocked(ctx, highlightID, groupID, onlyInGroup)
}

// GroupMembers returns the saved highlights in a group.
func (l *Library) GroupMembers(ctx context.Context, id string) ([]persist.SavedWord, error) {
	if _, err := l.group(ctx, id); err != nil {
		return nil, err
	}
	return l.SavedWords(ctx, SavedFilter{GroupID: id})
}

// GeneratePracticeText returns a short text using every word in the group.
// The result is cached on the group; regenerate forces a new request.
func (l *Library) GeneratePracticeText(ctx context.Context, id string, regenerate bool) (string, error) {
	g, err := l.group(ctx, id)
	if err != nil {
		return "", err
	}
	if g.GeneratedText != "" && !regenerate {
		return g.GeneratedText, nil
	}
	if l.opts.Generator == nil {
		return "", oracle.ErrNotConfigured
	}
	members, err := l.GroupMembers(ctx, id)
	if err != nil {
		return "", err
	}
	if len(members) == 0 {
		return "", ErrEmptyGroup
	}
	words := make([]oracle.Entry, len(members))
	for i, m := range members {
		words[i] = oracle.FromHighlight(m.Text, m.Explanation)
	}

	text, err := l.opts.Generator.GenerateText(ctx, words)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	err = l.updateGroups(ctx, func(groups []highlight.Group) ([]highlight.Group, error) {
		if i := findGroup(groups, id); i >= 0 {
			groups[i].GeneratedText = text
		}
		return groups, nil
	})
	if err != nil {
		return "", err
	}
	l.log.Info("practice text generated", zap.String("group_id", id), zap.Int("words", len(words)))
	return text, nil
}
