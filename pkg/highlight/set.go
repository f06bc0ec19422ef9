package highlight

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Set is the interval store for one document. It keeps highlights sorted by Start
// and guarantees that no two of them overlap.
type Set struct {
	mu      sync.Mutex
	content string
	length  int
	items   []Highlight

	newID func() string
	now   func() time.Time
}

// Option configures a Set.
type Option func(*Set)

// WithIDGenerator replaces the default UUIDv7 id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Set) { s.newID = fn }
}

// WithClock replaces time.Now for CreatedAt stamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Set) { s.now = fn }
}

func newUUID() string {
	// NewV7 only fails when the random source does.
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewSet builds a set over content from previously persisted highlights.
// It fails if any persisted highlight no longer fits the content or overlaps another.
func NewSet(content string, existing []Highlight, opts ...Option) (*Set, error) {
	s := &Set{
		content: content,
		length:  RuneLen(content),
		newID:   newUUID,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	items := make([]Highlight, 0, len(existing))
	for _, h := range existing {
		items = append(items, h.clone())
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Start < items[j].Start })

	seen := make(map[string]bool, len(items))
	for i, h := range items {
		if err := s.checkRange(h.Start, h.End, h.Text); err != nil {
			return nil, fmt.Errorf("load highlight %s: %w", h.ID, err)
		}
		if seen[h.ID] {
			return nil, fmt.Errorf("load highlight %s: duplicate id", h.ID)
		}
		seen[h.ID] = true
		if i > 0 && items[i-1].End > h.Start {
			return nil, fmt.Errorf("load highlight %s: %w", h.ID, &OverlapError{Start: h.Start, End: h.End, Existing: items[i-1]})
		}
	}
	s.items = items
	return s, nil
}

// Content returns the immutable document text the set is bound to.
func (s *Set) Content() string { return s.content }

// Len returns the number of highlights.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Set) checkRange(start, end int, text string) error {
	if start < 0 || end > s.length {
		return &RangeError{Start: start, End: end, Length: s.length, Reason: "out of bounds"}
	}
	if start >= end {
		return &RangeError{Start: start, End: end, Length: s.length, Reason: "empty range"}
	}
	if text != "" && Slice(s.content, start, end) != text {
		return &RangeError{Start: start, End: end, Length: s.length, Reason: "text does not match content"}
	}
	return nil
}

// insertionPoint returns the index of the first highlight whose Start is >= start.
func (s *Set) insertionPoint(start int) int {
	return sort.Search(len(s.items), func(i int) bool { return s.items[i].Start >= start })
}

// Add admits a candidate. On overlap the set is left unchanged and an *OverlapError is returned.
func (s *Set) Add(c Candidate) (Highlight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkRange(c.Start, c.End, c.Text); err != nil {
		return Highlight{}, err
	}

	// Items are disjoint and sorted, so only the neighbours can intersect.
	idx := s.insertionPoint(c.Start)
	if idx > 0 && s.items[idx-1].Overlaps(c.Start, c.End) {
		return Highlight{}, &OverlapError{Start: c.Start, End: c.End, Existing: s.items[idx-1].clone()}
	}
	if idx < len(s.items) && s.items[idx].Overlaps(c.Start, c.End) {
		return Highlight{}, &OverlapError{Start: c.Start, End: c.End, Existing: s.items[idx].clone()}
	}

	order := 0
	for _, h := range s.items {
		if h.Order >= order {
			order = h.Order + 1
		}
	}

	h := Highlight{
		ID:        s.newID(),
		Text:      Slice(s.content, c.Start, c.End),
		Color:     c.Color,
		Start:     c.Start,
		End:       c.End,
		Order:     order,
		CreatedAt: s.now(),
	}

	s.items = append(s.items, Highlight{})
	copy(s.items[idx+1:], s.items[idx:])
	s.items[idx] = h
	return h.clone(), nil
}

func (s *Set) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// Get returns a copy of the highlight with the given id.
func (s *Set) Get(id string) (Highlight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return Highlight{}, &NotFoundError{ID: id}
	}
	return s.items[i].clone(), nil
}

// Remove deletes a highlight. Unknown ids fail with *NotFoundError.
func (s *Set) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return &NotFoundError{ID: id}
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

// Update applies a user edit. Offsets and text cannot change.
func (s *Set) Update(id string, p Patch) (Highlight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return Highlight{}, &NotFoundError{ID: id}
	}
	h := &s.items[i]
	if p.Color != nil {
		h.Color = *p.Color
	}
	if p.Explanation != nil {
		e := *p.Explanation
		h.Explanation = &e
	}
	if p.GroupID != nil {
		h.GroupID = *p.GroupID
		if h.GroupID == "" {
			h.OnlyShowInGroup = false
		}
	}
	if p.OnlyShowInGroup != nil {
		h.OnlyShowInGroup = *p.OnlyShowInGroup && h.GroupID != ""
	}
	if p.Order != nil {
		h.Order = *p.Order
	}
	return h.clone(), nil
}

// Explain fills in an explanation only if the highlight has none yet.
// It reports whether the explanation was applied.
func (s *Set) Explain(id string, e Explanation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return false, &NotFoundError{ID: id}
	}
	if s.items[i].Explanation != nil {
		return false, nil
	}
	s.items[i].Explanation = &e
	return true, nil
}

// Reorder assigns Order by position in ids. Highlights not listed keep their
// relative order after the listed ones.
func (s *Set) Reorder(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		if s.indexOf(id) < 0 {
			return &NotFoundError{ID: id}
		}
		pos[id] = i
	}

	rest := make([]*Highlight, 0, len(s.items))
	for i := range s.items {
		h := &s.items[i]
		if p, ok := pos[h.ID]; ok {
			h.Order = p
			continue
		}
		rest = append(rest, h)
	}
	sort.SliceStable(rest, func(i, j int) bool { return lessOrder(*rest[i], *rest[j]) })
	for i, h := range rest {
		h.Order = len(ids) + i
	}
	return nil
}

// List returns copies of all highlights ordered by Start.
func (s *Set) List() []Highlight {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Highlight, len(s.items))
	for i, h := range s.items {
		out[i] = h.clone()
	}
	return out
}

// Ordered returns copies in the user-defined display order.
func (s *Set) Ordered() []Highlight {
	out := s.List()
	SortByOrder(out)
	return out
}

// Restore replaces the contents with highlights previously returned by List.
func (s *Set) Restore(items []Highlight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make([]Highlight, len(items))
	for i, h := range items {
		s.items[i] = h.clone()
	}
}

// Pending returns the highlights that have no explanation yet, ordered by Start.
func (s *Set) Pending() []Highlight {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Highlight
	for _, h := range s.items {
		if h.Pending() {
			out = append(out, h.clone())
		}
	}
	return out
}

func lessOrder(a, b Highlight) bool {
	if a.Order != b.Order {
		return a.Order < b.Order
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortByOrder sorts highlights in place by Order, then creation time.
func SortByOrder(hs []Highlight) {
	sort.SliceStable(hs, func(i, j int) bool { return lessOrder(hs[i], hs[j]) })
}
