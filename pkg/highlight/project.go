package highlight

import (
	"sort"
)

// SegmentKind distinguishes plain runs from highlighted runs.
type SegmentKind string

const (
	SegmentPlain     SegmentKind = "plain"
	SegmentHighlight SegmentKind = "highlight"
)

// Segment is one contiguous run of the projected document.
type Segment struct {
	Kind        SegmentKind `json:"kind"`
	Text        string      `json:"text"`
	Start       int         `json:"start"`
	End         int         `json:"end"`
	HighlightID string      `json:"highlightId,omitempty"`
	Color       string      `json:"color,omitempty"`
}

// Project splits content into plain and highlighted segments in one pass.
// Highlights must be disjoint, which a Set guarantees; ranges falling outside the
// content or behind the cursor are skipped rather than corrupting the text.
// Concatenating the Text of the result always yields content.
func Project(content string, highlights []Highlight) []Segment {
	hs := make([]Highlight, len(highlights))
	copy(hs, highlights)
	sort.SliceStable(hs, func(i, j int) bool {
		if hs[i].Start != hs[j].Start {
			return hs[i].Start < hs[j].Start
		}
		return hs[i].ID < hs[j].ID
	})

	runes := []rune(content)
	n := len(runes)
	segments := make([]Segment, 0, 2*len(hs)+1)
	cursor := 0

	for _, h := range hs {
		if h.Start < cursor || h.End > n || h.Start >= h.End {
			continue
		}
		if h.Start > cursor {
			segments = append(segments, Segment{
				Kind:  SegmentPlain,
				Text:  string(runes[cursor:h.Start]),
				Start: cursor,
				End:   h.Start,
			})
		}
		segments = append(segments, Segment{
			Kind:        SegmentHighlight,
			Text:        string(runes[h.Start:h.End]),
			Start:       h.Start,
			End:         h.End,
			HighlightID: h.ID,
			Color:       h.Color,
		})
		cursor = h.End
	}

	if cursor < n {
		segments = append(segments, Segment{
			Kind:  SegmentPlain,
			Text:  string(runes[cursor:]),
			Start: cursor,
			End:   n,
		})
	}
	return segments
}
