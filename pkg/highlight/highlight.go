package highlight

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Explanation is the learner-facing annotation attached to a highlight.
type Explanation struct {
	Word    string `json:"word" msgpack:"word"`
	Meaning string `json:"meaning" msgpack:"meaning"`
	Grammar string `json:"grammar" msgpack:"grammar"`
	Example string `json:"example" msgpack:"example"`
}

// Highlight is one user-marked span of a document.
// Start and End are rune offsets into the document content, half-open.
type Highlight struct {
	ID              string       `json:"id" msgpack:"id"`
	Text            string       `json:"text" msgpack:"text"`
	Color           string       `json:"color" msgpack:"color"`
	Start           int          `json:"startIndex" msgpack:"startIndex"`
	End             int          `json:"endIndex" msgpack:"endIndex"`
	Explanation     *Explanation `json:"explanation,omitempty" msgpack:"explanation,omitempty"`
	GroupID         string       `json:"groupId,omitempty" msgpack:"groupId,omitempty"`
	OnlyShowInGroup bool         `json:"onlyShowInGroup,omitempty" msgpack:"onlyShowInGroup,omitempty"`
	Order           int          `json:"order" msgpack:"order"`
	CreatedAt       time.Time    `json:"createdAt" msgpack:"createdAt"`
}

// Pending reports whether the highlight still waits for an explanation.
func (h Highlight) Pending() bool { return h.Explanation == nil }

// Overlaps reports whether [start, end) intersects the highlight. Touching ranges do not overlap.
func (h Highlight) Overlaps(start, end int) bool {
	return start < h.End && end > h.Start
}

// Grouped reports whether the highlight belongs to a group.
func (h Highlight) Grouped() bool { return h.GroupID != "" }

// Listed reports whether the highlight appears in the ungrouped listing.
func (h Highlight) Listed() bool {
	return !(h.OnlyShowInGroup && h.GroupID != "")
}

func (h Highlight) clone() Highlight {
	if h.Explanation != nil {
		e := *h.Explanation
		h.Explanation = &e
	}
	return h
}

// Candidate is a proposed highlight before it is admitted into a Set.
type Candidate struct {
	Text  string
	Color string
	Start int
	End   int
}

// Patch describes a user edit. Nil fields are left untouched; offsets and text are never patchable.
type Patch struct {
	Color           *string
	Explanation     *Explanation
	GroupID         *string
	OnlyShowInGroup *bool
	Order           *int
}

// Group is a named bucket of highlights used for practice text generation.
type Group struct {
	ID            string    `json:"id" msgpack:"id"`
	Name          string    `json:"name" msgpack:"name"`
	CreatedAt     time.Time `json:"createdAt" msgpack:"createdAt"`
	Order         int       `json:"order" msgpack:"order"`
	GeneratedText string    `json:"generatedText,omitempty" msgpack:"generatedText,omitempty"`
}

// RuneLen returns the length of s in the offset unit used by highlights.
func RuneLen(s string) int { return utf8.RuneCountInString(s) }

// Slice returns content[start:end] in rune offsets. Out of range bounds are clamped.
func Slice(content string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end <= start {
		return ""
	}
	var b strings.Builder
	i := 0
	for _, r := range content {
		if i >= end {
			break
		}
		if i >= start {
			b.WriteRune(r)
		}
		i++
	}
	return b.String()
}
