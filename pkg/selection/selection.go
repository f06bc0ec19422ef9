// Package selection converts a user selection over a rendered document tree
// into offsets into the document content.
package selection

import (
	"errors"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/japaniel/readmark/pkg/render"
)

var (
	// ErrEmptySelection is returned for collapsed or whitespace-only selections.
	ErrEmptySelection = errors.New("selection is empty")
	// ErrOutsideRoot is returned when a boundary point is not inside the document root.
	ErrOutsideRoot = errors.New("selection is outside the document")
)

// Selection mirrors a DOM Range. For a text node the offset counts runes into
// its data; for an element it is a child index.
type Selection struct {
	StartNode   *html.Node
	StartOffset int
	EndNode     *html.Node
	EndOffset   int
}

// Resolved is a selection expressed in content offsets.
type Resolved struct {
	Text  string
	Start int
	End   int
}

// Resolver maps selections to content offsets. The zero value is ready to use.
type Resolver struct {
	// KeepWhitespace disables trimming of leading and trailing whitespace.
	KeepWhitespace bool
}

// Resolve computes the content offsets of sel within root. Offsets count the
// text of every text node preceding the boundary point; markers add no text, so
// the result indexes the original content.
func (r Resolver) Resolve(sel Selection, root *html.Node) (Resolved, error) {
	if root == nil || !contains(root, sel.StartNode) || !contains(root, sel.EndNode) {
		return Resolved{}, ErrOutsideRoot
	}

	start, err := position(root, sel.StartNode, sel.StartOffset)
	if err != nil {
		return Resolved{}, err
	}
	end, err := position(root, sel.EndNode, sel.EndOffset)
	if err != nil {
		return Resolved{}, err
	}
	if end < start {
		start, end = end, start
	}
	if start == end {
		return Resolved{}, ErrEmptySelection
	}

	runes := []rune(render.Text(root))
	selected := runes[start:end]
	if !r.KeepWhitespace {
		lead, trail := 0, len(selected)
		for lead < trail && unicode.IsSpace(selected[lead]) {
			lead++
		}
		for trail > lead && unicode.IsSpace(selected[trail-1]) {
			trail--
		}
		selected = selected[lead:trail]
		start += lead
	}
	if len(selected) == 0 {
		return Resolved{}, ErrEmptySelection
	}
	return Resolved{Text: string(selected), Start: start, End: start + len(selected)}, nil
}

// Resolve uses a zero Resolver.
func Resolve(sel Selection, root *html.Node) (Resolved, error) {
	return Resolver{}.Resolve(sel, root)
}

func contains(root, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == root {
			return true
		}
	}
	return false
}

// position returns the content offset of the boundary point (node, offset).
func position(root, node *html.Node, offset int) (int, error) {
	if offset < 0 {
		offset = 0
	}
	before := textBefore(root, node)
	if node.Type == html.TextNode {
		n := utf8.RuneCountInString(node.Data)
		if offset > n {
			offset = n
		}
		return before + offset, nil
	}

	i := 0
	for c := node.FirstChild; c != nil && i < offset; c = c.NextSibling {
		before += runeLen(c)
		i++
	}
	return before, nil
}

// textBefore counts the runes of all text that precedes target in document order within root.
func textBefore(root, target *html.Node) int {
	total := 0
	for n := target; n != root; n = n.Parent {
		for s := n.PrevSibling; s != nil; s = s.PrevSibling {
			total += runeLen(s)
		}
	}
	return total
}

func runeLen(n *html.Node) int {
	if n.Type == html.TextNode {
		return utf8.RuneCountInString(n.Data)
	}
	total := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		total += runeLen(c)
	}
	return total
}
