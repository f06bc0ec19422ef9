// Package render turns projected segments into an HTML tree.
//
// Marker elements never contribute text: a highlight is a <mark> wrapping
// exactly the highlighted text, followed by an empty remove <button>. The
// concatenated text of the tree therefore equals the document content, which
// is what lets the selection resolver count offsets from it.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/japaniel/readmark/pkg/highlight"
)

const (
	// DocumentClass is the class of the root container built by Tree.
	DocumentClass = "document"

	AttrHighlightID = "data-highlight-id"
	AttrColor       = "data-color"
	AttrRemoveID    = "data-remove-id"
)

func attr(key, val string) html.Attribute { return html.Attribute{Key: key, Val: val} }

// Tree builds <div class="document"> holding the segments in order.
func Tree(segments []highlight.Segment) *html.Node {
	root := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Div,
		Data:     "div",
		Attr:     []html.Attribute{attr("class", DocumentClass)},
	}
	for _, seg := range segments {
		if seg.Text == "" {
			continue
		}
		if seg.Kind != highlight.SegmentHighlight {
			root.AppendChild(&html.Node{Type: html.TextNode, Data: seg.Text})
			continue
		}
		root.AppendChild(markNode(seg))
		root.AppendChild(removeButton(seg))
	}
	return root
}

func markNode(seg highlight.Segment) *html.Node {
	mark := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Mark,
		Data:     "mark",
		Attr: []html.Attribute{
			attr(AttrHighlightID, seg.HighlightID),
			attr(AttrColor, seg.Color),
		},
	}
	if seg.Color != "" {
		mark.Attr = append(mark.Attr, attr("style", "background-color: "+seg.Color))
	}
	mark.AppendChild(&html.Node{Type: html.TextNode, Data: seg.Text})
	return mark
}

func removeButton(seg highlight.Segment) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Button,
		Data:     "button",
		Attr: []html.Attribute{
			attr("type", "button"),
			attr(AttrRemoveID, seg.HighlightID),
			attr("aria-label", fmt.Sprintf("Remove highlight %q", seg.Text)),
		},
	}
}

// HTML serialises the tree for segments.
func HTML(segments []highlight.Segment) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, Tree(segments)); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

// Document projects content and highlights and serialises the result.
func Document(content string, highlights []highlight.Highlight) (string, error) {
	return HTML(highlight.Project(content, highlights))
}

// Parse reads markup produced by HTML back into a tree and returns the
// document container.
func Parse(markup string) (*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode && n.DataAtom == atom.Div && hasClass(n, DocumentClass) {
			return n, nil
		}
	}
	return nil, fmt.Errorf("parse html: no %q container", DocumentClass)
}

// Text returns the concatenated text of all text nodes under n.
func Text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// FindHighlight returns the <mark> element for id, or nil.
func FindHighlight(root *html.Node, id string) *html.Node {
	return find(root, func(n *html.Node) bool {
		return n.DataAtom == atom.Mark && attrValue(n, AttrHighlightID) == id
	})
}

// FindRemoveButton returns the remove control for id, or nil.
func FindRemoveButton(root *html.Node, id string) *html.Node {
	return find(root, func(n *html.Node) bool {
		return n.DataAtom == atom.Button && attrValue(n, AttrRemoveID) == id
	})
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

// attrValue returns the value of attribute key on n, or "".
func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
