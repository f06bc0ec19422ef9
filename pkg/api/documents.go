package api

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf16"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/html"

	"github.com/japaniel/readmark/pkg/db"
	"github.com/japaniel/readmark/pkg/highlight"
	"github.com/japaniel/readmark/pkg/library"
	"github.com/japaniel/readmark/pkg/render"
	"github.com/japaniel/readmark/pkg/selection"
)

// errBadPath is returned for selection paths that do not name a node in the rendered tree.
var errBadPath = errors.New("selection path does not exist in the rendered document")

type documentResponse struct {
	Document        db.Document           `json:"document"`
	Highlights      []highlight.Highlight `json:"highlights"`
	SavedIDs        []string              `json:"savedIds"`
	HTML            string                `json:"html"`
	Explaining      bool                  `json:"explaining"`
	Vocabulary      []db.VocabularyEntry  `json:"vocabulary"`
	GrammarPatterns []db.GrammarPattern   `json:"grammarPatterns"`
}

// BoundaryPoint addresses a node in the served document markup by child
// indexes from the root container, plus an offset inside it. As with a browser
// Range, the offset counts UTF-16 code units in a text node and children in an
// element.
type BoundaryPoint struct {
	Path   []int `json:"path"`
	Offset int   `json:"offset"`
}

type SelectionRequest struct {
	Start BoundaryPoint `json:"start"`
	End   BoundaryPoint `json:"end"`
	// KeepWhitespace keeps leading and trailing whitespace in the selection.
	KeepWhitespace bool `json:"keepWhitespace"`
}

type addHighlightRequest struct {
	Color     string            `json:"color"`
	Selection *SelectionRequest `json:"selection"`
	Start     *int              `json:"startIndex"`
	End       *int              `json:"endIndex"`
	Text      string            `json:"text"`
}

type patchHighlightRequest struct {
	Color           *string                `json:"color"`
	Explanation     *highlight.Explanation `json:"explanation"`
	GroupID         *string                `json:"groupId"`
	OnlyShowInGroup *bool                  `json:"onlyShowInGroup"`
}

type idsRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

type suggestRequest struct {
	Words []string `json:"words"`
	Color string   `json:"color"`
	Apply bool     `json:"apply"`
}

type readRequest struct {
	Read bool `json:"read"`
}

// nodeAt follows path from root; every element is a child index.
func nodeAt(root *html.Node, path []int) (*html.Node, error) {
	n := root
	for _, idx := range path {
		if idx < 0 {
			return nil, errBadPath
		}
		c := n.FirstChild
		for i := 0; c != nil && i < idx; i++ {
			c = c.NextSibling
		}
		if c == nil {
			return nil, errBadPath
		}
		n = c
	}
	return n, nil
}

func (r SelectionRequest) resolve(root *html.Node) (selection.Selection, error) {
	start, err := nodeAt(root, r.Start.Path)
	if err != nil {
		return selection.Selection{}, fmt.Errorf("start: %w", err)
	}
	end, err := nodeAt(root, r.End.Path)
	if err != nil {
		return selection.Selection{}, fmt.Errorf("end: %w", err)
	}
	return selection.Selection{
		StartNode:   start,
		StartOffset: runeOffset(start, r.Start.Offset),
		EndNode:     end,
		EndOffset:   runeOffset(end, r.End.Offset),
	}, nil
}

// runeOffset converts a UTF-16 offset into a text node to a rune offset.
// Element offsets are child indexes and pass through.
func runeOffset(n *html.Node, units int) int {
	if n.Type != html.TextNode || units <= 0 {
		return units
	}
	runes := 0
	for _, r := range n.Data {
		if units <= 0 {
			break
		}
		units -= utf16.RuneLen(r)
		runes++
	}
	return runes
}

func (h *Handler) session(c *gin.Context) (*library.Session, bool) {
	s, err := h.lib.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return s, true
}

// ListDocuments accepts optional level and topic query parameters.
func (h *Handler) ListDocuments(c *gin.Context) {
	docs, err := h.lib.Documents(c.Request.Context(), db.ListFilter{
		Level: c.Query("level"),
		Topic: c.Query("topic"),
	})
	if err != nil {
		fail(c, err)
		return
	}
	if docs == nil {
		docs = []db.Document{}
	}
	RespondOK(c, gin.H{"documents": docs})
}

func (h *Handler) GetDocument(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	markup, err := s.HTML()
	if err != nil {
		fail(c, err)
		return
	}
	ctx := c.Request.Context()
	words, err := h.lib.Vocabulary(ctx, s.Document().ID)
	if err != nil {
		fail(c, err)
		return
	}
	patterns, err := h.lib.GrammarPatterns(ctx, s.Document().ID)
	if err != nil {
		fail(c, err)
		return
	}
	if words == nil {
		words = []db.VocabularyEntry{}
	}
	if patterns == nil {
		patterns = []db.GrammarPattern{}
	}
	RespondOK(c, documentResponse{
		Document:        s.Document(),
		Highlights:      s.Highlights(),
		SavedIDs:        s.SavedIDs(),
		HTML:            markup,
		Explaining:      s.Explaining(),
		Vocabulary:      words,
		GrammarPatterns: patterns,
	})
}

// AddHighlight admits either a selection over the rendered document or raw offsets.
func (h *Handler) AddHighlight(c *gin.Context) {
	var req addHighlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var (
		hl  highlight.Highlight
		err error
	)
	switch {
	case req.Selection != nil:
		// Paths address the served markup as the client parsed it.
		markup, rerr := s.HTML()
		if rerr != nil {
			fail(c, rerr)
			return
		}
		root, rerr := render.Parse(markup)
		if rerr != nil {
			fail(c, rerr)
			return
		}
		sel, perr := req.Selection.resolve(root)
		if perr != nil {
			badRequest(c, perr)
			return
		}
		r := selection.Resolver{KeepWhitespace: req.Selection.KeepWhitespace}
		hl, err = s.Select(ctx, r, sel, root, req.Color)
	case req.Start != nil && req.End != nil:
		hl, err = s.Add(ctx, highlight.Candidate{Text: req.Text, Color: req.Color, Start: *req.Start, End: *req.End})
	default:
		badRequest(c, errors.New("either selection or startIndex and endIndex are required"))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, hl)
}

func (h *Handler) EditHighlight(c *gin.Context) {
	var req patchHighlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	hl, err := s.Edit(c.Request.Context(), c.Param("hid"), highlight.Patch{
		Color:           req.Color,
		Explanation:     req.Explanation,
		GroupID:         req.GroupID,
		OnlyShowInGroup: req.OnlyShowInGroup,
	})
	if err != nil {
		fail(c, err)
		return
	}
	RespondOK(c, hl)
}

func (h *Handler) RemoveHighlight(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Remove(c.Request.Context(), c.Param("hid")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) SaveHighlight(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Save(c.Request.Context(), c.Param("hid")); err != nil {
		fail(c, err)
		return
	}
	RespondOK(c, gin.H{"savedIds": s.SavedIDs()})
}

func (h *Handler) UnsaveHighlight(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Unsave(c.Request.Context(), c.Param("hid")); err != nil {
		fail(c, err)
		return
	}
	RespondOK(c, gin.H{"savedIds": s.SavedIDs()})
}

func (h *Handler) ReorderHighlights(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Reorder(c.Request.Context(), req.IDs); err != nil {
		fail(c, err)
		return
	}
	RespondOK(c, gin.H{"highlights": s.Highlights()})
}

// Explain runs one batched explanation request for the document's pending highlights.
func (h *Handler) Explain(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	report, err := s.Explain(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	RespondOK(c, gin.H{"report": report, "highlights": s.Highlights()})
}

func (h *Handler) Suggest(c *gin.Context) {
	var req suggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	out, err := s.Suggest(c.Request.Context(), req.Words, req.Color, req.Apply)
	if err != nil {
		fail(c, err)
		return
	}
	if out == nil {
		out = []library.Suggestion{}
	}
	RespondOK(c, gin.H{"suggestions": out})
}

func (h *Handler) MarkRead(c *gin.Context) {
	var req readRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.lib.MarkRead(c.Request.Context(), c.Param("id"), req.Read); err != nil {
		fail(c, err)
		return
	}
	RespondOK(c, gin.H{"read": req.Read})
}

func (h *Handler) ToggleBookmark(c *gin.Context) {
	saved, err := h.lib.ToggleSavedArticle(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	RespondOK(c, gin.H{"saved": saved})
}

func (h *Handler) ReadArticles(c *gin.Context) {
	ids, err := h.lib.ReadArticles(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	RespondOK(c, gin.H{"ids": nonNil(ids)})
}

func (h *Handler) SavedArticles(c *gin.Context) {
	ids, err := h.lib.SavedArticles(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	RespondOK(c, gin.H{"ids": nonNil(ids)})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
