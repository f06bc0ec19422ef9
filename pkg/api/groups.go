package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/japaniel/readmark/pkg/library"
	"github.com/japaniel/readmark/pkg/persist"
)

type groupRequest struct {
	Name string `json:"name" binding:"required"`
}

type assignRequest struct {
	DocumentID      string `json:"documentId" binding:"required"`
	HighlightID     string `json:"highlightId" binding:"required"`
	OnlyShowInGroup bool   `json:"onlyShowInGroup"`
}

type speechRequest struct {
	Text string `json:"text" binding:"required"`
}

func words(ws []persist.SavedWord) []persist.SavedWord {
	if ws == nil {
		return []persist.SavedWord{}
	}
	return ws
}

func (h *Handler) SavedWords(c *gin.Context) {
	ws, err := h.lib.SavedWords(c.Request.Context(), library.SavedFilter{GroupID: c.Query("groupId")})
	if err != nil {
		fail(c, err)
		return
	}
	RespondOK(c, gin.H{"words": words(ws)})
}

func (h *Handler) ReorderSaved(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.lib.ReorderSaved(c.Request.Context(), req.IDs); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListGroups(c *gin.Context) {
	groups, err := h.lib.Groups(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	RespondOK(c, gin.H{"groups": groups})
}

func (h *Handler) CreateGroup(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	g, err := h.lib.CreateGroup(c.Request.Context(), req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (h *Handler) RenameGroup(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	g, err := h.lib.RenameGroup(c.Request.Context(), c.Param("gid"), req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	RespondOK(c, g)
}

func (h *Handler) DeleteGroup(c *gin.Context) {
	if err := h.lib.DeleteGroup(c.Request.Context(), c.Param("gid")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GroupMembers(c *gin.Context) {
	ws, err := h.lib.GroupMembers(c.Request.Context(), c.Param("gid"))
	if err != nil {
		fail(c, err)
		return
	}
	RespondOK(c, gin.H{"words": words(ws)})
}

func (h *Handler) AssignToGroup(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	hl, err := h.lib.AssignToGroup(c.Request.Context(), req.DocumentID, req.HighlightID, c.Param("gid"), req.OnlyShowInGroup)
	if err != nil {
		fail(c, err)
		return
	}
	RespondOK(c, hl)
}

func (h *Handler) GeneratePracticeText(c *gin.Context) {
	regenerate, _ := strconv.ParseBool(c.Query("regenerate"))
	text, err := h.lib.GeneratePracticeText(c.Request.Context(), c.Param("gid"), regenerate)
	if err != nil {
		fail(c, err)
		return
	}
	RespondOK(c, gin.H{"text": text, "wordCount": len(strings.Fields(text))})
}

// Speech returns synthesized audio for the posted text.
func (h *Handler) Speech(c *gin.Context) {
	var req speechRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	audio, err := h.lib.Synthesize(c.Request.Context(), req.Text)
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", audio)
}
