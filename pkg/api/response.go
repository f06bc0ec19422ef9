package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/japaniel/readmark/pkg/db"
	"github.com/japaniel/readmark/pkg/highlight"
	"github.com/japaniel/readmark/pkg/library"
	"github.com/japaniel/readmark/pkg/oracle"
	"github.com/japaniel/readmark/pkg/reconcile"
	"github.com/japaniel/readmark/pkg/selection"
)

type APIError struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message:   msg,
			Code:      code,
			Retryable: oracle.Retryable(err),
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// errorStatus maps the engine's error taxonomy onto HTTP statuses.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, highlight.ErrOverlap):
		return http.StatusConflict, "overlap"
	case errors.Is(err, library.ErrExplainInFlight):
		return http.StatusConflict, "explain_in_flight"
	case errors.Is(err, highlight.ErrNotFound):
		return http.StatusNotFound, "highlight_not_found"
	case errors.Is(err, db.ErrDocumentNotFound):
		return http.StatusNotFound, "document_not_found"
	case errors.Is(err, library.ErrGroupNotFound):
		return http.StatusNotFound, "group_not_found"
	case errors.Is(err, selection.ErrEmptySelection):
		return http.StatusNoContent, "empty_selection"
	case errors.Is(err, reconcile.ErrNoHighlights):
		return http.StatusUnprocessableEntity, "no_highlights"
	case errors.Is(err, library.ErrEmptyGroup):
		return http.StatusUnprocessableEntity, "empty_group"
	case errors.Is(err, highlight.ErrInvalidRange),
		errors.Is(err, selection.ErrOutsideRoot),
		errors.Is(err, library.ErrInvalidName),
		errors.Is(err, library.ErrEmptyText),
		errors.Is(err, db.ErrInvalidLevel):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, oracle.ErrNotConfigured):
		return http.StatusServiceUnavailable, "oracle_not_configured"
	case errors.Is(err, oracle.ErrTransport):
		return http.StatusBadGateway, "oracle_transport"
	case errors.Is(err, oracle.ErrParse):
		return http.StatusBadGateway, "oracle_parse"
	}
	return http.StatusInternalServerError, "internal"
}

// fail writes err using errorStatus. An empty selection is not an error for
// the client; it answers 204 without a body.
func fail(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if status == http.StatusNoContent {
		c.AbortWithStatus(status)
		return
	}
	RespondError(c, status, code, err)
}

func badRequest(c *gin.Context, err error) {
	RespondError(c, http.StatusBadRequest, "invalid_request", err)
}
