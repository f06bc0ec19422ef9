// Package api is the HTTP surface over a library.Library.
package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/japaniel/readmark/pkg/library"
)

// DefaultOrigins are the local dev servers allowed when no origins are configured.
var DefaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Library        *library.Library
	AllowedOrigins []string
	Log            *zap.Logger
}

// Handler serves the reader endpoints.
type Handler struct {
	lib *library.Library
	log *zap.Logger
}

// CORS allows the configured browser origins.
func CORS(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		origins = DefaultOrigins
	}
	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "X-Requested-With"},
	})
}

// requestLog logs every request at debug level and failures at warn.
func requestLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("request failed", append(fields, zap.Strings("errors", c.Errors.Errors()))...)
			return
		}
		log.Debug("request", fields...)
	}
}

// NewRouter builds the gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{lib: cfg.Library, log: log}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLog(log))
	r.Use(CORS(cfg.AllowedOrigins))

	r.GET("/healthcheck", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group("/api")
	{
		api.GET("/documents", h.ListDocuments)
		api.GET("/documents/:id", h.GetDocument)
		api.POST("/documents/:id/highlights", h.AddHighlight)
		api.PATCH("/documents/:id/highlights/:hid", h.EditHighlight)
		api.DELETE("/documents/:id/highlights/:hid", h.RemoveHighlight)
		api.POST("/documents/:id/highlights/:hid/save", h.SaveHighlight)
		api.DELETE("/documents/:id/highlights/:hid/save", h.UnsaveHighlight)
		api.PUT("/documents/:id/order", h.ReorderHighlights)
		api.POST("/documents/:id/explain", h.Explain)
		api.POST("/documents/:id/suggest", h.Suggest)
		api.PUT("/documents/:id/read", h.MarkRead)
		api.POST("/documents/:id/bookmark", h.ToggleBookmark)
		api.GET("/articles/read", h.ReadArticles)
		api.GET("/articles/saved", h.SavedArticles)

		api.GET("/saved", h.SavedWords)
		api.PUT("/saved/order", h.ReorderSaved)

		api.GET("/groups", h.ListGroups)
		api.POST("/groups", h.CreateGroup)
		api.PATCH("/groups/:gid", h.RenameGroup)
		api.DELETE("/groups/:gid", h.DeleteGroup)
		api.GET("/groups/:gid/words", h.GroupMembers)
		api.PUT("/groups/:gid/members", h.AssignToGroup)
		api.POST("/groups/:gid/practice", h.GeneratePracticeText)

		api.POST("/speech", h.Speech)
	}
	return r
}
