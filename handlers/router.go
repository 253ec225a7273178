package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-ID"

// NewRouter builds the gin engine with middleware and API routes
func NewRouter(h *APIHandler, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(requestID())
	router.Use(requestLogger())
	router.Use(gin.CustomRecovery(func(c *gin.Context, err any) {
		logrus.WithField("panic", err).Error("Recovered from panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}))

	if len(allowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     allowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Accept", requestIDHeader},
			ExposeHeaders:    []string{"Content-Disposition", requestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	router.Use(sessions.Sessions(SessionCookieName, newSessionStore(h.Auth.Secret)))

	api := router.Group("/api")
	{
		api.GET("/ping", h.Ping)
		api.POST("/login", h.Login)
		api.POST("/logout", h.Logout)
		api.GET("/me", h.Me)

		// Lookup is open to students
		api.GET("/search", h.Search)
		api.GET("/roster/stats", h.RosterStats)

		auth := api.Group("", h.RequireLogin())
		auth.GET("/roster", h.GetRoster)
		auth.POST("/roster/import", h.ImportRoster)

		auth.POST("/groups/validate", h.ValidateGroups)
		auth.POST("/draws/preview", h.PreviewDraw)
		auth.POST("/draws", h.SaveDraw)
		auth.GET("/draws", h.ListDraws)
		auth.DELETE("/draws/:id", h.DeleteDraw)

		auth.POST("/export", h.Export)
	}
	return router
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logrus.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("Request rejected")
		default:
			entry.Debug("Request served")
		}
	}
}
