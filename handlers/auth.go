package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	"github.com/sirupsen/logrus"
)

const (
	SessionCookieName = "sorteio_session"
	sessionUserKey    = "user"
)

func newSessionStore(secret string) sessions.Store {
	key := []byte(secret)
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
	}
	store := cookie.NewStore(key)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400, // 1 day
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return store
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/login
func (h *APIHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	if h.Auth.Password == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Login is disabled: no password configured"})
		return
	}
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.Auth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.Auth.Password)) == 1
	if !userOK || !passOK {
		logrus.WithField("username", req.Username).Warn("Failed login attempt")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	session := sessions.Default(c)
	session.Set(sessionUserKey, req.Username)
	if err := session.Save(); err != nil {
		logrus.WithError(err).Error("Error saving session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": req.Username})
}

// Logout handles POST /api/logout
func (h *APIHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		logrus.WithError(err).Error("Error clearing session")
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me handles GET /api/me
func (h *APIHandler) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if h.Auth.Password == "" {
		user, ok = "", false
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": ok, "user": user})
}

func currentUser(c *gin.Context) (string, bool) {
	user, ok := sessions.Default(c).Get(sessionUserKey).(string)
	return user, ok && user != ""
}

// RequireLogin rejects requests without a logged-in session. With no
// password configured nobody can log in, so every request is refused
// whatever cookie it carries.
func (h *APIHandler) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.Auth.Password == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Login is disabled: no password configured"})
			return
		}
		if _, ok := currentUser(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Login required"})
			return
		}
		c.Next()
	}
}
