package web

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	sessionUserKey = "uid"
	sessionCSRFKey = "csrf"
)

func currentUserID(c *gin.Context) (int64, bool) {
	session := sessions.Default(c)
	raw := session.Get(sessionUserKey)
	if raw == nil {
		return 0, false
	}

	id, ok := raw.(int64)
	if !ok {
		return 0, false
	}

	return id, true
}

func setSessionUser(c *gin.Context, userID int64) error {
	session := sessions.Default(c)
	session.Set(sessionUserKey, userID)
	return session.Save()
}

func clearSession(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	return session.Save()
}

// csrfToken returns the session's CSRF token, minting one on first use.
func csrfToken(c *gin.Context) (string, error) {
	session := sessions.Default(c)
	if token, ok := session.Get(sessionCSRFKey).(string); ok && token != "" {
		return token, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	token := hex.EncodeToString(buf)
	session.Set(sessionCSRFKey, token)
	if err := session.Save(); err != nil {
		return "", err
	}

	return token, nil
}

// checkCSRF validates the submitted form token against the session token.
func checkCSRF(c *gin.Context) bool {
	session := sessions.Default(c)
	expected, ok := session.Get(sessionCSRFKey).(string)
	if !ok || expected == "" {
		return false
	}

	submitted := c.PostForm("csrf_token")
	if submitted == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(expected), []byte(submitted)) == 1
}
