package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/helmet-cv/server/session"
)

const sessionKey = "helmet_session"

type SessionOptions struct {
	CookieName string
	MaxAge     int
	Secure     bool
	OnCreate   func(*session.Session)
}

// Sessions attaches the caller's session to the gin context, creating it
// and setting the cookie when the request carries none or a stale one.
func Sessions(store *session.Store, opts SessionOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(opts.CookieName)

		sess, created := store.GetOrCreate(id)
		if created && opts.OnCreate != nil {
			opts.OnCreate(sess)
		}
		if created || id != sess.ID {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(opts.CookieName, sess.ID, opts.MaxAge, "/", "", opts.Secure, true)
		}

		c.Set(sessionKey, sess)
		c.Next()
	}
}

// CurrentSession returns the session set by Sessions, or nil.
func CurrentSession(c *gin.Context) *session.Session {
	value, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	sess, _ := value.(*session.Session)
	return sess
}
