package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gabmerlin/saas-sub001/internal/session"
)

// SessionHandoff adopts a session embedded in the handoff query
// parameter and redirects to the same URL with the parameter removed,
// before any handler writes a body. The token never reaches history
// or logs downstream of this point.
func SessionHandoff(codec *session.URLCodec, syn *session.Synchronizer, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.L()
	}

	return func(c *gin.Context) {
		rec := codec.Extract(c.Request.URL.Query())
		if rec == nil {
			c.Next()
			return
		}

		if err := syn.SignIn(c.Request.Context(), rec); err != nil {
			logger.Warn("session handoff rejected", zap.Error(err))
		}

		c.Redirect(http.StatusFound, codec.Strip(c.Request.URL))
		c.Abort()
	}
}
