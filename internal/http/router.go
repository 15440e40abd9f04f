// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wayfarer/internal/http/handlers"
	"wayfarer/internal/http/middleware"
	"wayfarer/internal/modules/guard"
)

type RouterDeps struct {
	Conversations handlers.Conversations
	// IPLimiter is optional; nil disables per-client throttling.
	IPLimiter *guard.KeyedLimiter
	Logger    *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.Recovery(deps.Logger), middleware.Logging(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api")
	if deps.IPLimiter != nil {
		api.Use(middleware.RateLimit(deps.IPLimiter, deps.Logger))
	}
	chat := handlers.NewChatHandler(deps.Conversations)
	api.POST("/chat", chat.Chat)
	api.GET("/sessions/:id", chat.GetSession)
	api.DELETE("/sessions/:id", chat.DeleteSession)

	return r
}
