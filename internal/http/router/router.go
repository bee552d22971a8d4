package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/studytips-bot/internal/http/handlers"
	"github.com/ignatzorin/studytips-bot/internal/http/middleware"
)

// Options параметры HTTP-поверхности бота.
type Options struct {
	Production      bool
	AllowedOrigins  []string
	RateLimitLimit  int64
	RateLimitPeriod time.Duration

	Auth    middleware.Authenticator
	Health  *handlers.HealthHandler
	Admin   *handlers.AdminHandler
	WS      *handlers.WSHandler
	// Webhook nil в режиме long polling.
	Webhook *handlers.WebhookHandler
}

func SetupRouter(opts Options) *gin.Engine {
	if opts.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(opts.AllowedOrigins))

	r.GET("/health", opts.Health.Health)

	if opts.Webhook != nil {
		r.POST("/telegram/webhook/:secret", opts.Webhook.Handle)
	}

	api := r.Group("/api")
	api.GET("/ws", middleware.RateLimitMiddleware(opts.RateLimitLimit, opts.RateLimitPeriod), opts.WS.Handle)

	admin := api.Group("/")
	admin.Use(
		middleware.AuthMiddleware(opts.Auth),
		middleware.AdminOnly(),
		middleware.RateLimitMiddleware(opts.RateLimitLimit, opts.RateLimitPeriod),
	)
	{
		admin.GET("/orders", opts.Admin.ListOrders)
		admin.GET("/orders/:id", middleware.UUIDParam("id"), opts.Admin.GetOrder)
		admin.GET("/orders/:id/messages", middleware.UUIDParam("id"), opts.Admin.ListMessages)
		admin.GET("/disputes/:id", middleware.UUIDParam("id"), opts.Admin.GetDispute)
	}

	return r
}
