package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"venuehub/internal/infra/config"
	"venuehub/internal/infra/obs"
)

type Handlers struct {
	Chat           ChatHTTP
	AuthMiddleware gin.HandlerFunc
	Metrics        *obs.Metrics
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	if h.Metrics != nil {
		router.Use(h.Metrics.Instrument())
	}
	router.Use(obsMW.AccessLog())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", IdempotencyHeader},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			obs.RequestIDHeader,
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	if h.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	api := router.Group("/api/v1")
	if h.AuthMiddleware != nil {
		api.Use(h.AuthMiddleware)
	}
	if h.Chat != nil {
		conv := api.Group("/conversations")
		conv.POST("", h.Chat.CreateConversation)
		conv.GET("", h.Chat.ListConversations)
		conv.GET("/stream", h.Chat.StreamConversations)
		conv.GET("/:id", h.Chat.GetConversation)
		conv.POST("/:id/messages", h.Chat.SendMessage)
		conv.GET("/:id/messages/stream", h.Chat.StreamMessages)
		conv.POST("/:id/read", h.Chat.MarkRead)
		conv.PUT("/:id/typing", h.Chat.SetTyping)
		conv.GET("/:id/typing/stream", h.Chat.StreamTyping)

		api.GET("/unread", h.Chat.UnreadCount)
		api.GET("/unread/stream", h.Chat.StreamUnread)
	}
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug", "dev", "local":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
