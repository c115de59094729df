package handler

import (
	"net/http"

	"future-self-go/internal/middleware"
	"future-self-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services 汇总路由需要的业务服务，全部由 main 构造后注入。
type Services struct {
	Users         service.UserService
	Memories      service.MemoryService
	Conversations service.ConversationService
	Search        service.SearchService
	Chat          service.ChatService
	Uploads       service.UploadService
	Documents     service.DocumentService
}

// RouterOptions 是与业务无关的路由配置。AuthLimiter 为 nil 时不对认证接口限流，
// MaxJSONBytes 为 0 时使用 middleware.DefaultMaxJSONBytes。
type RouterOptions struct {
	MaxJSONBytes   int64
	MaxUploadBytes int64
	AllowedOrigins []string
	AuthLimiter    *middleware.RateLimiter
}

// NewRouter 创建 gin 引擎并注册全部路由。
func NewRouter(svc Services, opts RouterOptions) *gin.Engine {
	maxJSON := opts.MaxJSONBytes
	if maxJSON == 0 {
		maxJSON = middleware.DefaultMaxJSONBytes
	}

	r := gin.New()
	r.Use(middleware.BodyLimit(maxJSON, opts.MaxUploadBytes),
		middleware.RequestLogger(), middleware.Metrics(), gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authHandler := NewAuthHandler(svc.Users)
	userHandler := NewUserHandler(svc.Users)
	memoryHandler := NewMemoryHandler(svc.Memories)
	searchHandler := NewSearchHandler(svc.Search)
	conversationHandler := NewConversationHandler(svc.Conversations)
	uploadHandler := NewUploadHandler(svc.Uploads)
	documentHandler := NewDocumentHandler(svc.Documents)
	chatHandler := NewChatHandler(svc.Chat, svc.Users, opts.AllowedOrigins)
	requireAuth := middleware.AuthMiddleware(svc.Users)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "Welcome to the Future Self API"})
		})

		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			public := auth.Group("")
			if opts.AuthLimiter != nil {
				public.Use(opts.AuthLimiter.Middleware())
			}
			public.POST("/register", authHandler.Register)
			public.POST("/token", authHandler.Login)
			auth.POST("/refreshToken", authHandler.RefreshToken)
			auth.POST("/logout", requireAuth, authHandler.Logout)
		}

		users := apiV1.Group("/users", requireAuth)
		{
			users.GET("/me", userHandler.GetProfile)
			users.PATCH("/me", userHandler.UpdateProfile)
		}

		memories := apiV1.Group("/memories", requireAuth)
		{
			memories.GET("", memoryHandler.List)
			memories.POST("", memoryHandler.Create)
			memories.GET("/search", searchHandler.SearchMemories)
			memories.GET("/:id", memoryHandler.Get)
			memories.PATCH("/:id", memoryHandler.Update)
			memories.DELETE("/:id", memoryHandler.Delete)
			memories.POST("/:id/attachments", memoryHandler.AddAttachment)
			memories.GET("/:id/attachments/url", memoryHandler.AttachmentURL)
			memories.GET("/:id/attachments/preview", documentHandler.PreviewAttachment)

			// 大附件的分片上传
			memories.POST("/:id/uploads", uploadHandler.Init)
			memories.GET("/:id/uploads/:uploadId", uploadHandler.Status)
			memories.PUT("/:id/uploads/:uploadId/chunks/:index", uploadHandler.UploadChunk)
			memories.POST("/:id/uploads/:uploadId/complete", uploadHandler.Complete)
		}

		conversations := apiV1.Group("/conversations", requireAuth)
		{
			conversations.POST("", conversationHandler.Create)
			conversations.GET("", conversationHandler.List)
			conversations.GET("/:id", conversationHandler.Get)
			conversations.DELETE("/:id", conversationHandler.Delete)
			conversations.POST("/:id/messages", conversationHandler.SendMessage)
		}

		// WebSocket 无法携带 Authorization 头，token 放在路径中
		apiV1.GET("/chat/:token", chatHandler.Handle)
	}
	return r
}
