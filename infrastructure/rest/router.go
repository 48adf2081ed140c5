package rest

import (
	"chatto/observability"
	"chatto/services"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Log         *slog.Logger
	AuthService services.IAuthService
	ChatService services.IChatService
	Monitor     *observability.MonitoringManager
	// Socket serves GET /ws. It authenticates on its own, before upgrading.
	Socket http.Handler
}

func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(deps.Log))
	router.NoRoute(notFound(deps.Log))

	authHandler := NewAuthHandler(deps.Log, deps.AuthService)
	chatHandler := NewChatHandler(deps.Log, deps.ChatService)
	requireAuth := Authenticate(deps.AuthService, deps.Log)

	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.GET("/verify", requireAuth, authHandler.Verify)
		authGroup.POST("/logout", requireAuth, authHandler.Logout)
		authGroup.POST("/password", requireAuth, authHandler.ChangePassword)

		chats := api.Group("/chats", requireAuth)
		chats.GET("", chatHandler.List)
		chats.GET("/search/messages", chatHandler.SearchMessages)
		chats.GET("/search/users", chatHandler.SearchUsers)
		chats.POST("/direct", chatHandler.CreateDirect)
		chats.POST("/group", chatHandler.CreateGroup)
		chats.POST("/group/:chatId/members", chatHandler.AddMember)
		chats.DELETE("/group/:chatId/members/:userId", chatHandler.RemoveMember)
		chats.GET("/:id", chatHandler.Get)
		chats.GET("/:id/messages", chatHandler.Messages)
		chats.POST("/:id/messages", chatHandler.Send)
	}

	if deps.Monitor != nil {
		router.GET("/debug/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, deps.Monitor.GetLatest())
		})
	}
	if deps.Socket != nil {
		router.GET("/ws", gin.WrapH(deps.Socket))
	}
	return router
}
