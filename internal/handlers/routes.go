package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes подключает обработчики; authMW выставляет userID (AuthMiddleware или тестовая заглушка).
func RegisterRoutes(r *gin.Engine, h *Handler, authMW gin.HandlerFunc) {
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/register", h.Register)
		authGroup.POST("/refresh", h.RefreshToken)
	}

	profile := r.Group("/profile", authMW)
	{
		profile.GET("/queues", h.GetUserQueuesHandler)
	}

	subjects := r.Group("/api/subjects", authMW)
	{
		subjects.GET("", h.ListSubjects)
		subjects.POST("", h.CreateSubject)
		subjects.PUT("/:code/users", h.SetMembers)

		subjects.GET("/:code/queue", h.GetQueue)
		subjects.PUT("/:code/queue", h.SetQueueActive)
		subjects.POST("/:code/queue", h.JoinQueue)
		subjects.DELETE("/:code/queue", h.LeaveQueue)
		subjects.DELETE("/:code/queue/:gid", h.RemoveGroup)
		subjects.POST("/:code/queue/:gid/help", h.ClaimGroup)
		subjects.DELETE("/:code/queue/:gid/help", h.UnclaimGroup)
		subjects.POST("/:code/queue/:gid/delay", h.DelayGroup)

		subjects.GET("/:code/broadcasts", h.ListBroadcasts)
		subjects.POST("/:code/broadcasts", h.CreateBroadcast)
		subjects.PUT("/:code/broadcasts/:bid", h.UpdateBroadcast)
		subjects.DELETE("/:code/broadcasts/:bid", h.DeleteBroadcast)

		subjects.GET("/:code/ws", h.QueueWebSocket)
		subjects.GET("/:code/events", h.QueueEvents)
	}
}
