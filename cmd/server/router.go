package server

import (
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/bustedgame/busted-server/internal/handlers"
	"github.com/bustedgame/busted-server/internal/middleware"
	"github.com/bustedgame/busted-server/pkg/auth"
)

func APIEndpoints(
	r *gin.Engine,
	jwtMgr *auth.JWTManager,
	rdb *redis.Client,
	authH *handlers.AuthHandler,
	roomH *handlers.RoomHandler,
	questionH *handlers.QuestionHandler,
	wsH *handlers.WebSocketHandler,
) {
	// Auth endpoints
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/guest", authH.Guest)
		authGroup.POST("/logout", authH.Logout)
	}

	// API endpoints
	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(jwtMgr, rdb))
	{
		api.POST("/rooms", roomH.CreateRoom)
		api.GET("/rooms/:code", roomH.GetRoom)
		api.POST("/rooms/:code/join", roomH.JoinRoom)
		api.POST("/rooms/:code/leave", roomH.LeaveRoom)
		api.PATCH("/rooms/:code/vibe", roomH.UpdateVibe)
		api.GET("/rooms/:code/results", roomH.GetResults)

		api.POST("/rooms/:code/questions", questionH.AddCustomQuestion)
		api.GET("/rooms/:code/questions", questionH.GetCustomQuestions)
		api.DELETE("/questions/:id", questionH.DeleteCustomQuestion)
		api.POST("/rooms/:code/questions/generate", questionH.GenerateQuestions)
		api.POST("/rooms/:code/questions/personal", questionH.AttachPersonalQuestion)

		api.POST("/me/questions", questionH.AddPersonalQuestion)
		api.GET("/me/questions", questionH.GetPersonalQuestions)
		api.DELETE("/me/questions/:id", questionH.DeletePersonalQuestion)
	}

	// WebSocket endpoint
	ws := r.Group("/ws")
	ws.Use(middleware.WSAuthMiddleware(jwtMgr, rdb))
	{
		ws.GET("/rooms/:code", wsH.HandleWebSocket)
	}
}
