package api

import (
	"net/http"

	"peakform/coach-app/internal/agent"
	"peakform/coach-app/internal/repository"
	"peakform/coach-app/internal/service"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authService service.AuthService,
	planService service.PlanService,
	contextRepo repository.ContextItemRepository,
	loop *agent.Loop,
) {
	authHandler := NewAuthHandler(authService)
	planHandler := NewPlanHandler(planService, contextRepo)
	chatHandler := NewChatHandler(loop)

	authMiddleware := AuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			userID, err := getUserIDFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
				return
			}
			c.JSON(http.StatusOK, gin.H{"userId": userID.Hex()})
		})

		// One assistant turn per request; same serialization as the bot channel.
		protected.POST("/chat", chatHandler.Chat)

		planGroup := protected.Group("/plans")
		{
			planGroup.GET("/current", planHandler.GetCurrentPlan)
			planGroup.GET("/history", planHandler.GetPlanHistory)
			planGroup.POST("/generate", planHandler.GeneratePlan)
			planGroup.POST("/:id/confirm", planHandler.ConfirmPlan)
		}

		sessionGroup := protected.Group("/sessions")
		{
			sessionGroup.POST("/:id/complete", planHandler.CompleteSession)
			sessionGroup.POST("/:id/adapt", planHandler.AdaptSession)
			sessionGroup.POST("/extra", planHandler.LogExtraSession)
		}

		protected.GET("/progress", planHandler.GetProgress)

		contextGroup := protected.Group("/context")
		{
			contextGroup.GET("/items", planHandler.ListContextItems)
			contextGroup.POST("/items", planHandler.AddContextItem)
			contextGroup.DELETE("/items/:id", planHandler.DeleteContextItem)
		}
	}
}
