package stubserver

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pmplabs/examsim/internal/config"
)

// SetupRouter configures the stub server's routes and middlewares.
func SetupRouter(handler *Handler, issuer *TokenIssuer, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(requestID())

	router.GET("/health", handler.Health)
	router.POST("/api/auth/guest", handler.GuestToken)

	exams := router.Group("/api/exams")
	exams.Use(RequireToken(issuer))
	{
		exams.POST("/select", handler.SelectExam)
		exams.POST("/submit", handler.SubmitExam)
	}

	return router
}

// requestID echoes or generates an X-Request-ID for every request.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
