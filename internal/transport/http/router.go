package http

import (
	"net/http"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDKey = "userID"

// NewRouter wires the contest API onto a gin engine.
func NewRouter(service *app.ContestService, resolver auth.Resolver) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	h := NewHandler(service)
	ws := NewWSHandler(service)

	api := r.Group("/api/v1", AuthMiddleware(resolver))
	contests := api.Group("/contests")
	contests.POST("", h.CreateContest)
	contests.POST("/join", h.Join)
	contests.GET("/:id", h.GetContest)
	contests.PUT("/:id/questions", h.UpdateQuestions)
	contests.POST("/:id/start", h.StartContest)
	contests.POST("/:id/end", h.EndContest)
	contests.DELETE("/:id/participants/me", h.Leave)
	contests.POST("/:id/live", h.EnterLive)
	contests.GET("/:id/attempts", h.ListAttempts)
	contests.POST("/:id/submit", h.Submit)
	contests.GET("/:id/rank", h.Rank)
	contests.GET("/:id/leaderboard", h.Leaderboard)
	contests.GET("/:id/events", ws.ServeWS)
	api.GET("/users/me/stats", h.UserStats)

	return r
}

// AuthMiddleware resolves the caller and stores the user id in the gin context.
func AuthMiddleware(resolver auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := resolver.Resolve(c.Request)
		if err != nil {
			fail(c, err)
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.L().Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
