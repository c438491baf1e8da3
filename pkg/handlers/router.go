package handlers

import (
	"time"

	"github.com/bavena95/mode-app/pkg/db"
	"github.com/bavena95/mode-app/pkg/identity"
	"github.com/bavena95/mode-app/pkg/middleware"
	"github.com/bavena95/mode-app/pkg/utils"
	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every route. verifier authenticates bearer credentials.
func NewRouter(h *Handlers, verifier identity.Verifier, allowedOrigins []string) *gin.Engine {
	utils.RegisterJSONFieldNames()

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.RequestMetrics())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireIdentity := middleware.RequireIdentity(verifier)
	requireUser := middleware.RequireUser(h.Users)

	authRoutes := router.Group("/auth", requireIdentity)
	{
		authRoutes.POST("/sync", h.SyncUser)
		authRoutes.GET("/me", requireUser, h.Me)
		authRoutes.POST("/token", requireUser, h.IssueToken)
	}

	images := router.Group("/images", requireIdentity, requireUser)
	{
		images.POST("/generate", h.GenerateImage)
		images.GET("/generations", h.ListGenerations(db.GenerationTypeImage))
		images.GET("/generations/:id", h.GetGeneration(db.GenerationTypeImage))
		images.GET("/generations/:id/status", h.GenerationStatus(db.GenerationTypeImage))
	}

	videos := router.Group("/videos", requireIdentity, requireUser)
	{
		videos.POST("/generate", h.GenerateVideo)
		videos.GET("/generations", h.ListGenerations(db.GenerationTypeVideo))
		videos.GET("/generations/:id", h.GetGeneration(db.GenerationTypeVideo))
		videos.GET("/generations/:id/status", h.GenerationStatus(db.GenerationTypeVideo))
	}

	projects := router.Group("/projects", requireIdentity, requireUser)
	{
		projects.POST("", h.CreateProject)
		projects.GET("", h.ListProjects)
		projects.GET("/:id", h.GetProject)
		projects.PUT("/:id", h.UpdateProject)
		projects.DELETE("/:id", h.DeleteProject)
	}

	return router
}
