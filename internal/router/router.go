// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/kucash/kucash-backend/internal/config"
	"github.com/kucash/kucash-backend/internal/handlers"
	"github.com/kucash/kucash-backend/internal/middleware"
	"github.com/kucash/kucash-backend/internal/services"
)

func Setup(db *gorm.DB, cfg *config.Config) (*gin.Engine, error) {
	storage, err := services.NewStorageService(cfg)
	if err != nil {
		return nil, err
	}
	notifications := services.NewNotificationService(cfg)

	authService := services.NewAuthService(db, cfg)
	applicationService := services.NewApplicationService(db, storage, notifications)
	adminService := services.NewAdminService(db, storage, notifications)

	authHandler := handlers.NewAuthHandler(authService)
	applicationHandler := handlers.NewApplicationHandler(applicationService)
	agentHandler := handlers.NewAgentHandler(applicationService)
	adminHandler := handlers.NewAdminHandler(adminService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.Metrics())
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	r.MaxMultipartMemory = 16 << 20

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.Use(middleware.AuthRateLimit())
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
		auth.GET("/me", middleware.AuthRequired(), authHandler.Me)
	}

	applications := v1.Group("/applications")
	applications.Use(middleware.AuthRequired())
	{
		applications.POST("", middleware.SubmitRateLimit(), applicationHandler.SubmitApplication)
		applications.GET("", applicationHandler.GetApplications)
		applications.GET("/:id", applicationHandler.GetApplication)
	}

	agent := v1.Group("/agent")
	agent.Use(middleware.AuthRequired(), middleware.AgentRequired())
	{
		agent.GET("/applications", agentHandler.GetAgentApplications)
		agent.GET("/dashboard", agentHandler.GetAgentDashboard)
	}

	admin := v1.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
	{
		admin.GET("/dashboard/stats", adminHandler.GetDashboardStats)
		admin.GET("/applications", adminHandler.GetApplications)
		admin.PUT("/applications/:id/status", adminHandler.UpdateApplicationStatus)
		admin.GET("/applications/:id/documents", adminHandler.GetApplicationDocuments)
		admin.DELETE("/applications/:id/documents", adminHandler.PurgeApplicationDocuments)
		admin.GET("/users", adminHandler.GetUsers)
		admin.POST("/agents", adminHandler.CreateAgent)
		admin.PUT("/users/:id/status", adminHandler.UpdateUserStatus)
	}

	return r, nil
}
