package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vipauto/autoelectric-crm/apperrors"
	"github.com/vipauto/autoelectric-crm/config"
	"github.com/vipauto/autoelectric-crm/controllers"
	"github.com/vipauto/autoelectric-crm/metrics"
	"github.com/vipauto/autoelectric-crm/middleware"
	"github.com/vipauto/autoelectric-crm/utils"
)

// NewRouter builds the gin engine with every API route
func NewRouter(cfg *config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))
	router.Use(middleware.RequestID(), middleware.RequestLogger(), middleware.Metrics(metrics.Get().HTTP))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.NoRoute(func(c *gin.Context) {
		utils.RespondError(c, apperrors.New(apperrors.CodeNotFound, "Route not found"))
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", controllers.HealthCheck)
		v1.GET("/database/status", controllers.DatabaseStatus)

		v1.POST("/auth/register", controllers.Register)
		v1.POST("/auth/login", controllers.Login)
		v1.GET("/settings/company", controllers.GetCompanyInfo)
		v1.GET("/uploads/:filename", controllers.GetUploadedImage)
	}

	protected := v1.Group("", middleware.EnsureValidToken(cfg), middleware.LoadCurrentMaster())
	manager := middleware.RequireManager()

	auth := protected.Group("/auth")
	{
		auth.POST("/logout", controllers.Logout)
		auth.GET("/me", controllers.GetMe)
		auth.PUT("/update-profile", controllers.UpdateProfile)
	}

	masters := protected.Group("/masters")
	{
		masters.GET("", manager, controllers.ListMasters)
		masters.POST("", manager, controllers.CreateMaster)
		masters.GET("/:id", controllers.GetMaster)
		masters.PUT("/:id", manager, controllers.UpdateMaster)
		masters.DELETE("/:id", manager, controllers.DeleteMaster)
		masters.GET("/:id/stats", controllers.GetMasterStats)
	}

	orders := protected.Group("/orders")
	{
		orders.GET("", controllers.ListOrders)
		orders.POST("", controllers.CreateOrder)
		orders.GET("/:id", controllers.GetOrder)
		orders.PUT("/:id", controllers.UpdateOrder)
		orders.DELETE("/:id", controllers.DeleteOrder)
		orders.PATCH("/:id/status", controllers.ChangeOrderStatus)
		orders.GET("/:id/distribution", controllers.GetOrderDistribution)
		orders.POST("/:id/image", controllers.UploadOrderImage)
	}

	bonuses := protected.Group("/bonuses")
	{
		bonuses.GET("", manager, controllers.ListBonuses)
		bonuses.POST("", manager, controllers.CreateBonus)
		bonuses.GET("/my-bonuses", controllers.GetMyBonuses)
		bonuses.GET("/stats", controllers.GetBonusStats)
		bonuses.GET("/:id", controllers.GetBonus)
		bonuses.PUT("/:id", manager, controllers.UpdateBonus)
		bonuses.DELETE("/:id", manager, controllers.DeleteBonus)
	}

	settings := protected.Group("/settings", manager)
	{
		settings.GET("", controllers.GetSettings)
		settings.PUT("", controllers.UpdateSettings)
	}

	stats := protected.Group("/stats")
	{
		stats.GET("/general", manager, controllers.GetGeneralStats)
		stats.GET("/dashboard", manager, controllers.GetDashboardStats)
		stats.GET("/master/:id", controllers.GetMasterStats)
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		corsCfg.AllowAllOrigins = true
		return corsCfg
	}
	corsCfg.AllowOrigins = origins
	corsCfg.AllowCredentials = true
	return corsCfg
}
