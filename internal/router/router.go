// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lapakwarga/lapakwarga-backend/internal/config"
	"github.com/lapakwarga/lapakwarga-backend/internal/handlers"
	"github.com/lapakwarga/lapakwarga-backend/internal/middleware"
	"github.com/lapakwarga/lapakwarga-backend/internal/services"
	"github.com/lapakwarga/lapakwarga-backend/internal/utils"
)

// Initialize wires services, handlers, and routes. The returned lifecycle
// service is handed to the caller so the resolution runner can be started
// with the server's own context.
func Initialize(db *gorm.DB, cfg *config.Config) (*gin.Engine, *services.LifecycleService) {
	// Initialize services
	notificationService := services.NewNotificationService(db, cfg)
	ledgerStore := services.NewGormLedgerStore(db)
	lifecycleService := services.NewLifecycleService(ledgerStore, cfg.GroupBuy, notificationService)

	authService := services.NewAuthService(db, cfg, notificationService)
	userService := services.NewUserService(db)
	listingService := services.NewListingService(db)
	groupBuyService := services.NewGroupBuyService(db, ledgerStore, lifecycleService, cfg.GroupBuy, notificationService)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)
	listingHandler := handlers.NewListingHandler(listingService)
	groupBuyHandler := handlers.NewGroupBuyHandler(groupBuyService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS([]string{cfg.Frontend.BaseURL}))
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.GeneralRateLimit())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", middleware.AuthRequired(), authHandler.Logout)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
		}

		// User routes
		users := v1.Group("/users")
		{
			users.GET("/:id/public", userHandler.GetPublicProfile)

			// Authenticated user routes
			protected := users.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.PUT("/profile", userHandler.UpdateProfile)
				protected.DELETE("/account", userHandler.DeleteAccount)
			}
		}

		// Listing (lapak) routes
		listings := v1.Group("/listings")
		{
			listings.GET("", middleware.OptionalAuth(), listingHandler.GetListings)
			listings.GET("/popular", listingHandler.GetPopularListings)
			listings.GET("/:id", middleware.OptionalAuth(), listingHandler.GetListing)

			// Authenticated routes
			protected := listings.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.GET("/mine", listingHandler.GetMyListings)
				protected.POST("", listingHandler.CreateListing)
				protected.PUT("/:id", listingHandler.UpdateListing)
				protected.DELETE("/:id", listingHandler.DeleteListing)
			}
		}

		// Group buy (borongan) routes
		groupBuys := v1.Group("/group-buys")
		{
			groupBuys.GET("", middleware.OptionalAuth(), groupBuyHandler.GetGroupBuys)
			groupBuys.GET("/:id", middleware.OptionalAuth(), groupBuyHandler.GetGroupBuy)

			// Authenticated routes
			protected := groupBuys.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.POST("", groupBuyHandler.CreateGroupBuy)
				protected.POST("/:id/join", middleware.JoinRateLimit(), groupBuyHandler.Join)
				protected.POST("/:id/leave", middleware.JoinRateLimit(), groupBuyHandler.Leave)
				protected.POST("/:id/cancel", groupBuyHandler.Cancel)
				protected.GET("/:id/commitments", groupBuyHandler.GetCommitments)
				protected.GET("/mine/commitments", groupBuyHandler.GetMyCommitments)
			}
		}

		// Search routes
		search := v1.Group("/search")
		{
			search.GET("/listings", middleware.OptionalAuth(), listingHandler.GetListings)
			search.GET("/group-buys", middleware.OptionalAuth(), groupBuyHandler.GetGroupBuys)
		}

		// Category routes
		categories := v1.Group("/categories")
		{
			categories.GET("", getCategoriesHandler)
			categories.GET("/:category/listings", middleware.OptionalAuth(), listingHandler.GetListings)
			categories.GET("/:category/group-buys", middleware.OptionalAuth(), groupBuyHandler.GetGroupBuys)
		}
	}

	// Static file serving (for development)
	if cfg.Environment == "development" {
		r.Static("/uploads", "./uploads")
	}

	return r, lifecycleService
}

// Helper handlers for simple endpoints
func getCategoriesHandler(c *gin.Context) {
	categories := []map[string]interface{}{
		{"id": "sembako", "name": "Sembako", "icon": "rice"},
		{"id": "sayur", "name": "Sayur & Buah", "icon": "leaf"},
		{"id": "lauk", "name": "Lauk Pauk", "icon": "fish"},
		{"id": "makanan", "name": "Makanan Jadi", "icon": "bowl"},
		{"id": "minuman", "name": "Minuman", "icon": "cup"},
		{"id": "rumah-tangga", "name": "Kebutuhan Rumah Tangga", "icon": "home"},
		{"id": "jasa", "name": "Jasa", "icon": "wrench"},
		{"id": "lainnya", "name": "Lainnya", "icon": "box"},
	}

	utils.SuccessResponse(c, gin.H{
		"categories": categories,
	})
}
