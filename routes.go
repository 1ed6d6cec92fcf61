package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/peplixcoin/cmeoi-sub001/config"
	"github.com/peplixcoin/cmeoi-sub001/controllers"
	"github.com/peplixcoin/cmeoi-sub001/middleware"
	"github.com/peplixcoin/cmeoi-sub001/models"
	"github.com/peplixcoin/cmeoi-sub001/services"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	kitchenRoles  = []models.Role{models.RoleSuperAdmin, models.RoleManager, models.RoleCook}
	managerRoles  = []models.Role{models.RoleSuperAdmin, models.RoleManager}
	cashierRoles  = []models.Role{models.RoleSuperAdmin, models.RoleManager, models.RoleDeliveryMan}
	deliveryRoles = []models.Role{models.RoleDeliveryMan}
)

// setupRouter wires every route. The notifier is shared by the order service
// (publisher) and the stream controller (subscribers).
func setupRouter(cfg *config.Config, db *gorm.DB, notifier *services.Notifier, log *logrus.Logger) *gin.Engine {
	orderService := services.NewOrderService(db, notifier, log)
	adminService := services.NewAdminService(db)

	orderController := controllers.NewOrderController(orderService, adminService)
	streamController := controllers.NewStreamController(notifier, adminService, cfg.StreamBufferSize, log)
	adminController := controllers.NewAdminController(adminService)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/database/status", databaseStatus)
	}

	auth := v1.Group("", middleware.EnsureValidToken(cfg))

	admins := auth.Group("/admins")
	{
		admins.POST("", middleware.RequireRole(models.RoleSuperAdmin), adminController.CreateAdmin)
		admins.GET("/delivery-agents", middleware.RequireRole(kitchenRoles...), adminController.ListDeliveryAgents)
	}

	dine := auth.Group("/orders")
	{
		dine.POST("", orderController.Create(models.KindDine))
		dine.GET("", middleware.RequireRole(kitchenRoles...), orderController.Snapshot(models.KindDine, services.ListQuery{}))
		dine.GET("/stream", middleware.RequireRole(kitchenRoles...), streamController.Stream(models.KindDine, services.All()))
		dine.GET("/approved", middleware.RequireRole(kitchenRoles...),
			orderController.Snapshot(models.KindDine, services.ListQuery{Status: models.StatusApproved}))
		dine.GET("/approved/stream", middleware.RequireRole(kitchenRoles...),
			streamController.Stream(models.KindDine, services.StatusIs(models.StatusApproved)))

		// :id is a username on the list/stream routes and an order ID on the mutation routes
		dine.GET("/:id", orderController.UserSnapshot(models.KindDine))
		dine.GET("/:id/stream", streamController.UserStream(models.KindDine))
		dine.PATCH("/:id/status", middleware.RequireRole(kitchenRoles...), orderController.UpdateStatus(models.KindDine))
		dine.PATCH("/:id/payment", middleware.RequireRole(managerRoles...), orderController.UpdatePayment(models.KindDine))
		dine.PUT("/:id/items", middleware.RequireRole(managerRoles...), orderController.EditItems(models.KindDine))
	}

	online := dine.Group("/online")
	{
		online.POST("", orderController.Create(models.KindOnline))
		online.GET("", middleware.RequireRole(kitchenRoles...), orderController.Snapshot(models.KindOnline, services.ListQuery{}))
		online.GET("/stream", middleware.RequireRole(kitchenRoles...), streamController.Stream(models.KindOnline, services.All()))
		online.GET("/approved", middleware.RequireRole(kitchenRoles...),
			orderController.Snapshot(models.KindOnline, services.ListQuery{Status: models.StatusApproved}))
		online.GET("/approved/stream", middleware.RequireRole(kitchenRoles...),
			streamController.Stream(models.KindOnline, services.StatusIs(models.StatusApproved)))
		online.GET("/approved/cook", middleware.RequireRole(kitchenRoles...),
			orderController.Snapshot(models.KindOnline, services.ListQuery{Status: models.StatusApproved, Unassigned: true}))
		// assignments still pass so cook views can drop the order they no longer own
		online.GET("/approved/cook/stream", middleware.RequireRole(kitchenRoles...),
			streamController.Stream(models.KindOnline, services.StatusIs(models.StatusApproved)))
		online.GET("/delivery", middleware.RequireRole(deliveryRoles...), orderController.DeliverySnapshot)
		online.GET("/delivery/stream", middleware.RequireRole(deliveryRoles...), streamController.DeliveryStream)

		online.GET("/:id", orderController.UserSnapshot(models.KindOnline))
		online.GET("/:id/stream", streamController.UserStream(models.KindOnline))
		online.PATCH("/:id/status", middleware.RequireRole(kitchenRoles...), orderController.UpdateStatus(models.KindOnline))
		online.PATCH("/:id/payment", middleware.RequireRole(cashierRoles...), orderController.UpdatePayment(models.KindOnline))
		online.PATCH("/:id/assign-delivery", middleware.RequireRole(kitchenRoles...), orderController.AssignDelivery)
		online.PUT("/:id/items", middleware.RequireRole(managerRoles...), orderController.EditItems(models.KindOnline))
	}

	return router
}
