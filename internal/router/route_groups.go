package router

import (
	"eyeclinic_backend/internal/handlers"
	"eyeclinic_backend/internal/middleware"
	"eyeclinic_backend/internal/models"

	"github.com/gin-gonic/gin"
)

// SetupPublicAuthRoutes sets up authentication routes that need no token.
func SetupPublicAuthRoutes(group *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	group.POST("/login", authHandler.Login)
	group.POST("/refresh-token", authHandler.Refresh)
}

// SetupAuthenticatedAuthRoutes sets up auth routes behind the token check.
func SetupAuthenticatedAuthRoutes(group *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	group.GET("/me", authHandler.Me)
	group.POST("/register", middleware.RoleAuthMiddleware(models.RoleAdmin), authHandler.Register)
}

// SetupInventoryRoutes sets up the item routes and per-item stock operations.
// Reads are open to all staff; mutations are gated to pharmacist/admin.
func SetupInventoryRoutes(
	authenticatedGroup *gin.RouterGroup,
	inventoryHandler *handlers.InventoryHandler,
	stockHandler *handlers.StockHandler,
	reservationHandler *handlers.ReservationHandler,
) {
	itemRoutes := authenticatedGroup.Group("/inventory-items")
	{
		itemRoutes.GET("", inventoryHandler.GetItems)
		itemRoutes.GET("/:id", inventoryHandler.GetItem)
		itemRoutes.GET("/:id/transactions", stockHandler.GetHistory)
		itemRoutes.GET("/:id/reservations", reservationHandler.ListByItem)

		mutating := itemRoutes.Group("")
		mutating.Use(middleware.RoleAuthMiddleware(models.RoleAdmin, models.RolePharmacist))
		{
			mutating.POST("", inventoryHandler.CreateItem)
			mutating.PUT("/:id", inventoryHandler.UpdateItem)
			mutating.DELETE("/:id", inventoryHandler.DeleteItem)
			mutating.POST("/:id/adjust", stockHandler.AdjustStock)
			mutating.POST("/:id/batches", stockHandler.ReceiveBatch)
		}
	}

	batchRoutes := authenticatedGroup.Group("/batches")
	batchRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin, models.RolePharmacist))
	{
		batchRoutes.PATCH("/:batchId/status", stockHandler.SetBatchStatus)
	}
}

// SetupReservationRoutes sets up the reservation lifecycle routes.
func SetupReservationRoutes(authenticatedGroup *gin.RouterGroup, reservationHandler *handlers.ReservationHandler) {
	reservationRoutes := authenticatedGroup.Group("/reservations")
	{
		reservationRoutes.GET("/:id", reservationHandler.GetReservation)

		mutating := reservationRoutes.Group("")
		mutating.Use(middleware.RoleAuthMiddleware(models.RoleAdmin, models.RolePharmacist, models.RoleOptometrist))
		{
			mutating.POST("", reservationHandler.Reserve)
			mutating.POST("/:id/release", reservationHandler.Release)
			mutating.POST("/:id/fulfill", reservationHandler.Fulfill)
		}
	}
}

// SetupTransferRoutes sets up the cross-clinic transfer route.
func SetupTransferRoutes(authenticatedGroup *gin.RouterGroup, transferHandler *handlers.TransferHandler) {
	transferRoutes := authenticatedGroup.Group("/transfers")
	transferRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin, models.RolePharmacist))
	{
		transferRoutes.POST("", transferHandler.Transfer)
	}
}

// SetupAlertRoutes sets up the alert listing and resolution routes.
func SetupAlertRoutes(authenticatedGroup *gin.RouterGroup, alertHandler *handlers.AlertHandler) {
	alertRoutes := authenticatedGroup.Group("/alerts")
	{
		alertRoutes.GET("", alertHandler.ListUnresolved)
		alertRoutes.GET("/items/:id", alertHandler.ListByItem)
		alertRoutes.POST("/:alertId/resolve",
			middleware.RoleAuthMiddleware(models.RoleAdmin, models.RolePharmacist),
			alertHandler.Resolve)
	}
}

// SetupReportRoutes sets up the read-only reports.
func SetupReportRoutes(authenticatedGroup *gin.RouterGroup, reportHandler *handlers.ReportHandler) {
	reportRoutes := authenticatedGroup.Group("/reports")
	{
		reportRoutes.GET("/valuation", reportHandler.Valuation)
		reportRoutes.GET("/low-stock", reportHandler.LowStock)
		reportRoutes.GET("/expiring-batches", reportHandler.ExpiringBatches)
	}
}

// SetupSchedulerRoutes sets up the entry points an external scheduler calls
// periodically. Admin token required.
func SetupSchedulerRoutes(authenticatedGroup *gin.RouterGroup, stockHandler *handlers.StockHandler, reservationHandler *handlers.ReservationHandler) {
	schedulerRoutes := authenticatedGroup.Group("/scheduler")
	schedulerRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
	{
		schedulerRoutes.POST("/sweep-expired-reservations", reservationHandler.SweepExpired)
		schedulerRoutes.POST("/mark-expired-batches", stockHandler.MarkExpiredBatches)
	}
}
