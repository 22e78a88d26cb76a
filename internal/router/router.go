package router

import (
	"database/sql"

	"eyeclinic_backend/internal/handlers"
	"eyeclinic_backend/internal/middleware"
	"eyeclinic_backend/internal/repositories"
	"eyeclinic_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// Setup initializes the routing for the application.
func Setup(engine *gin.Engine, db *sql.DB) {
	// Repositories
	txRunner := repositories.NewTxRunner(db)
	authRepo := repositories.NewAuthRepository(db)
	inventoryRepo := repositories.NewInventoryRepository(db)
	batchRepo := repositories.NewBatchRepository(db)
	reservationRepo := repositories.NewReservationRepository(db)
	transactionRepo := repositories.NewTransactionRepository(db)
	alertRepo := repositories.NewAlertRepository(db)
	reportRepo := repositories.NewReportRepository(db)

	// Services
	authService := services.NewAuthService(authRepo)
	statusService := services.NewStatusService(inventoryRepo, batchRepo, alertRepo)
	inventoryService := services.NewInventoryService(inventoryRepo, batchRepo, statusService)
	stockService := services.NewStockService(txRunner, inventoryRepo, batchRepo, transactionRepo, statusService)
	reservationService := services.NewReservationService(txRunner, inventoryRepo, batchRepo, reservationRepo, transactionRepo, statusService)
	transferService := services.NewTransferService(txRunner, inventoryRepo, batchRepo, transactionRepo, statusService)
	reportService := services.NewReportService(reportRepo)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	inventoryHandler := handlers.NewInventoryHandler(inventoryService)
	stockHandler := handlers.NewStockHandler(stockService)
	reservationHandler := handlers.NewReservationHandler(reservationService)
	transferHandler := handlers.NewTransferHandler(transferService)
	alertHandler := handlers.NewAlertHandler(alertRepo)
	reportHandler := handlers.NewReportHandler(reportService)

	apiV1 := engine.Group("/api/v1")

	SetupPublicAuthRoutes(apiV1.Group("/auth"), authHandler)

	authenticated := apiV1.Group("")
	authenticated.Use(middleware.AuthMiddleware())
	{
		SetupAuthenticatedAuthRoutes(authenticated.Group("/auth"), authHandler)
		SetupInventoryRoutes(authenticated, inventoryHandler, stockHandler, reservationHandler)
		SetupReservationRoutes(authenticated, reservationHandler)
		SetupTransferRoutes(authenticated, transferHandler)
		SetupAlertRoutes(authenticated, alertHandler)
		SetupReportRoutes(authenticated, reportHandler)
		SetupSchedulerRoutes(authenticated, stockHandler, reservationHandler)
	}
}
