package services

import (
	"fmt"
	"time"

	"eyeclinic_backend/internal/models"
	"eyeclinic_backend/internal/repositories"
)

// ReportService exposes the read-only reports. It never mutates stock.
type ReportService interface {
	Valuation(clinicID *int64) ([]models.ValuationLine, error)
	LowStock(clinicID *int64) ([]models.LowStockLine, error)
	ExpiringBatches(clinicID *int64, withinDays int) ([]models.ExpiringBatchLine, error)
}

type reportService struct {
	reportRepo repositories.ReportRepository
}

// NewReportService creates a new instance of ReportService.
func NewReportService(rr repositories.ReportRepository) ReportService {
	return &reportService{reportRepo: rr}
}

func (s *reportService) Valuation(clinicID *int64) ([]models.ValuationLine, error) {
	return s.reportRepo.Valuation(clinicID)
}

func (s *reportService) LowStock(clinicID *int64) ([]models.LowStockLine, error) {
	return s.reportRepo.LowStock(clinicID)
}

func (s *reportService) ExpiringBatches(clinicID *int64, withinDays int) ([]models.ExpiringBatchLine, error) {
	if withinDays <= 0 {
		withinDays = int(ExpiryWarningWindow.Hours() / 24)
	}
	if withinDays > 365 {
		return nil, fmt.Errorf("%w: window capped at 365 days", ErrValidation)
	}
	return s.reportRepo.ExpiringBatches(clinicID, time.Duration(withinDays)*24*time.Hour)
}
