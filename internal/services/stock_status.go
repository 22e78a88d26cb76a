package services

import (
	"fmt"
	"time"

	"eyeclinic_backend/internal/models"
)

// ExpiryWarningWindow is how far ahead the deriver looks for soon-to-expire
// lots when raising expiring_soon alerts.
const ExpiryWarningWindow = 30 * 24 * time.Hour

// StatusInput is the state the stock status is a pure function of.
type StatusInput struct {
	CurrentStock int
	Reserved     int
	MinimumStock int
	MaximumStock *int
	OnOrder      int
	Discontinued bool
}

// DeriveStockStatus recomputes the status with fixed precedence:
// discontinued > out-of-stock > low-stock > overstocked > on-order > in-stock.
func DeriveStockStatus(in StatusInput) models.StockStatus {
	switch {
	case in.Discontinued:
		return models.StockStatusDiscontinued
	case in.CurrentStock == 0:
		return models.StockStatusOutOfStock
	case in.CurrentStock <= in.MinimumStock:
		return models.StockStatusLowStock
	case in.MaximumStock != nil && in.CurrentStock > *in.MaximumStock:
		return models.StockStatusOverstocked
	case in.OnOrder > 0:
		return models.StockStatusOnOrder
	default:
		return models.StockStatusInStock
	}
}

// DeriveAlerts computes the alerts that should be open for the item right
// now, and the alert types that no longer apply and should be resolved.
// It is pure; persistence (and the never-duplicate-unresolved rule) is the
// alert repository's job.
func DeriveAlerts(item *models.InventoryItem, batches []models.Batch, now time.Time) (raise []models.StockAlert, clear []string) {
	status := DeriveStockStatus(StatusInput{
		CurrentStock: item.CurrentStock,
		Reserved:     item.Reserved,
		MinimumStock: item.MinimumStock,
		MaximumStock: item.MaximumStock,
		OnOrder:      item.OnOrder,
		Discontinued: item.Discontinued,
	})

	switch status {
	case models.StockStatusOutOfStock:
		raise = append(raise, models.StockAlert{
			ItemID:    item.ID,
			AlertType: models.AlertTypeOutOfStock,
			Severity:  models.AlertSeverityCritical,
			Message:   fmt.Sprintf("%s (%s) is out of stock", item.Name, item.SKU),
		})
		clear = append(clear, models.AlertTypeLowStock, models.AlertTypeOverstocked)
	case models.StockStatusLowStock:
		raise = append(raise, models.StockAlert{
			ItemID:    item.ID,
			AlertType: models.AlertTypeLowStock,
			Severity:  models.AlertSeverityWarning,
			Message: fmt.Sprintf("%s (%s) is low on stock: %d on hand, minimum %d",
				item.Name, item.SKU, item.CurrentStock, item.MinimumStock),
		})
		clear = append(clear, models.AlertTypeOutOfStock, models.AlertTypeOverstocked)
	case models.StockStatusOverstocked:
		raise = append(raise, models.StockAlert{
			ItemID:    item.ID,
			AlertType: models.AlertTypeOverstocked,
			Severity:  models.AlertSeverityInfo,
			Message: fmt.Sprintf("%s (%s) is overstocked: %d on hand, maximum %d",
				item.Name, item.SKU, item.CurrentStock, *item.MaximumStock),
		})
		clear = append(clear, models.AlertTypeLowStock, models.AlertTypeOutOfStock)
	default:
		clear = append(clear, models.AlertTypeLowStock, models.AlertTypeOutOfStock, models.AlertTypeOverstocked)
	}

	expiringSoon := false
	expired := false
	for i := range batches {
		b := &batches[i]
		if b.ExpiryDate == nil || b.Quantity == 0 {
			continue
		}
		switch b.Status {
		case models.BatchStatusActive:
			if !b.ExpiryDate.After(now) {
				expired = true
			} else if b.ExpiryDate.Before(now.Add(ExpiryWarningWindow)) {
				expiringSoon = true
			}
		case models.BatchStatusExpired:
			expired = true
		}
	}
	if expired {
		raise = append(raise, models.StockAlert{
			ItemID:    item.ID,
			AlertType: models.AlertTypeExpiredBatch,
			Severity:  models.AlertSeverityCritical,
			Message:   fmt.Sprintf("%s (%s) holds expired lots", item.Name, item.SKU),
		})
	} else {
		clear = append(clear, models.AlertTypeExpiredBatch)
	}
	if expiringSoon {
		raise = append(raise, models.StockAlert{
			ItemID:    item.ID,
			AlertType: models.AlertTypeExpiringSoon,
			Severity:  models.AlertSeverityWarning,
			Message:   fmt.Sprintf("%s (%s) holds lots expiring within %d days", item.Name, item.SKU, int(ExpiryWarningWindow.Hours()/24)),
		})
	} else {
		clear = append(clear, models.AlertTypeExpiringSoon)
	}

	return raise, clear
}
