package models

import "time"

// ValuationLine is one item type's slice of the inventory valuation report.
type ValuationLine struct {
	ItemType    ItemType `json:"item_type"`
	ItemCount   int      `json:"item_count"`
	TotalUnits  int      `json:"total_units"`
	CostValue   float64  `json:"cost_value"`
	RetailValue float64  `json:"retail_value"`
}

// LowStockLine is one row of the low-stock report.
type LowStockLine struct {
	ItemID       int64    `json:"item_id"`
	ClinicID     int64    `json:"clinic_id"`
	SKU          string   `json:"sku"`
	Name         string   `json:"name"`
	ItemType     ItemType `json:"item_type"`
	CurrentStock int      `json:"current_stock"`
	Reserved     int      `json:"reserved"`
	ReorderPoint int      `json:"reorder_point"`
	MinimumStock int      `json:"minimum_stock"`
	OnOrder      int      `json:"on_order"`
}

// ExpiringBatchLine is one row of the expiring-lots report.
type ExpiringBatchLine struct {
	BatchID    int64     `json:"batch_id"`
	ItemID     int64     `json:"item_id"`
	ClinicID   int64     `json:"clinic_id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	LotNumber  string    `json:"lot_number"`
	Quantity   int       `json:"quantity"`
	ExpiryDate time.Time `json:"expiry_date"`
	DaysLeft   int       `json:"days_left"`
}
