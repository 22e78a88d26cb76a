package models

import "time"

// ItemType discriminates the goods variants that share the common stock shape.
type ItemType string

const (
	ItemTypeMedication     ItemType = "medication"
	ItemTypeFrame          ItemType = "frame"
	ItemTypeContactLens    ItemType = "contact_lens"
	ItemTypeOpticalLens    ItemType = "optical_lens"
	ItemTypeReagent        ItemType = "reagent"
	ItemTypeConsumable     ItemType = "consumable"
	ItemTypeSurgicalSupply ItemType = "surgical_supply"
)

// IsValid reports whether t is one of the known item types.
func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeMedication, ItemTypeFrame, ItemTypeContactLens, ItemTypeOpticalLens,
		ItemTypeReagent, ItemTypeConsumable, ItemTypeSurgicalSupply:
		return true
	default:
		return false
	}
}

// Perishable reports whether batches of this type must carry an expiry date.
func (t ItemType) Perishable() bool {
	switch t {
	case ItemTypeMedication, ItemTypeContactLens, ItemTypeReagent, ItemTypeSurgicalSupply:
		return true
	default:
		return false
	}
}

// StockStatus is derived from the stock numbers, never set directly by callers.
type StockStatus string

const (
	StockStatusDiscontinued StockStatus = "discontinued"
	StockStatusOutOfStock   StockStatus = "out_of_stock"
	StockStatusLowStock     StockStatus = "low_stock"
	StockStatusOverstocked  StockStatus = "overstocked"
	StockStatusOnOrder      StockStatus = "on_order"
	StockStatusInStock      StockStatus = "in_stock"
)

// BatchStatus constants. A batch never returns to active once terminal.
type BatchStatus string

const (
	BatchStatusActive      BatchStatus = "active"
	BatchStatusExpired     BatchStatus = "expired"
	BatchStatusDepleted    BatchStatus = "depleted"
	BatchStatusQuarantined BatchStatus = "quarantined"
	BatchStatusRecalled    BatchStatus = "recalled"
)

// ReservationStatus constants. A reservation is immutable once terminal.
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusFulfilled ReservationStatus = "fulfilled"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusExpired   ReservationStatus = "expired"
)

// Terminal reports whether the reservation may no longer change.
func (s ReservationStatus) Terminal() bool {
	return s != ReservationStatusActive
}

// Stock transaction types recorded in the audit trail.
const (
	TxTypePurchase      = "purchase"
	TxTypeSale          = "sale"
	TxTypeAdjustmentIn  = "adjustment_in"
	TxTypeAdjustmentOut = "adjustment_out"
	TxTypeReserved      = "reserved"
	TxTypeReleased      = "released"
	TxTypeTransferOut   = "transfer_out"
	TxTypeTransferIn    = "transfer_in"
)

// InventoryItem is the unified inventory record. One shape covers all goods
// types; the variant-specific attributes live in Details, discriminated by
// ItemType. Type and SKU are fixed at intake.
type InventoryItem struct {
	ID            int64       `json:"id" db:"id"`
	ClinicID      int64       `json:"clinic_id" db:"clinic_id" binding:"required"`
	SKU           string      `json:"sku" db:"sku" binding:"required"`
	Barcode       *string     `json:"barcode,omitempty" db:"barcode"`
	Name          string      `json:"name" db:"name" binding:"required"`
	ItemType      ItemType    `json:"item_type" db:"item_type" binding:"required"`
	Description   *string     `json:"description,omitempty" db:"description"`
	CurrentStock  int         `json:"current_stock" db:"current_stock"`
	Reserved      int         `json:"reserved" db:"reserved"`
	MinimumStock  int         `json:"minimum_stock" db:"minimum_stock"`
	ReorderPoint  int         `json:"reorder_point" db:"reorder_point"`
	MaximumStock  *int        `json:"maximum_stock,omitempty" db:"maximum_stock"`
	OnOrder       int         `json:"on_order" db:"on_order"`
	CostPrice     float64     `json:"cost_price" db:"cost_price"`
	SalePrice     float64     `json:"sale_price" db:"sale_price"`
	Status        StockStatus `json:"status" db:"status"`
	TracksBatches bool        `json:"tracks_batches" db:"tracks_batches"`
	Discontinued  bool        `json:"discontinued" db:"discontinued"`
	IsActive      bool        `json:"is_active" db:"is_active"`
	Version       int64       `json:"version" db:"version"`
	Details       ItemDetails `json:"details,omitempty"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`

	Batches []Batch `json:"batches,omitempty"`
}

// Available is the quantity not held by reservations.
func (i *InventoryItem) Available() int {
	return i.CurrentStock - i.Reserved
}

// Batch is a dated sub-quantity of an item received together (a lot).
type Batch struct {
	ID           int64       `json:"id" db:"id"`
	ItemID       int64       `json:"item_id" db:"item_id"`
	LotNumber    string      `json:"lot_number" db:"lot_number"`
	Quantity     int         `json:"quantity" db:"quantity"`
	Reserved     int         `json:"reserved" db:"reserved"`
	ReceivedDate time.Time   `json:"received_date" db:"received_date"`
	ExpiryDate   *time.Time  `json:"expiry_date,omitempty" db:"expiry_date"`
	Status       BatchStatus `json:"status" db:"status"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// Eligible reports whether the batch may be consumed by FEFO allocation at
// the given instant. Quarantined and recalled lots are never eligible.
func (b *Batch) Eligible(now time.Time) bool {
	if b.Status != BatchStatusActive {
		return false
	}
	if b.ExpiryDate != nil && !b.ExpiryDate.After(now) {
		return false
	}
	return b.Quantity > b.Reserved
}

// ReservationAllocation is one batch's share of a reservation.
type ReservationAllocation struct {
	BatchID   int64  `json:"batch_id" db:"batch_id"`
	LotNumber string `json:"lot_number" db:"lot_number"`
	Quantity  int    `json:"quantity" db:"quantity"`
}

// Reservation is a soft hold: it reduces available-to-promise stock without
// reducing on-hand quantity until fulfilled.
type Reservation struct {
	ID          string                  `json:"id" db:"id"`
	ItemID      int64                   `json:"item_id" db:"item_id"`
	Kind        string                  `json:"kind" db:"kind"`
	Reference   string                  `json:"reference" db:"reference"`
	Quantity    int                     `json:"quantity" db:"quantity"`
	Status      ReservationStatus       `json:"status" db:"status"`
	ExpiresAt   time.Time               `json:"expires_at" db:"expires_at"`
	Allocations []ReservationAllocation `json:"allocations"`
	CreatedAt   time.Time               `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at" db:"updated_at"`
}

// StockTransaction is an append-only audit entry. It is never mutated after
// creation; consecutive entries for one item chain balance_after(n) ==
// balance_before(n+1).
type StockTransaction struct {
	ID            int64     `json:"id" db:"id"`
	ItemID        int64     `json:"item_id" db:"item_id"`
	TxType        string    `json:"tx_type" db:"tx_type"`
	Quantity      int       `json:"quantity" db:"quantity"` // signed stock delta; zero for reserve/release
	Actor         string    `json:"actor" db:"actor"`
	Reason        *string   `json:"reason,omitempty" db:"reason"`
	Reference     *string   `json:"reference,omitempty" db:"reference"`
	UnitPrice     *float64  `json:"unit_price,omitempty" db:"unit_price"`
	BalanceBefore int       `json:"balance_before" db:"balance_before"`
	BalanceAfter  int       `json:"balance_after" db:"balance_after"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Alert types and severities produced by the status deriver.
const (
	AlertTypeLowStock     = "low_stock"
	AlertTypeOutOfStock   = "out_of_stock"
	AlertTypeOverstocked  = "overstocked"
	AlertTypeExpiringSoon = "expiring_soon"
	AlertTypeExpiredBatch = "expired_batch"

	AlertSeverityInfo     = "info"
	AlertSeverityWarning  = "warning"
	AlertSeverityCritical = "critical"
)

// StockAlert is created only by the deriver path; at most one unresolved
// alert of a given type exists per item.
type StockAlert struct {
	ID         int64      `json:"id" db:"id"`
	ItemID     int64      `json:"item_id" db:"item_id"`
	AlertType  string     `json:"alert_type" db:"alert_type"`
	Severity   string     `json:"severity" db:"severity"`
	Message    string     `json:"message" db:"message"`
	Resolved   bool       `json:"resolved" db:"resolved"`
	ResolvedBy *string    `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// ItemFilters narrows item listings.
type ItemFilters struct {
	ClinicID *int64
	ItemType *ItemType
	Status   *StockStatus
	Page     int
	PageSize int
}
