package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderAllocation records how the revenue of a completed order was split.
// The unique order_id guarantees a single bonus set per order.
type OrderAllocation struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	OrderID         uint            `gorm:"not null;uniqueIndex" json:"order_id"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	OwnerPercentage decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"owner_percentage"`
	OwnerAmount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"owner_amount"`
	WorkersAmount   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"workers_amount"`
	Normalized      bool            `gorm:"not null;default:false" json:"normalized"`
	AllocatedAt     time.Time       `gorm:"not null;index" json:"allocated_at"`
	AllocatedByID   *uint           `json:"allocated_by_id"`
	Bonuses         []Bonus         `gorm:"foreignKey:AllocationID" json:"bonuses,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TableName specifies the table name for the OrderAllocation model
func (OrderAllocation) TableName() string {
	return "order_allocations"
}
