package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BonusSource tells whether a bonus came from an order completion or was entered by hand
type BonusSource string

const (
	BonusSourceAllocation BonusSource = "allocation"
	BonusSourceManual     BonusSource = "manual"
)

// Bonus is money owed to a master for an order
type Bonus struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	MasterID       uint            `gorm:"not null;index;uniqueIndex:idx_bonuses_allocation_master" json:"master_id"`
	Master         *Master         `gorm:"foreignKey:MasterID" json:"master,omitempty"`
	OrderID        uint            `gorm:"not null;index" json:"order_id"`
	Order          *Order          `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	AllocationID   *uint           `gorm:"uniqueIndex:idx_bonuses_allocation_master" json:"allocation_id"` // null for manual bonuses
	Source         BonusSource     `gorm:"type:varchar(20);not null;default:'manual'" json:"source"`
	Amount         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Percentage     decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"percentage"`      // worker cut of the order, 100 minus owner percentage
	WorkPercentage decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"work_percentage"` // effective share of the master
	Date           time.Time       `gorm:"not null;index" json:"date"`
	Description    *string         `gorm:"type:text" json:"description"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Bonus model
func (Bonus) TableName() string {
	return "bonuses"
}

// IsImmutable reports whether the bonus was produced by an allocation and must not be edited
func (b *Bonus) IsImmutable() bool {
	return b.Source == BonusSourceAllocation
}
