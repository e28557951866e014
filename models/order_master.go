package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderMaster assigns a master to an order with a share of the work
type OrderMaster struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	OrderID        uint            `gorm:"not null;uniqueIndex:idx_order_masters_order_master" json:"order_id"`
	MasterID       uint            `gorm:"not null;uniqueIndex:idx_order_masters_order_master;index" json:"master_id"`
	Master         *Master         `gorm:"foreignKey:MasterID" json:"master,omitempty"`
	WorkPercentage decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"work_percentage"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TableName specifies the table name for the OrderMaster model
func (OrderMaster) TableName() string {
	return "order_masters"
}
