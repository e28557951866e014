package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is anything that contributes money to an order total
type LineItem interface {
	LineAmount() decimal.Decimal
}

// OrderWork is a labor line; its amount is the price
type OrderWork struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   uint            `gorm:"not null;index" json:"order_id"`
	Name      string          `gorm:"size:200;not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

// TableName specifies the table name for the OrderWork model
func (OrderWork) TableName() string {
	return "order_works"
}

// LineAmount returns the labor price
func (w OrderWork) LineAmount() decimal.Decimal {
	return w.Price
}

// OrderMaterial is a consumable used during the repair
type OrderMaterial struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   uint            `gorm:"not null;index" json:"order_id"`
	Name      string          `gorm:"size:200;not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Quantity  int             `gorm:"not null;default:1" json:"quantity"`
	CreatedAt time.Time       `json:"created_at"`
}

// TableName specifies the table name for the OrderMaterial model
func (OrderMaterial) TableName() string {
	return "order_materials"
}

// LineAmount returns price times quantity
func (m OrderMaterial) LineAmount() decimal.Decimal {
	return m.Price.Mul(decimal.NewFromInt(int64(m.Quantity)))
}

// OrderPart is a spare part installed in the car, optionally sold by a master
type OrderPart struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   uint            `gorm:"not null;index" json:"order_id"`
	Name      string          `gorm:"size:200;not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Quantity  int             `gorm:"not null;default:1" json:"quantity"`
	SellerID  *uint           `gorm:"index" json:"seller_id"`
	Seller    *Master         `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// TableName specifies the table name for the OrderPart model
func (OrderPart) TableName() string {
	return "order_parts"
}

// LineAmount returns price times quantity
func (p OrderPart) LineAmount() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// SumLineItems adds up the amounts of all line items
func SumLineItems(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineAmount())
	}
	return total
}
