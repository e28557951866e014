package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order represents a car brought in for auto-electric repair
type Order struct {
	ID                 uint             `gorm:"primaryKey" json:"id"`
	ClientName         string           `gorm:"size:100;not null" json:"client_name"`
	ClientPhone        string           `gorm:"size:20;not null" json:"client_phone"`
	CarModel           string           `gorm:"size:100;not null" json:"car_model"`
	CarNumber          string           `gorm:"size:20;not null" json:"car_number"`
	CarYear            *int             `json:"car_year"`
	ProblemDescription *string          `gorm:"type:text" json:"problem_description"`
	Status             OrderStatus      `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	TotalAmount        decimal.Decimal  `gorm:"type:numeric(12,2);not null;default:0" json:"total_amount"` // recomputed from line items on every write
	CompletedAt        *time.Time       `json:"completed_at"`
	ImageS3Key         *string          `json:"image_s3_key"`
	ImageURL           *string          `gorm:"-" json:"image_url,omitempty"` // computed field, presigned URL for image
	CreatedByID        uint             `gorm:"not null;index" json:"created_by_id"`
	CreatedBy          *Master          `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	Works              []OrderWork      `gorm:"constraint:OnDelete:CASCADE" json:"works"`
	Materials          []OrderMaterial  `gorm:"constraint:OnDelete:CASCADE" json:"materials"`
	Parts              []OrderPart      `gorm:"constraint:OnDelete:CASCADE" json:"parts"`
	Masters            []OrderMaster    `gorm:"constraint:OnDelete:CASCADE" json:"masters"`
	Allocation         *OrderAllocation `json:"allocation,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
	DeletedAt          gorm.DeletedAt   `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// LineItems returns every billable line of the order
func (o *Order) LineItems() []LineItem {
	items := make([]LineItem, 0, len(o.Works)+len(o.Materials)+len(o.Parts))
	for _, work := range o.Works {
		items = append(items, work)
	}
	for _, material := range o.Materials {
		items = append(items, material)
	}
	for _, part := range o.Parts {
		items = append(items, part)
	}
	return items
}

// IsAssigned reports whether the master is one of the order's assignments
func (o *Order) IsAssigned(masterID uint) bool {
	for _, assignment := range o.Masters {
		if assignment.MasterID == masterID {
			return true
		}
	}
	return false
}
