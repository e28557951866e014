package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Default company settings used when the settings row is first created
const (
	DefaultCompanyName   = "VIPАвто"
	DefaultCurrency      = "RUB"
	DefaultWorkTimeStart = "09:00"
	DefaultWorkTimeEnd   = "18:00"
)

// DefaultWorkingDays are Monday through Friday
var DefaultWorkingDays = pq.Int64Array{1, 2, 3, 4, 5}

// Setting is the single row of workshop-wide settings
type Setting struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	OwnerPercentage decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"owner_percentage"`
	CompanyName     string          `gorm:"size:200;not null" json:"company_name"`
	CompanyAddress  string          `gorm:"size:500" json:"company_address"`
	CompanyPhone    string          `gorm:"size:20" json:"company_phone"`
	Currency        string          `gorm:"size:3;not null" json:"currency"`
	WorkTimeStart   string          `gorm:"size:5;not null" json:"work_time_start"`
	WorkTimeEnd     string          `gorm:"size:5;not null" json:"work_time_end"`
	WorkingDays     pq.Int64Array   `gorm:"type:text" json:"working_days"` // stored in postgres array literal form
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName specifies the table name for the Setting model
func (Setting) TableName() string {
	return "settings"
}

// CompanyInfo is the public subset of settings
type CompanyInfo struct {
	CompanyName    string        `json:"company_name"`
	CompanyAddress string        `json:"company_address"`
	CompanyPhone   string        `json:"company_phone"`
	Currency       string        `json:"currency"`
	WorkTimeStart  string        `json:"work_time_start"`
	WorkTimeEnd    string        `json:"work_time_end"`
	WorkingDays    pq.Int64Array `json:"working_days"`
}

// CompanyInfo returns the public company details
func (s *Setting) CompanyInfo() CompanyInfo {
	return CompanyInfo{
		CompanyName:    s.CompanyName,
		CompanyAddress: s.CompanyAddress,
		CompanyPhone:   s.CompanyPhone,
		Currency:       s.Currency,
		WorkTimeStart:  s.WorkTimeStart,
		WorkTimeEnd:    s.WorkTimeEnd,
		WorkingDays:    s.WorkingDays,
	}
}
