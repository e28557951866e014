package models

import (
	"time"

	"gorm.io/gorm"
)

// Role is the access level of a master account
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleDirector Role = "director"
	RoleMaster   Role = "master"
)

// IsValid reports whether the role is one of the known roles
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleDirector, RoleMaster:
		return true
	}
	return false
}

// IsManager reports whether the role may manage masters, settings and bonuses
func (r Role) IsManager() bool {
	return r == RoleAdmin || r == RoleDirector
}

// Master represents a workshop employee who can log in and be assigned to orders
type Master struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	FullName     string         `gorm:"size:100;not null" json:"full_name"`
	Phone        string         `gorm:"size:20;uniqueIndex;not null" json:"phone"`
	PasswordHash string         `gorm:"not null" json:"-"`
	Role         Role           `gorm:"type:varchar(20);not null;default:'master'" json:"role"`
	IsActive     bool           `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Master model
func (Master) TableName() string {
	return "masters"
}

// IsManager reports whether the master is a director or an admin
func (m *Master) IsManager() bool {
	return m != nil && m.Role.IsManager()
}
