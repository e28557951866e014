package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vipauto/autoelectric-crm/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestPassword is the plain-text password of every fixture master
const TestPassword = "secret123"

var phoneSeq atomic.Int64

// NewTestDB opens a migrated in-memory sqlite database.
// A single connection keeps every query on the same in-memory database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// CreateMaster inserts an active master with TestPassword
func CreateMaster(t *testing.T, db *gorm.DB, fullName string, role models.Role) *models.Master {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	master := &models.Master{
		FullName:     fullName,
		Phone:        fmt.Sprintf("+7900%07d", phoneSeq.Add(1)),
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	}
	if err := db.Create(master).Error; err != nil {
		t.Fatalf("Failed to create master: %v", err)
	}
	return master
}

// Deactivate marks a master inactive
func Deactivate(t *testing.T, db *gorm.DB, master *models.Master) {
	t.Helper()
	if err := db.Model(master).Update("is_active", false).Error; err != nil {
		t.Fatalf("Failed to deactivate master: %v", err)
	}
	master.IsActive = false
}

// Assignment is a fixture master share
type Assignment struct {
	Master         *models.Master
	WorkPercentage string
}

// CreateOrder inserts a pending order with a single labor line of the given price
func CreateOrder(t *testing.T, db *gorm.DB, creator *models.Master, price string, assignments ...Assignment) *models.Order {
	t.Helper()

	amount := decimal.RequireFromString(price)
	order := &models.Order{
		ClientName:  "Иван Петров",
		ClientPhone: "+79991112233",
		CarModel:    "Lada Vesta",
		CarNumber:   "А123ВС77",
		Status:      models.StatusPending,
		TotalAmount: amount,
		CreatedByID: creator.ID,
		Works:       []models.OrderWork{{Name: "Диагностика генератора", Price: amount}},
	}
	for _, assignment := range assignments {
		order.Masters = append(order.Masters, models.OrderMaster{
			MasterID:       assignment.Master.ID,
			WorkPercentage: decimal.RequireFromString(assignment.WorkPercentage),
		})
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}
	return order
}

// SetOwnerPercentage writes the settings row with the given owner percentage
func SetOwnerPercentage(t *testing.T, db *gorm.DB, percentage string) {
	t.Helper()

	setting := models.Setting{
		ID:              1,
		OwnerPercentage: decimal.RequireFromString(percentage),
		CompanyName:     models.DefaultCompanyName,
		Currency:        models.DefaultCurrency,
		WorkTimeStart:   models.DefaultWorkTimeStart,
		WorkTimeEnd:     models.DefaultWorkTimeEnd,
		WorkingDays:     models.DefaultWorkingDays,
		UpdatedAt:       time.Now(),
	}
	if err := db.Save(&setting).Error; err != nil {
		t.Fatalf("Failed to save settings: %v", err)
	}
}
