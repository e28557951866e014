package services

import (
	"context"
	"errors"
	"regexp"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/vipauto/autoelectric-crm/apperrors"
	"github.com/vipauto/autoelectric-crm/models"
	"gorm.io/gorm"
)

const settingsRowID = 1

var timeOfDayPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// SettingsUpdate carries the fields a director may change; nil fields are left untouched
type SettingsUpdate struct {
	OwnerPercentage *decimal.Decimal `json:"owner_percentage"`
	CompanyName     *string          `json:"company_name"`
	CompanyAddress  *string          `json:"company_address"`
	CompanyPhone    *string          `json:"company_phone"`
	Currency        *string          `json:"currency"`
	WorkTimeStart   *string          `json:"work_time_start"`
	WorkTimeEnd     *string          `json:"work_time_end"`
	WorkingDays     []int64          `json:"working_days"`
}

// SettingsService reads and writes the single settings row
type SettingsService struct {
	db                     *gorm.DB
	defaultOwnerPercentage decimal.Decimal
}

// NewSettingsService creates a settings service; defaultOwnerPercentage seeds the row on first use
func NewSettingsService(db *gorm.DB, defaultOwnerPercentage decimal.Decimal) *SettingsService {
	return &SettingsService{db: db, defaultOwnerPercentage: defaultOwnerPercentage}
}

// Get returns the settings row, creating it with defaults when missing
func (s *SettingsService) Get(ctx context.Context) (*models.Setting, error) {
	return loadSettings(s.db.WithContext(ctx), s.defaultOwnerPercentage)
}

// OwnerPercentage returns the owner's cut applied to future completions
func (s *SettingsService) OwnerPercentage(ctx context.Context) (decimal.Decimal, error) {
	setting, err := s.Get(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return setting.OwnerPercentage, nil
}

// Update applies a partial update and returns the stored settings
func (s *SettingsService) Update(ctx context.Context, update SettingsUpdate) (*models.Setting, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	var setting *models.Setting
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := loadSettings(tx, s.defaultOwnerPercentage)
		if err != nil {
			return err
		}
		update.apply(current)
		if err := tx.Save(current).Error; err != nil {
			return apperrors.Wrap(apperrors.CodeDatabase, err, "failed to save settings")
		}
		setting = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return setting, nil
}

// Validate checks ranges and formats of the provided fields
func (u SettingsUpdate) Validate() error {
	if u.OwnerPercentage != nil {
		if u.OwnerPercentage.IsNegative() || u.OwnerPercentage.GreaterThan(hundred) {
			return apperrors.New(apperrors.CodeValidation, "owner_percentage must be between 0 and 100")
		}
	}
	if u.CompanyName != nil && *u.CompanyName == "" {
		return apperrors.New(apperrors.CodeValidation, "company_name cannot be empty")
	}
	if u.Currency != nil && len(*u.Currency) != 3 {
		return apperrors.New(apperrors.CodeValidation, "currency must be a 3-letter code")
	}
	for _, value := range []*string{u.WorkTimeStart, u.WorkTimeEnd} {
		if value != nil && !timeOfDayPattern.MatchString(*value) {
			return apperrors.New(apperrors.CodeValidation, "work time must be in HH:MM format")
		}
	}
	for _, day := range u.WorkingDays {
		if day < 0 || day > 6 {
			return apperrors.New(apperrors.CodeValidation, "working_days must contain values from 0 (Sunday) to 6 (Saturday)")
		}
	}
	return nil
}

func (u SettingsUpdate) apply(setting *models.Setting) {
	if u.OwnerPercentage != nil {
		setting.OwnerPercentage = u.OwnerPercentage.Round(2)
	}
	if u.CompanyName != nil {
		setting.CompanyName = *u.CompanyName
	}
	if u.CompanyAddress != nil {
		setting.CompanyAddress = *u.CompanyAddress
	}
	if u.CompanyPhone != nil {
		setting.CompanyPhone = *u.CompanyPhone
	}
	if u.Currency != nil {
		setting.Currency = *u.Currency
	}
	if u.WorkTimeStart != nil {
		setting.WorkTimeStart = *u.WorkTimeStart
	}
	if u.WorkTimeEnd != nil {
		setting.WorkTimeEnd = *u.WorkTimeEnd
	}
	if u.WorkingDays != nil {
		setting.WorkingDays = pq.Int64Array(u.WorkingDays)
	}
}

// loadSettings reads the settings row through db, which may be a transaction
func loadSettings(db *gorm.DB, defaultOwnerPercentage decimal.Decimal) (*models.Setting, error) {
	var setting models.Setting
	err := db.First(&setting, settingsRowID).Error
	if err == nil {
		return &setting, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "failed to load settings")
	}

	setting = models.Setting{
		ID:              settingsRowID,
		OwnerPercentage: defaultOwnerPercentage,
		CompanyName:     models.DefaultCompanyName,
		Currency:        models.DefaultCurrency,
		WorkTimeStart:   models.DefaultWorkTimeStart,
		WorkTimeEnd:     models.DefaultWorkTimeEnd,
		WorkingDays:     models.DefaultWorkingDays,
	}
	if err := db.Create(&setting).Error; err != nil {
		// Another request may have created the row first
		if retryErr := db.First(&setting, settingsRowID).Error; retryErr != nil {
			return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "failed to create settings")
		}
	}
	return &setting, nil
}
