package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vipauto/autoelectric-crm/apperrors"
	"github.com/vipauto/autoelectric-crm/models"
	"github.com/vipauto/autoelectric-crm/utils"
	"gorm.io/gorm"
)

// BonusInput is the payload of a manual bonus
type BonusInput struct {
	MasterID       uint             `json:"master_id" binding:"required"`
	OrderID        uint             `json:"order_id" binding:"required"`
	Amount         decimal.Decimal  `json:"amount"`
	Percentage     *decimal.Decimal `json:"percentage"`
	WorkPercentage *decimal.Decimal `json:"work_percentage"`
	Date           string           `json:"date"`
	Description    *string          `json:"description"`
}

// BonusUpdate is the payload of PUT /bonuses/:id
type BonusUpdate struct {
	Amount         *decimal.Decimal `json:"amount"`
	Percentage     *decimal.Decimal `json:"percentage"`
	WorkPercentage *decimal.Decimal `json:"work_percentage"`
	Date           *string          `json:"date"`
	Description    *string          `json:"description"`
}

// BonusFilter narrows bonus listings
type BonusFilter struct {
	MasterID uint
	Range    utils.DateRange
}

// StatusBonusStats aggregates bonuses of orders in one status
type StatusBonusStats struct {
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// BonusStats summarises bonuses for a master or the whole workshop
type BonusStats struct {
	Master        *models.Master                           `json:"master"`
	TotalBonuses  int64                                    `json:"total_bonuses"`
	TotalAmount   decimal.Decimal                          `json:"total_amount"`
	AverageBonus  decimal.Decimal                          `json:"average_bonus"`
	ByOrderStatus map[models.OrderStatus]*StatusBonusStats `json:"by_order_status"`
}

// BonusService lists bonuses and manages manual ones; allocation bonuses are read-only
type BonusService struct {
	db *gorm.DB
}

// NewBonusService creates a bonus service
func NewBonusService(db *gorm.DB) *BonusService {
	return &BonusService{db: db}
}

// List returns one page of bonuses matching the filter, newest first
func (s *BonusService) List(ctx context.Context, filter BonusFilter, page utils.Page) ([]models.Bonus, int64, error) {
	query := applyBonusFilter(s.db.WithContext(ctx).Model(&models.Bonus{}), filter).Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to count bonuses")
	}

	bonuses := []models.Bonus{}
	if err := query.
		Preload("Master").
		Preload("Order").
		Order("date DESC").
		Order("id DESC").
		Scopes(page.Scope).
		Find(&bonuses).Error; err != nil {
		return nil, 0, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to fetch bonuses")
	}
	return bonuses, total, nil
}

// Get loads a bonus; masters may only read their own
func (s *BonusService) Get(ctx context.Context, id uint, actor *models.Master) (*models.Bonus, error) {
	var bonus models.Bonus
	if err := s.db.WithContext(ctx).Preload("Master").Preload("Order").First(&bonus, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "Bonus not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to load bonus")
	}
	if actor != nil && !actor.IsManager() && bonus.MasterID != actor.ID {
		return nil, apperrors.New(apperrors.CodeForbidden, "You can only view your own bonuses")
	}
	return &bonus, nil
}

// Create records a manual bonus
func (s *BonusService) Create(ctx context.Context, input BonusInput) (*models.Bonus, error) {
	if input.Amount.IsNegative() {
		return nil, apperrors.New(apperrors.CodeValidation, "amount cannot be negative")
	}
	date, err := parseBonusDate(input.Date)
	if err != nil {
		return nil, err
	}
	percentage, err := optionalPercentage("percentage", input.Percentage)
	if err != nil {
		return nil, err
	}
	workPercentage, err := optionalPercentage("work_percentage", input.WorkPercentage)
	if err != nil {
		return nil, err
	}

	bonus := &models.Bonus{
		MasterID:       input.MasterID,
		OrderID:        input.OrderID,
		Source:         models.BonusSourceManual,
		Amount:         input.Amount.Round(2),
		Percentage:     percentage,
		WorkPercentage: workPercentage,
		Date:           date,
		Description:    input.Description,
	}

	db := s.db.WithContext(ctx)
	if err := ensureExists(db, &models.Master{}, input.MasterID, "Master not found"); err != nil {
		return nil, err
	}
	if err := ensureExists(db, &models.Order{}, input.OrderID, "Order not found"); err != nil {
		return nil, err
	}
	if err := db.Create(bonus).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to create bonus")
	}
	return s.Get(ctx, bonus.ID, nil)
}

// Update changes a manual bonus
func (s *BonusService) Update(ctx context.Context, id uint, update BonusUpdate) (*models.Bonus, error) {
	bonus, err := s.loadMutable(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if update.Amount != nil {
		if update.Amount.IsNegative() {
			return nil, apperrors.New(apperrors.CodeValidation, "amount cannot be negative")
		}
		fields["amount"] = update.Amount.Round(2)
	}
	if update.Percentage != nil {
		percentage, err := optionalPercentage("percentage", update.Percentage)
		if err != nil {
			return nil, err
		}
		fields["percentage"] = percentage
	}
	if update.WorkPercentage != nil {
		workPercentage, err := optionalPercentage("work_percentage", update.WorkPercentage)
		if err != nil {
			return nil, err
		}
		fields["work_percentage"] = workPercentage
	}
	if update.Date != nil {
		date, err := parseBonusDate(*update.Date)
		if err != nil {
			return nil, err
		}
		fields["date"] = date
	}
	if update.Description != nil {
		fields["description"] = *update.Description
	}

	if len(fields) > 0 {
		if err := s.db.WithContext(ctx).Model(bonus).Updates(fields).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to update bonus")
		}
	}
	return s.Get(ctx, id, nil)
}

// Delete soft-deletes a manual bonus
func (s *BonusService) Delete(ctx context.Context, id uint) error {
	bonus, err := s.loadMutable(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(bonus).Error; err != nil {
		return apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to delete bonus")
	}
	return nil
}

// Stats aggregates bonuses, split by the status of their orders; masterID 0 means every master
func (s *BonusService) Stats(ctx context.Context, masterID uint, dates utils.DateRange) (*BonusStats, error) {
	db := s.db.WithContext(ctx)
	stats := &BonusStats{
		TotalAmount:   decimal.Zero,
		AverageBonus:  decimal.Zero,
		ByOrderStatus: make(map[models.OrderStatus]*StatusBonusStats),
	}
	for _, status := range models.OrderStatuses() {
		stats.ByOrderStatus[status] = &StatusBonusStats{Amount: decimal.Zero}
	}

	if masterID != 0 {
		var master models.Master
		if err := db.First(&master, masterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.New(apperrors.CodeNotFound, "Master not found")
			}
			return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to load master")
		}
		stats.Master = &master
	}

	var rows []struct {
		Status models.OrderStatus
		Count  int64
		Amount decimal.Decimal
	}
	query := applyBonusFilter(db.Model(&models.Bonus{}), BonusFilter{MasterID: masterID, Range: dates}).
		Joins("JOIN orders ON orders.id = bonuses.order_id AND orders.deleted_at IS NULL").
		Select("orders.status AS status, COUNT(bonuses.id) AS count, COALESCE(SUM(bonuses.amount), 0) AS amount").
		Group("orders.status")
	if err := query.Scan(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to aggregate bonuses")
	}

	for _, row := range rows {
		amount := row.Amount.Round(2)
		stats.TotalBonuses += row.Count
		stats.TotalAmount = stats.TotalAmount.Add(amount)
		if bucket, ok := stats.ByOrderStatus[row.Status]; ok {
			bucket.Count = row.Count
			bucket.Amount = amount
		}
	}
	if stats.TotalBonuses > 0 {
		stats.AverageBonus = stats.TotalAmount.Div(decimal.NewFromInt(stats.TotalBonuses)).Round(2)
	}
	return stats, nil
}

func (s *BonusService) loadMutable(ctx context.Context, id uint) (*models.Bonus, error) {
	var bonus models.Bonus
	if err := s.db.WithContext(ctx).First(&bonus, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "Bonus not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to load bonus")
	}
	if bonus.IsImmutable() {
		return nil, apperrors.New(apperrors.CodeStateConflict, "Bonuses produced by order completion cannot be changed").
			WithDetails(map[string]any{"source": bonus.Source, "allocation_id": bonus.AllocationID})
	}
	return &bonus, nil
}

func applyBonusFilter(query *gorm.DB, filter BonusFilter) *gorm.DB {
	if filter.MasterID != 0 {
		query = query.Where("bonuses.master_id = ?", filter.MasterID)
	}
	if filter.Range.From != nil {
		query = query.Where("bonuses.date >= ?", *filter.Range.From)
	}
	if filter.Range.To != nil {
		query = query.Where("bonuses.date < ?", *filter.Range.To)
	}
	return query
}

func parseBonusDate(value string) (time.Time, error) {
	if value == "" {
		return time.Now(), nil
	}
	date, err := time.ParseInLocation(utils.DateLayout, value, time.Local)
	if err != nil {
		return time.Time{}, apperrors.New(apperrors.CodeValidation, "date must be in YYYY-MM-DD format")
	}
	return date, nil
}

func optionalPercentage(field string, value *decimal.Decimal) (decimal.Decimal, error) {
	if value == nil {
		return decimal.Zero, nil
	}
	if value.IsNegative() || value.GreaterThan(hundred) {
		return decimal.Zero, apperrors.Newf(apperrors.CodeValidation, "%s must be between 0 and 100", field)
	}
	return value.Round(2), nil
}

func ensureExists(db *gorm.DB, model interface{}, id uint, message string) error {
	var count int64
	if err := db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to look up record")
	}
	if count == 0 {
		return apperrors.New(apperrors.CodeNotFound, message)
	}
	return nil
}
