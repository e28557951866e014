package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vipauto/autoelectric-crm/apperrors"
	"github.com/vipauto/autoelectric-crm/models"
	"github.com/vipauto/autoelectric-crm/utils"
	"gorm.io/gorm"
)

// StatusCounts counts orders per status
type StatusCounts struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"in_progress"`
	Completed  int64 `json:"completed"`
	Cancelled  int64 `json:"cancelled"`
}

func (s *StatusCounts) add(status models.OrderStatus, n int64) {
	s.Total += n
	switch status {
	case models.StatusPending:
		s.Pending += n
	case models.StatusInProgress:
		s.InProgress += n
	case models.StatusCompleted:
		s.Completed += n
	case models.StatusCancelled:
		s.Cancelled += n
	}
}

// OrderSummary is the order block of general stats
type OrderSummary struct {
	StatusCounts
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// Finance sums materialised allocations
type Finance struct {
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	OwnerShare    decimal.Decimal `json:"owner_share"`
	MastersShare  decimal.Decimal `json:"masters_share"`
	Allocations   int64           `json:"allocations"`
	ManualBonuses decimal.Decimal `json:"manual_bonuses"`
}

// MasterSummary is one master's line in workshop stats
type MasterSummary struct {
	ID              uint            `json:"id"`
	FullName        string          `json:"full_name"`
	Role            models.Role     `json:"role"`
	OrdersCount     int64           `json:"orders_count"`
	CompletedOrders int64           `json:"completed_orders"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	BonusAmount     decimal.Decimal `json:"bonus_amount"`
}

// ChartPoint is one day of the dashboard chart
type ChartPoint struct {
	Date string `json:"date"`
	StatusCounts
	Amount decimal.Decimal `json:"amount"`
}

// GeneralStats is the response of GET /stats/general
type GeneralStats struct {
	Orders  OrderSummary    `json:"orders"`
	Masters []MasterSummary `json:"masters"`
	Finance Finance         `json:"finance"`
}

// DashboardStats is the response of GET /stats/dashboard
type DashboardStats struct {
	Period  string          `json:"period"`
	Chart   []ChartPoint    `json:"chart"`
	Status  StatusCounts    `json:"status"`
	Finance Finance         `json:"finance"`
	Masters []MasterSummary `json:"masters"`
}

// MasterFinance is the money side of one master's stats
type MasterFinance struct {
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	BonusAmount  decimal.Decimal `json:"bonus_amount"`
}

// MasterStats is the response of GET /stats/master/:id
type MasterStats struct {
	Master  *models.Master `json:"master"`
	Period  string         `json:"period"`
	Chart   []ChartPoint   `json:"chart"`
	Status  StatusCounts   `json:"status"`
	Finance MasterFinance  `json:"finance"`
}

// StatsService builds reporting aggregates; money figures come from allocations and bonuses, never from current settings
type StatsService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStatsService creates a stats service
func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{db: db, now: time.Now}
}

// General returns order, master and finance totals for a date range
func (s *StatsService) General(ctx context.Context, dates utils.DateRange) (*GeneralStats, error) {
	db := s.db.WithContext(ctx)

	var rows []struct {
		Status      models.OrderStatus
		Count       int64
		TotalAmount decimal.Decimal
	}
	if err := inRange(db.Model(&models.Order{}), "orders.created_at", dates).
		Select("status, COUNT(id) AS count, COALESCE(SUM(total_amount), 0) AS total_amount").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to aggregate orders")
	}

	stats := &GeneralStats{Orders: OrderSummary{TotalAmount: decimal.Zero}}
	for _, row := range rows {
		stats.Orders.add(row.Status, row.Count)
		stats.Orders.TotalAmount = stats.Orders.TotalAmount.Add(row.TotalAmount.Round(2))
	}

	masters, err := s.masterSummaries(db, dates)
	if err != nil {
		return nil, err
	}
	stats.Masters = masters

	finance, err := s.finance(db, dates)
	if err != nil {
		return nil, err
	}
	stats.Finance = *finance
	return stats, nil
}

// Dashboard returns the daily chart, status counts, finance and a master ranking for a period
func (s *StatsService) Dashboard(ctx context.Context, period string) (*DashboardStats, error) {
	dates, err := utils.PeriodRange(period, s.now())
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = "week"
	}
	db := s.db.WithContext(ctx)

	var orders []models.Order
	if err := inRange(db.Model(&models.Order{}), "orders.created_at", dates).
		Select("id", "status", "total_amount", "created_at").
		Order("created_at ASC").
		Find(&orders).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to load orders")
	}
	chart, status := buildChart(dates, orders)

	finance, err := s.finance(db, dates)
	if err != nil {
		return nil, err
	}
	masters, err := s.masterSummaries(db, dates)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(masters, func(i, j int) bool {
		return masters[i].OrdersCount > masters[j].OrdersCount
	})

	return &DashboardStats{
		Period:  period,
		Chart:   chart,
		Status:  status,
		Finance: *finance,
		Masters: masters,
	}, nil
}

// Master returns one master's chart, status counts and earnings for a period
func (s *StatsService) Master(ctx context.Context, masterID uint, period string) (*MasterStats, error) {
	dates, err := utils.PeriodRange(period, s.now())
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = "week"
	}
	db := s.db.WithContext(ctx)

	var master models.Master
	if err := db.First(&master, masterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "Master not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to load master")
	}

	var orders []models.Order
	if err := inRange(db.Model(&models.Order{}), "orders.created_at", dates).
		Where("id IN (?)", db.Model(&models.OrderMaster{}).Select("order_id").Where("master_id = ?", masterID)).
		Select("id", "status", "total_amount", "created_at").
		Order("created_at ASC").
		Find(&orders).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to load orders")
	}
	chart, status := buildChart(dates, orders)

	revenue := decimal.Zero
	for _, order := range orders {
		revenue = revenue.Add(order.TotalAmount)
	}

	var bonuses struct{ Amount decimal.Decimal }
	if err := inRange(db.Model(&models.Bonus{}), "bonuses.date", dates).
		Where("master_id = ?", masterID).
		Select("COALESCE(SUM(amount), 0) AS amount").
		Scan(&bonuses).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to sum bonuses")
	}

	return &MasterStats{
		Master: &master,
		Period: period,
		Chart:  chart,
		Status: status,
		Finance: MasterFinance{
			TotalRevenue: revenue.Round(2),
			BonusAmount:  bonuses.Amount.Round(2),
		},
	}, nil
}

// finance sums allocations by allocation time and manual bonuses by bonus date
func (s *StatsService) finance(db *gorm.DB, dates utils.DateRange) (*Finance, error) {
	var totals struct {
		TotalRevenue decimal.Decimal
		OwnerShare   decimal.Decimal
		MastersShare decimal.Decimal
		Allocations  int64
	}
	if err := inRange(db.Model(&models.OrderAllocation{}), "order_allocations.allocated_at", dates).
		Select("COALESCE(SUM(total_amount), 0) AS total_revenue, " +
			"COALESCE(SUM(owner_amount), 0) AS owner_share, " +
			"COALESCE(SUM(workers_amount), 0) AS masters_share, " +
			"COUNT(id) AS allocations").
		Scan(&totals).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to aggregate allocations")
	}

	var manual struct{ Amount decimal.Decimal }
	if err := inRange(db.Model(&models.Bonus{}), "bonuses.date", dates).
		Where("source = ?", models.BonusSourceManual).
		Select("COALESCE(SUM(amount), 0) AS amount").
		Scan(&manual).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to sum manual bonuses")
	}

	return &Finance{
		TotalRevenue:  totals.TotalRevenue.Round(2),
		OwnerShare:    totals.OwnerShare.Round(2),
		MastersShare:  totals.MastersShare.Round(2),
		Allocations:   totals.Allocations,
		ManualBonuses: manual.Amount.Round(2),
	}, nil
}

// masterSummaries lists active masters with their order counts and bonus totals in the range
func (s *StatsService) masterSummaries(db *gorm.DB, dates utils.DateRange) ([]MasterSummary, error) {
	var masters []models.Master
	if err := db.Where("is_active = ?", true).Order("id ASC").Find(&masters).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to load masters")
	}

	var orderRows []struct {
		MasterID        uint
		OrdersCount     int64
		CompletedOrders int64
		TotalAmount     decimal.Decimal
	}
	orderQuery := db.Table("order_masters").
		Joins("JOIN orders ON orders.id = order_masters.order_id AND orders.deleted_at IS NULL").
		Select("order_masters.master_id AS master_id, " +
			"COUNT(orders.id) AS orders_count, " +
			"SUM(CASE WHEN orders.status = 'completed' THEN 1 ELSE 0 END) AS completed_orders, " +
			"COALESCE(SUM(orders.total_amount), 0) AS total_amount").
		Group("order_masters.master_id")
	if err := inRange(orderQuery, "orders.created_at", dates).Scan(&orderRows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to aggregate master orders")
	}

	var bonusRows []struct {
		MasterID uint
		Amount   decimal.Decimal
	}
	if err := inRange(db.Model(&models.Bonus{}), "bonuses.date", dates).
		Select("master_id, COALESCE(SUM(amount), 0) AS amount").
		Group("master_id").
		Scan(&bonusRows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to aggregate master bonuses")
	}

	summaries := make([]MasterSummary, 0, len(masters))
	index := make(map[uint]int, len(masters))
	for i, master := range masters {
		index[master.ID] = i
		summaries = append(summaries, MasterSummary{
			ID:          master.ID,
			FullName:    master.FullName,
			Role:        master.Role,
			TotalAmount: decimal.Zero,
			BonusAmount: decimal.Zero,
		})
	}
	for _, row := range orderRows {
		if i, ok := index[row.MasterID]; ok {
			summaries[i].OrdersCount = row.OrdersCount
			summaries[i].CompletedOrders = row.CompletedOrders
			summaries[i].TotalAmount = row.TotalAmount.Round(2)
		}
	}
	for _, row := range bonusRows {
		if i, ok := index[row.MasterID]; ok {
			summaries[i].BonusAmount = row.Amount.Round(2)
		}
	}
	return summaries, nil
}

// buildChart buckets orders by the calendar day they were created on
func buildChart(dates utils.DateRange, orders []models.Order) ([]ChartPoint, StatusCounts) {
	days := dates.Days()
	chart := make([]ChartPoint, len(days))
	byDay := make(map[string]int, len(days))
	for i, day := range days {
		key := day.Format(utils.DateLayout)
		chart[i] = ChartPoint{Date: key, Amount: decimal.Zero}
		byDay[key] = i
	}

	var status StatusCounts
	for _, order := range orders {
		status.add(order.Status, 1)
		key := order.CreatedAt.In(dates.From.Location()).Format(utils.DateLayout)
		if i, ok := byDay[key]; ok {
			chart[i].add(order.Status, 1)
			chart[i].Amount = chart[i].Amount.Add(order.TotalAmount)
		}
	}
	return chart, status
}

func inRange(query *gorm.DB, column string, dates utils.DateRange) *gorm.DB {
	if dates.From != nil {
		query = query.Where(column+" >= ?", *dates.From)
	}
	if dates.To != nil {
		query = query.Where(column+" < ?", *dates.To)
	}
	return query
}
