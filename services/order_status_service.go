package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vipauto/autoelectric-crm/apperrors"
	"github.com/vipauto/autoelectric-crm/logger"
	"github.com/vipauto/autoelectric-crm/metrics"
	"github.com/vipauto/autoelectric-crm/models"
	"gorm.io/gorm"
)

// StatusChange describes a committed status transition
type StatusChange struct {
	Order      *models.Order           `json:"order"`
	From       models.OrderStatus      `json:"from"`
	To         models.OrderStatus      `json:"to"`
	Allocation *models.OrderAllocation `json:"allocation,omitempty"`
}

// OrderStatusService moves orders through the status state machine and allocates bonuses on completion
type OrderStatusService struct {
	db                     *gorm.DB
	defaultOwnerPercentage decimal.Decimal
	metrics                *metrics.AllocationMetrics
	log                    *logger.Logger
	now                    func() time.Time
}

// NewOrderStatusService creates an order status service
func NewOrderStatusService(db *gorm.DB, defaultOwnerPercentage decimal.Decimal) *OrderStatusService {
	return &OrderStatusService{
		db:                     db,
		defaultOwnerPercentage: defaultOwnerPercentage,
		metrics:                metrics.Get().Allocations,
		log:                    logger.Get(),
		now:                    time.Now,
	}
}

// ChangeStatus applies a transition atomically. Entering completed runs the allocator once per order;
// on any error the order keeps its previous status and no bonus rows are written.
func (s *OrderStatusService) ChangeStatus(ctx context.Context, orderID uint, to models.OrderStatus, actorID uint) (*StatusChange, error) {
	if !to.IsValid() {
		return nil, apperrors.Newf(apperrors.CodeValidation, "invalid status %q", to)
	}

	ctx = s.log.WithOrderID(ctx, orderID)
	var change *StatusChange
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.CodeNotFound, "Order not found")
			}
			return apperrors.Wrap(apperrors.CodeDatabase, err, "failed to load order")
		}
		from := order.Status

		if to == models.StatusCompleted {
			exists, err := allocationExists(tx, order.ID)
			if err != nil {
				return err
			}
			if exists {
				return apperrors.New(apperrors.CodeDuplicateAllocation, "Bonuses have already been allocated for this order").
					WithDetails(map[string]any{"order_id": order.ID, "status": from})
			}
		}

		if !from.CanTransitionTo(to) {
			return apperrors.Newf(apperrors.CodeStateConflict, "Cannot change order status from %s to %s", from, to).
				WithDetails(map[string]any{"from": from, "to": to, "allowed": from.AllowedTransitions()})
		}

		now := s.now()
		updates := map[string]interface{}{
			"status":     to,
			"updated_at": now,
		}

		var allocation *models.OrderAllocation
		if to == models.StatusCompleted {
			computed, err := s.allocate(ctx, tx, &order, actorID, now)
			if err != nil {
				return err
			}
			allocation = computed
			updates["total_amount"] = allocation.TotalAmount
			updates["completed_at"] = now
		} else if from == models.StatusCompleted {
			updates["completed_at"] = nil
		}

		// Compare-and-set on the previous status guards against concurrent transitions
		result := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, from).
			Updates(updates)
		if result.Error != nil {
			return apperrors.Wrap(apperrors.CodeDatabase, result.Error, "failed to update order status")
		}
		if result.RowsAffected == 0 {
			return apperrors.New(apperrors.CodeConflict, "Order status was changed by another request").
				WithDetails(map[string]any{"expected_status": from})
		}

		if allocation != nil {
			if err := tx.Create(allocation).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return apperrors.Wrap(apperrors.CodeDuplicateAllocation, err, "Bonuses have already been allocated for this order")
				}
				return apperrors.Wrap(apperrors.CodeDatabase, err, "failed to save allocation")
			}
		}

		if err := tx.Preload("Masters.Master").First(&order, order.ID).Error; err != nil {
			return apperrors.Wrap(apperrors.CodeDatabase, err, "failed to reload order")
		}

		change = &StatusChange{Order: &order, From: from, To: to, Allocation: allocation}
		return nil
	})
	if err != nil && apperrors.As(err) == nil {
		err = apperrors.Wrap(apperrors.CodeDatabase, err, "failed to commit status change")
	}

	if to == models.StatusCompleted {
		s.recordOutcome(ctx, change, err)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info(s.log.WithFields(ctx, map[string]any{"from": change.From, "to": change.To, "actor_id": actorID}), "order status changed")
	return change, nil
}

// allocate loads everything the allocator needs inside tx and builds the rows to persist
func (s *OrderStatusService) allocate(ctx context.Context, tx *gorm.DB, order *models.Order, actorID uint, now time.Time) (*models.OrderAllocation, error) {
	if err := tx.Preload("Works").
		Preload("Materials").
		Preload("Parts").
		Preload("Masters", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Masters.Master").
		First(order, order.ID).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "failed to load order contents")
	}

	shares := make([]AllocationShare, 0, len(order.Masters))
	for _, assignment := range order.Masters {
		if assignment.Master == nil {
			return nil, apperrors.Newf(apperrors.CodeInvalidAssignment, "Assigned master %d does not exist", assignment.MasterID).
				WithDetails(map[string]any{"master_id": assignment.MasterID})
		}
		if !assignment.Master.IsActive {
			return nil, apperrors.Newf(apperrors.CodeInvalidAssignment, "Assigned master %s is inactive", assignment.Master.FullName).
				WithDetails(map[string]any{"master_id": assignment.MasterID})
		}
		shares = append(shares, AllocationShare{MasterID: assignment.MasterID, WorkPercentage: assignment.WorkPercentage})
	}

	// Owner percentage is read once so the whole allocation uses a single value
	setting, err := loadSettings(tx, s.defaultOwnerPercentage)
	if err != nil {
		return nil, err
	}

	result, err := Allocate(AllocationInput{
		OrderID:         order.ID,
		LineItems:       order.LineItems(),
		Shares:          shares,
		OwnerPercentage: setting.OwnerPercentage,
		AllocatedAt:     now,
	})
	if err != nil {
		return nil, err
	}
	if result.Normalized {
		s.log.Warn(ctx, "work percentages did not sum to 100, allocation was normalized")
	}

	var allocatedBy *uint
	if actorID != 0 {
		allocatedBy = &actorID
	}
	return newAllocationRecord(result, allocatedBy), nil
}

func (s *OrderStatusService) recordOutcome(ctx context.Context, change *StatusChange, err error) {
	switch {
	case err == nil:
		s.metrics.IncOutcome(metrics.OutcomeAllocated)
		if change.Allocation.Normalized {
			s.metrics.IncOutcome(metrics.OutcomeNormalized)
		}
		s.metrics.AddBonus(change.Allocation.WorkersAmount)
	case apperrors.Is(err, apperrors.CodeDuplicateAllocation):
		s.metrics.IncOutcome(metrics.OutcomeDuplicate)
		s.log.Warn(ctx, "duplicate completion rejected")
	case apperrors.Is(err, apperrors.CodeDatabase):
		s.metrics.IncOutcome(metrics.OutcomeFailed)
		s.log.Error(ctx, "order completion rolled back", err)
	default:
		s.metrics.IncOutcome(metrics.OutcomeRejected)
	}
}

// newAllocationRecord converts an allocator result into rows ready to insert
func newAllocationRecord(result *Allocation, allocatedBy *uint) *models.OrderAllocation {
	record := &models.OrderAllocation{
		OrderID:         result.OrderID,
		TotalAmount:     result.TotalAmount,
		OwnerPercentage: result.OwnerPercentage,
		OwnerAmount:     result.OwnerAmount,
		WorkersAmount:   result.WorkersAmount,
		Normalized:      result.Normalized,
		AllocatedAt:     result.AllocatedAt,
		AllocatedByID:   allocatedBy,
		Bonuses:         make([]models.Bonus, 0, len(result.Bonuses)),
	}
	for _, line := range result.Bonuses {
		record.Bonuses = append(record.Bonuses, models.Bonus{
			MasterID:       line.MasterID,
			OrderID:        result.OrderID,
			Source:         models.BonusSourceAllocation,
			Amount:         line.Amount,
			Percentage:     line.Percentage,
			WorkPercentage: line.WorkPercentage,
			Date:           result.AllocatedAt,
		})
	}
	return record
}

func allocationExists(tx *gorm.DB, orderID uint) (bool, error) {
	var count int64
	if err := tx.Model(&models.OrderAllocation{}).Where("order_id = ?", orderID).Count(&count).Error; err != nil {
		return false, apperrors.Wrap(apperrors.CodeDatabase, err, "failed to check existing allocation")
	}
	return count > 0, nil
}
