package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vipauto/autoelectric-crm/apperrors"
	"github.com/vipauto/autoelectric-crm/models"
	"github.com/vipauto/autoelectric-crm/tests/testutil"
	"gorm.io/gorm"
)

func newStatusService(db *gorm.DB) *OrderStatusService {
	svc := NewOrderStatusService(db, dec("50"))
	svc.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(model).Count(&count).Error)
	return count
}

func reloadOrder(t *testing.T, db *gorm.DB, id uint) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, db.First(&order, id).Error)
	return order
}

func TestChangeStatusCompletionAllocatesBonuses(t *testing.T) {
	db := testutil.NewTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	first := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	second := testutil.CreateMaster(t, db, "Борис", models.RoleMaster)
	order := testutil.CreateOrder(t, db, director, "10000",
		testutil.Assignment{Master: first, WorkPercentage: "50"},
		testutil.Assignment{Master: second, WorkPercentage: "50"},
	)

	change, err := newStatusService(db).ChangeStatus(context.Background(), order.ID, models.StatusCompleted, director.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, change.From)
	assert.Equal(t, models.StatusCompleted, change.To)
	require.NotNil(t, change.Allocation)
	assertDecimal(t, "10000", change.Allocation.TotalAmount)
	assertDecimal(t, "5000", change.Allocation.OwnerAmount)
	assertDecimal(t, "5000", change.Allocation.WorkersAmount)
	assert.False(t, change.Allocation.Normalized)
	require.NotNil(t, change.Allocation.AllocatedByID)
	assert.Equal(t, director.ID, *change.Allocation.AllocatedByID)

	var bonuses []models.Bonus
	require.NoError(t, db.Order("master_id ASC").Find(&bonuses).Error)
	require.Len(t, bonuses, 2)
	for _, bonus := range bonuses {
		assertDecimal(t, "2500", bonus.Amount)
		assertDecimal(t, "50", bonus.Percentage)
		assertDecimal(t, "50", bonus.WorkPercentage)
		assert.Equal(t, models.BonusSourceAllocation, bonus.Source)
		assert.Equal(t, order.ID, bonus.OrderID)
		require.NotNil(t, bonus.AllocationID)
		assert.Equal(t, change.Allocation.ID, *bonus.AllocationID)
	}
	assert.Equal(t, first.ID, bonuses[0].MasterID)
	assert.Equal(t, second.ID, bonuses[1].MasterID)

	stored := reloadOrder(t, db, order.ID)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	assertDecimal(t, "10000", stored.TotalAmount)
}

func TestChangeStatusSingleMasterTakesWholePool(t *testing.T) {
	db := testutil.NewTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	master := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	testutil.SetOwnerPercentage(t, db, "40")
	order := testutil.CreateOrder(t, db, director, "1234.56", testutil.Assignment{Master: master, WorkPercentage: "100"})

	change, err := newStatusService(db).ChangeStatus(context.Background(), order.ID, models.StatusCompleted, director.ID)
	require.NoError(t, err)

	// 1234.56 * 60 / 100 = 740.736, rounded half up
	assertDecimal(t, "740.74", change.Allocation.WorkersAmount)
	assertDecimal(t, "493.82", change.Allocation.OwnerAmount)
	require.Len(t, change.Allocation.Bonuses, 1)
	assertDecimal(t, "740.74", change.Allocation.Bonuses[0].Amount)
	assertDecimal(t, "60", change.Allocation.Bonuses[0].Percentage)
}

func TestChangeStatusRejectsDisallowedTransition(t *testing.T) {
	db := testutil.NewTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	master := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	order := testutil.CreateOrder(t, db, director, "1000", testutil.Assignment{Master: master, WorkPercentage: "100"})
	svc := newStatusService(db)

	_, err := svc.ChangeStatus(context.Background(), order.ID, models.StatusCancelled, director.ID)
	require.NoError(t, err)

	_, err = svc.ChangeStatus(context.Background(), order.ID, models.StatusCompleted, director.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeStateConflict, apperrors.CodeOf(err))

	details, ok := apperrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, models.StatusCancelled, details["from"])
	assert.Equal(t, models.StatusCompleted, details["to"])
	assert.Equal(t, []models.OrderStatus{models.StatusPending}, details["allowed"])

	assert.Equal(t, models.StatusCancelled, reloadOrder(t, db, order.ID).Status)
	assert.Zero(t, countRows(t, db, &models.OrderAllocation{}))
}

func TestChangeStatusStateMachine(t *testing.T) {
	tests := []struct {
		name    string
		path    []models.OrderStatus
		to      models.OrderStatus
		allowed bool
	}{
		{name: "pending to in_progress", to: models.StatusInProgress, allowed: true},
		{name: "pending to cancelled", to: models.StatusCancelled, allowed: true},
		{name: "pending to pending", to: models.StatusPending, allowed: false},
		{name: "in_progress to pending", path: []models.OrderStatus{models.StatusInProgress}, to: models.StatusPending, allowed: true},
		{name: "in_progress to completed", path: []models.OrderStatus{models.StatusInProgress}, to: models.StatusCompleted, allowed: true},
		{name: "completed to in_progress", path: []models.OrderStatus{models.StatusCompleted}, to: models.StatusInProgress, allowed: true},
		{name: "completed to pending", path: []models.OrderStatus{models.StatusCompleted}, to: models.StatusPending, allowed: false},
		{name: "completed to cancelled", path: []models.OrderStatus{models.StatusCompleted}, to: models.StatusCancelled, allowed: false},
		{name: "cancelled to pending", path: []models.OrderStatus{models.StatusCancelled}, to: models.StatusPending, allowed: true},
		{name: "cancelled to in_progress", path: []models.OrderStatus{models.StatusCancelled}, to: models.StatusInProgress, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.NewTestDB(t)
			director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
			master := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
			order := testutil.CreateOrder(t, db, director, "1000", testutil.Assignment{Master: master, WorkPercentage: "100"})
			svc := newStatusService(db)

			for _, step := range tt.path {
				_, err := svc.ChangeStatus(context.Background(), order.ID, step, director.ID)
				require.NoError(t, err)
			}

			_, err := svc.ChangeStatus(context.Background(), order.ID, tt.to, director.ID)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, reloadOrder(t, db, order.ID).Status)
			} else {
				require.Error(t, err)
				assert.Equal(t, apperrors.CodeStateConflict, apperrors.CodeOf(err))
			}
		})
	}
}

func TestChangeStatusReopenKeepsBonusesAndRejectsSecondCompletion(t *testing.T) {
	db := testutil.NewTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	master := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	order := testutil.CreateOrder(t, db, director, "3000", testutil.Assignment{Master: master, WorkPercentage: "100"})
	svc := newStatusService(db)
	ctx := context.Background()

	_, err := svc.ChangeStatus(ctx, order.ID, models.StatusCompleted, director.ID)
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, order.ID, models.StatusInProgress, director.ID)
	require.NoError(t, err)
	reopened := reloadOrder(t, db, order.ID)
	assert.Equal(t, models.StatusInProgress, reopened.Status)
	assert.Nil(t, reopened.CompletedAt)
	assert.Equal(t, int64(1), countRows(t, db, &models.Bonus{}))

	_, err = svc.ChangeStatus(ctx, order.ID, models.StatusCompleted, director.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDuplicateAllocation, apperrors.CodeOf(err))

	assert.Equal(t, models.StatusInProgress, reloadOrder(t, db, order.ID).Status)
	assert.Equal(t, int64(1), countRows(t, db, &models.OrderAllocation{}))
	assert.Equal(t, int64(1), countRows(t, db, &models.Bonus{}))
}

func TestChangeStatusCompletedToCompletedIsDuplicate(t *testing.T) {
	db := testutil.NewTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	master := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	order := testutil.CreateOrder(t, db, director, "3000", testutil.Assignment{Master: master, WorkPercentage: "100"})
	svc := newStatusService(db)

	_, err := svc.ChangeStatus(context.Background(), order.ID, models.StatusCompleted, director.ID)
	require.NoError(t, err)

	_, err = svc.ChangeStatus(context.Background(), order.ID, models.StatusCompleted, director.ID)
	assert.Equal(t, apperrors.CodeDuplicateAllocation, apperrors.CodeOf(err))
	assert.Equal(t, int64(1), countRows(t, db, &models.Bonus{}))
}

func TestChangeStatusInactiveMasterRollsBack(t *testing.T) {
	db := testutil.NewTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	active := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	inactive := testutil.CreateMaster(t, db, "Борис", models.RoleMaster)
	order := testutil.CreateOrder(t, db, director, "10000",
		testutil.Assignment{Master: active, WorkPercentage: "60"},
		testutil.Assignment{Master: inactive, WorkPercentage: "40"},
	)
	testutil.Deactivate(t, db, inactive)

	_, err := newStatusService(db).ChangeStatus(context.Background(), order.ID, models.StatusCompleted, director.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidAssignment, apperrors.CodeOf(err))

	stored := reloadOrder(t, db, order.ID)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Nil(t, stored.CompletedAt)
	assert.Zero(t, countRows(t, db, &models.OrderAllocation{}))
	assert.Zero(t, countRows(t, db, &models.Bonus{}))
}

func TestChangeStatusSettingsAreNotRetroactive(t *testing.T) {
	db := testutil.NewTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	master := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	first := testutil.CreateOrder(t, db, director, "10000", testutil.Assignment{Master: master, WorkPercentage: "100"})
	second := testutil.CreateOrder(t, db, director, "10000", testutil.Assignment{Master: master, WorkPercentage: "100"})
	svc := newStatusService(db)
	ctx := context.Background()

	_, err := svc.ChangeStatus(ctx, first.ID, models.StatusCompleted, director.ID)
	require.NoError(t, err)

	_, err = NewSettingsService(db, dec("50")).Update(ctx, SettingsUpdate{OwnerPercentage: decPtr("30")})
	require.NoError(t, err)

	change, err := svc.ChangeStatus(ctx, second.ID, models.StatusCompleted, director.ID)
	require.NoError(t, err)
	assertDecimal(t, "7000", change.Allocation.WorkersAmount)

	var bonuses []models.Bonus
	require.NoError(t, db.Order("order_id ASC").Find(&bonuses).Error)
	require.Len(t, bonuses, 2)
	assertDecimal(t, "5000", bonuses[0].Amount)
	assertDecimal(t, "50", bonuses[0].Percentage)
	assertDecimal(t, "7000", bonuses[1].Amount)
	assertDecimal(t, "70", bonuses[1].Percentage)

	var allocation models.OrderAllocation
	require.NoError(t, db.Where("order_id = ?", first.ID).First(&allocation).Error)
	assertDecimal(t, "50", allocation.OwnerPercentage)
	assertDecimal(t, "5000", allocation.OwnerAmount)
}

func TestChangeStatusNormalizesLegacyPercentages(t *testing.T) {
	db := testutil.NewTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	first := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	second := testutil.CreateMaster(t, db, "Борис", models.RoleMaster)
	order := testutil.CreateOrder(t, db, director, "10000",
		testutil.Assignment{Master: first, WorkPercentage: "30"},
		testutil.Assignment{Master: second, WorkPercentage: "30"},
	)

	change, err := newStatusService(db).ChangeStatus(context.Background(), order.ID, models.StatusCompleted, director.ID)
	require.NoError(t, err)
	assert.True(t, change.Allocation.Normalized)
	require.Len(t, change.Allocation.Bonuses, 2)
	assertDecimal(t, "2500", change.Allocation.Bonuses[0].Amount)
	assertDecimal(t, "2500", change.Allocation.Bonuses[1].Amount)
	assertDecimal(t, "50", change.Allocation.Bonuses[0].WorkPercentage)
}

func TestChangeStatusWithoutMastersKeepsEverythingForOwner(t *testing.T) {
	db := testutil.NewTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	order := testutil.CreateOrder(t, db, director, "800")

	change, err := newStatusService(db).ChangeStatus(context.Background(), order.ID, models.StatusCompleted, director.ID)
	require.NoError(t, err)
	assertDecimal(t, "800", change.Allocation.OwnerAmount)
	assertDecimal(t, "0", change.Allocation.WorkersAmount)
	assert.Empty(t, change.Allocation.Bonuses)
	assert.Zero(t, countRows(t, db, &models.Bonus{}))
}

func TestChangeStatusErrors(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := newStatusService(db)

	_, err := svc.ChangeStatus(context.Background(), 999, models.StatusCompleted, 0)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	_, err = svc.ChangeStatus(context.Background(), 1, models.OrderStatus("archived"), 0)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestChangeStatusRejectsExistingAllocationRow(t *testing.T) {
	db := testutil.NewTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	order := testutil.CreateOrder(t, db, director, "100")
	require.NoError(t, db.Create(&models.OrderAllocation{
		OrderID:         order.ID,
		TotalAmount:     dec("100"),
		OwnerPercentage: dec("50"),
		OwnerAmount:     dec("100"),
		WorkersAmount:   dec("0"),
		AllocatedAt:     time.Now(),
	}).Error)

	_, err := newStatusService(db).ChangeStatus(context.Background(), order.ID, models.StatusCompleted, director.ID)
	assert.Equal(t, apperrors.CodeDuplicateAllocation, apperrors.CodeOf(err))
	assert.Equal(t, models.StatusPending, reloadOrder(t, db, order.ID).Status)
}

func TestChangeStatusNormalizedSharesAreStoredSummingToHundred(t *testing.T) {
	db := testutil.NewTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	order := testutil.CreateOrder(t, db, director, "9000",
		testutil.Assignment{Master: testutil.CreateMaster(t, db, "Алексей", models.RoleMaster), WorkPercentage: "30"},
		testutil.Assignment{Master: testutil.CreateMaster(t, db, "Борис", models.RoleMaster), WorkPercentage: "30"},
		testutil.Assignment{Master: testutil.CreateMaster(t, db, "Виктор", models.RoleMaster), WorkPercentage: "30"},
	)

	_, err := newStatusService(db).ChangeStatus(context.Background(), order.ID, models.StatusCompleted, director.ID)
	require.NoError(t, err)

	var bonuses []models.Bonus
	require.NoError(t, db.Order("id ASC").Find(&bonuses).Error)
	require.Len(t, bonuses, 3)
	sum := dec("0")
	for _, bonus := range bonuses {
		sum = sum.Add(bonus.WorkPercentage)
	}
	assertDecimal(t, "100", sum)
	assertDecimal(t, "33.34", bonuses[0].WorkPercentage)
}

func TestChangeStatusRollsBackWhenBonusInsertFails(t *testing.T) {
	db := testutil.NewTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	master := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	order := testutil.CreateOrder(t, db, director, "10000", testutil.Assignment{Master: master, WorkPercentage: "100"})

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_bonus_insert", func(tx *gorm.DB) {
		if tx.Statement.Table == "bonuses" {
			tx.AddError(errors.New("disk full"))
		}
	}))

	change, err := newStatusService(db).ChangeStatus(context.Background(), order.ID, models.StatusCompleted, director.ID)
	require.Error(t, err)
	assert.Nil(t, change)
	assert.Equal(t, apperrors.CodeDatabase, apperrors.CodeOf(err))

	stored := reloadOrder(t, db, order.ID)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Nil(t, stored.CompletedAt)
	assert.Zero(t, countRows(t, db, &models.OrderAllocation{}))
	assert.Zero(t, countRows(t, db, &models.Bonus{}))
}

func TestChangeStatusLosesRaceToConcurrentTransition(t *testing.T) {
	db := testutil.NewTestDB(t)
	director := testutil.CreateMaster(t, db, "Директор", models.RoleDirector)
	master := testutil.CreateMaster(t, db, "Алексей", models.RoleMaster)
	order := testutil.CreateOrder(t, db, director, "10000", testutil.Assignment{Master: master, WorkPercentage: "100"})

	// another request moves the order between the read and the compare-and-set
	fired := false
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:concurrent_status_change", func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "orders" {
			return
		}
		fired = true
		if _, err := tx.Statement.ConnPool.ExecContext(tx.Statement.Context,
			"UPDATE orders SET status = ? WHERE id = ?", string(models.StatusInProgress), order.ID); err != nil {
			tx.AddError(err)
		}
	}))

	change, err := newStatusService(db).ChangeStatus(context.Background(), order.ID, models.StatusCompleted, director.ID)
	require.Error(t, err)
	assert.True(t, fired)
	assert.Nil(t, change)
	assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))

	assert.Equal(t, models.StatusPending, reloadOrder(t, db, order.ID).Status)
	assert.Zero(t, countRows(t, db, &models.OrderAllocation{}))
	assert.Zero(t, countRows(t, db, &models.Bonus{}))
}
