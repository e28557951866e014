package services

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vipauto/autoelectric-crm/apperrors"
	"github.com/vipauto/autoelectric-crm/models"
	"github.com/vipauto/autoelectric-crm/utils"
	"gorm.io/gorm"
)

// AssignmentInput assigns a master to an order; an omitted percentage means an equal split
type AssignmentInput struct {
	MasterID       uint             `json:"master_id" binding:"required"`
	WorkPercentage *decimal.Decimal `json:"work_percentage"`
}

// WorkInput is a labor line of an order request
type WorkInput struct {
	Name  string          `json:"name" binding:"required,max=200"`
	Price decimal.Decimal `json:"price"`
}

// MaterialInput is a material line of an order request
type MaterialInput struct {
	Name     string          `json:"name" binding:"required,max=200"`
	Price    decimal.Decimal `json:"price"`
	Quantity *int            `json:"quantity"`
}

// PartInput is a spare part line of an order request
type PartInput struct {
	Name     string          `json:"name" binding:"required,max=200"`
	Price    decimal.Decimal `json:"price"`
	Quantity *int            `json:"quantity"`
	SellerID *uint           `json:"seller_id"`
}

// OrderInput is the payload of POST /orders
type OrderInput struct {
	ClientName         string            `json:"client_name" binding:"required,min=2,max=100"`
	ClientPhone        string            `json:"client_phone" binding:"required,max=20"`
	CarModel           string            `json:"car_model" binding:"required,max=100"`
	CarNumber          string            `json:"car_number" binding:"required,max=20"`
	CarYear            *int              `json:"car_year" binding:"omitempty,min=1900,max=2100"`
	ProblemDescription *string           `json:"problem_description"`
	Masters            []AssignmentInput `json:"masters" binding:"required,min=1,dive"`
	Works              []WorkInput       `json:"works" binding:"dive"`
	Materials          []MaterialInput   `json:"materials" binding:"dive"`
	Parts              []PartInput       `json:"parts" binding:"dive"`
}

// OrderUpdate is the payload of PUT /orders/:id; collections are replaced wholesale when present
type OrderUpdate struct {
	ClientName         *string            `json:"client_name" binding:"omitempty,min=2,max=100"`
	ClientPhone        *string            `json:"client_phone" binding:"omitempty,max=20"`
	CarModel           *string            `json:"car_model" binding:"omitempty,max=100"`
	CarNumber          *string            `json:"car_number" binding:"omitempty,max=20"`
	CarYear            *int               `json:"car_year" binding:"omitempty,min=1900,max=2100"`
	ProblemDescription *string            `json:"problem_description"`
	Masters            *[]AssignmentInput `json:"masters"`
	Works              *[]WorkInput       `json:"works"`
	Materials          *[]MaterialInput   `json:"materials"`
	Parts              *[]PartInput       `json:"parts"`
}

// OrderFilter narrows GET /orders
type OrderFilter struct {
	Status models.OrderStatus
	Range  utils.DateRange
	Search string
}

// Distribution is the revenue split of an order, stored or previewed
type Distribution struct {
	OrderID    uint               `json:"order_id"`
	Status     models.OrderStatus `json:"status"`
	Preview    bool               `json:"preview"`
	Allocation *Allocation        `json:"allocation"`
}

// OrderService implements order CRUD with assignment and line item validation
type OrderService struct {
	db                     *gorm.DB
	defaultOwnerPercentage decimal.Decimal
}

// NewOrderService creates an order service
func NewOrderService(db *gorm.DB, defaultOwnerPercentage decimal.Decimal) *OrderService {
	return &OrderService{db: db, defaultOwnerPercentage: defaultOwnerPercentage}
}

// EqualSplit divides 100% between n masters to the hundredth; the first master gets the remainder
func EqualSplit(n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	base := hundred.Div(decimal.NewFromInt(int64(n))).RoundDown(2)
	shares := make([]decimal.Decimal, n)
	for i := range shares {
		shares[i] = base
	}
	shares[0] = hundred.Sub(base.Mul(decimal.NewFromInt(int64(n - 1))))
	return shares
}

// ResolveAssignments validates assignment input and fills in default percentages
func ResolveAssignments(inputs []AssignmentInput) ([]models.OrderMaster, error) {
	if len(inputs) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidAssignment, "At least one master must be assigned")
	}

	explicit := 0
	seen := make(map[uint]bool, len(inputs))
	for _, input := range inputs {
		if input.MasterID == 0 {
			return nil, apperrors.New(apperrors.CodeInvalidAssignment, "master_id is required for every assignment")
		}
		if seen[input.MasterID] {
			return nil, apperrors.Newf(apperrors.CodeInvalidAssignment, "Master %d is assigned more than once", input.MasterID)
		}
		seen[input.MasterID] = true
		if input.WorkPercentage != nil {
			explicit++
		}
	}

	assignments := make([]models.OrderMaster, len(inputs))
	if explicit == 0 {
		for i, share := range EqualSplit(len(inputs)) {
			assignments[i] = models.OrderMaster{MasterID: inputs[i].MasterID, WorkPercentage: share}
		}
		return assignments, nil
	}
	if explicit != len(inputs) {
		return nil, apperrors.New(apperrors.CodeInconsistentPercentages, "work_percentage must be given for every master or for none")
	}

	sum := decimal.Zero
	for i, input := range inputs {
		share := *input.WorkPercentage
		if share.IsNegative() || share.GreaterThan(hundred) {
			return nil, apperrors.Newf(apperrors.CodeInconsistentPercentages, "work_percentage of master %d must be between 0 and 100", input.MasterID)
		}
		if !share.Equal(share.Round(2)) {
			return nil, apperrors.New(apperrors.CodeInconsistentPercentages, "work_percentage supports at most two decimal places")
		}
		sum = sum.Add(share)
		assignments[i] = models.OrderMaster{MasterID: input.MasterID, WorkPercentage: share}
	}
	if !sum.Equal(hundred) {
		return nil, apperrors.Newf(apperrors.CodeInconsistentPercentages, "work percentages must sum to 100, got %s", sum.String()).
			WithDetails(map[string]any{"sum": sum.String()})
	}
	return assignments, nil
}

// Create stores a new order together with its assignments and line items
func (s *OrderService) Create(ctx context.Context, input OrderInput, creatorID uint) (*models.Order, error) {
	assignments, err := ResolveAssignments(input.Masters)
	if err != nil {
		return nil, err
	}
	works, materials, parts, err := buildLineItems(input.Works, input.Materials, input.Parts)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ClientName:         strings.TrimSpace(input.ClientName),
		ClientPhone:        NormalizePhone(input.ClientPhone),
		CarModel:           strings.TrimSpace(input.CarModel),
		CarNumber:          strings.ToUpper(strings.TrimSpace(input.CarNumber)),
		CarYear:            input.CarYear,
		ProblemDescription: input.ProblemDescription,
		Status:             models.StatusPending,
		CreatedByID:        creatorID,
		Masters:            assignments,
		Works:              works,
		Materials:          materials,
		Parts:              parts,
	}
	order.TotalAmount = models.SumLineItems(order.LineItems())

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureActiveMasters(tx, assignments); err != nil {
			return err
		}
		if err := ensureSellersExist(tx, parts); err != nil {
			return err
		}
		if err := tx.Create(order).Error; err != nil {
			return apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to create order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, order.ID, nil)
}

// Update changes an open order; completed orders are frozen
func (s *OrderService) Update(ctx context.Context, orderID uint, update OrderUpdate, actor *models.Master) (*models.Order, error) {
	var assignments []models.OrderMaster
	if update.Masters != nil {
		resolved, err := ResolveAssignments(*update.Masters)
		if err != nil {
			return nil, err
		}
		assignments = resolved
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := authorizeOrder(order, actor); err != nil {
			return err
		}
		if order.Status.IsTerminalForEdits() {
			return apperrors.New(apperrors.CodeStateConflict, "Completed orders cannot be edited; reopen the order first").
				WithDetails(map[string]any{"status": order.Status})
		}

		fields := map[string]interface{}{}
		if update.ClientName != nil {
			fields["client_name"] = strings.TrimSpace(*update.ClientName)
		}
		if update.ClientPhone != nil {
			fields["client_phone"] = NormalizePhone(*update.ClientPhone)
		}
		if update.CarModel != nil {
			fields["car_model"] = strings.TrimSpace(*update.CarModel)
		}
		if update.CarNumber != nil {
			fields["car_number"] = strings.ToUpper(strings.TrimSpace(*update.CarNumber))
		}
		if update.CarYear != nil {
			fields["car_year"] = *update.CarYear
		}
		if update.ProblemDescription != nil {
			fields["problem_description"] = *update.ProblemDescription
		}

		if update.Masters != nil {
			if err := ensureActiveMasters(tx, assignments); err != nil {
				return err
			}
			if err := replaceChildren(tx, order.ID, &models.OrderMaster{}, assignments, func(i int) { assignments[i].OrderID = order.ID }); err != nil {
				return err
			}
		}
		if update.Works != nil || update.Materials != nil || update.Parts != nil {
			if err := s.replaceLineItems(tx, order, update); err != nil {
				return err
			}
			if err := tx.Preload("Works").Preload("Materials").Preload("Parts").First(order, order.ID).Error; err != nil {
				return apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to reload order items")
			}
			fields["total_amount"] = models.SumLineItems(order.LineItems())
		}

		if len(fields) == 0 {
			return nil
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(fields).Error; err != nil {
			return apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to update order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, orderID, nil)
}

func (s *OrderService) replaceLineItems(tx *gorm.DB, order *models.Order, update OrderUpdate) error {
	var workInputs []WorkInput
	var materialInputs []MaterialInput
	var partInputs []PartInput
	if update.Works != nil {
		workInputs = *update.Works
	}
	if update.Materials != nil {
		materialInputs = *update.Materials
	}
	if update.Parts != nil {
		partInputs = *update.Parts
	}
	works, materials, parts, err := buildLineItems(workInputs, materialInputs, partInputs)
	if err != nil {
		return err
	}

	if update.Works != nil {
		if err := replaceChildren(tx, order.ID, &models.OrderWork{}, works, func(i int) { works[i].OrderID = order.ID }); err != nil {
			return err
		}
	}
	if update.Materials != nil {
		if err := replaceChildren(tx, order.ID, &models.OrderMaterial{}, materials, func(i int) { materials[i].OrderID = order.ID }); err != nil {
			return err
		}
	}
	if update.Parts != nil {
		if err := ensureSellersExist(tx, parts); err != nil {
			return err
		}
		if err := replaceChildren(tx, order.ID, &models.OrderPart{}, parts, func(i int) { parts[i].OrderID = order.ID }); err != nil {
			return err
		}
	}
	return nil
}

// Delete soft-deletes an order that has never been allocated
func (s *OrderService) Delete(ctx context.Context, orderID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		exists, err := allocationExists(tx, order.ID)
		if err != nil {
			return err
		}
		if exists {
			return apperrors.New(apperrors.CodeStateConflict, "Orders with allocated bonuses cannot be deleted")
		}
		if err := tx.Delete(order).Error; err != nil {
			return apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to delete order")
		}
		return nil
	})
}

// Get loads an order with everything the detail view shows; a non-nil actor must be allowed to see it
func (s *OrderService) Get(ctx context.Context, orderID uint, actor *models.Master) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("CreatedBy").
		Preload("Works", orderByID).
		Preload("Materials", orderByID).
		Preload("Parts", orderByID).
		Preload("Parts.Seller").
		Preload("Masters", orderByID).
		Preload("Masters.Master").
		Preload("Allocation").
		First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "Order not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to load order")
	}
	if actor != nil {
		if err := authorizeOrder(&order, actor); err != nil {
			return nil, err
		}
	}
	return &order, nil
}

// List returns one page of orders visible to the actor
func (s *OrderService) List(ctx context.Context, filter OrderFilter, page utils.Page, actor *models.Master) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{})
	if actor != nil && !actor.IsManager() {
		query = query.Where("id IN (?)", s.db.Model(&models.OrderMaster{}).Select("order_id").Where("master_id = ?", actor.ID))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Range.From != nil {
		query = query.Where("created_at >= ?", *filter.Range.From)
	}
	if filter.Range.To != nil {
		query = query.Where("created_at < ?", *filter.Range.To)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(client_name) LIKE ? OR LOWER(client_phone) LIKE ? OR LOWER(car_model) LIKE ? OR LOWER(car_number) LIKE ?",
			like, like, like, like,
		)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to count orders")
	}

	orders := []models.Order{}
	if err := query.
		Preload("Masters", orderByID).
		Preload("Masters.Master").
		Order("created_at DESC").
		Order("id DESC").
		Scopes(page.Scope).
		Find(&orders).Error; err != nil {
		return nil, 0, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to fetch orders")
	}
	return orders, total, nil
}

// Distribution returns the stored split of an allocated order or a preview for an open one
func (s *OrderService) Distribution(ctx context.Context, orderID uint, actor *models.Master) (*Distribution, error) {
	order, err := s.Get(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}

	if order.Allocation != nil {
		var bonuses []models.Bonus
		if err := s.db.WithContext(ctx).
			Where("allocation_id = ?", order.Allocation.ID).
			Order("id ASC").
			Find(&bonuses).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to load bonuses")
		}
		return &Distribution{
			OrderID:    order.ID,
			Status:     order.Status,
			Allocation: allocationFromRecord(order.Allocation, bonuses),
		}, nil
	}

	setting, err := loadSettings(s.db.WithContext(ctx), s.defaultOwnerPercentage)
	if err != nil {
		return nil, err
	}
	shares := make([]AllocationShare, 0, len(order.Masters))
	for _, assignment := range order.Masters {
		shares = append(shares, AllocationShare{MasterID: assignment.MasterID, WorkPercentage: assignment.WorkPercentage})
	}
	preview, err := Allocate(AllocationInput{
		OrderID:         order.ID,
		LineItems:       order.LineItems(),
		Shares:          shares,
		OwnerPercentage: setting.OwnerPercentage,
	})
	if err != nil {
		return nil, err
	}
	return &Distribution{OrderID: order.ID, Status: order.Status, Preview: true, Allocation: preview}, nil
}

// SetImage records the storage key of the order's intake photo and returns the previous key
func (s *OrderService) SetImage(ctx context.Context, orderID uint, key string, actor *models.Master) (string, error) {
	var previous string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := authorizeOrder(order, actor); err != nil {
			return err
		}
		if order.ImageS3Key != nil {
			previous = *order.ImageS3Key
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Update("image_s3_key", key).Error; err != nil {
			return apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to save order image")
		}
		return nil
	})
	return previous, err
}

func allocationFromRecord(record *models.OrderAllocation, bonuses []models.Bonus) *Allocation {
	allocation := &Allocation{
		OrderID:         record.OrderID,
		TotalAmount:     record.TotalAmount,
		OwnerPercentage: record.OwnerPercentage,
		OwnerAmount:     record.OwnerAmount,
		WorkersAmount:   record.WorkersAmount,
		Normalized:      record.Normalized,
		Bonuses:         make([]BonusLine, 0, len(bonuses)),
		AllocatedAt:     record.AllocatedAt,
	}
	for _, bonus := range bonuses {
		allocation.Bonuses = append(allocation.Bonuses, BonusLine{
			MasterID:       bonus.MasterID,
			WorkPercentage: bonus.WorkPercentage,
			MasterShare:    record.TotalAmount.Mul(bonus.WorkPercentage).Div(hundred).Round(2),
			Amount:         bonus.Amount,
			Percentage:     bonus.Percentage,
		})
	}
	return allocation
}

// authorizeOrder lets managers see every order and masters only the orders they are assigned to
func authorizeOrder(order *models.Order, actor *models.Master) error {
	if actor == nil || actor.IsManager() {
		return nil
	}
	if len(order.Masters) == 0 || !order.IsAssigned(actor.ID) {
		return apperrors.New(apperrors.CodeForbidden, "You are not assigned to this order")
	}
	return nil
}

func loadOrder(tx *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := tx.Preload("Masters").First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "Order not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to load order")
	}
	return &order, nil
}

func buildLineItems(workInputs []WorkInput, materialInputs []MaterialInput, partInputs []PartInput) ([]models.OrderWork, []models.OrderMaterial, []models.OrderPart, error) {
	works := make([]models.OrderWork, 0, len(workInputs))
	for _, input := range workInputs {
		if err := validatePrice(input.Name, input.Price); err != nil {
			return nil, nil, nil, err
		}
		works = append(works, models.OrderWork{Name: strings.TrimSpace(input.Name), Price: input.Price.Round(2)})
	}

	materials := make([]models.OrderMaterial, 0, len(materialInputs))
	for _, input := range materialInputs {
		if err := validatePrice(input.Name, input.Price); err != nil {
			return nil, nil, nil, err
		}
		quantity, err := resolveQuantity(input.Name, input.Quantity)
		if err != nil {
			return nil, nil, nil, err
		}
		materials = append(materials, models.OrderMaterial{Name: strings.TrimSpace(input.Name), Price: input.Price.Round(2), Quantity: quantity})
	}

	parts := make([]models.OrderPart, 0, len(partInputs))
	for _, input := range partInputs {
		if err := validatePrice(input.Name, input.Price); err != nil {
			return nil, nil, nil, err
		}
		quantity, err := resolveQuantity(input.Name, input.Quantity)
		if err != nil {
			return nil, nil, nil, err
		}
		parts = append(parts, models.OrderPart{Name: strings.TrimSpace(input.Name), Price: input.Price.Round(2), Quantity: quantity, SellerID: input.SellerID})
	}
	return works, materials, parts, nil
}

func validatePrice(name string, price decimal.Decimal) error {
	if price.IsNegative() {
		return apperrors.Newf(apperrors.CodeValidation, "Price of %q cannot be negative", name)
	}
	return nil
}

func resolveQuantity(name string, quantity *int) (int, error) {
	if quantity == nil {
		return 1, nil
	}
	if *quantity <= 0 {
		return 0, apperrors.Newf(apperrors.CodeValidation, "Quantity of %q must be positive", name)
	}
	return *quantity, nil
}

// ensureActiveMasters checks every assigned master exists and is active
func ensureActiveMasters(tx *gorm.DB, assignments []models.OrderMaster) error {
	ids := make([]uint, 0, len(assignments))
	for _, assignment := range assignments {
		ids = append(ids, assignment.MasterID)
	}

	var masters []models.Master
	if err := tx.Where("id IN ?", ids).Find(&masters).Error; err != nil {
		return apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to load masters")
	}
	byID := make(map[uint]models.Master, len(masters))
	for _, master := range masters {
		byID[master.ID] = master
	}
	for _, id := range ids {
		master, ok := byID[id]
		if !ok {
			return apperrors.Newf(apperrors.CodeInvalidAssignment, "Master %d does not exist", id).
				WithDetails(map[string]any{"master_id": id})
		}
		if !master.IsActive {
			return apperrors.Newf(apperrors.CodeInvalidAssignment, "Master %s is inactive", master.FullName).
				WithDetails(map[string]any{"master_id": id})
		}
	}
	return nil
}

func ensureSellersExist(tx *gorm.DB, parts []models.OrderPart) error {
	for _, part := range parts {
		if part.SellerID == nil {
			continue
		}
		var count int64
		if err := tx.Model(&models.Master{}).Where("id = ?", *part.SellerID).Count(&count).Error; err != nil {
			return apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to load seller")
		}
		if count == 0 {
			return apperrors.Newf(apperrors.CodeValidation, "Seller %d does not exist", *part.SellerID)
		}
	}
	return nil
}

// replaceChildren deletes the order's rows of model and inserts rows in their place
func replaceChildren[T any](tx *gorm.DB, orderID uint, model interface{}, rows []T, setOrderID func(i int)) error {
	if err := tx.Where("order_id = ?", orderID).Delete(model).Error; err != nil {
		return apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to replace order items")
	}
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		setOrderID(i)
	}
	if err := tx.Create(&rows).Error; err != nil {
		return apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to replace order items")
	}
	return nil
}

func orderByID(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}
