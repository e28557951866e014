package services

import (
	"context"
	"errors"
	"strings"

	"github.com/vipauto/autoelectric-crm/apperrors"
	"github.com/vipauto/autoelectric-crm/models"
	"github.com/vipauto/autoelectric-crm/utils"
	"gorm.io/gorm"
)

// MasterUpdate is the payload of PUT /masters/:id
type MasterUpdate struct {
	FullName *string      `json:"full_name" binding:"omitempty,min=2,max=100"`
	Phone    *string      `json:"phone" binding:"omitempty,min=5,max=20"`
	Role     *models.Role `json:"role"`
	IsActive *bool        `json:"is_active"`
	Password *string      `json:"password" binding:"omitempty,min=6"`
}

// MasterFilter narrows GET /masters
type MasterFilter struct {
	Search   string
	IsActive *bool
	Role     models.Role
}

// MasterService manages workshop staff accounts
type MasterService struct {
	db *gorm.DB
}

// NewMasterService creates a master service
func NewMasterService(db *gorm.DB) *MasterService {
	return &MasterService{db: db}
}

// List returns one page of masters ordered by name
func (s *MasterService) List(ctx context.Context, filter MasterFilter, page utils.Page) ([]models.Master, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Master{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(full_name) LIKE ? OR phone LIKE ?", like, like)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to count masters")
	}

	masters := []models.Master{}
	if err := query.Order("full_name ASC").Order("id ASC").Scopes(page.Scope).Find(&masters).Error; err != nil {
		return nil, 0, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to fetch masters")
	}
	return masters, total, nil
}

// Get loads a master by id
func (s *MasterService) Get(ctx context.Context, id uint) (*models.Master, error) {
	var master models.Master
	if err := s.db.WithContext(ctx).First(&master, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "Master not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to load master")
	}
	return &master, nil
}

// Create adds a staff account with any role
func (s *MasterService) Create(ctx context.Context, input RegisterInput) (*models.Master, error) {
	return createMaster(s.db.WithContext(ctx), input)
}

// Update changes a staff account; a manager cannot deactivate or demote themselves
func (s *MasterService) Update(ctx context.Context, id uint, update MasterUpdate, actor *models.Master) (*models.Master, error) {
	master, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if update.FullName != nil {
		fields["full_name"] = strings.TrimSpace(*update.FullName)
	}
	if update.Phone != nil {
		fields["phone"] = NormalizePhone(*update.Phone)
	}
	if update.Role != nil {
		if !update.Role.IsValid() {
			return nil, apperrors.Newf(apperrors.CodeValidation, "Invalid role %q", *update.Role)
		}
		if actor != nil && actor.ID == master.ID && !update.Role.IsManager() {
			return nil, apperrors.New(apperrors.CodeForbidden, "You cannot remove your own manager role")
		}
		fields["role"] = *update.Role
	}
	if update.IsActive != nil {
		if actor != nil && actor.ID == master.ID && !*update.IsActive {
			return nil, apperrors.New(apperrors.CodeForbidden, "You cannot deactivate your own account")
		}
		fields["is_active"] = *update.IsActive
	}
	if update.Password != nil {
		hash, err := HashPassword(*update.Password)
		if err != nil {
			return nil, err
		}
		fields["password_hash"] = hash
	}
	if len(fields) == 0 {
		return master, nil
	}

	if err := s.db.WithContext(ctx).Model(master).Updates(fields).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.New(apperrors.CodeConflict, "A master with this phone already exists")
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to update master")
	}
	return s.Get(ctx, id)
}

// Delete soft-deletes a regular master; directors and admins are kept
func (s *MasterService) Delete(ctx context.Context, id uint) error {
	master, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if master.IsManager() {
		return apperrors.New(apperrors.CodeForbidden, "Directors and administrators cannot be deleted").
			WithDetails(map[string]any{"role": master.Role})
	}
	if err := s.db.WithContext(ctx).Delete(master).Error; err != nil {
		return apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to delete master")
	}
	return nil
}
