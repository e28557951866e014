package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vipauto/autoelectric-crm/apperrors"
	"github.com/vipauto/autoelectric-crm/config"
	"github.com/vipauto/autoelectric-crm/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// PasswordCost is the bcrypt cost used for new password hashes
var PasswordCost = 12

const minPasswordLength = 6

// HashPassword hashes a plain-text password with bcrypt
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", apperrors.Newf(apperrors.CodeValidation, "Password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, err, "failed to hash password")
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// TokenClaims are the claims carried by access tokens
type TokenClaims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues HS256 access tokens for masters
type TokenService struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenService creates a token service from the application configuration
func NewTokenService(cfg *config.Config) *TokenService {
	return &TokenService{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
		ttl:      cfg.JWTExpiresIn,
		now:      time.Now,
	}
}

// Issue signs a token for the master and returns it with its expiry
func (s *TokenService) Issue(master *models.Master) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := TokenClaims{
		Role: master.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatUint(uint64(master.ID), 10),
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, apperrors.Wrap(apperrors.CodeInternal, err, "failed to sign token")
	}
	return token, expiresAt, nil
}

// Parse verifies a token signed by Issue and returns its claims
func (s *TokenService) Parse(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnauthorized, err, "Invalid token")
	}
	return claims, nil
}

// RegisterInput is the payload of self-registration and master creation
type RegisterInput struct {
	FullName string      `json:"full_name" binding:"required,min=2,max=100"`
	Phone    string      `json:"phone" binding:"required,min=5,max=20"`
	Password string      `json:"password" binding:"required,min=6"`
	Role     models.Role `json:"role"`
}

// LoginInput is the payload of POST /auth/login
type LoginInput struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ProfileUpdate is the payload of PUT /auth/update-profile
type ProfileUpdate struct {
	FullName        *string `json:"full_name" binding:"omitempty,min=2,max=100"`
	Phone           *string `json:"phone" binding:"omitempty,min=5,max=20"`
	CurrentPassword string  `json:"currentPassword"`
	NewPassword     string  `json:"newPassword"`
}

// AuthSession is returned on successful register or login
type AuthSession struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Master    *models.Master `json:"master"`
}

// AuthService manages master accounts and sessions
type AuthService struct {
	db     *gorm.DB
	tokens *TokenService
}

// NewAuthService creates an auth service
func NewAuthService(db *gorm.DB, tokens *TokenService) *AuthService {
	return &AuthService{db: db, tokens: tokens}
}

// CreateMaster stores a new active master with a hashed password
func (s *AuthService) CreateMaster(ctx context.Context, input RegisterInput) (*models.Master, error) {
	return createMaster(s.db.WithContext(ctx), input)
}

func createMaster(db *gorm.DB, input RegisterInput) (*models.Master, error) {
	role := input.Role
	if role == "" {
		role = models.RoleMaster
	}
	if !role.IsValid() {
		return nil, apperrors.Newf(apperrors.CodeValidation, "Invalid role %q", role)
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	master := &models.Master{
		FullName:     strings.TrimSpace(input.FullName),
		Phone:        NormalizePhone(input.Phone),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := db.Create(master).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.New(apperrors.CodeConflict, "A master with this phone already exists")
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "failed to create master")
	}
	return master, nil
}

// Register creates a regular master account and signs it in
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthSession, error) {
	input.Role = models.RoleMaster
	master, err := s.CreateMaster(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.session(master)
}

// Login verifies phone and password of an active master
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthSession, error) {
	var master models.Master
	err := s.db.WithContext(ctx).Where("phone = ?", NormalizePhone(input.Phone)).First(&master).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeUnauthorized, "Invalid phone or password")
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "failed to load master")
	}
	if !CheckPassword(master.PasswordHash, input.Password) {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "Invalid phone or password")
	}
	if !master.IsActive {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "Account is deactivated")
	}
	return s.session(&master)
}

// UpdateProfile changes the name, phone or password of the signed-in master
func (s *AuthService) UpdateProfile(ctx context.Context, master *models.Master, update ProfileUpdate) (*models.Master, error) {
	updates := map[string]interface{}{}
	if update.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*update.FullName)
	}
	if update.Phone != nil {
		updates["phone"] = NormalizePhone(*update.Phone)
	}
	if update.NewPassword != "" {
		if !CheckPassword(master.PasswordHash, update.CurrentPassword) {
			return nil, apperrors.New(apperrors.CodeUnauthorized, "Current password is incorrect")
		}
		hash, err := HashPassword(update.NewPassword)
		if err != nil {
			return nil, err
		}
		updates["password_hash"] = hash
	}
	if len(updates) == 0 {
		return master, nil
	}

	db := s.db.WithContext(ctx)
	if err := db.Model(master).Updates(updates).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.New(apperrors.CodeConflict, "A master with this phone already exists")
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "failed to update profile")
	}
	if err := db.First(master, master.ID).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabase, err, "failed to reload profile")
	}
	return master, nil
}

func (s *AuthService) session(master *models.Master) (*AuthSession, error) {
	token, expiresAt, err := s.tokens.Issue(master)
	if err != nil {
		return nil, err
	}
	return &AuthSession{Token: token, ExpiresAt: expiresAt, Master: master}, nil
}

// NormalizePhone strips formatting so "+7 (900) 123-45-67" and "+79001234567" match
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if r >= '0' && r <= '9' || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
