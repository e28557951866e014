package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/vipauto/autoelectric-crm/apperrors"
	"github.com/vipauto/autoelectric-crm/config"
	"github.com/vipauto/autoelectric-crm/logger"
	"github.com/vipauto/autoelectric-crm/models"
	"github.com/vipauto/autoelectric-crm/utils"
	"gorm.io/gorm"
)

// Gin context keys set by the auth middleware
const (
	UserIDKey          = "user_id"
	ValidatedClaimsKey = "validated_claims"
	CurrentMasterKey   = "current_master"
)

// CustomClaims contains the application claims carried next to the registered ones.
type CustomClaims struct {
	Role models.Role `json:"role"`
}

// Validate rejects tokens minted with an unknown role.
func (c CustomClaims) Validate(ctx context.Context) error {
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid role claim %q", c.Role)
	}
	return nil
}

// EnsureValidToken is a middleware that will check the validity of our HS256 JWT.
func EnsureValidToken(cfg *config.Config) gin.HandlerFunc {
	secret := []byte(cfg.JWTSecret)
	keyFunc := func(ctx context.Context) (interface{}, error) {
		return secret, nil
	}

	jwtValidator, err := validator.New(
		keyFunc,
		validator.HS256,
		cfg.JWTIssuer,
		[]string{cfg.JWTAudience},
		validator.WithCustomClaims(
			func() validator.CustomClaims {
				return &CustomClaims{}
			},
		),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		logger.Get().Error(context.Background(), "failed to set up the jwt validator", err)
		panic(err)
	}

	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Get().Warn(logger.Get().WithField(r.Context(), "reason", err.Error()), "rejected access token")

		message := "Invalid or expired token"
		if errors.Is(err, jwtmiddleware.ErrJWTMissing) {
			message = "Authorization token is required"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		if encodeErr := json.NewEncoder(w).Encode(gin.H{
			"success": false,
			"error": gin.H{
				"code":    apperrors.CodeUnauthorized,
				"message": message,
			},
		}); encodeErr != nil {
			logger.Get().Error(r.Context(), "failed to write error response", encodeErr)
		}
	}

	middleware := jwtmiddleware.New(
		jwtValidator.ValidateToken,
		jwtmiddleware.WithErrorHandler(errorHandler),
	)

	return func(c *gin.Context) {
		authorized := false
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			token := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)

			c.Set(UserIDKey, token.RegisteredClaims.Subject)
			c.Set(ValidatedClaimsKey, token)
			c.Request = r
			authorized = true
		}

		middleware.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)
		if !authorized {
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID extracts the user ID from the Gin context
func GetUserID(c *gin.Context) (string, error) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", &AuthError{Code: "MISSING_USER_ID", Message: "User ID not found in context"}
	}

	userIDStr, ok := userID.(string)
	if !ok {
		return "", &AuthError{Code: "INVALID_USER_ID", Message: "User ID is not a string"}
	}

	return userIDStr, nil
}

// GetMasterID parses the token subject into a master id
func GetMasterID(c *gin.Context) (uint, error) {
	userID, err := GetUserID(c)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(userID, 10, 64)
	if err != nil || id == 0 {
		return 0, &AuthError{Code: "INVALID_USER_ID", Message: "User ID is not a master id"}
	}
	return uint(id), nil
}

// GetClaims extracts the validated JWT claims from the Gin context
func GetClaims(c *gin.Context) (*validator.ValidatedClaims, error) {
	claims, exists := c.Get(ValidatedClaimsKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_CLAIMS", Message: "Claims not found in context"}
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, &AuthError{Code: "INVALID_CLAIMS", Message: "Claims are not in the expected format"}
	}

	return validatedClaims, nil
}

// LoadCurrentMaster resolves the token subject to an active master and stores it in the context
func LoadCurrentMaster() gin.HandlerFunc {
	return func(c *gin.Context) {
		masterID, err := GetMasterID(c)
		if err != nil {
			utils.RespondError(c, apperrors.Wrap(apperrors.CodeUnauthorized, err, "Invalid token subject"))
			return
		}

		var master models.Master
		if err := config.GetDB().WithContext(c.Request.Context()).First(&master, masterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.RespondError(c, apperrors.New(apperrors.CodeUnauthorized, "Account no longer exists"))
				return
			}
			utils.RespondError(c, apperrors.Wrap(apperrors.CodeDatabase, err, "Failed to load account"))
			return
		}
		if !master.IsActive {
			utils.RespondError(c, apperrors.New(apperrors.CodeUnauthorized, "Account is deactivated"))
			return
		}

		c.Set(CurrentMasterKey, &master)
		c.Request = c.Request.WithContext(logger.Get().WithMasterID(c.Request.Context(), master.ID))
		c.Next()
	}
}

// GetCurrentMaster returns the master loaded by LoadCurrentMaster
func GetCurrentMaster(c *gin.Context) (*models.Master, error) {
	value, exists := c.Get(CurrentMasterKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_MASTER", Message: "Current master not found in context"}
	}
	master, ok := value.(*models.Master)
	if !ok || master == nil {
		return nil, &AuthError{Code: "INVALID_MASTER", Message: "Current master is not in the expected format"}
	}
	return master, nil
}

// RequireRole is a middleware that lets only masters with one of the given roles through
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		master, err := GetCurrentMaster(c)
		if err != nil {
			utils.RespondError(c, apperrors.Wrap(apperrors.CodeUnauthorized, err, "Authentication required"))
			return
		}

		if !slices.Contains(roles, master.Role) {
			utils.RespondError(c, apperrors.New(apperrors.CodeForbidden, "Insufficient permissions to access this resource").
				WithDetails(gin.H{"required_roles": roles}))
			return
		}

		c.Next()
	}
}

// RequireManager lets directors and admins through
func RequireManager() gin.HandlerFunc {
	return RequireRole(models.RoleDirector, models.RoleAdmin)
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
