package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		DatabaseURL:            "postgresql://localhost/crm",
		GoEnv:                  "development",
		JWTSecret:              "secret",
		JWTExpiresIn:           time.Hour,
		DefaultOwnerPercentage: decimal.NewFromInt(50),
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid configuration", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing database url", func(t *testing.T) {
		cfg := validConfig()
		cfg.DatabaseURL = ""
		assert.EqualError(t, cfg.Validate(), "DATABASE_URL is required")
	})

	t.Run("missing jwt secret outside test", func(t *testing.T) {
		cfg := validConfig()
		cfg.JWTSecret = ""
		assert.EqualError(t, cfg.Validate(), "JWT_SECRET is required")
	})

	t.Run("missing jwt secret allowed in test", func(t *testing.T) {
		cfg := validConfig()
		cfg.JWTSecret = ""
		cfg.GoEnv = "test"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("owner percentage out of range", func(t *testing.T) {
		cfg := validConfig()
		cfg.DefaultOwnerPercentage = decimal.NewFromInt(101)
		assert.Error(t, cfg.Validate())

		cfg.DefaultOwnerPercentage = decimal.NewFromInt(-1)
		assert.Error(t, cfg.Validate())
	})
}

func TestLoad(t *testing.T) {
	original := GetConfig()
	defer SetConfig(original)

	t.Setenv("DATABASE_URL", "postgresql://localhost/crm_test")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DEFAULT_OWNER_PERCENTAGE", "40")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgresql://localhost/crm_test", cfg.DatabaseURL)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "test", cfg.GoEnv)
	assert.Equal(t, 168*time.Hour, cfg.JWTExpiresIn)
	assert.True(t, decimal.NewFromInt(40).Equal(cfg.DefaultOwnerPercentage))
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.S3Enabled())
	assert.Same(t, cfg, GetConfig())
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgresql://localhost/crm_test")
	t.Setenv("JWT_EXPIRES_IN", "seven days")

	_, err := Load()
	assert.Error(t, err)
}
