package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vipauto/autoelectric-crm/config"
)

// TestJWTSecret signs every token issued by TestConfig
const TestJWTSecret = "integration-test-secret"

// RequireTestEnvironment ensures that tests are running in the test environment.
// This prevents accidental execution of tests against production or development databases.
// It will fail the test immediately if GO_ENV is not set to "test".
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	env := os.Getenv("GO_ENV")
	if env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: Tests must run with GO_ENV=test to prevent data loss. Current GO_ENV=%q. Set GO_ENV=test before running tests.", env)
	}
}

// MustSetTestEnvironment sets GO_ENV to test and fails if it cannot be set.
// Use this in TestMain or suite setup functions.
func MustSetTestEnvironment(t *testing.T) {
	t.Helper()

	if err := os.Setenv("GO_ENV", "test"); err != nil {
		t.Fatalf("Failed to set GO_ENV=test: %v", err)
	}
	RequireTestEnvironment(t)
}

// TestConfig returns a configuration for routers built in tests; it never points at a real database
func TestConfig() *config.Config {
	return &config.Config{
		GoEnv:                  "test",
		Port:                   "8080",
		JWTSecret:              TestJWTSecret,
		JWTIssuer:              "autoelectric-crm",
		JWTAudience:            "autoelectric-crm-api",
		JWTExpiresIn:           time.Hour,
		DefaultOwnerPercentage: decimal.NewFromInt(50),
		CORSAllowedOrigins:     []string{"http://localhost:3000"},
		LogLevel:               "error",
		LogFormat:              "json",
	}
}
