package testutil

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kendall-kelly/usta-go-api/config"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// TestJWTSecret signs local tokens in every suite
const TestJWTSecret = "usta-test-secret"

var userSeq atomic.Int64

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

	// Verify it was set
	if os.Getenv("GO_ENV") != "test" {
		t.Fatal("Failed to verify GO_ENV=test")
	}
}

// TestConfig is a configuration using local tokens and local image storage
func TestConfig() *config.Config {
	return &config.Config{
		DatabaseURL:    "file::memory:",
		DatabaseDriver: config.DriverSQLite,
		Port:           "8080",
		GoEnv:          "test",
		JWTSecret:      TestJWTSecret,
		TokenTTL:       time.Hour,
		StorageDriver:  config.StorageLocal,
		LogLevel:       "error",
		MinWithdrawal:  config.DefaultMinWithdrawal,
		CORSOrigins:    []string{"*"},
	}
}

// NewTestDB opens a migrated in-memory sqlite database private to t and
// installs it as the global handle. The pool is limited to one connection so
// every statement sees the same memory database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err, "Failed to connect to test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, models.Migrate(db), "Failed to migrate test database")
	config.SetDB(db)
	return db
}

// CreateUser inserts an active user with a unique subject and email
func CreateUser(t *testing.T, db *gorm.DB, role models.Role, name string) *models.User {
	t.Helper()
	n := userSeq.Add(1)
	user := &models.User{
		AuthSubject: fmt.Sprintf("auth0|%s-%d", role, n),
		Name:        name,
		Email:       fmt.Sprintf("%s-%d@example.com", strings.ToLower(strings.ReplaceAll(name, " ", ".")), n),
		Role:        role,
		Status:      models.UserActive,
	}
	require.NoError(t, db.Create(user).Error, "Failed to create test user")
	return user
}

// CreateJob inserts a job in the given status, bypassing the lifecycle rules
func CreateJob(t *testing.T, db *gorm.DB, customer *models.User, professional *models.User, status models.JobStatus, budget float64) *models.Job {
	t.Helper()
	job := &models.Job{
		Title:       "Fix the kitchen sink",
		Description: "The kitchen sink is leaking under the cabinet",
		Category:    "plumbing",
		Location:    "Istanbul",
		Budget:      budget,
		Status:      status,
		CustomerID:  customer.ID,
	}
	if professional != nil {
		job.ProfessionalID = &professional.ID
	}
	require.NoError(t, db.Create(job).Error, "Failed to create test job")

	// finished jobs carry the earning the completion would have credited
	if professional != nil && (status == models.JobCompleted || status == models.JobRated) {
		require.NoError(t, db.Create(&models.Transaction{
			UserID: professional.ID,
			JobID:  &job.ID,
			Type:   models.TransactionEarning,
			Amount: budget,
			Status: models.TransactionCompleted,
		}).Error, "Failed to credit test job")
	}
	return job
}
