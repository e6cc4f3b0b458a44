package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/observability"
)

var ErrResetForbidden = errors.New("table reset is disabled in production")

// Open picks the gorm dialector from the DSN. sqlite:// and file: DSNs use
// sqlite; anything else is handed to postgres.
func Open(dsn string, silent bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		dialector = sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "file:"):
		dialector = sqlite.Open(dsn)
	default:
		dialector = postgres.Open(dsn)
	}
	level := logger.Warn
	if silent {
		level = logger.Silent
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// MigrationModels lists every durable table in dependency order.
func MigrationModels() []any {
	return []any{
		&domain.Role{},
		&domain.User{},
		&domain.UserProfile{},
		&domain.Session{},
		&domain.RefreshToken{},
		&domain.License{},
		&domain.LicenseActivation{},
		&domain.SecurityEvent{},
		&domain.AuditLog{},
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(MigrationModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return SeedRoles(db)
}

func SeedRoles(db *gorm.DB) error {
	for _, name := range []string{domain.RoleRegularUser, domain.RoleAdmin} {
		role := domain.Role{Name: name}
		if err := db.Where(domain.Role{Name: name}).FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", name, err)
		}
	}
	return nil
}

// ResettableTables is the fixed set cleared by ResetAll, children before
// parents.
func ResettableTables() []string {
	return []string{
		"audit_logs",
		"security_events",
		"license_activations",
		"licenses",
		"refresh_tokens",
		"sessions",
		"user_profiles",
		"user_roles",
		"users",
	}
}

func ResetAll(db *gorm.DB, env string) error {
	if strings.EqualFold(strings.TrimSpace(env), "production") {
		return ErrResetForbidden
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, table := range ResettableTables() {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("reset %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "database", "reset_all", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "database", "reset_all", "success")
	return nil
}

func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func record(repo, op string, err error, notFound bool) {
	outcome := "success"
	switch {
	case notFound:
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	observability.RecordRepositoryOperation(context.Background(), repo, op, outcome)
}
