package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/opexlabs/formscore/internal/models"
	"github.com/opexlabs/formscore/internal/permissions"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.PermissionGrant{},
		&models.AuditLog{},
	)
}

// BootstrapAdmin identifies the user seeded with unrestricted admin authority
// at first start. Without one, nobody can create the initial grants.
type BootstrapAdmin struct {
	UserID string
	Email  string
}

// SeedBootstrapAdmin ensures the configured bootstrap user exists and holds
// an effective unrestricted admin grant, creating one with the system
// sentinel granter when missing. Idempotent across restarts.
func SeedBootstrapAdmin(ctx context.Context, db *gorm.DB, admin BootstrapAdmin) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	userID := strings.TrimSpace(admin.UserID)
	if userID == "" {
		return nil
	}

	user := models.User{
		BaseModel: models.BaseModel{ID: userID},
		Email:     strings.TrimSpace(admin.Email),
	}
	if err := db.WithContext(ctx).
		Where(models.User{BaseModel: models.BaseModel{ID: userID}}).
		Attrs(user).
		FirstOrCreate(&models.User{}).Error; err != nil {
		return fmt.Errorf("seed bootstrap user: %w", err)
	}

	store, err := NewGrantStore(db)
	if err != nil {
		return err
	}
	evaluator, err := permissions.NewEvaluator(store)
	if err != nil {
		return err
	}

	isAdmin, err := evaluator.IsUnrestrictedAdmin(ctx, userID)
	if err != nil {
		return fmt.Errorf("seed bootstrap admin: %w", err)
	}
	if isAdmin {
		return nil
	}

	manager, err := permissions.NewManager(store, evaluator)
	if err != nil {
		return err
	}

	_, err = manager.Grant(ctx, permissions.SystemGranter, permissions.GrantInput{
		UserID: userID,
		Level:  string(permissions.LevelAdmin),
	})
	if err != nil {
		return fmt.Errorf("seed bootstrap admin grant: %w", err)
	}

	return nil
}

// AutoMigrateAndSeed convenience helper used during application start-up.
func AutoMigrateAndSeed(ctx context.Context, db *gorm.DB, admin BootstrapAdmin) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if err := SeedBootstrapAdmin(ctx, db, admin); err != nil {
		return fmt.Errorf("seed data: %w", err)
	}

	return nil
}
