package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/opexlabs/formscore/internal/models"
	"github.com/opexlabs/formscore/internal/permissions"
)

// GrantStore implements permissions.Store over gorm. Each operation touches
// exactly one record; gorm's SQL backends give atomic per-record writes, so a
// concurrent check observes state either before or after a commit, never a
// partially written grant.
type GrantStore struct {
	db *gorm.DB
}

// NewGrantStore constructs a grant store using the provided database handle.
func NewGrantStore(db *gorm.DB) (*GrantStore, error) {
	if db == nil {
		return nil, errors.New("grant store: db is required")
	}
	return &GrantStore{db: db}, nil
}

// Insert persists a new grant, failing on id collision.
func (s *GrantStore) Insert(ctx context.Context, grant *models.PermissionGrant) error {
	if grant == nil {
		return errors.New("grant store: grant is required")
	}

	if err := s.db.WithContext(ctx).Create(grant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("grant store: insert: id %s already exists: %w", grant.ID, gorm.ErrDuplicatedKey)
		}
		return storeError("insert", err)
	}
	return nil
}

// GetByID loads a single grant record regardless of its active flag.
func (s *GrantStore) GetByID(ctx context.Context, id string) (*models.PermissionGrant, error) {
	var grant models.PermissionGrant
	if err := s.db.WithContext(ctx).First(&grant, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("grant store: %w: %s", permissions.ErrGrantNotFound, id)
		}
		return nil, storeError("get by id", err)
	}
	return &grant, nil
}

// GetBySubject returns all grants for the user, newest first, including
// revoked and expired records; effectiveness filtering is the evaluator's job.
func (s *GrantStore) GetBySubject(ctx context.Context, userID string) ([]models.PermissionGrant, error) {
	var grants []models.PermissionGrant
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("granted_at DESC").
		Find(&grants).Error; err != nil {
		return nil, storeError("get by subject", err)
	}
	return grants, nil
}

// MarkRevoked atomically flips an active grant inactive and stamps the
// revocation metadata. The active guard in the WHERE clause makes concurrent
// double-revokes lose cleanly instead of overwriting the first revocation.
func (s *GrantStore) MarkRevoked(ctx context.Context, id, revokedBy string, revokedAt time.Time, notes *string) error {
	updates := map[string]any{
		"active":     false,
		"revoked_by": revokedBy,
		"revoked_at": revokedAt,
	}
	if notes != nil {
		updates["notes"] = *notes
	}

	res := s.db.WithContext(ctx).
		Model(&models.PermissionGrant{}).
		Where("id = ? AND active = ?", id, true).
		Updates(updates)
	if res.Error != nil {
		return storeError("mark revoked", res.Error)
	}

	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).
			Model(&models.PermissionGrant{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return storeError("mark revoked", err)
		}
		if count == 0 {
			return fmt.Errorf("grant store: %w: %s", permissions.ErrGrantNotFound, id)
		}
		return fmt.Errorf("grant store: %w: %s", permissions.ErrGrantNotActive, id)
	}

	return nil
}

// ListFilters narrows List results for the admin dashboard.
type ListFilters struct {
	Company    *string
	Category   *string
	Level      string
	ActiveOnly bool
}

// List returns grants across all subjects for the admin listing endpoint,
// newest first. Unlike GetBySubject this filters in SQL because the result
// set spans the whole table.
func (s *GrantStore) List(ctx context.Context, filters ListFilters) ([]models.PermissionGrant, error) {
	query := s.db.WithContext(ctx).Model(&models.PermissionGrant{})

	if filters.ActiveOnly {
		query = query.Where("active = ?", true)
	}
	if filters.Company != nil {
		query = query.Where("company = ?", *filters.Company)
	}
	if filters.Category != nil {
		query = query.Where("category = ?", *filters.Category)
	}
	if filters.Level != "" {
		query = query.Where("level = ?", filters.Level)
	}

	var grants []models.PermissionGrant
	if err := query.Order("granted_at DESC").Find(&grants).Error; err != nil {
		return nil, storeError("list", err)
	}
	return grants, nil
}

// storeError classifies infrastructure failures (timeouts, lost connections,
// SQL errors) as the store-unavailable kind so the evaluator never reports
// them as authorization denials.
func storeError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("grant store: %s: timed out: %w", op, permissions.ErrStoreUnavailable)
	}
	return fmt.Errorf("grant store: %s: %w (%v)", op, permissions.ErrStoreUnavailable, err)
}
