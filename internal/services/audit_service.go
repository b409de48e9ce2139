package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/opexlabs/formscore/internal/models"
)

// AuditEntry captures a single audit event to persist.
type AuditEntry struct {
	UserID   *string
	Action   string
	Resource string
	Result   string
	Metadata map[string]any
}

// AuditFilters encapsulates optional filters when querying audit logs.
type AuditFilters struct {
	UserID string
	Action string
	Result string
	Since  *time.Time
	Until  *time.Time
}

// AuditListOptions controls pagination and filtering for audit queries.
type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

// AuditService persists and retrieves audit log entries. Grant and revoke
// outcomes, including authorization denials, are recorded here so security
// reviews can separate denials from infrastructure failures.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db}, nil
}

// Log stores an audit entry, marshalling metadata into JSON form.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(entry.Action) == "" {
		return errors.New("audit service: action is required")
	}
	if strings.TrimSpace(entry.Result) == "" {
		return errors.New("audit service: result is required")
	}

	var payload datatypes.JSON
	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("audit service: marshal metadata: %w", err)
		}
		payload = datatypes.JSON(encoded)
	}

	log := models.AuditLog{
		Action:   strings.TrimSpace(entry.Action),
		Resource: strings.TrimSpace(entry.Resource),
		Result:   strings.TrimSpace(entry.Result),
		Metadata: payload,
	}

	if entry.UserID != nil && strings.TrimSpace(*entry.UserID) != "" {
		id := strings.TrimSpace(*entry.UserID)
		log.UserID = &id
	}

	return s.db.WithContext(ctx).Create(&log).Error
}

// List returns paginated audit logs ordered by creation time descending.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	f := opts.Filters
	if f.UserID != "" {
		query = query.Where("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		query = query.Where("action = ?", f.Action)
	}
	if f.Result != "" {
		query = query.Where("result = ?", f.Result)
	}
	if f.Since != nil {
		query = query.Where("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		query = query.Where("created_at <= ?", *f.Until)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count logs: %w", err)
	}

	var logs []models.AuditLog
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list logs: %w", err)
	}

	return logs, total, nil
}

// PruneOlderThan removes audit entries past the retention window, returning
// the number of rows deleted.
func (s *AuditService) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)

	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("audit service: prune logs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
