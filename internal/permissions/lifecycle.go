package permissions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opexlabs/formscore/internal/models"
	apperrors "github.com/opexlabs/formscore/pkg/errors"
	"github.com/opexlabs/formscore/pkg/logger"
)

// SystemGranter marks grants created by the platform itself, e.g. the
// bootstrap admin grant seeded at first start. It bypasses the authority
// check because no user exists yet who could hold it.
const SystemGranter = "system"

var (
	// ErrInsufficientAuthority indicates the caller lacks an effective admin
	// grant covering the scope being granted or revoked.
	ErrInsufficientAuthority = apperrors.New("PERMISSION_INSUFFICIENT_AUTHORITY", "Granting user does not have admin permission for this scope", http.StatusForbidden)
	// ErrGrantNotActive indicates a revoke against an already revoked grant.
	ErrGrantNotActive = apperrors.New("PERMISSION_NOT_ACTIVE", "Permission is not active", http.StatusNotFound)
	// ErrExpiryInPast indicates a grant expiry at or before creation time.
	ErrExpiryInPast = apperrors.New("PERMISSION_EXPIRY_PAST", "Expiry must be in the future", http.StatusBadRequest)
)

// Manager creates and revokes grants, enforcing that a granter's own
// authority is never exceeded: you can only hand out (or take back) what you
// could have granted yourself.
type Manager struct {
	store     Store
	evaluator *Evaluator
	now       func() time.Time
	log       *zap.Logger
}

// NewManager constructs a lifecycle manager sharing the evaluator's store.
func NewManager(store Store, evaluator *Evaluator) (*Manager, error) {
	if store == nil {
		return nil, errors.New("permission manager: store is required")
	}
	if evaluator == nil {
		return nil, errors.New("permission manager: evaluator is required")
	}
	return &Manager{
		store:     store,
		evaluator: evaluator,
		now:       time.Now,
		log:       logger.WithModule("permissions"),
	}, nil
}

// GrantInput describes the payload accepted by Grant.
type GrantInput struct {
	UserID    string
	Level     string
	Company   *string
	Category  *string
	ExpiresAt *time.Time
	Notes     *string
}

// Grant validates and persists a new permission grant. The granter must hold
// an effective admin grant whose scope covers the scope being granted; a
// failed precondition is an error, never a silent downgrade or partial grant.
// Duplicate (subject, scope, level) grants are permitted: dedup is a caller
// policy, and each call creates an independent record.
func (m *Manager) Grant(ctx context.Context, granterID string, input GrantInput) (*models.PermissionGrant, error) {
	ctx = ensureContext(ctx)

	granterID = strings.TrimSpace(granterID)
	if granterID == "" {
		return nil, apperrors.NewBadRequest("granter id is required")
	}
	subject := strings.TrimSpace(input.UserID)
	if subject == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	level, err := ParseLevel(input.Level)
	if err != nil {
		return nil, err
	}

	now := m.now()
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: %s", ErrExpiryInPast, input.ExpiresAt.UTC().Format(time.RFC3339))
	}

	scope := Scope{Company: input.Company, Category: input.Category}
	if err := m.requireAuthority(ctx, granterID, scope); err != nil {
		return nil, err
	}

	grant := &models.PermissionGrant{
		ID:        uuid.NewString(),
		UserID:    subject,
		Company:   input.Company,
		Category:  input.Category,
		Level:     string(level),
		GrantedBy: granterID,
		GrantedAt: now,
		ExpiresAt: input.ExpiresAt,
		Active:    true,
		Notes:     input.Notes,
	}

	if err := m.store.Insert(ctx, grant); err != nil {
		return nil, fmt.Errorf("permission manager: insert grant: %w", err)
	}

	m.log.Info("permission granted",
		zap.String("permission_id", grant.ID),
		zap.String("user_id", subject),
		zap.String("level", string(level)),
		zap.String("scope", scope.String()),
		zap.String("granted_by", granterID),
	)

	return grant, nil
}

// Revoke flips an active grant inactive and stamps the revocation metadata;
// it is the only in-place mutation a grant ever receives. The revoker needs the
// same admin coverage over the grant's scope as granting it would require.
// Revoking an already inactive grant fails so callers can detect stale
// revoke attempts.
func (m *Manager) Revoke(ctx context.Context, revokerID, permissionID string, notes *string) error {
	ctx = ensureContext(ctx)

	revokerID = strings.TrimSpace(revokerID)
	if revokerID == "" {
		return apperrors.NewBadRequest("revoker id is required")
	}
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return apperrors.NewBadRequest("permission id is required")
	}

	grant, err := m.store.GetByID(ctx, permissionID)
	if err != nil {
		return fmt.Errorf("permission manager: load grant: %w", err)
	}
	if !grant.Active {
		return fmt.Errorf("%w: %s", ErrGrantNotActive, permissionID)
	}

	if err := m.requireAuthority(ctx, revokerID, GrantScope(grant)); err != nil {
		return err
	}

	if err := m.store.MarkRevoked(ctx, permissionID, revokerID, m.now(), notes); err != nil {
		return fmt.Errorf("permission manager: revoke grant: %w", err)
	}

	m.log.Info("permission revoked",
		zap.String("permission_id", permissionID),
		zap.String("user_id", grant.UserID),
		zap.String("revoked_by", revokerID),
	)

	return nil
}

// requireAuthority checks that the actor is an effective admin over a scope
// covering the target scope. Store failures propagate untouched so the
// caller fails closed without reporting a false denial.
func (m *Manager) requireAuthority(ctx context.Context, actorID string, scope Scope) error {
	if actorID == SystemGranter {
		return nil
	}

	allowed, err := m.evaluator.Check(ctx, actorID, LevelAdmin, scope)
	if err != nil {
		return err
	}
	if !allowed {
		m.log.Warn("permission authority denied",
			zap.String("actor_id", actorID),
			zap.String("scope", scope.String()),
		)
		return fmt.Errorf("%w: %s over %s", ErrInsufficientAuthority, actorID, scope.String())
	}
	return nil
}
