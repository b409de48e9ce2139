package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/opexlabs/formscore/internal/database"
	"github.com/opexlabs/formscore/internal/middleware"
	"github.com/opexlabs/formscore/internal/models"
	"github.com/opexlabs/formscore/internal/permissions"
	"github.com/opexlabs/formscore/internal/services"
	apperrors "github.com/opexlabs/formscore/pkg/errors"
	"github.com/opexlabs/formscore/pkg/logger"
	"github.com/opexlabs/formscore/pkg/metrics"
	"github.com/opexlabs/formscore/pkg/response"
	"github.com/opexlabs/formscore/pkg/validator"
)

// PermissionHandler exposes grant lifecycle and evaluation over HTTP.
type PermissionHandler struct {
	evaluator *permissions.Evaluator
	manager   *permissions.Manager
	grants    *database.GrantStore
	audit     *services.AuditService
	db        *gorm.DB
}

// NewPermissionHandler wires the permission services over a shared database handle.
func NewPermissionHandler(db *gorm.DB) (*PermissionHandler, error) {
	store, err := database.NewGrantStore(db)
	if err != nil {
		return nil, err
	}
	evaluator, err := permissions.NewEvaluator(store)
	if err != nil {
		return nil, err
	}
	manager, err := permissions.NewManager(store, evaluator)
	if err != nil {
		return nil, err
	}
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	return &PermissionHandler{
		evaluator: evaluator,
		manager:   manager,
		grants:    store,
		audit:     audit,
		db:        db,
	}, nil
}

type grantRequest struct {
	UserID      string  `json:"user_id" validate:"required"`
	Level       string  `json:"permission_level" validate:"required"`
	Company     *string `json:"company"`
	Category    *string `json:"category"`
	ExpiresDays *int    `json:"expires_days" validate:"omitempty,gt=0"`
	Notes       *string `json:"notes" validate:"omitempty,max=500"`
}

// POST /api/permissions/grant
func (h *PermissionHandler) Grant(c *gin.Context) {
	actorID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid request body"))
		return
	}
	if err := validator.ValidateStruct(req); err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}

	input := permissions.GrantInput{
		UserID:   req.UserID,
		Level:    req.Level,
		Company:  req.Company,
		Category: req.Category,
		Notes:    req.Notes,
	}
	if req.ExpiresDays != nil {
		expiry := time.Now().Add(time.Duration(*req.ExpiresDays) * 24 * time.Hour)
		input.ExpiresAt = &expiry
	}

	ctx := requestContext(c)
	grant, err := h.manager.Grant(ctx, actorID, input)
	if err != nil {
		result := grantOutcome(err)
		metrics.GrantOperations.WithLabelValues("grant", result).Inc()
		h.logAudit(c, actorID, "permission.grant", req.UserID, result, gin.H{
			"level":    req.Level,
			"company":  req.Company,
			"category": req.Category,
		})
		response.Error(c, err)
		return
	}

	metrics.GrantOperations.WithLabelValues("grant", "success").Inc()
	h.logAudit(c, actorID, "permission.grant", grant.ID, "success", gin.H{
		"user_id": grant.UserID,
		"level":   grant.Level,
		"scope":   permissions.GrantScope(grant).String(),
	})
	response.Success(c, http.StatusCreated, grant)
}

type revokeRequest struct {
	PermissionID string  `json:"permission_id" validate:"required"`
	Notes        *string `json:"notes" validate:"omitempty,max=500"`
}

// POST /api/permissions/revoke
func (h *PermissionHandler) Revoke(c *gin.Context) {
	actorID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid request body"))
		return
	}
	if err := validator.ValidateStruct(req); err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}

	ctx := requestContext(c)
	if err := h.manager.Revoke(ctx, actorID, req.PermissionID, req.Notes); err != nil {
		result := grantOutcome(err)
		metrics.GrantOperations.WithLabelValues("revoke", result).Inc()
		h.logAudit(c, actorID, "permission.revoke", req.PermissionID, result, nil)
		response.Error(c, err)
		return
	}

	metrics.GrantOperations.WithLabelValues("revoke", "success").Inc()
	h.logAudit(c, actorID, "permission.revoke", req.PermissionID, "success", nil)
	response.SuccessWithMessage(c, http.StatusOK, gin.H{"permission_id": req.PermissionID}, "permission revoked")
}

type checkRequest struct {
	UserID   string  `json:"user_id"`
	Level    string  `json:"permission_level" validate:"required"`
	Company  *string `json:"company"`
	Category *string `json:"category"`
}

// POST /api/permissions/check
//
// A negative answer is an expected outcome and returns 200 with
// has_permission=false; only infrastructure trouble is an error status.
func (h *PermissionHandler) Check(c *gin.Context) {
	actorID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid request body"))
		return
	}
	if err := validator.ValidateStruct(req); err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return
	}

	level, err := permissions.ParseLevel(req.Level)
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx := requestContext(c)
	target := req.UserID
	if target == "" {
		target = actorID
	}
	if target != actorID {
		if err := h.requireUnrestrictedAdmin(c, actorID); err != nil {
			response.Error(c, err)
			return
		}
	}

	allowed, err := h.evaluator.Check(ctx, target, level, permissions.Scope{Company: req.Company, Category: req.Category})
	if err != nil {
		metrics.PermissionChecks.WithLabelValues(string(level), "error").Inc()
		response.Error(c, err)
		return
	}

	result := "denied"
	if allowed {
		result = "allowed"
	}
	metrics.PermissionChecks.WithLabelValues(string(level), result).Inc()

	response.Success(c, http.StatusOK, gin.H{
		"user_id":        target,
		"has_permission": allowed,
	})
}

// GET /api/permissions/user/:id
func (h *PermissionHandler) UserGrants(c *gin.Context) {
	actorID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	targetID := c.Param("id")
	if targetID != actorID {
		if err := h.requireUnrestrictedAdmin(c, actorID); err != nil {
			response.Error(c, err)
			return
		}
	}

	ctx := requestContext(c)
	grants, err := h.evaluator.ListEffectiveGrants(ctx, targetID, permissions.GrantFilters{})
	if err != nil {
		response.Error(c, err)
		return
	}

	highest, found, err := h.evaluator.HighestLevel(ctx, targetID)
	if err != nil {
		response.Error(c, err)
		return
	}
	isAdmin, err := h.evaluator.IsUnrestrictedAdmin(ctx, targetID)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := gin.H{
		"user_id":               targetID,
		"grants":                grants,
		"is_unrestricted_admin": isAdmin,
	}
	if found {
		payload["highest_level"] = string(highest)
	} else {
		payload["highest_level"] = nil
	}

	response.Success(c, http.StatusOK, payload)
}

type grantListItem struct {
	models.PermissionGrant
	UserEmail    string `json:"user_email,omitempty"`
	UserFullName string `json:"user_full_name,omitempty"`
}

// GET /api/permissions
func (h *PermissionHandler) List(c *gin.Context) {
	actorID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}
	if err := h.requireUnrestrictedAdmin(c, actorID); err != nil {
		response.Error(c, err)
		return
	}

	var filters database.ListFilters
	if v, ok := c.GetQuery("company"); ok {
		filters.Company = &v
	}
	if v, ok := c.GetQuery("category"); ok {
		filters.Category = &v
	}
	if v := c.Query("level"); v != "" {
		level, err := permissions.ParseLevel(v)
		if err != nil {
			response.Error(c, err)
			return
		}
		filters.Level = string(level)
	}
	if v := c.Query("active_only"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			response.Error(c, apperrors.NewBadRequest("active_only must be a boolean"))
			return
		}
		filters.ActiveOnly = active
	}

	ctx := requestContext(c)
	grants, err := h.grants.List(ctx, filters)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]grantListItem, len(grants))
	users := h.lookupUsers(c, grants)
	for i, g := range grants {
		items[i] = grantListItem{PermissionGrant: g}
		if u, ok := users[g.UserID]; ok {
			items[i].UserEmail = u.Email
			items[i].UserFullName = u.FullName
		}
	}

	response.Success(c, http.StatusOK, gin.H{
		"permissions": items,
		"total":       len(items),
	})
}

// lookupUsers decorates grant listings with user identity; lookup failures
// degrade to undecorated rows rather than failing the listing.
func (h *PermissionHandler) lookupUsers(c *gin.Context, grants []models.PermissionGrant) map[string]models.User {
	ids := make([]string, 0, len(grants))
	seen := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		if _, ok := seen[g.UserID]; ok {
			continue
		}
		seen[g.UserID] = struct{}{}
		ids = append(ids, g.UserID)
	}
	if len(ids) == 0 {
		return nil
	}

	var users []models.User
	if err := h.db.WithContext(requestContext(c)).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil
	}

	byID := make(map[string]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID
}

func (h *PermissionHandler) requireUnrestrictedAdmin(c *gin.Context, actorID string) error {
	isAdmin, err := h.evaluator.IsUnrestrictedAdmin(requestContext(c), actorID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return apperrors.ErrForbidden
	}
	return nil
}

func (h *PermissionHandler) logAudit(c *gin.Context, actorID, action, resource, result string, metadata gin.H) {
	entry := services.AuditEntry{
		UserID:   &actorID,
		Action:   action,
		Resource: resource,
		Result:   result,
		Metadata: metadata,
	}
	// Audit failures must not block the operation itself.
	if err := h.audit.Log(requestContext(c), entry); err != nil {
		logger.WithModule("permissions").Warn("audit write failed",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// grantOutcome classifies mutation failures for metrics and audit rows.
func grantOutcome(err error) string {
	switch {
	case errors.Is(err, permissions.ErrInsufficientAuthority):
		return "denied"
	case errors.Is(err, permissions.ErrStoreUnavailable):
		return "error"
	default:
		return "invalid"
	}
}
