package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/opexlabs/formscore/internal/services"
	apperrors "github.com/opexlabs/formscore/pkg/errors"
	"github.com/opexlabs/formscore/pkg/response"
)

type AuditHandler struct {
	svc *services.AuditService
}

func NewAuditHandler(db *gorm.DB) (*AuditHandler, error) {
	svc, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	return &AuditHandler{svc: svc}, nil
}

// GET /api/audit
//
// Access control sits on the route: only an unrestricted admin reaches here.
func (h *AuditHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	per, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))

	var filters services.AuditFilters
	filters.UserID = c.Query("user_id")
	filters.Action = c.Query("action")
	filters.Result = c.Query("result")

	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filters.Since = &t
		}
	}
	if u := c.Query("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			filters.Until = &t
		}
	}

	logs, total, err := h.svc.List(requestContext(c), services.AuditListOptions{Page: page, PageSize: per, Filters: filters})
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"per_page": per,
	})
}
