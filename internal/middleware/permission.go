package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/opexlabs/formscore/internal/permissions"
	apperrors "github.com/opexlabs/formscore/pkg/errors"
	"github.com/opexlabs/formscore/pkg/metrics"
	"github.com/opexlabs/formscore/pkg/response"
)

// RequireLevel checks that the authenticated user holds at least the given
// level over the scope named by the company/category query parameters. A
// missing parameter means the caller is asking about the unrestricted scope,
// which only an unscoped grant can satisfy.
func RequireLevel(evaluator *permissions.Evaluator, level permissions.Level) gin.HandlerFunc {
	return requireLevel(evaluator, level, ScopeFromQuery)
}

// RequireUnrestrictedAdmin gates a route to holders of an effective admin
// grant over the maximal scope, ignoring any query parameters.
func RequireUnrestrictedAdmin(evaluator *permissions.Evaluator) gin.HandlerFunc {
	return requireLevel(evaluator, permissions.LevelAdmin, func(*gin.Context) permissions.Scope {
		return permissions.Unrestricted
	})
}

func requireLevel(evaluator *permissions.Evaluator, level permissions.Level, scope func(*gin.Context) permissions.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		allowed, err := evaluator.Check(c.Request.Context(), userID, level, scope(c))
		if err != nil {
			// Infrastructure failures surface as 503, never as a denial.
			metrics.PermissionChecks.WithLabelValues(string(level), "error").Inc()
			response.Error(c, err)
			c.Abort()
			return
		}
		if !allowed {
			metrics.PermissionChecks.WithLabelValues(string(level), "denied").Inc()
			response.Error(c, apperrors.ErrForbidden)
			c.Abort()
			return
		}
		metrics.PermissionChecks.WithLabelValues(string(level), "allowed").Inc()
		c.Next()
	}
}

// ScopeFromQuery builds a scope from the company/category query parameters,
// treating an absent parameter as absent rather than empty.
func ScopeFromQuery(c *gin.Context) permissions.Scope {
	var scope permissions.Scope
	if v, ok := c.GetQuery("company"); ok {
		scope.Company = &v
	}
	if v, ok := c.GetQuery("category"); ok {
		scope.Category = &v
	}
	return scope
}
