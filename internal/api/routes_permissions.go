package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/opexlabs/formscore/internal/handlers"
	"github.com/opexlabs/formscore/internal/middleware"
	"github.com/opexlabs/formscore/internal/permissions"
)

func registerPermissionRoutes(api *gin.RouterGroup, db *gorm.DB, evaluator *permissions.Evaluator) error {
	permHandler, err := handlers.NewPermissionHandler(db)
	if err != nil {
		return err
	}
	auditHandler, err := handlers.NewAuditHandler(db)
	if err != nil {
		return err
	}

	perms := api.Group("/permissions")
	{
		perms.POST("/grant", permHandler.Grant)
		perms.POST("/revoke", permHandler.Revoke)
		perms.POST("/check", permHandler.Check)
		perms.GET("/user/:id", permHandler.UserGrants)
		perms.GET("", permHandler.List)
	}

	api.GET("/audit", middleware.RequireUnrestrictedAdmin(evaluator), auditHandler.List)

	return nil
}
