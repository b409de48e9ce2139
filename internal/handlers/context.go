package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
)

// requestContext returns the inbound request's context, falling back to a
// background context when the handler runs outside a real HTTP exchange.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}
