// require_role.go
package middleware

import (
	"techstore-order-service/internal/model"
	"techstore-order-service/internal/service"

	"github.com/gin-gonic/gin"
)

// RequireRole va después de AuthMiddleware.
func RequireRole(gate *service.Gate, roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := gate.Authorize(CurrentPrincipal(c), roles...); err != nil {
			AbortWithAuthError(c, err)
			return
		}
		c.Next()
	}
}

func AdminOnly(gate *service.Gate) gin.HandlerFunc {
	return RequireRole(gate, model.RoleAdmin)
}

func StaffOnly(gate *service.Gate) gin.HandlerFunc {
	return RequireRole(gate, model.RoleAdmin, model.RoleModerator)
}
