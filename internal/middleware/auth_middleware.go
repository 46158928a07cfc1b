// auth_middleware.go
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"techstore-order-service/internal/model"
	"techstore-order-service/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	principalKey = "principal"
	tokenCookie  = "token"
)

// Middleware que valida el token y guarda el usuario vivo en el contexto
func AuthMiddleware(gate *service.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw == "" {
			// el front guarda la sesión en una cookie
			if cookie, err := c.Cookie(tokenCookie); err == nil {
				raw = cookie
			}
		}

		p, err := gate.ResolvePrincipal(c.Request.Context(), raw)
		if err != nil {
			AbortWithAuthError(c, err)
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

// CurrentPrincipal devuelve nil si AuthMiddleware no corrió.
func CurrentPrincipal(c *gin.Context) *model.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*model.Principal)
	return p
}

// AuthStatus traduce el tipo de fallo de autenticación a HTTP.
func AuthStatus(kind service.AuthErrorKind) int {
	if kind == service.Forbidden {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

// AbortWithAuthError responde un AuthError. Cualquier otro error (p.ej. la
// base caída) es un 500 y no se le muestra el detalle al cliente.
func AbortWithAuthError(c *gin.Context, err error) {
	var ae *service.AuthError
	if !errors.As(err, &ae) {
		slog.ErrorContext(c.Request.Context(), "fallo resolviendo credenciales", "error", err, "requestId", RequestIDFrom(c))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "error interno"})
		return
	}

	body := gin.H{"error": ae.Error(), "code": string(ae.Kind)}
	switch ae.Kind {
	case service.ExpiredCredential:
		if !ae.ExpiredAt.IsZero() {
			body["expiredAt"] = ae.ExpiredAt.Format(time.RFC3339)
		}
	case service.AccountLocked:
		if !ae.LockedUntil.IsZero() {
			body["lockedUntil"] = ae.LockedUntil.Format(time.RFC3339)
		}
	case service.Forbidden:
		body["role"] = ae.Role
		body["requiredRoles"] = ae.Allowed
	}
	c.AbortWithStatusJSON(AuthStatus(ae.Kind), body)
}
