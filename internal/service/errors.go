package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"techstore-order-service/internal/model"
)

type AuthErrorKind string

const (
	MissingCredential AuthErrorKind = "MissingCredential"
	InvalidCredential AuthErrorKind = "InvalidCredential"
	ExpiredCredential AuthErrorKind = "ExpiredCredential"
	PrincipalNotFound AuthErrorKind = "PrincipalNotFound"
	AccountDisabled   AuthErrorKind = "AccountDisabled"
	AccountLocked     AuthErrorKind = "AccountLocked"
	NotAuthenticated  AuthErrorKind = "NotAuthenticated"
	Forbidden         AuthErrorKind = "Forbidden"
	InvalidLogin      AuthErrorKind = "InvalidLogin"
)

// AuthError es siempre terminal para la petición: nadie lo reintenta.
// errors.Is compara por Kind, así que sirve contra los sentinels de abajo.
type AuthError struct {
	Kind        AuthErrorKind
	ExpiredAt   time.Time
	LockedUntil time.Time
	Role        model.Role
	Allowed     []model.Role
	Err         error
}

func (e *AuthError) Error() string {
	switch e.Kind {
	case MissingCredential:
		return "no se proporcionó token de autenticación"
	case InvalidCredential:
		return "el token proporcionado no es válido"
	case ExpiredCredential:
		if !e.ExpiredAt.IsZero() {
			return fmt.Sprintf("tu sesión expiró el %s", e.ExpiredAt.Format(time.RFC3339))
		}
		return "tu sesión ha expirado"
	case PrincipalNotFound:
		return "el usuario del token no existe"
	case AccountDisabled:
		return "tu cuenta ha sido desactivada"
	case AccountLocked:
		return "cuenta bloqueada por seguridad, intenta más tarde"
	case NotAuthenticated:
		return "debes iniciar sesión para realizar esta acción"
	case Forbidden:
		roles := make([]string, len(e.Allowed))
		for i, r := range e.Allowed {
			roles[i] = string(r)
		}
		return fmt.Sprintf("esta acción requiere rol de %s", strings.Join(roles, " o "))
	case InvalidLogin:
		return "email o contraseña incorrectos"
	}
	return string(e.Kind)
}

func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

func (e *AuthError) Unwrap() error { return e.Err }

var (
	ErrMissingCredential = &AuthError{Kind: MissingCredential}
	ErrInvalidCredential = &AuthError{Kind: InvalidCredential}
	ErrExpiredCredential = &AuthError{Kind: ExpiredCredential}
	ErrPrincipalNotFound = &AuthError{Kind: PrincipalNotFound}
	ErrAccountDisabled   = &AuthError{Kind: AccountDisabled}
	ErrAccountLocked     = &AuthError{Kind: AccountLocked}
	ErrNotAuthenticated  = &AuthError{Kind: NotAuthenticated}
	ErrForbidden         = &AuthError{Kind: Forbidden}
	ErrInvalidLogin      = &AuthError{Kind: InvalidLogin}
)

// Errores de negocio exportados (los usa el controller)
var (
	ErrEmailTaken         = errors.New("ya existe una cuenta con este email")
	ErrInvalidPrincipal   = errors.New("datos de usuario inválidos")
	ErrNotOwner           = errors.New("no puedes ver ni modificar pedidos de otro usuario")
	ErrInvalidOrder       = errors.New("pedido inválido")
	ErrConcurrentUpdate   = errors.New("el pedido fue modificado por otra operación, reintenta")
	ErrOrderIDExhausted   = errors.New("no se pudo asignar número de pedido")
	ErrProductUnavailable = errors.New("producto no disponible")
)
