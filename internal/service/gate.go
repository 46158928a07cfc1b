package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"techstore-order-service/internal/clock"
	"techstore-order-service/internal/model"
	"techstore-order-service/internal/repository"
	"techstore-order-service/internal/token"
)

type PrincipalFinder interface {
	FindByID(ctx context.Context, id string) (*model.Principal, error)
}

// Gate protege las sesiones ya emitidas: resuelve el token al usuario vivo y
// controla el rol. La emisión (login) vive en AuthService.
type Gate struct {
	tokens     token.Codec
	principals PrincipalFinder
	clock      clock.Clock
}

func NewGate(tokens token.Codec, principals PrincipalFinder, clk clock.Clock) *Gate {
	if clk == nil {
		clk = clock.System()
	}
	return &Gate{tokens: tokens, principals: principals, clock: clk}
}

// ExtractToken acepta "<token>" o "Bearer <token>".
func ExtractToken(raw string) (string, error) {
	fields := strings.Fields(raw)
	switch len(fields) {
	case 0:
		return "", ErrMissingCredential
	case 1:
		if strings.EqualFold(fields[0], "Bearer") {
			return "", ErrMissingCredential
		}
		return fields[0], nil
	case 2:
		if !strings.EqualFold(fields[0], "Bearer") {
			return "", ErrInvalidCredential
		}
		return fields[1], nil
	}
	return "", ErrInvalidCredential
}

// ResolvePrincipal no confía en el rol ni el email del token: pueden haber
// cambiado desde que se emitió (cambio de rol, cuenta desactivada), así que
// siempre se relee el usuario de la base.
func (g *Gate) ResolvePrincipal(ctx context.Context, rawHeader string) (*model.Principal, error) {
	raw, err := ExtractToken(rawHeader)
	if err != nil {
		return nil, err
	}

	claims, err := g.tokens.Verify(raw)
	if err != nil {
		var ve *token.VerifyError
		if errors.As(err, &ve) && ve.Kind == token.Expired {
			return nil, &AuthError{Kind: ExpiredCredential, ExpiredAt: ve.ExpiredAt, Err: err}
		}
		return nil, &AuthError{Kind: InvalidCredential, Err: err}
	}

	p, err := g.principals.FindByID(ctx, claims.PrincipalID())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve principal %s: %w", claims.PrincipalID(), err)
	}

	if !p.Active {
		return nil, ErrAccountDisabled
	}
	if now := g.clock.Now(); p.IsLocked(now) {
		return nil, &AuthError{Kind: AccountLocked, LockedUntil: *p.LockUntil}
	}
	return p, nil
}

// Authorize falla con NotAuthenticated si no hay principal resuelto.
func (g *Gate) Authorize(p *model.Principal, allowed ...model.Role) error {
	if p == nil {
		return ErrNotAuthenticated
	}
	if !slices.Contains(allowed, p.Role) {
		return &AuthError{Kind: Forbidden, Role: p.Role, Allowed: slices.Clone(allowed)}
	}
	return nil
}
