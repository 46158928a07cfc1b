// Package token firma y verifica los tokens de sesión (JWT HS256).
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"techstore-order-service/internal/clock"
)

var ErrEmptySecret = errors.New("JWT secret is required")

// Claims son los datos que viajan dentro del token. Email y Role son sólo
// informativos: quien verifica debe volver a leer el usuario en la base.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) PrincipalID() string { return c.Subject }

type VerifyErrorKind int

const (
	Malformed VerifyErrorKind = iota
	Expired
)

func (k VerifyErrorKind) String() string {
	if k == Expired {
		return "expired"
	}
	return "malformed"
}

// VerifyError distingue un token vencido (volver a loguearse) de uno inválido.
type VerifyError struct {
	Kind      VerifyErrorKind
	ExpiredAt time.Time
	Err       error
}

func (e *VerifyError) Error() string {
	if e.Kind == Expired {
		return fmt.Sprintf("token expired at %s", e.ExpiredAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("token malformed: %v", e.Err)
}

func (e *VerifyError) Unwrap() error { return e.Err }

type Codec interface {
	Sign(principalID, email, role string) (string, error)
	Verify(tokenString string) (*Claims, error)
}

// JWTCodec usa un único secreto simétrico que no cambia después de creado,
// así que puede compartirse entre goroutines sin locks.
type JWTCodec struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewJWTCodec(secret string, ttl time.Duration, clk clock.Clock) (*JWTCodec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("JWT ttl must be positive, got %s", ttl)
	}
	if clk == nil {
		clk = clock.System()
	}
	return &JWTCodec{secret: []byte(secret), ttl: ttl, clock: clk}, nil
}

func (c *JWTCodec) Sign(principalID, email, role string) (string, error) {
	now := c.clock.Now()
	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify comprueba primero la firma y después la expiración: un token con
// firma inválida se reporta como Malformed aunque además esté vencido.
func (c *JWTCodec) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method == nil || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			ve := &VerifyError{Kind: Expired, Err: err}
			if claims.ExpiresAt != nil {
				ve.ExpiredAt = claims.ExpiresAt.Time
			}
			return nil, ve
		}
		return nil, &VerifyError{Kind: Malformed, Err: err}
	}
	if claims.Subject == "" {
		return nil, &VerifyError{Kind: Malformed, Err: errors.New("token has no subject")}
	}
	return claims, nil
}
