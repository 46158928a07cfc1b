package model

import "time"

type Role string

const (
	RoleCustomer  Role = "customer"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// Principal es el usuario autenticado. PasswordHash nunca sale en JSON.
type Principal struct {
	ID             string     `bson:"_id" json:"id"`
	Email          string     `bson:"email" json:"email"`
	FirstName      string     `bson:"first_name" json:"firstName"`
	LastName       string     `bson:"last_name" json:"lastName"`
	Phone          string     `bson:"phone,omitempty" json:"phone,omitempty"`
	Address        *Address   `bson:"address,omitempty" json:"address,omitempty"`
	PasswordHash   string     `bson:"password_hash" json:"-"`
	Role           Role       `bson:"role" json:"role"`
	Active         bool       `bson:"active" json:"active"`
	FailedAttempts int        `bson:"failed_attempts" json:"-"`
	LockUntil      *time.Time `bson:"lock_until" json:"-"`
	LastLogin      *time.Time `bson:"last_login" json:"lastLogin,omitempty"`
	CreatedAt      time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `bson:"updated_at" json:"updatedAt"`
}

// IsLocked indica si el bloqueo por intentos fallidos sigue vigente en now.
func (p *Principal) IsLocked(now time.Time) bool {
	return p.LockUntil != nil && p.LockUntil.After(now)
}

// Address es la dirección principal del perfil.
type Address struct {
	Street  string `bson:"street" json:"street"`
	City    string `bson:"city" json:"city"`
	State   string `bson:"state" json:"state"`
	ZipCode string `bson:"zip_code" json:"zipCode"`
	Country string `bson:"country" json:"country"`
}

// LockoutPolicy define cuántos intentos fallidos bloquean la cuenta y por cuánto tiempo.
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: 5, LockDuration: 30 * time.Minute}
}

// RegisterFailedLogin aplica un intento fallido. Si un bloqueo anterior ya
// venció, el contador vuelve a empezar en 1. Al llegar al máximo se fija
// LockUntil y el contador queda como estaba para poder inspeccionarlo.
func (p *Principal) RegisterFailedLogin(now time.Time, policy LockoutPolicy) {
	if p.LockUntil != nil && !p.LockUntil.After(now) {
		p.LockUntil = nil
		p.FailedAttempts = 1
		return
	}
	p.FailedAttempts++
	if p.FailedAttempts >= policy.MaxAttempts && !p.IsLocked(now) {
		until := now.Add(policy.LockDuration)
		p.LockUntil = &until
	}
}

// ClearFailedLogins se llama tras un login correcto.
func (p *Principal) ClearFailedLogins(now time.Time) {
	p.FailedAttempts = 0
	p.LockUntil = nil
	t := now
	p.LastLogin = &t
}
