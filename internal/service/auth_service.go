package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"techstore-order-service/internal/clock"
	"techstore-order-service/internal/model"
	"techstore-order-service/internal/repository"
	"techstore-order-service/internal/token"
)

type PrincipalRepository interface {
	PrincipalFinder
	FindByEmail(ctx context.Context, email string) (*model.Principal, error)
	Insert(ctx context.Context, p *model.Principal) error
	Save(ctx context.Context, p *model.Principal) error
	RecordFailedLogin(ctx context.Context, id string, now time.Time, policy model.LockoutPolicy) (*model.Principal, error)
	ClearFailedLogins(ctx context.Context, id string, now time.Time) error
}

const MinPasswordLength = 8

// Servicio de registro, login y emisión de tokens.
type AuthService struct {
	principals PrincipalRepository
	tokens     token.Codec
	clock      clock.Clock
	lockout    model.LockoutPolicy
	bcryptCost int
	log        *slog.Logger
}

type AuthOption func(*AuthService)

func WithLockoutPolicy(p model.LockoutPolicy) AuthOption {
	return func(a *AuthService) { a.lockout = p }
}

func WithBcryptCost(cost int) AuthOption {
	return func(a *AuthService) { a.bcryptCost = cost }
}

func WithAuthLogger(l *slog.Logger) AuthOption {
	return func(a *AuthService) { a.log = l }
}

func NewAuthService(principals PrincipalRepository, tokens token.Codec, clk clock.Clock, opts ...AuthOption) *AuthService {
	a := &AuthService{
		principals: principals,
		tokens:     tokens,
		clock:      clk,
		lockout:    model.DefaultLockoutPolicy(),
		bcryptCost: 12,
		log:        slog.Default(),
	}
	if a.clock == nil {
		a.clock = clock.System()
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

type Session struct {
	Token     string           `json:"token"`
	Principal *model.Principal `json:"user"`
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// IssueToken firma un token para un principal ya validado.
func (a *AuthService) IssueToken(p *model.Principal) (string, error) {
	return a.tokens.Sign(p.ID, p.Email, string(p.Role))
}

// Register siempre crea clientes; los roles se cambian desde admin.
func (a *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	p, err := a.createPrincipal(ctx, in, model.RoleCustomer)
	if err != nil {
		return nil, err
	}
	a.log.Info("usuario registrado", "audit", true, "event", "USER_REGISTERED", "userId", p.ID, "email", p.Email)

	tok, err := a.IssueToken(p)
	if err != nil {
		return nil, err
	}
	return &Session{Token: tok, Principal: p}, nil
}

// EnsureAdmin crea el administrador inicial si el email todavía no existe.
func (a *AuthService) EnsureAdmin(ctx context.Context, email, password string) (*model.Principal, error) {
	existing, err := a.principals.FindByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	p, err := a.createPrincipal(ctx, RegisterInput{Email: email, Password: password, FirstName: "Admin", LastName: "TechStore"}, model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	a.log.Info("administrador inicial creado", "audit", true, "event", "ADMIN_BOOTSTRAPPED", "userId", p.ID)
	return p, nil
}

func (a *AuthService) createPrincipal(ctx context.Context, in RegisterInput, role model.Role) (*model.Principal, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email inválido", ErrInvalidPrincipal)
	}
	if len(in.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: la contraseña debe tener al menos %d caracteres", ErrInvalidPrincipal, MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := a.clock.Now()
	p := &model.Principal{
		ID:           uuid.NewString(),
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.principals.Insert(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert principal: %w", err)
	}
	return p, nil
}

// Login aplica el bloqueo por intentos: con la cuenta bloqueada ni siquiera
// se compara la contraseña, así que una contraseña correcta también falla.
func (a *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	p, err := a.principals.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		a.log.Warn("login fallido: usuario no encontrado", "audit", true, "event", "LOGIN_FAILED", "email", email)
		return nil, ErrInvalidLogin
	}
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}

	now := a.clock.Now()
	if !p.Active {
		return nil, ErrAccountDisabled
	}
	if p.IsLocked(now) {
		return nil, &AuthError{Kind: AccountLocked, LockedUntil: *p.LockUntil}
	}

	err = bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		updated, rerr := a.principals.RecordFailedLogin(ctx, p.ID, now, a.lockout)
		if rerr != nil {
			return nil, fmt.Errorf("record failed login: %w", rerr)
		}
		a.log.Warn("login fallido: contraseña incorrecta", "audit", true, "event", "LOGIN_FAILED", "userId", p.ID, "attempts", updated.FailedAttempts)
		if updated.IsLocked(now) {
			a.log.Warn("cuenta bloqueada por intentos fallidos", "audit", true, "event", "ACCOUNT_LOCKED", "userId", p.ID, "until", updated.LockUntil)
		}
		return nil, ErrInvalidLogin
	}
	if err != nil {
		return nil, fmt.Errorf("compare password: %w", err)
	}

	if err := a.principals.ClearFailedLogins(ctx, p.ID, now); err != nil {
		return nil, fmt.Errorf("clear failed logins: %w", err)
	}
	p.ClearFailedLogins(now)

	tok, err := a.IssueToken(p)
	if err != nil {
		return nil, err
	}
	a.log.Info("login exitoso", "audit", true, "event", "LOGIN_SUCCESS", "userId", p.ID)
	return &Session{Token: tok, Principal: p}, nil
}

type PrincipalUpdate struct {
	Role   *model.Role
	Active *bool
}

// UpdatePrincipal cambia rol o estado activo. Los tokens ya emitidos siguen
// siendo válidos, pero el Gate relee el usuario así que el cambio aplica ya.
func (a *AuthService) UpdatePrincipal(ctx context.Context, id string, upd PrincipalUpdate) (*model.Principal, error) {
	p, err := a.principals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return nil, fmt.Errorf("%w: rol %q", ErrInvalidPrincipal, *upd.Role)
		}
		p.Role = *upd.Role
	}
	if upd.Active != nil {
		p.Active = *upd.Active
	}
	p.UpdatedAt = a.clock.Now()
	if err := a.principals.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("save principal: %w", err)
	}
	a.log.Info("usuario actualizado", "audit", true, "event", "PRINCIPAL_UPDATED", "userId", p.ID, "role", p.Role, "active", p.Active)
	return p, nil
}

// ProfileUpdate son los campos que un usuario puede cambiar de sí mismo.
// Un campo nil no se toca.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Address   *model.Address
}

func (u ProfileUpdate) empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Phone == nil && u.Address == nil
}

// UpdateProfile actualiza el perfil propio. Email, rol y estado no pasan por aquí.
func (a *AuthService) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*model.Principal, error) {
	if upd.empty() {
		return nil, fmt.Errorf("%w: no hay campos para actualizar", ErrInvalidPrincipal)
	}
	p, err := a.principals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.FirstName != nil {
		name := strings.TrimSpace(*upd.FirstName)
		if name == "" {
			return nil, fmt.Errorf("%w: el nombre no puede quedar vacío", ErrInvalidPrincipal)
		}
		p.FirstName = name
	}
	if upd.LastName != nil {
		name := strings.TrimSpace(*upd.LastName)
		if name == "" {
			return nil, fmt.Errorf("%w: el apellido no puede quedar vacío", ErrInvalidPrincipal)
		}
		p.LastName = name
	}
	if upd.Phone != nil {
		p.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.Address != nil {
		addr := *upd.Address
		if addr.Country == "" {
			addr.Country = "Colombia"
		}
		p.Address = &addr
	}

	p.UpdatedAt = a.clock.Now()
	if err := a.principals.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("save principal: %w", err)
	}
	a.log.Info("perfil actualizado", "audit", true, "event", "PROFILE_UPDATED", "userId", p.ID)
	return p, nil
}
