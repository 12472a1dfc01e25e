package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"taxdesk/internal/core"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong    = errors.New("password must be at most 72 bytes")
	ErrEmailExists        = errors.New("email already registered")
)

const (
	minPasswordLength = 8
	// bcrypt refuses longer inputs.
	maxPasswordLength = 72
)

// UserStore is the persistence the authenticator needs.
type UserStore interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	UserByEmail(ctx context.Context, email string) (core.User, error)
}

// PasswordAuthenticator registers and verifies bcrypt password accounts.
type PasswordAuthenticator struct {
	store UserStore
	cost  int
}

func NewPasswordAuthenticator(store UserStore) *PasswordAuthenticator {
	return &PasswordAuthenticator{store: store, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (a *PasswordAuthenticator) WithCost(cost int) *PasswordAuthenticator {
	a.cost = cost
	return a
}

func (a *PasswordAuthenticator) ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	if len(password) > maxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// Register creates an account. The email is normalized first; a taken
// email yields ErrEmailExists.
func (a *PasswordAuthenticator) Register(ctx context.Context, email, name, password string) (core.User, error) {
	email, err := core.NormalizeEmail(email)
	if err != nil {
		return core.User{}, err
	}
	if err := a.ValidatePassword(password); err != nil {
		return core.User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := a.store.CreateUser(ctx, core.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hashed),
	})
	if errors.Is(err, core.ErrConflict) {
		return core.User{}, ErrEmailExists
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Authenticate returns the account matching email and password. Unknown
// emails and wrong passwords both yield ErrInvalidCredentials.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, email, password string) (core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := a.store.UserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return core.User{}, ErrInvalidCredentials
	}
	return u, nil
}
