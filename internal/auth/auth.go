package auth

import (
	"context"
	"errors"
	"fmt"

	"dailyjokes/internal/database"
	"dailyjokes/internal/models"
	"dailyjokes/pkg/logger"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

type AdminStore interface {
	GetByUsername(ctx context.Context, username string) (*models.Admin, error)
	Create(ctx context.Context, username, passwordHash string) (*models.Admin, error)
	Count(ctx context.Context) (int, error)
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verifier is a plain credential check: username and password in, admin or
// ErrInvalidCredentials out. No session or middleware machinery.
type Verifier struct {
	admins AdminStore
}

func NewVerifier(admins AdminStore) *Verifier {
	return &Verifier{admins: admins}
}

func (v *Verifier) Verify(ctx context.Context, username, password string) (*models.Admin, error) {
	admin, err := v.admins.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrAdminNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return admin, nil
}

// EnsureDefaultAdmin seeds the admin/admin account when no admin exists yet,
// matching a fresh install's bootstrap behavior.
func (v *Verifier) EnsureDefaultAdmin(ctx context.Context) error {
	count, err := v.admins.Count(ctx)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := HashPassword("admin")
	if err != nil {
		return err
	}
	if _, err := v.admins.Create(ctx, "admin", hash); err != nil {
		return fmt.Errorf("create default admin: %w", err)
	}

	logger.Warn("default admin account created, change its password",
		logger.String("username", "admin"),
	)
	return nil
}
