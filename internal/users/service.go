package users

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/gastromanager/gastromanager/internal/rbac"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, input CreateInput, passwordHash string) (User, error)
	UpdateUser(ctx context.Context, id int64, input UpdateInput, passwordHash string) error
}

// Service handles staff account business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns all staff accounts.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one account.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser registers a new staff account.
func (s *Service) CreateUser(ctx context.Context, input CreateInput) (User, error) {
	input.Username = strings.TrimSpace(strings.ToLower(input.Username))
	input.FullName = strings.TrimSpace(input.FullName)
	if len(input.Username) < 3 {
		return User{}, errors.New("username must be at least 3 characters")
	}
	if !rbac.ValidLevel(rbac.Level(input.Level)) {
		return User{}, errors.New("unknown staff level")
	}
	if len(input.Password) < 8 {
		return User{}, errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return s.repo.CreateUser(ctx, input, string(hash))
}

// UpdateUser edits a staff account. An empty password keeps the current
// one.
func (s *Service) UpdateUser(ctx context.Context, id int64, input UpdateInput) error {
	input.FullName = strings.TrimSpace(input.FullName)
	if !rbac.ValidLevel(rbac.Level(input.Level)) {
		return errors.New("unknown staff level")
	}
	var hash string
	if input.Password != "" {
		if len(input.Password) < 8 {
			return errors.New("password must be at least 8 characters")
		}
		h, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		hash = string(h)
	}
	return s.repo.UpdateUser(ctx, id, input, hash)
}
