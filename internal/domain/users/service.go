// Package users manages platform accounts and credential checks. Passwords
// are stored as bcrypt hashes; successful logins are exchanged for JWTs.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/tradeconnect/server/internal/auth"
	"github.com/tradeconnect/server/internal/clock"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserDisabled       = errors.New("user is disabled")
)

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}

type Repository interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByLogin(ctx context.Context, login string) (*User, error)
	List(ctx context.Context) ([]User, error)
	UpdateRole(ctx context.Context, id, role string) error
	SetActive(ctx context.Context, id string, active bool) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
}

type Service struct {
	repo     Repository
	tokens   *auth.JWTManager
	clock    clock.Clock
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewService(repo Repository, tokens *auth.JWTManager, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		tokens:   tokens,
		clock:    clk,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

type CreateInput struct {
	Username string `json:"username" validate:"required,min=3,max=64,alphanum"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=128"`
	Role     string `json:"role" validate:"required"`
}

// Create registers a new account. Usernames and emails are unique, stored
// lowercase.
func (s *Service) Create(ctx context.Context, in CreateInput) (*User, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	role, ok := auth.ParseRole(in.Role)
	if !ok {
		return nil, fmt.Errorf("unknown role %q", in.Role)
	}

	username := strings.ToLower(strings.TrimSpace(in.Username))
	existing, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock.Now()
	user := User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: string(hash),
		Role:         string(role),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		// The unique constraints on username and email backstop the lookup
		// above under concurrent creates.
		if errors.Is(err, ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info().Str("username", user.Username).Str("role", user.Role).Msg("user created")
	return &user, nil
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *User
}

// Authenticate checks credentials and issues a JWT. The login accepts either
// the username or the email; an unknown account and a bad password collapse
// into the same error so callers can't probe accounts.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*LoginResult, error) {
	user, err := s.repo.GetByLogin(ctx, strings.ToLower(strings.TrimSpace(login)))
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Burn a comparison anyway to keep timing uniform.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000uGZvUtrain1111111111111111111111"), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, ErrUserDisabled
	}

	token, err := s.tokens.Generate(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.tokens.Expiry())
	if err := s.repo.RecordLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("record login")
	}
	user.LastLoginAt = &now

	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

func (s *Service) UpdateRole(ctx context.Context, id, role string) (*User, error) {
	parsed, ok := auth.ParseRole(role)
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRole(ctx, id, string(parsed)); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.SetActive(ctx, id, active)
}

// Bootstrap ensures the configured admin account exists. Called once at
// startup; a no-op when the username is already taken.
func (s *Service) Bootstrap(ctx context.Context, username, email, password string) error {
	if username == "" || password == "" {
		return nil
	}
	existing, err := s.repo.GetByUsername(ctx, strings.ToLower(username))
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = s.Create(ctx, CreateInput{
		Username: username,
		Email:    email,
		Password: password,
		Role:     string(auth.RoleAdmin),
	})
	return err
}
