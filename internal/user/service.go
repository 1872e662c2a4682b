package user

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/avolkov/labelscan/internal/storage"
	"github.com/avolkov/labelscan/internal/types/user"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists       = errors.New("user already exists")
	ErrInvalidCreds     = errors.New("invalid credentials")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrUserNotFound     = errors.New("user not found")
)

type Service struct {
	repo      UserRepository
	jwtSecret []byte
	jwtTTL    time.Duration
}

func NewService(repo UserRepository, jwtSecret []byte, jwtTTL time.Duration) *Service {
	return &Service{repo: repo, jwtSecret: jwtSecret, jwtTTL: jwtTTL}
}

// Authenticate checks admin credentials and issues a signed token. Only
// admin accounts may log in to the panel.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, error) {
	u, err := s.repo.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil || !u.IsAdmin {
		return "", ErrInvalidCreds
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCreds
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   u.Email,
		ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

func (s *Service) Create(ctx context.Context, name, email, password string, isAdmin bool) (*user.User, error) {
	if len(password) < 8 {
		return nil, ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &user.User{
		Name:         strings.TrimSpace(name),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hash),
		IsAdmin:      isAdmin,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrUniqueViolation) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*user.User, error) {
	u, err := s.repo.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) List(ctx context.Context) ([]user.User, error) {
	return s.repo.ListUsers(ctx)
}

// Update replaces name, email and admin flag; the password is re-hashed only
// when a new one is supplied.
func (s *Service) Update(ctx context.Context, id int64, name, email, password string, isAdmin bool) (*user.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if password != "" {
		if len(password) < 8 {
			return nil, ErrPasswordTooShort
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = string(hash)
	}
	u.Name = strings.TrimSpace(name)
	u.Email = strings.ToLower(strings.TrimSpace(email))
	u.IsAdmin = isAdmin
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrUniqueViolation) {
			return nil, ErrUserExists
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// EnsureAdmin seeds the first admin account when the users table is empty.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	n, err := s.repo.CountUsers(ctx)
	if err != nil {
		return err
	}
	if n > 0 || email == "" || password == "" {
		return nil
	}
	_, err = s.Create(ctx, "Administrator", email, password, true)
	return err
}
