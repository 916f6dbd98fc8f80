package services

import (
	"context"
	"errors"
	"strings"

	"github.com/baharkarakas/welfare-backend/internal/apperr"
	"github.com/baharkarakas/welfare-backend/internal/auth"
	"github.com/baharkarakas/welfare-backend/internal/models"
	repo "github.com/baharkarakas/welfare-backend/internal/repository"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type UserService struct {
	users repo.Users
	tm    *auth.TokenManager
}

func NewUserService(users repo.Users, tm *auth.TokenManager) *UserService {
	return &UserService{users: users, tm: tm}
}

type CreateUserInput struct {
	AdmissionNumber string
	FullName        string
	Email           string
	Password        string
	Role            string
}

func (s *UserService) Create(ctx context.Context, in CreateUserInput) (models.User, error) {
	const op = "user.Create"

	u := models.User{
		AdmissionNumber: strings.TrimSpace(in.AdmissionNumber),
		FullName:        strings.TrimSpace(in.FullName),
		Email:           in.Email,
		Role:            in.Role,
		IsActive:        true,
	}
	if err := u.Validate(); err != nil {
		return models.User{}, apperr.Validation(op, "%v", err)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return models.User{}, apperr.Validation(op, "%v", err)
	}
	u.PasswordHash = hash
	created, err := s.users.Create(ctx, u)
	if errors.Is(err, repo.ErrDuplicate) {
		return models.User{}, apperr.InvalidState(op, "a user with this email or admission number exists")
	}
	return created, err
}

func (s *UserService) Login(ctx context.Context, email, password string) (auth.TokenPair, models.User, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repo.ErrNotFound) {
		return auth.TokenPair{}, models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return auth.TokenPair{}, models.User{}, err
	}
	if !u.IsActive || auth.VerifyPassword(password, u.PasswordHash) != nil {
		return auth.TokenPair{}, models.User{}, ErrInvalidCredentials
	}
	pair, err := s.tm.GeneratePair(u.ID, u.Role)
	return pair, u, err
}

// Refresh issues a new pair, re-reading the user so a revoked account or a
// changed role takes effect.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	claims, err := s.tm.ParseRefresh(refreshToken)
	if err != nil {
		return auth.TokenPair{}, ErrInvalidCredentials
	}
	u, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return auth.TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return auth.TokenPair{}, err
	}
	if !u.IsActive {
		return auth.TokenPair{}, ErrInvalidCredentials
	}
	return s.tm.GeneratePair(u.ID, u.Role)
}
