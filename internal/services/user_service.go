// Package services contains the business logic of the traffic statistics application.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/axellelanca/trafficstats/internal/auth"
	apperrors "github.com/axellelanca/trafficstats/internal/errors"
	"github.com/axellelanca/trafficstats/internal/models"
	"github.com/axellelanca/trafficstats/internal/repository"
)

// ErrUsernameRequired is returned when a user is created without a username.
var ErrUsernameRequired = errors.New("username is required")

// UserService manages the accounts whose traffic is attributed to them.
type UserService struct {
	users     repository.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewUserService creates a UserService that signs tokens with jwtSecret.
func NewUserService(users repository.UserRepository, jwtSecret string, tokenTTL time.Duration) *UserService {
	return &UserService{
		users:     users,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

// CreateUser registers a new account.
func (s *UserService) CreateUser(ctx context.Context, username, firstName, lastName, email string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	user := &models.User{
		Username:  username,
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Email:     strings.TrimSpace(email),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser looks a user up by numeric id or by username.
func (s *UserService) GetUser(ctx context.Context, ref string) (*models.User, error) {
	var (
		user *models.User
		err  error
	)
	if id, parseErr := strconv.ParseUint(ref, 10, 64); parseErr == nil {
		user, err = s.users.GetByID(ctx, uint(id))
	} else {
		user, err = s.users.GetByUsername(ctx, ref)
	}
	if repository.IsNotFound(err) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %q: %w", ref, err)
	}
	return user, nil
}

// IssueToken mints a bearer token that authenticates requests as the user.
func (s *UserService) IssueToken(ctx context.Context, ref string) (string, *models.User, error) {
	user, err := s.GetUser(ctx, ref)
	if err != nil {
		return "", nil, err
	}
	token, err := auth.IssueToken(s.jwtSecret, user.ID, user.Username, s.tokenTTL, s.now())
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, user, nil
}

// DeleteUser removes the account; its traffic stays in the statistics as anonymous.
func (s *UserService) DeleteUser(ctx context.Context, ref string) (*models.User, error) {
	user, err := s.GetUser(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
