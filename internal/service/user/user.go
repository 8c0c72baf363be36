package user

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nkiryanov/agonauth/internal/apperrors"
	"github.com/nkiryanov/agonauth/internal/models"
	"github.com/nkiryanov/agonauth/internal/repository"
)

// UserService is the credential store: it owns user records and password checks
type UserService struct {
	hasher   PasswordHasher
	userRepo repository.UserRepo

	// Hash compared against when user not found, so both paths spend the same time
	dummyHash     string
	dummyHashOnce sync.Once
}

func NewService(hasher PasswordHasher, userRepo repository.UserRepo) *UserService {
	if hasher == nil {
		hasher = DefaultHasher
	}

	return &UserService{
		hasher:   hasher,
		userRepo: userRepo,
	}
}

func (s *UserService) CreateUser(ctx context.Context, name string, email string, password string) (models.User, error) {
	var user models.User
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	user, err = s.userRepo.CreateUser(ctx, repository.CreateUserParams{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return s.userRepo.GetUserByEmail(ctx, email)
}

func (s *UserService) FindByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.userRepo.GetUserByID(ctx, userID)
}

func (s *UserService) VerifyPassword(user models.User, password string) error {
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return apperrors.ErrInvalidCredentials
	}
	return nil
}

// Authenticate finds user by email and checks the password
// Unknown email and wrong password are both reported as apperrors.ErrInvalidCredentials
func (s *UserService) Authenticate(ctx context.Context, email string, password string) (models.User, error) {
	user, err := s.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		s.dummyHashOnce.Do(func() {
			// Errors here mean hasher is broken; real hashes would fail as well
			s.dummyHash, _ = s.hasher.Hash(uuid.NewString())
		})
		_ = s.hasher.Compare(s.dummyHash, password)
		return models.User{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.User{}, fmt.Errorf("can't get user. Err: %w", err)
	}

	if err := s.VerifyPassword(user, password); err != nil {
		return models.User{}, err
	}

	return user, nil
}
