package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/agonauth/internal/models"
)

type CreateUserParams struct {
	Name         string
	Email        string
	PasswordHash string
}

// User repository interface
// The user row also keeps the single current refresh token of the account
type UserRepo interface {
	// Create user
	// If user with email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error)

	// Get user by id, email or current refresh token
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByRefreshToken(ctx context.Context, token string) (models.User, error)

	// Overwrite current refresh token unconditionally
	// If user not found must return apperrors.ErrUserNotFound
	SetRefreshToken(ctx context.Context, userID uuid.UUID, token string) error

	// Replace current refresh token only if it still equals to expected one
	// Has to be atomic: of two concurrent swaps with the same expected value only one may succeed
	// If current token differs (or user not found) must return apperrors.ErrRefreshTokenNotCurrent
	SwapRefreshToken(ctx context.Context, userID uuid.UUID, expected string, next string) error

	// Forget current refresh token of the user. Idempotent
	ClearRefreshToken(ctx context.Context, userID uuid.UUID) error

	// Forget refresh token wherever it is stored
	// Return false if no user holds the token. Idempotent
	ClearRefreshTokenByValue(ctx context.Context, token string) (cleared bool, err error)
}

type Storage interface {
	User() UserRepo

	// Run fn within transaction: every change made through the passed storage is committed
	// if fn returns nil and rolled back otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
