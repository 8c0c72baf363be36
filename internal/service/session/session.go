package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/agonauth/internal/apperrors"
	"github.com/nkiryanov/agonauth/internal/repository"
)

// Registry keeps at most one live refresh token per user
// Recording a new token makes every previous one unusable
type Registry struct {
	userRepo repository.UserRepo
}

func NewRegistry(userRepo repository.UserRepo) *Registry {
	return &Registry{userRepo: userRepo}
}

// Make token the only current refresh token of the user
func (r *Registry) Record(ctx context.Context, userID uuid.UUID, token string) error {
	if token == "" {
		return errors.New("refresh token must not be empty")
	}
	return r.userRepo.SetRefreshToken(ctx, userID, token)
}

// Report whether token is the current refresh token of the user
func (r *Registry) IsCurrent(ctx context.Context, userID uuid.UUID, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	user, err := r.userRepo.GetUserByID(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("can't get user session. Err: %w", err)
	}

	return user.RefreshToken == token, nil
}

// Replace presented token with the next one
// Only one of concurrent rotations of the same token wins, others get apperrors.ErrRefreshTokenNotCurrent
func (r *Registry) Rotate(ctx context.Context, userID uuid.UUID, presented string, next string) error {
	if presented == "" || next == "" {
		return apperrors.ErrRefreshTokenNotCurrent
	}
	return r.userRepo.SwapRefreshToken(ctx, userID, presented, next)
}

// End the session of the user whatever token it holds
func (r *Registry) Clear(ctx context.Context, userID uuid.UUID) error {
	return r.userRepo.ClearRefreshToken(ctx, userID)
}

// End the session holding token. Unknown or empty token is not an error
func (r *Registry) ClearByToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	return r.userRepo.ClearRefreshTokenByValue(ctx, token)
}
