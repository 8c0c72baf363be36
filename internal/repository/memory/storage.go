// Package memory keeps users in process memory.
//
// It follows the same contracts as the postgres repository and is used when the service runs
// without a database (development) and in unit tests. Data is lost on restart.
// Transactions see a snapshot taken when they start and are merged back on commit.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/agonauth/internal/apperrors"
	"github.com/nkiryanov/agonauth/internal/models"
	"github.com/nkiryanov/agonauth/internal/repository"
)

// Returned on commit when a user changed in transaction was changed by someone else meanwhile
var ErrConflict = errors.New("memory: user was modified by concurrent request")

type state struct {
	mu      sync.Mutex
	users   map[uuid.UUID]models.User
	byEmail map[string]uuid.UUID
}

func newState() *state {
	return &state{
		users:   make(map[uuid.UUID]models.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (st *state) clone() *state {
	st.mu.Lock()
	defer st.mu.Unlock()

	return &state{
		users:   maps.Clone(st.users),
		byEmail: maps.Clone(st.byEmail),
	}
}

// Apply users that staged has changed since base to st
// Nothing is applied if any of them conflicts
func (st *state) merge(base *state, staged *state) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	changed := make([]models.User, 0)
	for id, user := range staged.users {
		was, existed := base.users[id]
		switch {
		case existed && was == user:
			continue
		case existed:
			if st.users[id] != was {
				return fmt.Errorf("%w: %s", ErrConflict, id)
			}
		default:
			if _, taken := st.byEmail[user.Email]; taken {
				return apperrors.ErrUserAlreadyExists
			}
		}
		changed = append(changed, user)
	}

	for _, user := range changed {
		st.users[user.ID] = user
		st.byEmail[user.Email] = user.ID
	}
	return nil
}

type Storage struct {
	state *state
}

func NewStorage() *Storage {
	return &Storage{state: newState()}
}

func (s *Storage) User() repository.UserRepo {
	return &UserRepo{state: s.state}
}

// InTx runs fn against a private copy of the store
// Changes are merged back only if fn succeeds, so a failed fn never touches what others wrote meanwhile
func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	base := s.state.clone()
	staged := base.clone()

	if err := fn(&Storage{state: staged}); err != nil {
		return err
	}

	return s.state.merge(base, staged)
}

type UserRepo struct {
	state *state
}

func (r *UserRepo) CreateUser(_ context.Context, arg repository.CreateUserParams) (models.User, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	if _, ok := r.state.byEmail[arg.Email]; ok {
		return models.User{}, apperrors.ErrUserAlreadyExists
	}

	user := models.User{
		ID:           uuid.New(),
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
		Name:         arg.Name,
		Email:        arg.Email,
		PasswordHash: arg.PasswordHash,
	}
	r.state.users[user.ID] = user
	r.state.byEmail[user.Email] = user.ID

	return user, nil
}

func (r *UserRepo) GetUserByID(_ context.Context, userID uuid.UUID) (models.User, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	user, ok := r.state.users[userID]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return user, nil
}

func (r *UserRepo) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	id, ok := r.state.byEmail[email]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return r.state.users[id], nil
}

func (r *UserRepo) GetUserByRefreshToken(_ context.Context, token string) (models.User, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	user, ok := r.findByTokenLocked(token)
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return user, nil
}

func (r *UserRepo) SetRefreshToken(_ context.Context, userID uuid.UUID, token string) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	user, ok := r.state.users[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	user.RefreshToken = token
	r.state.users[userID] = user

	return nil
}

func (r *UserRepo) SwapRefreshToken(_ context.Context, userID uuid.UUID, expected string, next string) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	user, ok := r.state.users[userID]
	if !ok || expected == "" || user.RefreshToken != expected {
		return apperrors.ErrRefreshTokenNotCurrent
	}
	user.RefreshToken = next
	r.state.users[userID] = user

	return nil
}

func (r *UserRepo) ClearRefreshToken(_ context.Context, userID uuid.UUID) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	if user, ok := r.state.users[userID]; ok {
		user.RefreshToken = ""
		r.state.users[userID] = user
	}
	return nil
}

func (r *UserRepo) ClearRefreshTokenByValue(_ context.Context, token string) (bool, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	user, ok := r.findByTokenLocked(token)
	if !ok {
		return false, nil
	}
	user.RefreshToken = ""
	r.state.users[user.ID] = user

	return true, nil
}

func (r *UserRepo) findByTokenLocked(token string) (models.User, bool) {
	if token == "" {
		return models.User{}, false
	}
	for _, user := range r.state.users {
		if user.RefreshToken == token {
			return user, true
		}
	}
	return models.User{}, false
}
