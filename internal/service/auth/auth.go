package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nkiryanov/agonauth/internal/apperrors"
	"github.com/nkiryanov/agonauth/internal/models"
	"github.com/nkiryanov/agonauth/internal/repository"
	"github.com/nkiryanov/agonauth/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/agonauth/internal/service/session"
	"github.com/nkiryanov/agonauth/internal/service/user"
)

const (
	defaultAccessHeaderName = "Authorization"
	defaultAccessAuthScheme = "Bearer"
)

type Config struct {
	// Hasher to use during user registration or login process
	// user.DefaultHasher if not set
	Hasher user.PasswordHasher

	// Clear live session when a refresh token that is not current any more is presented
	RevokeOnReuse bool

	// Notified once per completed flow. Nothing is notified if not set
	Observer FlowObserver
}

// User with freshly issued token pair
type AuthResult struct {
	User   models.User
	Tokens models.TokenPair
}

type AuthService struct {
	accessHeaderName string
	accessAuthScheme string

	hasher        user.PasswordHasher
	revokeOnReuse bool
	observer      FlowObserver

	tokens  *tokenmanager.TokenManager
	storage repository.Storage

	// Bound to storage outside of transactions
	users    *user.UserService
	sessions *session.Registry
}

func NewService(cfg Config, tokens *tokenmanager.TokenManager, storage repository.Storage) (*AuthService, error) {
	if tokens == nil || storage == nil {
		return nil, errors.New("token manager and storage must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = user.DefaultHasher
	}

	observer := cfg.Observer
	if observer == nil {
		observer = noOpObserver{}
	}

	return &AuthService{
		accessHeaderName: defaultAccessHeaderName,
		accessAuthScheme: defaultAccessAuthScheme,
		hasher:           hasher,
		revokeOnReuse:    cfg.RevokeOnReuse,
		observer:         observer,
		tokens:           tokens,
		storage:          storage,
		users:            user.NewService(hasher, storage.User()),
		sessions:         session.NewRegistry(storage.User()),
	}, nil
}

// Header the access token is expected in
func (s *AuthService) AccessHeaderName() string {
	return s.accessHeaderName
}

// Create user and start its session
// User is not stored if the session could not be recorded
func (s *AuthService) Register(ctx context.Context, name string, email string, password string) (res AuthResult, err error) {
	defer s.observe(FlowRegister, time.Now(), &err)

	if name == "" || email == "" || password == "" {
		return AuthResult{}, apperrors.ErrFieldsRequired
	}

	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		u, err := user.NewService(s.hasher, storage.User()).CreateUser(ctx, name, email, password)
		if err != nil {
			return err
		}

		res, err = s.startSession(ctx, session.NewRegistry(storage.User()), u)
		return err
	})
	if err != nil {
		return AuthResult{}, err
	}

	return res, nil
}

// Check credentials and start new session
// Previous session of the user (if any) is replaced
func (s *AuthService) Login(ctx context.Context, email string, password string) (res AuthResult, err error) {
	defer s.observe(FlowLogin, time.Now(), &err)

	if email == "" || password == "" {
		return AuthResult{}, apperrors.ErrFieldsRequired
	}

	u, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		return AuthResult{}, err
	}

	return s.startSession(ctx, s.sessions, u)
}

func (s *AuthService) startSession(ctx context.Context, sessions *session.Registry, u models.User) (AuthResult, error) {
	pair, err := s.tokens.IssuePair(u)
	if err != nil {
		return AuthResult{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	if err := sessions.Record(ctx, u.ID, pair.Refresh.Value); err != nil {
		return AuthResult{}, fmt.Errorf("can't record session. Err: %w", err)
	}

	u.RefreshToken = pair.Refresh.Value
	return AuthResult{User: u, Tokens: pair}, nil
}

// Exchange current refresh token for new pair
// Errors other than apperrors.ErrRefreshToken* are infrastructure failures
func (s *AuthService) Refresh(ctx context.Context, refresh string) (pair models.TokenPair, err error) {
	defer s.observe(FlowRefresh, time.Now(), &err)

	claims, err := s.tokens.ParseRefresh(refresh)
	if err != nil {
		return pair, err
	}

	current, err := s.sessions.IsCurrent(ctx, claims.UserID, refresh)
	if err != nil {
		return pair, err
	}
	if !current {
		return pair, s.rejectReused(ctx, claims)
	}

	u, err := s.users.FindByID(ctx, claims.UserID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return pair, fmt.Errorf("%w: user is gone", apperrors.ErrRefreshTokenInvalid)
	case err != nil:
		return pair, fmt.Errorf("can't get user. Err: %w", err)
	}

	pair, err = s.tokens.IssuePair(u)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	// Someone could rotate the same token between the check above and now
	err = s.sessions.Rotate(ctx, u.ID, refresh, pair.Refresh.Value)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenNotCurrent):
		return models.TokenPair{}, s.rejectReused(ctx, claims)
	case err != nil:
		return models.TokenPair{}, fmt.Errorf("can't rotate session. Err: %w", err)
	}

	return pair, nil
}

func (s *AuthService) rejectReused(ctx context.Context, claims tokenmanager.RefreshClaims) error {
	if s.revokeOnReuse {
		if err := s.sessions.Clear(ctx, claims.UserID); err != nil {
			return fmt.Errorf("can't revoke session on token reuse. Err: %w", err)
		}
	}
	return fmt.Errorf("%w: token %s", apperrors.ErrRefreshTokenNotCurrent, claims.ID)
}

// End the session holding the refresh token
// Unknown, expired or already cleared tokens are fine: logout never tells if session existed
func (s *AuthService) Logout(ctx context.Context, refresh string) (err error) {
	defer s.observe(FlowLogout, time.Now(), &err)

	if _, err := s.sessions.ClearByToken(ctx, refresh); err != nil {
		return fmt.Errorf("can't clear session. Err: %w", err)
	}
	return nil
}

// Verify access token from header value 'Bearer <token>'
// Storage is not touched: access token stays valid until it expires even after logout
func (s *AuthService) Authenticate(header string) (models.Identity, error) {
	if header == "" {
		return models.Identity{}, apperrors.ErrAccessTokenMissing
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, s.accessAuthScheme) || token == "" || strings.ContainsAny(token, " \t") {
		return models.Identity{}, apperrors.ErrAccessTokenMalformed
	}

	return s.tokens.ParseAccess(token)
}

func (s *AuthService) observe(flow Flow, started time.Time, err *error) {
	s.observer.FlowCompleted(flow, outcomeOf(*err), time.Since(started))
}
