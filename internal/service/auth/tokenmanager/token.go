package tokenmanager

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/agonauth/internal/apperrors"
	"github.com/nkiryanov/agonauth/internal/models"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultSigningMethod   = "HS256"
)

type AccessClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
	Email  string    `json:"email"`
}

type RefreshClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
}

// Token manager with sensible default
type Config struct {
	// Secrets to sign access and refresh tokens
	// Both required and must differ: a leaked token of one kind must not pass as the other
	AccessSecret  string
	RefreshSecret string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Clock used for issuing and verification. time.Now if not set
	Now func() time.Time
}

type TokenManager struct {
	accessKey  []byte
	refreshKey []byte

	alg jwt.SigningMethod

	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, apperrors.ErrMissingSecret
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, apperrors.ErrSecretsNotDistinct
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("signing method %q is not supported, HMAC family expected", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("token lifetimes must be positive")
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &TokenManager{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		alg:        alg,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}, nil
}

// NumericDate has second precision, so truncate to keep ExpiresAt equal to what the token says
func (m *TokenManager) issuedAt() time.Time {
	return m.now().Truncate(time.Second)
}

func registeredClaims(userID uuid.UUID, now time.Time, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(), // makes every token unique even if issued within the same second
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (m *TokenManager) IssueAccess(user models.User) (models.IssuedToken, error) {
	now := m.issuedAt()
	expiresAt := now.Add(m.accessTTL)

	token := jwt.NewWithClaims(m.alg, AccessClaims{
		RegisteredClaims: registeredClaims(user.ID, now, expiresAt),
		UserID:           user.ID,
		Email:            user.Email,
	})
	value, err := token.SignedString(m.accessKey)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: value, ExpiresAt: expiresAt}, nil
}

func (m *TokenManager) IssueRefresh(user models.User) (models.IssuedToken, error) {
	now := m.issuedAt()
	expiresAt := now.Add(m.refreshTTL)

	token := jwt.NewWithClaims(m.alg, RefreshClaims{
		RegisteredClaims: registeredClaims(user.ID, now, expiresAt),
		UserID:           user.ID,
	})
	value, err := token.SignedString(m.refreshKey)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing refresh token. Err: %w", err)
	}

	return models.IssuedToken{Value: value, ExpiresAt: expiresAt}, nil
}

// IssuePair does not touch any storage: recording the refresh token is up to the caller
func (m *TokenManager) IssuePair(user models.User) (models.TokenPair, error) {
	access, err := m.IssueAccess(user)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := m.IssueRefresh(user)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// Parse and validate access token
// Any failure is reported as apperrors.ErrAccessTokenInvalid with the jwt error wrapped for logs
func (m *TokenManager) ParseAccess(access string) (models.Identity, error) {
	claims := &AccessClaims{}

	_, err := jwt.ParseWithClaims(access, claims, m.keyFunc(m.accessKey), m.parserOptions()...)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %w", apperrors.ErrAccessTokenInvalid, err)
	}
	if claims.UserID == uuid.Nil {
		return models.Identity{}, fmt.Errorf("%w: token has no subject", apperrors.ErrAccessTokenInvalid)
	}

	return models.Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

// Parse and validate refresh token signature and expiry
// Whether the token is still the current one is not checked here
func (m *TokenManager) ParseRefresh(refresh string) (RefreshClaims, error) {
	claims := RefreshClaims{}

	_, err := jwt.ParseWithClaims(refresh, &claims, m.keyFunc(m.refreshKey), m.parserOptions()...)
	switch {
	case err == nil && claims.UserID == uuid.Nil:
		return claims, fmt.Errorf("%w: token has no subject", apperrors.ErrRefreshTokenInvalid)
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return claims, fmt.Errorf("%w: %w", apperrors.ErrRefreshTokenExpired, err)
	default:
		return claims, fmt.Errorf("%w: %w", apperrors.ErrRefreshTokenInvalid, err)
	}
}

func (m *TokenManager) keyFunc(key []byte) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		return key, nil
	}
}

func (m *TokenManager) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	}
}
