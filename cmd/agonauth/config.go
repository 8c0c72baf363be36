package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/agonauth/internal/apperrors"
	"github.com/nkiryanov/agonauth/internal/logger"
	"github.com/nkiryanov/agonauth/internal/service/auth/tokenmanager"
)

const (
	defaultListenAddr    = "localhost:4000"
	defaultLoggingLevel  = logger.LevelInfo
	defaultEnvironment   = logger.EnvProduction
	defaultAccessTTL     = 15 * time.Minute
	defaultRefreshTTL    = 7 * 24 * time.Hour
	defaultAuthRateLimit = 60
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	// If empty users are kept in memory and lost on restart
	DatabaseDSN string

	// Secrets to sign access and refresh tokens. Both required and must differ
	AccessSecret  string
	RefreshSecret string

	// Token lifetimes
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Register and login requests per minute allowed for one client IP. 0 disables limit
	AuthRateLimit int

	// Clear live session when stale refresh token is replayed
	RevokeOnReuse bool

	// Origins allowed to call API from browser
	CORSOrigins []string

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:      defaultLoggingLevel,
		ListenAddr:    defaultListenAddr,
		AccessTTL:     defaultAccessTTL,
		RefreshTTL:    defaultRefreshTTL,
		AuthRateLimit: defaultAuthRateLimit,
		RevokeOnReuse: true,
		CORSOrigins:   []string{"*"},
		Environment:   defaultEnvironment,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Empty values are skipped below, so defaults survive
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			*o = value
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) (err error) {
			*o, err = parseDuration(value)
			return err
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) (err error) {
			*o, err = strconv.Atoi(value)
			return err
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) (err error) {
			*o, err = strconv.ParseBool(value)
			return err
		}
	}
	setList := func(o *[]string) func(value string) error {
		return func(value string) error {
			*o = splitList(value)
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":              setString(&c.ListenAddr),
		"DATABASE_URI":             setString(&c.DatabaseDSN),
		"ACCESS_TOKEN_SECRET":      setString(&c.AccessSecret),
		"REFRESH_TOKEN_SECRET":     setString(&c.RefreshSecret),
		"ACCESS_TOKEN_EXPIRES_IN":  setDuration(&c.AccessTTL),
		"REFRESH_TOKEN_EXPIRES_IN": setDuration(&c.RefreshTTL),
		"LOG_LEVEL":                setString(&c.LogLevel),
		"ENVIRONMENT":              setString(&c.Environment),
		"AUTH_RATE_LIMIT":          setInt(&c.AuthRateLimit),
		"REVOKE_ON_REUSE":          setBool(&c.RevokeOnReuse),
		"CORS_ALLOWED_ORIGINS":     setList(&c.CORSOrigins),
	}

	var errs []error
	for key, parseFn := range envMap {
		value := getenv(key)
		if value == "" {
			continue
		}
		if err := parseFn(value); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("agonauth", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string, in-memory storage if empty")
	fs.StringVar(&c.AccessSecret, "access-secret", c.AccessSecret, "Secret to sign access tokens")
	fs.StringVar(&c.RefreshSecret, "refresh-secret", c.RefreshSecret, "Secret to sign refresh tokens")
	fs.Var(newDurationValue(&c.AccessTTL), "access-ttl", "Access token lifetime (15m, 1h, 7d)")
	fs.Var(newDurationValue(&c.RefreshTTL), "refresh-ttl", "Refresh token lifetime (15m, 1h, 7d)")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.IntVar(&c.AuthRateLimit, "auth-rate-limit", c.AuthRateLimit, "Register and login requests per minute per client, 0 disables")
	fs.BoolVar(&c.RevokeOnReuse, "revoke-on-reuse", c.RevokeOnReuse, "End session when stale refresh token is replayed (--revoke-on-reuse=false keeps it)")
	fs.StringSliceVar(&c.CORSOrigins, "cors-origins", c.CORSOrigins, "Origins allowed to call API from browser")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	var errs []error

	if c.AccessSecret == "" || c.RefreshSecret == "" {
		errs = append(errs, apperrors.ErrMissingSecret)
	} else if c.AccessSecret == c.RefreshSecret {
		errs = append(errs, apperrors.ErrSecretsNotDistinct)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if !slices.Contains([]string{logger.LevelDebug, logger.LevelInfo, logger.LevelWarn, logger.LevelError}, c.LogLevel) {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	if c.Environment != logger.EnvDevelopment && c.Environment != logger.EnvProduction {
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Environment))
	}
	if c.AuthRateLimit < 0 {
		errs = append(errs, errors.New("auth rate limit must not be negative"))
	}

	return errors.Join(errs...)
}

// Settings for token manager. Valid only after Validate passed
func (c *Config) TokenConfig() tokenmanager.Config {
	return tokenmanager.Config{
		AccessSecret:  c.AccessSecret,
		RefreshSecret: c.RefreshSecret,
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
	}
}

func splitList(value string) []string {
	var items []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
