package testutil

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/nkiryanov/agonauth/internal/db"
)

// Return random free port on 127.0.0.1 address
func RandomPort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		return 0, err
	}
	defer ln.Close() // nolint:errcheck

	addr := ln.Addr().(*net.TCPAddr)
	return addr.Port, nil
}

// Migrated postgres running in docker
type Postgres struct {
	DSN  string
	Pool *pgxpool.Pool
}

// Start postgres in docker with users schema applied
// Container is removed when the test and its subtests finish
// Test is skipped in -short mode or if docker is not available
func StartPostgres(t *testing.T) *Postgres {
	t.Helper()

	if testing.Short() {
		t.Skip("postgres tests are skipped in short mode")
	}
	if out, err := exec.Command("docker", "info", "--format", "{{.ServerVersion}}").CombinedOutput(); err != nil {
		t.Skipf("docker is not available: %s", out)
	}

	port, err := RandomPort()
	require.NoError(t, err, "Error happened when acquiring random port to start postgres")

	container, err := postgres.Run(t.Context(),
		"postgres:17-alpine",
		postgres.WithDatabase("agonauth-test"),
		postgres.WithUsername("agonauth"),
		postgres.WithPassword("pwd"),
		postgres.BasicWaitStrategies(),
		testcontainers.CustomizeRequestOption(func(req *testcontainers.GenericContainerRequest) error {
			req.ExposedPorts = []string{fmt.Sprintf("%d:5432", port)}
			return nil
		}),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "Error happened when starting container with postgres, deal with it please")

	dsn, err := container.ConnectionString(t.Context())
	require.NoError(t, err, "Error happened when getting connection string from container with postgres")
	t.Logf("Container with pg started, DSN=%v", dsn)

	pool, err := db.ConnectAndMigrate(t.Context(), dsn)
	require.NoError(t, err, "Error happened when connecting to postgres and migrating schema")
	t.Cleanup(pool.Close)

	return &Postgres{DSN: dsn, Pool: pool}
}

// Remove every user so the next test starts from empty table
func (p *Postgres) TruncateUsers(t *testing.T) {
	t.Helper()

	_, err := p.Pool.Exec(context.Background(), "TRUNCATE users")
	require.NoError(t, err, "users table should be truncated")
}

// Number of users holding a refresh token
func (p *Postgres) LiveSessions(t *testing.T) int {
	t.Helper()

	var n int
	err := p.Pool.QueryRow(t.Context(), "SELECT count(*) FROM users WHERE refresh_token IS NOT NULL").Scan(&n)
	require.NoError(t, err)
	return n
}

type dbtx interface {
	Begin(context.Context) (pgx.Tx, error)
}

// Create db transaction and rollback at test end
// So you may be sure db remains unchanged when test stops
func WithTx(dbtx dbtx, t *testing.T, testFunc func(tx pgx.Tx)) {
	tx, err := dbtx.Begin(t.Context())
	require.NoError(t, err)

	defer func() {
		err := tx.Rollback(t.Context())
		require.NoError(t, err)
	}()

	testFunc(tx)
}
