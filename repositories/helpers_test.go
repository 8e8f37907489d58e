package repositories_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"post-digest/db"
	"post-digest/models"
	"post-digest/repositories"
)

var (
	testPool      *pgxpool.Pool
	testContainer testcontainers.Container
	startErr      error
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	startErr = startPostgres(ctx)
	if startErr != nil {
		fmt.Fprintf(os.Stderr, "postgres container unavailable, store tests will be skipped: %v\n", startErr)
	}

	code := m.Run()

	if testPool != nil {
		testPool.Close()
	}
	if testContainer != nil {
		termCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = testContainer.Terminate(termCtx)
	}
	os.Exit(code)
}

func startPostgres(ctx context.Context) (err error) {
	// Docker 가 없으면 testcontainers 가 panic 하는 경우가 있다.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("testcontainers panic: %v", r)
		}
	}()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "digest",
		},
		WaitingFor: wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
			return fmt.Sprintf("postgres://postgres:postgres@%s:%s/digest?sslmode=disable", host, port.Port())
		}).WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return err
	}
	testContainer = container

	host, err := container.Host(ctx)
	if err != nil {
		return err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return err
	}

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/digest?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return err
	}
	testPool = pool

	return db.Migrate(ctx, pool)
}

// resetDatabase 는 테이블을 비우고 풀을 돌려준다. 컨테이너를 띄우지 못했으면 테스트를 건너뛴다.
func resetDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if startErr != nil || testPool == nil {
		t.Skipf("postgres not available: %v", startErr)
	}
	_, err := testPool.Exec(context.Background(), `
		TRUNCATE TABLE
			comment,
			item_summary,
			item_asset,
			item,
			source,
			model_cooldown
		RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return testPool
}

func createSource(t *testing.T, pool *pgxpool.Pool, code string) *models.Source {
	t.Helper()
	src, _, err := repositories.NewSourceRepository(pool).GetOrCreate(context.Background(), models.SourceConfig{
		Code:   code,
		Name:   code,
		Parser: "test",
		Metadata: models.SourceMetadata{
			Platform: "dcinside",
		},
	})
	require.NoError(t, err)
	return src
}

func countRows(t *testing.T, pool *pgxpool.Pool, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), query, args...).Scan(&n))
	return n
}

func strPtr(s string) *string { return &s }
