package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"post-digest/config"
	"post-digest/internal/logger"
)

var (
	poolOnce sync.Once
	pool     *pgxpool.Pool
)

// Init 은 전역 커넥션 풀을 만들고 마이그레이션을 적용한다. 여러 번 호출해도 한 번만 수행된다.
func Init(ctx context.Context) error {
	var initErr error
	poolOnce.Do(func() {
		cfg := config.GetConfig().Database
		p, err := Open(ctx, cfg)
		if err != nil {
			initErr = err
			return
		}
		if err := Migrate(ctx, p); err != nil {
			p.Close()
			initErr = err
			return
		}
		pool = p
		logger.Log.Infof("postgres connected (%s:%d/%s) and migrations applied", cfg.Host, cfg.Port, cfg.Name)
	})
	return initErr
}

// Open 은 설정으로 풀을 만들고 Ping 으로 연결을 확인한다.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return p, nil
}

func Pool() *pgxpool.Pool { return pool }

// Close 는 전역 풀을 닫는다.
func Close() {
	if pool != nil {
		pool.Close()
	}
}
