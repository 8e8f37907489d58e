package repositories

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var (
	ErrItemNotFound   = errors.New("item not found")
	ErrSourceNotFound = errors.New("source not found")
)

// querier 는 *pgxpool.Pool 과 pgx.Tx 가 공통으로 제공하는 메서드다.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB 는 저장소가 사용하는 연결이다. *pgxpool.Pool 이 만족한다.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

func execBuilder(ctx context.Context, q querier, b sq.Sqlizer) (pgconn.CommandTag, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return q.Exec(ctx, sqlStr, args...)
}

func queryRowBuilder(ctx context.Context, q querier, b sq.Sqlizer) (pgx.Row, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return q.QueryRow(ctx, sqlStr, args...), nil
}

func queryBuilder(ctx context.Context, q querier, b sq.Sqlizer) (pgx.Rows, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return q.Query(ctx, sqlStr, args...)
}
