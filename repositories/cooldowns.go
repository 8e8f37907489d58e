package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"post-digest/models"
)

// CooldownRepository 는 여러 워커가 공유하는 모델 쿨다운 기록이다.
type CooldownRepository struct {
	db DB
}

func NewCooldownRepository(db DB) *CooldownRepository {
	return &CooldownRepository{db: db}
}

// Get 은 모델의 쿨다운 기록을 반환한다. 기록이 없으면 (nil, nil).
func (r *CooldownRepository) Get(ctx context.Context, model string) (*models.ModelCooldown, error) {
	row, err := queryRowBuilder(ctx, r.db, psql.
		Select("model_name", "cooldown_until", "last_failure_reason", "updated_at").
		From("model_cooldown").
		Where(sq.Eq{"model_name": model}))
	if err != nil {
		return nil, err
	}
	var c models.ModelCooldown
	err = row.Scan(&c.ModelName, &c.CooldownUntil, &c.LastFailureReason, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cooldown of %s: %w", model, err)
	}
	return &c, nil
}

// Set 은 모델의 쿨다운 종료 시각을 기록한다. 이미 더 늦은 종료 시각이 있으면 그대로 둔다.
func (r *CooldownRepository) Set(ctx context.Context, model string, until time.Time, reason string) error {
	_, err := execBuilder(ctx, r.db, psql.Insert("model_cooldown").
		Columns("model_name", "cooldown_until", "last_failure_reason", "updated_at").
		Values(model, until.UTC(), reason, sq.Expr("NOW()")).
		Suffix(`ON CONFLICT (model_name) DO UPDATE SET
	cooldown_until = GREATEST(model_cooldown.cooldown_until, EXCLUDED.cooldown_until),
	last_failure_reason = EXCLUDED.last_failure_reason,
	updated_at = NOW()`))
	if err != nil {
		return fmt.Errorf("failed to store cooldown of %s: %w", model, err)
	}
	return nil
}

func (r *CooldownRepository) Clear(ctx context.Context, model string) error {
	if _, err := execBuilder(ctx, r.db, psql.Delete("model_cooldown").Where(sq.Eq{"model_name": model})); err != nil {
		return fmt.Errorf("failed to clear cooldown of %s: %w", model, err)
	}
	return nil
}

func (r *CooldownRepository) List(ctx context.Context) ([]models.ModelCooldown, error) {
	rows, err := queryBuilder(ctx, r.db, psql.
		Select("model_name", "cooldown_until", "last_failure_reason", "updated_at").
		From("model_cooldown").
		OrderBy("model_name"))
	if err != nil {
		return nil, fmt.Errorf("failed to list cooldowns: %w", err)
	}
	defer rows.Close()

	var out []models.ModelCooldown
	for rows.Next() {
		var c models.ModelCooldown
		if err := rows.Scan(&c.ModelName, &c.CooldownUntil, &c.LastFailureReason, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
