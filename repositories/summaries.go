package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"post-digest/models"
)

type SummaryRepository struct {
	db DB
}

func NewSummaryRepository(db DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// ApplySummary 는 아이템 본문과 메타데이터를 갱신하고 요약 한 건을 추가한다. 모두 한 트랜잭션이다.
// 이전의 summary_error 는 null 로 덮어써서 지운다.
func (r *SummaryRepository) ApplySummary(ctx context.Context, u models.SummaryUpdate) error {
	rawLen := utf8.RuneCountInString(u.RawText)
	patch, err := json.Marshal(map[string]any{
		"raw_text_length":      rawLen,
		"image_count":          u.ImageCount,
		"summary_generated_at": u.GeneratedAt.UTC(),
		"summary_model":        u.ModelName,
		"summary_error":        nil,
	})
	if err != nil {
		return err
	}

	meta := u.Meta
	meta.ImageCount = u.ImageCount
	meta.RawTextLength = rawLen
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode summary meta: %w", err)
	}

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := execBuilder(ctx, tx, psql.Update("item").
			Set("content", u.RawText).
			Set("metadata", sq.Expr("metadata || ?::jsonb", patch)).
			Where(sq.Eq{"id": u.ItemID}))
		if err != nil {
			return fmt.Errorf("failed to update item %d: %w", u.ItemID, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrItemNotFound
		}

		if _, err := execBuilder(ctx, tx, psql.Insert("item_summary").
			Columns("item_id", "model_name", "summary_text", "created_at", "meta").
			Values(u.ItemID, u.ModelName, u.SummaryText, u.GeneratedAt.UTC(), metaJSON)); err != nil {
			return fmt.Errorf("failed to insert summary of item %d: %w", u.ItemID, err)
		}
		return nil
	})
}

// ListSummaries 는 아이템의 요약을 생성 순으로 반환한다.
func (r *SummaryRepository) ListSummaries(ctx context.Context, itemID int64) ([]models.Summary, error) {
	rows, err := queryBuilder(ctx, r.db, psql.
		Select("id", "item_id", "model_name", "summary_text", "created_at", "meta").
		From("item_summary").
		Where(sq.Eq{"item_id": itemID}).
		OrderBy("created_at ASC", "id ASC"))
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries of item %d: %w", itemID, err)
	}
	defer rows.Close()

	var out []models.Summary
	for rows.Next() {
		var s models.Summary
		if err := rows.Scan(&s.ID, &s.ItemID, &s.ModelName, &s.SummaryText, &s.CreatedAt, &s.Meta); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
