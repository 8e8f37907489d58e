package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"post-digest/models"
)

var itemColumns = []string{
	"id", "source_id", "external_id", "url", "title", "author",
	"content", "published_at", "first_seen_at", "metadata",
}

const upsertSuffix = `ON CONFLICT (source_id, external_id) DO UPDATE SET
	url = EXCLUDED.url,
	title = EXCLUDED.title,
	author = EXCLUDED.author,
	content = COALESCE(EXCLUDED.content, item.content),
	published_at = COALESCE(EXCLUDED.published_at, item.published_at),
	metadata = item.metadata || EXCLUDED.metadata
RETURNING id, (xmax = 0) AS inserted`

type ItemRepository struct {
	db DB
}

func NewItemRepository(db DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func scanItem(row pgx.Row) (*models.Item, error) {
	var it models.Item
	if err := row.Scan(
		&it.ID, &it.SourceID, &it.ExternalID, &it.URL, &it.Title, &it.Author,
		&it.Content, &it.PublishedAt, &it.FirstSeenAt, &it.Metadata,
	); err != nil {
		return nil, err
	}
	return &it, nil
}

// Upsert 는 (source_id, external_id) 기준으로 아이템을 넣거나 갱신한다.
// Inserted 는 이 호출이 새 행을 만들었는지 여부이며 커밋 후에 반환된다.
func (r *ItemRepository) Upsert(ctx context.Context, sourceID int64, draft models.ItemDraft) (models.UpsertResult, error) {
	results, err := r.UpsertMany(ctx, sourceID, []models.ItemDraft{draft})
	if err != nil {
		return models.UpsertResult{}, err
	}
	return results[0], nil
}

// UpsertMany 는 한 트랜잭션 안에서 여러 아이템을 업서트한다.
// 하나라도 실패하면 전체가 롤백되고 결과는 반환되지 않는다.
func (r *ItemRepository) UpsertMany(ctx context.Context, sourceID int64, drafts []models.ItemDraft) ([]models.UpsertResult, error) {
	if len(drafts) == 0 {
		return nil, nil
	}

	results := make([]models.UpsertResult, 0, len(drafts))
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for _, d := range drafts {
			if strings.TrimSpace(d.ExternalID) == "" {
				return fmt.Errorf("item draft without external id (url=%s)", d.URL)
			}
			meta, err := json.Marshal(d.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode item metadata: %w", err)
			}

			row, err := queryRowBuilder(ctx, tx, psql.Insert("item").
				Columns("source_id", "external_id", "url", "title", "author", "content", "published_at", "metadata").
				Values(sourceID, d.ExternalID, d.URL, d.Title, d.Author, d.Content, d.PublishedAt, meta).
				Suffix(upsertSuffix))
			if err != nil {
				return err
			}

			res := models.UpsertResult{ExternalID: d.ExternalID}
			if err := row.Scan(&res.ItemID, &res.Inserted); err != nil {
				return fmt.Errorf("failed to upsert item %s: %w", d.ExternalID, err)
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *ItemRepository) FindByID(ctx context.Context, id int64) (*models.Item, error) {
	row, err := queryRowBuilder(ctx, r.db, psql.Select(itemColumns...).From("item").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item %d: %w", id, err)
	}
	return it, nil
}

// Delete 는 아이템을 삭제한다. 에셋, 요약, 댓글은 FK cascade 로 함께 지워진다.
func (r *ItemRepository) Delete(ctx context.Context, id int64) error {
	if _, err := execBuilder(ctx, r.db, psql.Delete("item").Where(sq.Eq{"id": id})); err != nil {
		return fmt.Errorf("failed to delete item %d: %w", id, err)
	}
	return nil
}

// MarkFailed 는 영구 실패 사유를 메타데이터에 기록한다. 기존 메타데이터 키는 유지된다.
func (r *ItemRepository) MarkFailed(ctx context.Context, id int64, reason, lastModel string, at time.Time) error {
	patch, err := json.Marshal(map[string]any{
		"summary_error":      reason,
		"summary_last_model": lastModel,
		"failed_at":          at.UTC(),
	})
	if err != nil {
		return err
	}
	tag, err := execBuilder(ctx, r.db, psql.Update("item").
		Set("metadata", sq.Expr("metadata || ?::jsonb", patch)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to mark item %d failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// FindUnenriched 는 olderThan 이전에 수집되었지만 요약도 실패 기록도 없는 아이템을 오래된 순으로 반환한다.
func (r *ItemRepository) FindUnenriched(ctx context.Context, olderThan time.Time, limit int) ([]models.Item, error) {
	cols := make([]string, len(itemColumns))
	for i, c := range itemColumns {
		cols[i] = "i." + c
	}
	b := psql.Select(cols...).From("item i").
		Where(sq.Lt{"i.first_seen_at": olderThan}).
		Where("NOT EXISTS (SELECT 1 FROM item_summary s WHERE s.item_id = i.id)").
		Where("(i.metadata->>'summary_error') IS NULL").
		OrderBy("i.first_seen_at ASC", "i.id ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	rows, err := queryBuilder(ctx, r.db, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query unenriched items: %w", err)
	}
	defer rows.Close()

	var out []models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}
