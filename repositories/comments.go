package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"post-digest/models"
)

type CommentRepository struct {
	db DB
}

func NewCommentRepository(db DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// ReplaceComments 는 아이템의 댓글을 새 목록으로 바꾸고 parent_id 를 이어 준다.
// 부모가 목록에 없으면 최상위 댓글로 남긴다. ExternalID 가 비었거나 중복이면 건너뛴다.
func (r *CommentRepository) ReplaceComments(ctx context.Context, itemID int64, comments []models.CommentDraft) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := execBuilder(ctx, tx, psql.Delete("comment").Where(sq.Eq{"item_id": itemID})); err != nil {
			return fmt.Errorf("failed to clear comments of item %d: %w", itemID, err)
		}

		inserted := make(map[string]int64, len(comments))
		type link struct{ child, parent string }
		var pending []link

		for _, c := range comments {
			ext := strings.TrimSpace(c.ExternalID)
			if ext == "" {
				continue
			}
			if _, dup := inserted[ext]; dup {
				continue
			}

			meta := map[string]any{}
			for k, v := range c.Metadata {
				meta[k] = v
			}
			meta["depth"] = c.Depth
			if c.Score != nil {
				meta["score"] = *c.Score
			}
			metaJSON, err := json.Marshal(meta)
			if err != nil {
				return fmt.Errorf("failed to encode comment metadata: %w", err)
			}

			row, err := queryRowBuilder(ctx, tx, psql.Insert("comment").
				Columns("item_id", "external_id", "author", "content", "created_at", "is_deleted", "metadata").
				Values(itemID, ext, c.Author, c.Content, c.CreatedAt, c.IsDeleted, metaJSON).
				Suffix("RETURNING id"))
			if err != nil {
				return err
			}
			var id int64
			if err := row.Scan(&id); err != nil {
				return fmt.Errorf("failed to insert comment %s: %w", ext, err)
			}
			inserted[ext] = id
			if p := strings.TrimSpace(c.ParentExternalID); p != "" {
				pending = append(pending, link{child: ext, parent: p})
			}
		}

		for _, l := range pending {
			parentID, ok := inserted[l.parent]
			if !ok {
				continue
			}
			if _, err := execBuilder(ctx, tx, psql.Update("comment").
				Set("parent_id", parentID).
				Where(sq.Eq{"item_id": itemID, "external_id": l.child})); err != nil {
				return fmt.Errorf("failed to link comment %s to %s: %w", l.child, l.parent, err)
			}
		}
		return nil
	})
}

// ListComments 는 삽입 순서(id)대로 댓글을 반환한다.
func (r *CommentRepository) ListComments(ctx context.Context, itemID int64) ([]models.Comment, error) {
	rows, err := queryBuilder(ctx, r.db, psql.
		Select("id", "item_id", "external_id", "author", "content", "created_at", "is_deleted", "parent_id", "metadata").
		From("comment").
		Where(sq.Eq{"item_id": itemID}).
		OrderBy("id ASC"))
	if err != nil {
		return nil, fmt.Errorf("failed to list comments of item %d: %w", itemID, err)
	}
	defer rows.Close()

	var out []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.ItemID, &c.ExternalID, &c.Author, &c.Content, &c.CreatedAt, &c.IsDeleted, &c.ParentID, &c.Metadata); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
