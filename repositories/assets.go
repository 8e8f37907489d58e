package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"post-digest/models"
)

type AssetRepository struct {
	db DB
}

func NewAssetRepository(db DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// ReplaceAssets 는 아이템의 에셋 집합을 통째로 바꾼다.
// 삭제와 삽입이 한 트랜잭션이라 중간 상태(0개 또는 중복)는 밖에서 보이지 않는다.
func (r *AssetRepository) ReplaceAssets(ctx context.Context, itemID int64, assets []models.AssetDraft) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := execBuilder(ctx, tx, psql.Delete("item_asset").Where(sq.Eq{"item_id": itemID})); err != nil {
			return fmt.Errorf("failed to clear assets of item %d: %w", itemID, err)
		}
		if len(assets) == 0 {
			return nil
		}

		ins := psql.Insert("item_asset").Columns("item_id", "asset_type", "url", "local_path", "order_index", "metadata")
		for _, a := range assets {
			meta, err := json.Marshal(a.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode asset metadata: %w", err)
			}
			assetType := a.AssetType
			if assetType == "" {
				assetType = models.AssetTypeImage
			}
			ins = ins.Values(itemID, assetType, a.URL, a.LocalPath, a.OrderIndex, meta)
		}
		if _, err := execBuilder(ctx, tx, ins); err != nil {
			return fmt.Errorf("failed to insert assets of item %d: %w", itemID, err)
		}
		return nil
	})
}

// ListAssets 는 order_index 순으로 아이템의 에셋을 반환한다.
func (r *AssetRepository) ListAssets(ctx context.Context, itemID int64) ([]models.Asset, error) {
	rows, err := queryBuilder(ctx, r.db, psql.
		Select("id", "item_id", "asset_type", "url", "local_path", "order_index", "metadata", "created_at").
		From("item_asset").
		Where(sq.Eq{"item_id": itemID}).
		OrderBy("order_index ASC", "id ASC"))
	if err != nil {
		return nil, fmt.Errorf("failed to list assets of item %d: %w", itemID, err)
	}
	defer rows.Close()

	var out []models.Asset
	for rows.Next() {
		var a models.Asset
		if err := rows.Scan(&a.ID, &a.ItemID, &a.AssetType, &a.URL, &a.LocalPath, &a.OrderIndex, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
