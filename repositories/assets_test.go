package repositories_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"post-digest/models"
	"post-digest/repositories"
)

func drafts(urls ...string) []models.AssetDraft {
	out := make([]models.AssetDraft, len(urls))
	for i, u := range urls {
		out[i] = models.AssetDraft{
			AssetType:  models.AssetTypeImage,
			URL:        u,
			LocalPath:  "data/x/" + u,
			OrderIndex: i + 1,
			Metadata:   models.AssetMetadata{ContentType: "image/png", SizeBytes: 12},
		}
	}
	return out
}

func TestReplaceAssetsIsTotal(t *testing.T) {
	pool := resetDatabase(t)
	ctx := context.Background()
	src := createSource(t, pool, "dc_test")
	res, err := repositories.NewItemRepository(pool).Upsert(ctx, src.ID, models.ItemDraft{ExternalID: "1", URL: "u"})
	require.NoError(t, err)

	assets := repositories.NewAssetRepository(pool)
	require.NoError(t, assets.ReplaceAssets(ctx, res.ItemID, drafts("a", "b", "c")))
	require.NoError(t, assets.ReplaceAssets(ctx, res.ItemID, drafts("d", "e")))

	got, err := assets.ListAssets(ctx, res.ItemID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d", got[0].URL)
	assert.Equal(t, 1, got[0].OrderIndex)
	assert.Equal(t, "image/png", got[0].Metadata.ContentType)
	assert.Equal(t, "e", got[1].URL)

	require.NoError(t, assets.ReplaceAssets(ctx, res.ItemID, nil))
	got, err = assets.ListAssets(ctx, res.ItemID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeleteItemCascades(t *testing.T) {
	pool := resetDatabase(t)
	ctx := context.Background()
	src := createSource(t, pool, "dc_test")
	items := repositories.NewItemRepository(pool)
	res, err := items.Upsert(ctx, src.ID, models.ItemDraft{ExternalID: "1", URL: "u"})
	require.NoError(t, err)

	require.NoError(t, repositories.NewAssetRepository(pool).ReplaceAssets(ctx, res.ItemID, drafts("a", "b")))
	require.NoError(t, repositories.NewCommentRepository(pool).ReplaceComments(ctx, res.ItemID, []models.CommentDraft{
		{ExternalID: "c1", Content: "hi"},
		{ExternalID: "c2", Content: "re", ParentExternalID: "c1", Depth: 1},
	}))
	require.NoError(t, repositories.NewSummaryRepository(pool).ApplySummary(ctx, models.SummaryUpdate{
		ItemID: res.ItemID, RawText: "t", ModelName: "m", SummaryText: "s",
	}))

	require.NoError(t, items.Delete(ctx, res.ItemID))

	assert.Equal(t, 0, countRows(t, pool, "SELECT COUNT(*) FROM item_asset"))
	assert.Equal(t, 0, countRows(t, pool, "SELECT COUNT(*) FROM comment"))
	assert.Equal(t, 0, countRows(t, pool, "SELECT COUNT(*) FROM item_summary"))
}
