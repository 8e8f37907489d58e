package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"post-digest/models"
	"post-digest/repositories"
)

func TestApplySummaryClearsPreviousError(t *testing.T) {
	pool := resetDatabase(t)
	ctx := context.Background()
	src := createSource(t, pool, "dc_test")
	items := repositories.NewItemRepository(pool)
	res, err := items.Upsert(ctx, src.ID, models.ItemDraft{ExternalID: "1", URL: "u", Metadata: models.ItemMetadata{Subject: "일반"}})
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, items.MarkFailed(ctx, res.ItemID, "boom", "m0", now))

	repo := repositories.NewSummaryRepository(pool)
	for _, model := range []string{"gemini-2.5-flash", "gemini-2.5-flash"} {
		require.NoError(t, repo.ApplySummary(ctx, models.SummaryUpdate{
			ItemID:      res.ItemID,
			RawText:     "본문 텍스트",
			ImageCount:  2,
			ModelName:   model,
			SummaryText: "요약",
			GeneratedAt: now,
			Meta:        models.SummaryMeta{LatencyMs: 120},
		}))
	}

	it, err := items.FindByID(ctx, res.ItemID)
	require.NoError(t, err)
	assert.False(t, it.Metadata.Failed())
	assert.Equal(t, "일반", it.Metadata.Subject)
	assert.Equal(t, "gemini-2.5-flash", it.Metadata.SummaryModel)
	require.NotNil(t, it.Metadata.RawTextLength)
	assert.Equal(t, 6, *it.Metadata.RawTextLength)
	require.NotNil(t, it.Content)
	assert.Equal(t, "본문 텍스트", *it.Content)

	// 같은 모델의 요약도 덮어쓰지 않고 쌓인다.
	list, err := repo.ListSummaries(ctx, res.ItemID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 2, list[0].Meta.ImageCount)
	assert.Nil(t, list[0].Meta.LastError)
	assert.EqualValues(t, 120, list[0].Meta.LatencyMs)
}

func TestApplySummaryMissingItem(t *testing.T) {
	pool := resetDatabase(t)
	err := repositories.NewSummaryRepository(pool).ApplySummary(context.Background(), models.SummaryUpdate{
		ItemID: 77, RawText: "t", ModelName: "m", SummaryText: "s", GeneratedAt: time.Now(),
	})
	assert.ErrorIs(t, err, repositories.ErrItemNotFound)
	assert.Equal(t, 0, countRows(t, pool, "SELECT COUNT(*) FROM item_summary"))
}
