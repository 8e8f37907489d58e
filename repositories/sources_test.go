package repositories_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"post-digest/models"
	"post-digest/repositories"
)

func TestGetOrCreateSourceStartsInactive(t *testing.T) {
	pool := resetDatabase(t)
	ctx := context.Background()
	repo := repositories.NewSourceRepository(pool)

	cfg := models.SourceConfig{
		Code:     "reddit_openai",
		Name:     "r/OpenAI",
		Parser:   "reddit",
		Metadata: models.SourceMetadata{Platform: "reddit", Subreddit: "OpenAI"},
	}
	src, created, err := repo.GetOrCreate(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, src.IsActive)
	assert.Equal(t, 60, src.FetchIntervalMinutes)
	assert.Equal(t, "OpenAI", src.Metadata.Subreddit)

	again, created, err := repo.GetOrCreate(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, src.ID, again.ID)

	require.NoError(t, repo.SetActive(ctx, "reddit_openai", true))
	byID, err := repo.FindByID(ctx, src.ID)
	require.NoError(t, err)
	assert.True(t, byID.IsActive)

	assert.ErrorIs(t, repo.SetActive(ctx, "nope", true), repositories.ErrSourceNotFound)
	_, err = repo.FindByCode(ctx, "nope")
	assert.ErrorIs(t, err, repositories.ErrSourceNotFound)
}

func TestSeedFromFile(t *testing.T) {
	pool := resetDatabase(t)
	ctx := context.Background()
	repo := repositories.NewSourceRepository(pool)

	path := filepath.Join(t.TempDir(), "sources.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"code":"dc_thesingularity","name":"특이점이 온다","url_pattern":"https://gall.dcinside.com","parser":"dcinside","metadata":{"platform":"dcinside","board_id":"thesingularity"}},
		{"code":"reddit_openai","name":"r/OpenAI","url_pattern":"https://www.reddit.com/r/OpenAI","parser":"reddit","fetch_interval_minutes":30,"metadata":{"platform":"reddit","subreddit":"OpenAI"}}
	]`), 0o644))

	created, total, err := repo.SeedFromFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 2, total)

	created, total, err = repo.SeedFromFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 2, total)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "thesingularity", list[0].Metadata.BoardID)
	assert.Equal(t, 30, list[1].FetchIntervalMinutes)

	created, total, err = repo.SeedFromFile(ctx, filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Zero(t, created+total)
}

func TestCooldownRepository(t *testing.T) {
	pool := resetDatabase(t)
	ctx := context.Background()
	repo := repositories.NewCooldownRepository(pool)

	got, err := repo.Get(ctx, "gemini-2.5-flash")
	require.NoError(t, err)
	assert.Nil(t, got)

	later := time.Now().Add(10 * time.Minute).UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.Set(ctx, "gemini-2.5-flash", later, "429"))
	// 더 이른 종료 시각은 기존 값을 줄이지 않는다.
	require.NoError(t, repo.Set(ctx, "gemini-2.5-flash", later.Add(-5*time.Minute), "quota"))

	got, err = repo.Get(ctx, "gemini-2.5-flash")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.CooldownUntil.Equal(later))
	assert.Equal(t, "quota", got.LastFailureReason)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Clear(ctx, "gemini-2.5-flash"))
	got, err = repo.Get(ctx, "gemini-2.5-flash")
	require.NoError(t, err)
	assert.Nil(t, got)
}
