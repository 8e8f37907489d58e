package summarizer_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"post-digest/summarizer"
)

func TestPrepareTextTruncatesByRunes(t *testing.T) {
	out, err := summarizer.PrepareText("가나다라마바사", 0, 3)
	require.NoError(t, err)
	assert.Equal(t, "가나다\n...", out)

	out, err = summarizer.PrepareText("  짧은 글  ", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, "짧은 글", out)
}

func TestPrepareTextImageOnlyAndEmpty(t *testing.T) {
	out, err := summarizer.PrepareText("", 2, 100)
	require.NoError(t, err)
	assert.Contains(t, out, "이미지를 기반으로")

	_, err = summarizer.PrepareText("\n\t", 0, 100)
	assert.ErrorIs(t, err, summarizer.ErrNoContent)
}

func TestBuildRequestLimitsImages(t *testing.T) {
	paths := []string{"1.jpg", "2.jpg", "3.jpg"}
	req, err := summarizer.BuildRequest("본문", paths, 100, 2, 256)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.jpg", "2.jpg"}, req.ImagePaths)
	assert.Equal(t, summarizer.SystemPrompt, req.SystemPrompt)
	assert.True(t, strings.HasSuffix(req.UserPrompt, "본문"))
	assert.Equal(t, 256, req.MaxOutputTokens)
}

func TestIsQuotaMessage(t *testing.T) {
	assert.True(t, summarizer.IsQuotaMessage("RESOURCE_EXHAUSTED: Quota exceeded"))
	assert.True(t, summarizer.IsQuotaMessage("HTTP 429"))
	assert.True(t, summarizer.IsQuotaMessage("rate limit reached"))
	assert.False(t, summarizer.IsQuotaMessage("invalid argument"))
}
