package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"post-digest/config"
)

func TestMissingAPIKeysDisableBackendsWithoutFailing(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	backends, err := newBackends(context.Background(), config.SummaryConfig{
		Models:      []string{"claude-sonnet-4-5", "gemini-2.5-flash", "codex:gpt-5"},
		CodexBinary: "codex",
	})
	require.NoError(t, err)
	assert.Nil(t, backends.Gemini)
	assert.Nil(t, backends.Claude)
	assert.NotNil(t, backends.Codex)
}

func TestClaudeKeyAloneKeepsMixedChainRunnable(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	backends, err := newBackends(context.Background(), config.SummaryConfig{
		Models: []string{"claude-sonnet-4-5", "gemini-2.5-flash"},
	})
	require.NoError(t, err)
	assert.Nil(t, backends.Gemini)
	assert.NotNil(t, backends.Claude)
}

func TestNoUsableBackendIsFatal(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := newBackends(context.Background(), config.SummaryConfig{
		Models: []string{"claude-sonnet-4-5", "gemini-2.5-flash"},
	})
	assert.Error(t, err)
}
