package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aktagon/llmkit/anthropic/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCodexStream(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"session.created"}`,
		`not json`,
		`{"type":"response.output_text.delta","delta":{"id":"r1","text":"첫 "}}`,
		`{"type":"response.output_text.delta","delta":{"id":"r1","text":"문장."}}`,
		`{"type":"response.completed","response":{"id":"r1"}}`,
		`{"type":"item.completed","item":{"item_type":"assistant_message","text":"첫 문장."}}`,
		`{"type":"item.delta","item":{"id":"i2","item_type":"assistant_message","text":"둘째"}}`,
		`{"type":"item.completed","item":{"item_type":"reasoning","text":"생각"}}`,
	}, "\n")

	text, lastErr := ParseCodexStream([]byte(stream))
	assert.Equal(t, "첫 문장.\n\n둘째", text)
	assert.Empty(t, lastErr)
}

func TestParseCodexStreamFinalTextAndErrors(t *testing.T) {
	text, lastErr := ParseCodexStream([]byte(`{"type":"response.completed","response":{"output_text":{"final":{"text":" 최종 "}}}}`))
	assert.Equal(t, "최종", text)
	assert.Empty(t, lastErr)

	text, lastErr = ParseCodexStream([]byte(`{"type":"error","message":"usage limit reached"}`))
	assert.Empty(t, text)
	assert.Equal(t, "usage limit reached", lastErr)
}

func TestCodexBackendInvocation(t *testing.T) {
	var gotArgs []string
	var gotStdin []byte
	b := NewCodexBackend("")
	b.run = func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, []byte, error) {
		assert.Equal(t, "codex", name)
		gotArgs, gotStdin = args, stdin
		return []byte(`{"type":"item.completed","item":{"item_type":"assistant_message","text":"요약"}}`), nil, nil
	}

	resp, err := b.Generate(context.Background(), "gpt-5", Request{SystemPrompt: "sys", UserPrompt: "user", ImagePaths: []string{"a.png"}})
	require.NoError(t, err)
	assert.Equal(t, "요약", resp.Text)
	assert.Equal(t, CodexArgs("gpt-5", []string{"a.png"}), gotArgs)
	assert.Contains(t, gotArgs, "--experimental-json")

	lines := strings.Split(strings.TrimSpace(string(gotStdin)), "\n")
	require.Len(t, lines, 2)
	var msg codexMessage
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &msg))
	assert.Equal(t, "system", msg.Role)
	assert.Equal(t, "input_text", msg.Content[0].Type)
}

func TestCodexBackendQuotaFromStream(t *testing.T) {
	b := NewCodexBackend("codex")
	b.run = func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, []byte, error) {
		return []byte(`{"type":"error","message":"rate limit exceeded"}`), nil, nil
	}
	_, err := b.Generate(context.Background(), "gpt-5", Request{})
	var quota *QuotaError
	assert.ErrorAs(t, err, &quota)

	b.run = func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, []byte, error) {
		return nil, []byte("boom"), errors.New("exit status 1")
	}
	_, err = b.Generate(context.Background(), "gpt-5", Request{})
	require.Error(t, err)
	assert.False(t, errors.As(err, &quota))
}

func TestClaudeBackendClassifiesErrors(t *testing.T) {
	b, err := NewClaudeBackend("key")
	require.NoError(t, err)

	var gotSettings types.RequestSettings
	b.prompt = func(system, user, schema, apiKey string, settings types.RequestSettings) (string, error) {
		gotSettings = settings
		return " 요약 ", nil
	}
	resp, err := b.Generate(context.Background(), "claude-sonnet-4", Request{SystemPrompt: "s", UserPrompt: "u"})
	require.NoError(t, err)
	assert.Equal(t, "요약", resp.Text)
	assert.Equal(t, "claude-sonnet-4", gotSettings.Model)
	assert.Equal(t, 512, gotSettings.MaxTokens)

	b.prompt = func(string, string, string, string, types.RequestSettings) (string, error) {
		return "", errors.New("API error 429: rate_limit_error")
	}
	_, err = b.Generate(context.Background(), "claude-sonnet-4", Request{})
	var quota *QuotaError
	assert.ErrorAs(t, err, &quota)

	_, err = NewClaudeBackend("")
	assert.Error(t, err)
}
