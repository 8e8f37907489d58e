package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
)

// ClaudeBackend 는 Anthropic 메시지 API 호출이다. 이미지는 첨부하지 않는다.
type ClaudeBackend struct {
	apiKey string
	prompt func(system, user, schema, apiKey string, settings types.RequestSettings) (string, error)
}

func NewClaudeBackend(apiKey string) (*ClaudeBackend, error) {
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable is not set")
	}
	return &ClaudeBackend{apiKey: apiKey, prompt: promptAnthropic}, nil
}

func promptAnthropic(system, user, schema, apiKey string, settings types.RequestSettings) (string, error) {
	response, err := anthropic.PromptWithSettings(system, user, schema, apiKey, settings)
	if err != nil {
		return "", err
	}
	if len(response.Content) == 0 {
		return "", errors.New("no content in response")
	}
	return response.Content[0].Text, nil
}

func (c *ClaudeBackend) Generate(ctx context.Context, model string, req Request) (Response, error) {
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	settings := types.RequestSettings{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: 0.4,
	}

	type outcome struct {
		text string
		err  error
	}
	// llmkit 호출은 ctx 를 받지 않으므로 별도 고루틴에서 기다린다.
	done := make(chan outcome, 1)
	go func() {
		text, err := c.prompt(req.SystemPrompt, req.UserPrompt, "", c.apiKey, settings)
		done <- outcome{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case out := <-done:
		if out.err != nil {
			if IsQuotaMessage(out.err.Error()) || strings.Contains(strings.ToLower(out.err.Error()), "overloaded") {
				return Response{}, &QuotaError{Model: model, Err: out.err}
			}
			return Response{}, fmt.Errorf("anthropic request failed for %s: %w", model, out.err)
		}
		return Response{Text: strings.TrimSpace(out.text)}, nil
	}
}
