package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"post-digest/config"
	"post-digest/internal/logger"
	"post-digest/summarizer"
)

// newSummaryEngine 은 설정된 모델 목록에 필요한 백엔드만 만든다.
// API 키는 환경변수에서만 읽는다.
func newSummaryEngine(ctx context.Context, cfg config.SummaryConfig, records summarizer.CooldownRecords) (*summarizer.Engine, error) {
	backends, err := newBackends(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var cooldowns summarizer.CooldownStore
	switch strings.ToLower(cfg.CooldownStore) {
	case "", "memory":
		cooldowns = summarizer.NewMemoryCooldowns()
	case "postgres":
		cooldowns = summarizer.NewPostgresCooldowns(records)
	default:
		return nil, fmt.Errorf("unknown cooldown store: %q", cfg.CooldownStore)
	}
	return summarizer.NewEngine(cfg, backends, cooldowns), nil
}

// newBackends 는 키가 없는 백엔드를 경고와 함께 비워 둔다. 엔진은 빈 백엔드의 모델을 건너뛴다.
// 목록의 어떤 모델도 호출할 수 없을 때만 오류다.
func newBackends(ctx context.Context, cfg config.SummaryConfig) (summarizer.Backends, error) {
	var backends summarizer.Backends
	tried := map[string]bool{}
	for _, model := range cfg.Models {
		_, _, kind := backends.For(model)
		if tried[kind] {
			continue
		}
		tried[kind] = true

		switch kind {
		case "gemini":
			g, err := summarizer.NewGeminiBackend(ctx, os.Getenv("GEMINI_API_KEY"))
			if err != nil {
				logger.Log.Warnf("gemini backend disabled: %v", err)
				continue
			}
			backends.Gemini = g
		case "claude":
			c, err := summarizer.NewClaudeBackend(os.Getenv("ANTHROPIC_API_KEY"))
			if err != nil {
				logger.Log.Warnf("claude backend disabled: %v", err)
				continue
			}
			backends.Claude = c
		case "codex":
			backends.Codex = summarizer.NewCodexBackend(cfg.CodexBinary)
		}
	}

	for _, model := range cfg.Models {
		if b, _, _ := backends.For(model); b != nil {
			return backends, nil
		}
	}
	return backends, errors.New("no summary backend is available for the configured models")
}
