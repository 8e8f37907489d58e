package summarizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"post-digest/config"
	"post-digest/internal/logger"
)

// Engine 은 우선순위 순서대로 모델을 시도하는 요약기다.
// 한도 초과로 실패한 모델은 쿨다운 동안 건너뛰고, 그 밖의 실패는 이번 호출에서만 다음 모델로 넘어간다.
type Engine struct {
	models          []string
	cooldown        time.Duration
	timeout         time.Duration
	maxTextLength   int
	imageLimit      int
	maxOutputTokens int

	backends  Backends
	cooldowns CooldownStore
	now       func() time.Time
}

type Option func(*Engine)

// WithClock 은 현재 시각 함수를 바꾼다. 테스트에서 쿨다운 경과를 흉내 낼 때 쓴다.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(cfg config.SummaryConfig, backends Backends, cooldowns CooldownStore, opts ...Option) *Engine {
	if cooldowns == nil {
		cooldowns = NewMemoryCooldowns()
	}
	e := &Engine{
		models:          append([]string(nil), cfg.Models...),
		cooldown:        cfg.Cooldown(),
		timeout:         cfg.Timeout(),
		maxTextLength:   cfg.MaxTextLength,
		imageLimit:      cfg.ImageLimit,
		maxOutputTokens: cfg.MaxOutputTokens,
		backends:        backends,
		cooldowns:       cooldowns,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Models() []string { return append([]string(nil), e.models...) }

// Summarize 는 text 와 이미지로 요약을 만든다.
// 호출자의 ctx 가 끝나면 남은 모델을 시도하지 않고 ctx 오류를 그대로 돌려준다.
func (e *Engine) Summarize(ctx context.Context, text string, imagePaths []string) (Result, error) {
	if len(e.models) == 0 {
		return Result{}, errors.New("no summary models configured")
	}
	req, err := BuildRequest(text, imagePaths, e.maxTextLength, e.imageLimit, e.maxOutputTokens)
	if err != nil {
		return Result{}, err
	}

	var (
		lastErr   error
		lastModel string
		attempted []string
		skipped   []string
	)
	for _, model := range e.models {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		if e.cooling(ctx, model) {
			skipped = append(skipped, model)
			continue
		}

		backend, backendModel, kind := e.backends.For(model)
		attempted = append(attempted, model)
		lastModel = model
		if backend == nil {
			lastErr = fmt.Errorf("%s backend is not configured for model %s", kind, model)
			logger.Log.Warnf("summary model %s skipped: %v", model, lastErr)
			continue
		}

		started := e.now()
		resp, err := e.invoke(ctx, backend, backendModel, req)
		if err == nil {
			if clearErr := e.cooldowns.Clear(ctx, model); clearErr != nil {
				logger.Log.Warnf("failed to clear cooldown of %s: %v", model, clearErr)
			}
			return Result{
				Text:         resp.Text,
				Model:        model,
				Latency:      e.now().Sub(started),
				InputTokens:  resp.InputTokens,
				OutputTokens: resp.OutputTokens,
				ModelVersion: resp.ModelVersion,
			}, nil
		}

		// 호출자 쪽 취소는 모델 실패가 아니다.
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}

		lastErr = err
		var quota *QuotaError
		if errors.As(err, &quota) {
			until := e.now().Add(e.cooldown)
			if setErr := e.cooldowns.Set(ctx, model, until, err.Error()); setErr != nil {
				logger.Log.Warnf("failed to store cooldown of %s: %v", model, setErr)
			}
			logger.Log.Warnf("summary model %s quota error, cooling down until %s: %v", model, until.Format(time.RFC3339), err)
			continue
		}
		logger.Log.Warnf("summary model %s failed: %v", model, err)
	}

	if lastModel == "" && len(skipped) > 0 {
		lastModel = skipped[len(skipped)-1]
	}
	return Result{}, &ExhaustedError{LastModel: lastModel, Attempted: attempted, Skipped: skipped, Err: lastErr}
}

func (e *Engine) cooling(ctx context.Context, model string) bool {
	until, ok, err := e.cooldowns.Until(ctx, model)
	if err != nil {
		logger.Log.Warnf("failed to read cooldown of %s, treating as available: %v", model, err)
		return false
	}
	return ok && e.now().Before(until)
}

// invoke 는 모델 한 번 호출에 타임아웃을 건다. 빈 응답은 실패로 본다.
func (e *Engine) invoke(ctx context.Context, backend Backend, model string, req Request) (Response, error) {
	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	resp, err := backend.Generate(callCtx, model, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return Response{}, fmt.Errorf("model %s call timed out after %s: %w", model, e.timeout, err)
		}
		return Response{}, err
	}
	if resp.Text == "" {
		return Response{}, fmt.Errorf("model %s returned no summary text", model)
	}
	return resp, nil
}
