package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Request 는 백엔드 한 번 호출에 넘기는 프롬프트다.
type Request struct {
	SystemPrompt    string
	UserPrompt      string
	ImagePaths      []string
	MaxOutputTokens int
}

// Response 는 백엔드가 돌려준 요약과 사용량이다.
type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
	ModelVersion string
}

// Backend 는 모델 제공자 하나에 대한 호출 방법이다.
// 한도 초과류 실패는 *QuotaError 로 감싸서 돌려줘야 쿨다운이 걸린다.
type Backend interface {
	Generate(ctx context.Context, model string, req Request) (Response, error)
}

// BackendFunc 는 함수를 Backend 로 쓰게 해 준다.
type BackendFunc func(ctx context.Context, model string, req Request) (Response, error)

func (f BackendFunc) Generate(ctx context.Context, model string, req Request) (Response, error) {
	return f(ctx, model, req)
}

// Backends 는 모델 이름 접두사로 고르는 백엔드 묶음이다. 설정되지 않은 백엔드는 nil 이다.
type Backends struct {
	Gemini Backend
	Claude Backend
	Codex  Backend
}

const codexPrefix = "codex:"

// For 는 모델 이름에 맞는 백엔드와 백엔드에 넘길 실제 모델 이름을 돌려준다.
//
//	codex:<model>  -> Codex CLI
//	claude-*       -> Anthropic
//	그 외           -> Gemini
func (b Backends) For(model string) (Backend, string, string) {
	switch {
	case strings.HasPrefix(model, codexPrefix):
		return b.Codex, strings.TrimPrefix(model, codexPrefix), "codex"
	case strings.HasPrefix(model, "claude"):
		return b.Claude, model, "claude"
	default:
		return b.Gemini, model, "gemini"
	}
}

// Result 는 요약 성공 결과다.
type Result struct {
	Text         string
	Model        string
	Latency      time.Duration
	InputTokens  int64
	OutputTokens int64
	ModelVersion string
}

// ErrNoContent 는 본문도 이미지도 없어 요약할 것이 없을 때 반환된다.
var ErrNoContent = errors.New("no text or images available for summarisation")

// QuotaError 는 사용량 한도 초과나 일시적인 서비스 제한이다. 모델을 쿨다운시킨다.
type QuotaError struct {
	Model string
	Err   error
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("model %s exhausted or unavailable: %v", e.Model, e.Err)
}

func (e *QuotaError) Unwrap() error { return e.Err }

// ExhaustedError 는 모든 모델이 실패했거나 쿨다운 중일 때 반환된다.
// LastModel 은 마지막으로 호출한 모델이며, 하나도 호출하지 못했으면 마지막으로 건너뛴 모델이다.
type ExhaustedError struct {
	LastModel string
	Attempted []string
	Skipped   []string
	Err       error
}

func (e *ExhaustedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("all summary models were skipped due to cooldown (last model: %s)", e.LastModel)
	}
	return fmt.Sprintf("all summary models failed (last model: %s): %v", e.LastModel, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsQuotaMessage 는 오류 메시지가 한도 초과류인지 키워드로 판별한다.
func IsQuotaMessage(msg string) bool {
	lowered := strings.ToLower(msg)
	for _, kw := range []string{"quota", "exhaust", "429", "rate"} {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
