package summarizer

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/genai"

	"post-digest/internal/logger"
)

// GeminiBackend 는 Gemini API 호출이다.
type GeminiBackend struct {
	client *genai.Client
}

func NewGeminiBackend(ctx context.Context, apiKey string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiBackend{client: client}, nil
}

func (g *GeminiBackend) Generate(ctx context.Context, model string, req Request) (Response, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.UserPrompt)}
	parts = append(parts, imageParts(req.ImagePaths)...)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}},
		Temperature:       genai.Ptr[float32](0.4),
		TopP:              genai.Ptr[float32](0.95),
		TopK:              genai.Ptr[float32](40),
	}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxOutputTokens)
	}

	result, err := g.client.Models.GenerateContent(
		ctx,
		model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		cfg,
	)
	if err != nil {
		return Response{}, classifyGeminiError(model, err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return Response{}, fmt.Errorf("gemini API returned no summary text for %s", model)
	}

	resp := Response{Text: text, ModelVersion: result.ModelVersion}
	if result.UsageMetadata != nil {
		resp.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		resp.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
	}
	return resp, nil
}

// classifyGeminiError 는 429/503 응답이나 한도 관련 메시지를 QuotaError 로 바꾼다.
func classifyGeminiError(model string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code == http.StatusServiceUnavailable ||
			IsQuotaMessage(apiErr.Status+" "+apiErr.Message) {
			return &QuotaError{Model: model, Err: err}
		}
		return fmt.Errorf("gemini API returned status %d for %s: %w", apiErr.Code, model, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyGeminiError(model, *apiErrPtr)
	}
	if IsQuotaMessage(err.Error()) {
		return &QuotaError{Model: model, Err: err}
	}
	return fmt.Errorf("gemini API request failed for %s: %w", model, err)
}

// imageParts 는 로컬 이미지를 인라인 파트로 읽는다. 읽지 못한 파일은 건너뛴다.
func imageParts(paths []string) []*genai.Part {
	var parts []*genai.Part
	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil || len(data) == 0 {
			logger.Log.Debugf("skipping image %s: %v", p, err)
			continue
		}
		mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))
		if mimeType == "" {
			mimeType = http.DetectContentType(data)
		}
		parts = append(parts, genai.NewPartFromBytes(data, mimeType))
	}
	return parts
}
