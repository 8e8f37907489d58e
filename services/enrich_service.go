package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"post-digest/config"
	"post-digest/internal/logger"
	"post-digest/models"
	"post-digest/parser"
	"post-digest/repositories"
	"post-digest/summarizer"
)

type ItemStore interface {
	FindByID(ctx context.Context, id int64) (*models.Item, error)
	Delete(ctx context.Context, id int64) error
}

type SourceFinder interface {
	FindByID(ctx context.Context, id int64) (*models.Source, error)
}

type AssetWriter interface {
	ReplaceAssets(ctx context.Context, itemID int64, assets []models.AssetDraft) error
}

type CommentWriter interface {
	ReplaceComments(ctx context.Context, itemID int64, comments []models.CommentDraft) error
}

type SummaryWriter interface {
	ApplySummary(ctx context.Context, u models.SummaryUpdate) error
}

type ImageDownloader interface {
	Download(ctx context.Context, family, externalID, referer string, urls []string) ([]models.AssetDraft, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string, imagePaths []string) (summarizer.Result, error)
}

// EnrichDeps 는 EnrichService 가 사용하는 저장소와 외부 협력자다.
// Fetchers 는 소스 계열 코드별 상세 재수집기다.
type EnrichDeps struct {
	Items      ItemStore
	Sources    SourceFinder
	Assets     AssetWriter
	Comments   CommentWriter
	Summaries  SummaryWriter
	Fetchers   map[string]parser.Fetcher
	Images     ImageDownloader
	Summarizer Summarizer
}

type Status string

const (
	StatusSummarized Status = "summarized"
	StatusDeleted    Status = "deleted"
	StatusMissing    Status = "missing"
)

type Outcome struct {
	ItemID int64
	Status Status
	Model  string
	// Reason 은 삭제된 경우의 분류 규칙 이름이다.
	Reason string
}

func (o Outcome) String() string {
	switch o.Status {
	case StatusSummarized:
		return fmt.Sprintf("item %d summarized by %s", o.ItemID, o.Model)
	case StatusDeleted:
		return fmt.Sprintf("item %d deleted (%s)", o.ItemID, o.Reason)
	}
	return fmt.Sprintf("item %d no longer exists", o.ItemID)
}

// EnrichService 는 아이템 하나를 다시 읽어 분류하고 댓글, 이미지, 요약을 저장한다.
// 모든 쓰기는 덮어쓰기 또는 추가라서 같은 아이템을 두 번 처리해도 안전하다.
type EnrichService struct {
	deps         EnrichDeps
	rules        []ClassifyRule
	fetchTimeout time.Duration
	storeTimeout time.Duration
	now          func() time.Time
}

func NewEnrichService(deps EnrichDeps, cfg config.WorkerConfig) *EnrichService {
	return &EnrichService{
		deps:         deps,
		rules:        DefaultRules(),
		fetchTimeout: cfg.FetchTimeout(),
		storeTimeout: cfg.StoreTimeout(),
		now:          time.Now,
	}
}

// WithRules 는 분류 규칙을 바꾼다.
func (s *EnrichService) WithRules(rules ...ClassifyRule) *EnrichService {
	s.rules = rules
	return s
}

func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Process 는 itemID 를 처리한다. 실패는 항상 *ProcessError 로 돌려준다.
// 아이템이 이미 없으면 StatusMissing 과 nil 을 반환한다.
func (s *EnrichService) Process(ctx context.Context, itemID int64) (Outcome, error) {
	out := Outcome{ItemID: itemID, Status: StatusMissing}

	item, err := s.loadItem(ctx, itemID)
	if errors.Is(err, repositories.ErrItemNotFound) {
		return out, nil
	}
	if err != nil {
		return out, storeFailure("load item", err)
	}

	family, fetcher, perr := s.fetcherFor(ctx, item)
	if perr != nil {
		return out, perr
	}

	fetchCtx, cancel := bounded(ctx, s.fetchTimeout)
	detail, err := fetcher.FetchDetail(fetchCtx, *item)
	cancel()
	if err != nil {
		if errors.Is(err, parser.ErrNotFound) {
			return out, permanent("fetch", err)
		}
		return out, transient("fetch", err)
	}

	if c := Classify(detail, s.rules); !c.Processable {
		if err := s.store(ctx, func(ctx context.Context) error { return s.deps.Items.Delete(ctx, itemID) }); err != nil {
			return out, storeFailure("delete item", err)
		}
		logger.InfoWithFields("unprocessable item deleted", logger.Fields{
			"item_id": itemID,
			"family":  family,
			"reason":  c.Reason,
		})
		return Outcome{ItemID: itemID, Status: StatusDeleted, Reason: c.Reason}, nil
	}

	if err := s.store(ctx, func(ctx context.Context) error {
		return s.deps.Comments.ReplaceComments(ctx, itemID, detail.Comments)
	}); err != nil {
		return out, storeFailure("replace comments", err)
	}

	referer := detail.Referer
	if referer == "" {
		referer = item.URL
	}
	downloadCtx, cancel := bounded(ctx, s.fetchTimeout)
	assets, err := s.deps.Images.Download(downloadCtx, family, item.ExternalID, referer, detail.ImageURLs)
	cancel()
	if err != nil {
		return out, transient("download images", err)
	}
	if err := s.store(ctx, func(ctx context.Context) error {
		return s.deps.Assets.ReplaceAssets(ctx, itemID, assets)
	}); err != nil {
		return out, storeFailure("replace assets", err)
	}

	input := ComposeSummaryInput(detail.Body, detail.Comments)
	imagePaths := make([]string, 0, len(assets))
	for _, a := range assets {
		imagePaths = append(imagePaths, a.LocalPath)
	}

	result, err := s.deps.Summarizer.Summarize(ctx, input, imagePaths)
	if err != nil {
		return out, summaryFailure(err)
	}

	update := models.SummaryUpdate{
		ItemID:      itemID,
		RawText:     input,
		ImageCount:  len(imagePaths),
		ModelName:   result.Model,
		SummaryText: result.Text,
		GeneratedAt: s.now(),
		Meta: models.SummaryMeta{
			LatencyMs:    result.Latency.Milliseconds(),
			InputTokens:  result.InputTokens,
			OutputTokens: result.OutputTokens,
			ModelVersion: result.ModelVersion,
		},
	}
	err = s.store(ctx, func(ctx context.Context) error { return s.deps.Summaries.ApplySummary(ctx, update) })
	if errors.Is(err, repositories.ErrItemNotFound) {
		// 처리 중에 다른 전달이 아이템을 삭제했다.
		return out, nil
	}
	if err != nil {
		return out, storeFailure("apply summary", err)
	}

	logger.InfoWithFields("item summarized", logger.Fields{
		"item_id":     itemID,
		"family":      family,
		"model":       result.Model,
		"images":      len(imagePaths),
		"comments":    len(detail.Comments),
		"latency_ms":  result.Latency.Milliseconds(),
		"input_runes": len([]rune(input)),
	})
	return Outcome{ItemID: itemID, Status: StatusSummarized, Model: result.Model}, nil
}

func (s *EnrichService) loadItem(ctx context.Context, itemID int64) (*models.Item, error) {
	var item *models.Item
	err := s.store(ctx, func(ctx context.Context) error {
		var err error
		item, err = s.deps.Items.FindByID(ctx, itemID)
		return err
	})
	return item, err
}

func (s *EnrichService) fetcherFor(ctx context.Context, item *models.Item) (string, parser.Fetcher, *ProcessError) {
	var source *models.Source
	err := s.store(ctx, func(ctx context.Context) error {
		var err error
		source, err = s.deps.Sources.FindByID(ctx, item.SourceID)
		return err
	})
	if errors.Is(err, repositories.ErrSourceNotFound) {
		return "", nil, permanent("load source", err)
	}
	if err != nil {
		return "", nil, storeFailure("load source", err)
	}

	family := source.Family()
	fetcher, ok := s.deps.Fetchers[family]
	if !ok {
		return family, nil, permanent("fetch", fmt.Errorf("no detail fetcher for source %s (family %q)", source.Code, family))
	}
	return family, fetcher, nil
}

// store 는 저장소 호출 하나에 store_timeout 을 건다.
func (s *EnrichService) store(ctx context.Context, fn func(ctx context.Context) error) error {
	storeCtx, cancel := bounded(ctx, s.storeTimeout)
	defer cancel()
	return fn(storeCtx)
}

// summaryFailure 는 요약 엔진 오류를 분류한다. 요약할 내용이 없거나 모든 모델이 실패한 경우는 영구 실패이고,
// 호출 전체의 타임아웃이나 취소를 포함한 나머지는 재시도한다.
// 마지막으로 시도한 모델이 호출 타임아웃으로 끝났으면 제공자 지연으로 보고 재시도한다.
func summaryFailure(err error) *ProcessError {
	var exhausted *summarizer.ExhaustedError
	if errors.As(err, &exhausted) {
		pe := permanent("summarize", err)
		if errors.Is(exhausted.Err, context.DeadlineExceeded) {
			pe = transient("summarize", err)
		}
		pe.LastModel = exhausted.LastModel
		return pe
	}
	if errors.Is(err, summarizer.ErrNoContent) {
		return permanent("summarize", err)
	}
	return transient("summarize", err)
}
