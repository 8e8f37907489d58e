package services

import (
	"context"
	"fmt"
	"time"

	"post-digest/config"
	"post-digest/feeder"
	"post-digest/internal/logger"
	"post-digest/models"
)

type SourceRegistry interface {
	GetOrCreate(ctx context.Context, cfg models.SourceConfig) (*models.Source, bool, error)
}

type ItemUpserter interface {
	UpsertMany(ctx context.Context, sourceID int64, drafts []models.ItemDraft) ([]models.UpsertResult, error)
}

// CrawlService 는 소스 하나에 대해 수집 → 업서트 → 발행 한 주기를 실행한다.
type CrawlService struct {
	sources   SourceRegistry
	items     ItemUpserter
	publisher *Publisher
	queues    config.QueueConfig
	now       func() time.Time
}

func NewCrawlService(sources SourceRegistry, items ItemUpserter, publisher *Publisher, queues config.QueueConfig) *CrawlService {
	return &CrawlService{
		sources:   sources,
		items:     items,
		publisher: publisher,
		queues:    queues,
		now:       time.Now,
	}
}

// CycleReport 는 한 주기의 집계다.
type CycleReport struct {
	Source    string
	Inactive  bool
	Fetched   int
	Kept      int
	Inserted  int
	Published int
}

// RunCycle 은 소스를 등록(또는 조회)하고, 비활성 소스면 아무것도 하지 않는다.
// 활성 소스는 목록을 가져와 필터를 적용한 뒤 한 트랜잭션으로 업서트하고,
// 커밋이 끝난 다음 새로 삽입된 아이템만 계열 큐로 발행한다.
func (s *CrawlService) RunCycle(ctx context.Context, crawler feeder.Crawler) (CycleReport, error) {
	cfg := crawler.Source()
	report := CycleReport{Source: cfg.Code}

	queue, err := s.queues.ForFamily(crawler.Family())
	if err != nil {
		return report, err
	}

	source, created, err := s.sources.GetOrCreate(ctx, cfg)
	if err != nil {
		return report, fmt.Errorf("failed to register source %s: %w", cfg.Code, err)
	}
	if created {
		logger.Log.Infof("registered new source %s (inactive)", cfg.Code)
	}
	if !source.IsActive {
		report.Inactive = true
		logger.Log.Warnf("source %s is inactive, activate it with `admin activate %s`", source.Code, source.Code)
		return report, nil
	}

	posts, err := crawler.Fetch(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to fetch %s: %w", cfg.Code, err)
	}
	report.Fetched = len(posts)

	kept := crawler.Filter().Apply(posts, s.now())
	report.Kept = len(kept)
	if len(kept) == 0 {
		logger.Log.Infof("source %s: no posts passed the filter (%d fetched)", source.Code, report.Fetched)
		return report, nil
	}

	drafts := make([]models.ItemDraft, 0, len(kept))
	for _, p := range kept {
		drafts = append(drafts, p.Draft())
	}
	results, err := s.items.UpsertMany(ctx, source.ID, drafts)
	if err != nil {
		return report, fmt.Errorf("failed to store posts of %s: %w", source.Code, err)
	}
	for _, r := range results {
		if r.Inserted {
			report.Inserted++
		}
	}

	published, err := s.publisher.PublishInserted(ctx, queue, results)
	report.Published = published

	logger.InfoWithFields("crawl cycle finished", logger.Fields{
		"source":    source.Code,
		"queue":     queue,
		"fetched":   report.Fetched,
		"kept":      report.Kept,
		"inserted":  report.Inserted,
		"published": report.Published,
	})
	if err != nil {
		return report, fmt.Errorf("source %s: %d of %d dispatches failed: %w", source.Code, report.Inserted-published, report.Inserted, err)
	}
	return report, nil
}
