package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"post-digest/config"
	"post-digest/internal/logger"
	"post-digest/models"
)

type UnenrichedFinder interface {
	FindUnenriched(ctx context.Context, olderThan time.Time, limit int) ([]models.Item, error)
}

// ReconcileService 는 커밋은 되었지만 발행이 빠진 아이템을 계열 큐로 다시 발행한다.
// 같은 아이템이 두 번 처리되어도 결과가 같으므로 중복 발행은 허용한다.
type ReconcileService struct {
	items     UnenrichedFinder
	sources   SourceFinder
	publisher *Publisher
	queues    config.QueueConfig
	now       func() time.Time
}

func NewReconcileService(items UnenrichedFinder, sources SourceFinder, publisher *Publisher, queues config.QueueConfig) *ReconcileService {
	return &ReconcileService{items: items, sources: sources, publisher: publisher, queues: queues, now: time.Now}
}

type ReconcileReport struct {
	Found     int
	Published int
	Skipped   int
}

// Run 은 grace 보다 오래 요약되지 않은 아이템을 최대 limit 개 다시 발행한다.
// 소스나 큐를 찾지 못한 아이템은 건너뛰고, 발행 실패는 모아서 돌려준다.
func (s *ReconcileService) Run(ctx context.Context, grace time.Duration, limit int) (ReconcileReport, error) {
	var report ReconcileReport
	items, err := s.items.FindUnenriched(ctx, s.now().Add(-grace), limit)
	if err != nil {
		return report, err
	}
	report.Found = len(items)

	queues := map[int64]string{}
	var errs []error
	for _, it := range items {
		queue, ok := queues[it.SourceID]
		if !ok {
			queue, err = s.queueFor(ctx, it.SourceID)
			if err != nil {
				logger.WarnWithFields("reconcile skipped item", logger.Fields{
					"item_id":   it.ID,
					"source_id": it.SourceID,
					"error":     err.Error(),
				})
				report.Skipped++
				continue
			}
			queues[it.SourceID] = queue
		}
		if err := s.publisher.PublishItem(ctx, queue, it.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Published++
	}

	logger.InfoWithFields("reconcile finished", logger.Fields{
		"found":     report.Found,
		"published": report.Published,
		"skipped":   report.Skipped,
	})
	return report, errors.Join(errs...)
}

func (s *ReconcileService) queueFor(ctx context.Context, sourceID int64) (string, error) {
	src, err := s.sources.FindByID(ctx, sourceID)
	if err != nil {
		return "", fmt.Errorf("failed to load source %d: %w", sourceID, err)
	}
	return s.queues.ForFamily(src.Family())
}
