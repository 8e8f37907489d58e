package services

import (
	"context"
	"errors"
	"fmt"

	"post-digest/eventbus"
	"post-digest/events"
	"post-digest/internal/logger"
	"post-digest/models"
)

// Publisher 는 새로 삽입된 아이템마다 디스패치 메시지를 하나씩 발행한다.
type Publisher struct {
	broker eventbus.Broker
}

func NewPublisher(broker eventbus.Broker) *Publisher {
	return &Publisher{broker: broker}
}

// PublishItem 은 아이템 하나의 디스패치 메시지를 발행한다.
func (p *Publisher) PublishItem(ctx context.Context, queue string, itemID int64) error {
	if err := eventbus.PublishJSON(ctx, p.broker, queue, events.NewItemDispatch(itemID)); err != nil {
		return fmt.Errorf("failed to publish item %d to %s: %w", itemID, queue, err)
	}
	return nil
}

// PublishInserted 는 Inserted 인 결과만 발행하고 발행한 건수를 반환한다.
// 커밋이 끝난 업서트 결과로만 호출해야 한다. 발행 실패는 모아서 돌려주며 삽입은 되돌리지 않는다.
// 남은 아이템은 재조정(reconcile)이 다시 발행한다.
func (p *Publisher) PublishInserted(ctx context.Context, queue string, results []models.UpsertResult) (int, error) {
	var (
		published int
		errs      []error
	)
	for _, r := range results {
		if !r.Inserted {
			continue
		}
		if err := p.PublishItem(ctx, queue, r.ItemID); err != nil {
			logger.WarnWithFields("dispatch publish failed", logger.Fields{
				"item_id":     r.ItemID,
				"external_id": r.ExternalID,
				"queue":       queue,
				"error":       err.Error(),
			})
			errs = append(errs, err)
			continue
		}
		published++
	}
	return published, errors.Join(errs...)
}
