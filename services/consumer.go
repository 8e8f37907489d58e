package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"post-digest/config"
	"post-digest/eventbus"
	"post-digest/events"
	"post-digest/internal/logger"
	"post-digest/repositories"
)

// Result 는 RunOnce 한 번의 종료 상태다.
type Result string

const (
	ResultEmpty    Result = "empty"
	ResultAcked    Result = "acked"
	ResultRequeued Result = "requeued"
	ResultDead     Result = "dead"
)

// RunReport 는 RunOnce 가 처리한 메시지의 결과다. Empty 이면 나머지 필드는 비어 있다.
type RunReport struct {
	Result  Result
	ItemID  int64
	Attempt int
	Message string
}

type Processor interface {
	Process(ctx context.Context, itemID int64) (Outcome, error)
}

type FailureMarker interface {
	MarkFailed(ctx context.Context, id int64, reason, lastModel string, at time.Time) error
}

// Consumer 는 호출 한 번에 메시지 하나를 임대해 처리하고 ack / requeue / drop 으로 정산한다.
// 동시 처리는 호출을 여러 번 띄워서 얻는다.
type Consumer struct {
	broker       eventbus.Broker
	queue        string
	processor    Processor
	failures     FailureMarker
	leaseTimeout time.Duration
	storeTimeout time.Duration
	now          func() time.Time
}

func NewConsumer(broker eventbus.Broker, queue string, processor Processor, failures FailureMarker, cfg config.WorkerConfig) *Consumer {
	return &Consumer{
		broker:       broker,
		queue:        queue,
		processor:    processor,
		failures:     failures,
		leaseTimeout: cfg.LeaseTimeout(),
		storeTimeout: cfg.StoreTimeout(),
		now:          time.Now,
	}
}

func (c *Consumer) Queue() string { return c.queue }

// RunOnce 는 Idle → MessageLeased → Processing → {Acked, Requeued, Dead} 를 한 번 진행한다.
// 반환 오류는 브로커나 저장소 자체의 실패이며, 이때도 메시지는 가능한 한 재전달 상태로 돌려놓는다.
func (c *Consumer) RunOnce(ctx context.Context) (RunReport, error) {
	leaseCtx, cancel := bounded(ctx, c.leaseTimeout)
	d, err := c.broker.Lease(leaseCtx, c.queue)
	cancel()
	if err != nil {
		// 임대 타임아웃 안에 받을 메시지가 없었다.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return RunReport{Result: ResultEmpty}, nil
		}
		return RunReport{Result: ResultEmpty}, fmt.Errorf("failed to lease from %s: %w", c.queue, err)
	}
	if d == nil {
		return RunReport{Result: ResultEmpty}, nil
	}

	report := RunReport{Attempt: d.Attempt}
	dispatch, err := events.ParseItemDispatch(d.Body)
	if err != nil {
		report.Result = ResultDead
		report.Message = err.Error()
		logger.WarnWithFields("dropping invalid dispatch", logger.Fields{"queue": c.queue, "error": err.Error()})
		return report, c.settle(ctx, func(ctx context.Context) error { return d.Drop(ctx, err.Error()) })
	}
	report.ItemID = dispatch.ItemID

	outcome, err := c.processor.Process(ctx, dispatch.ItemID)
	if err == nil {
		report.Result = ResultAcked
		report.Message = outcome.String()
		return report, c.settle(ctx, d.Ack)
	}

	pe := AsProcessError(err)
	fields := logger.Fields{
		"queue":   c.queue,
		"item_id": dispatch.ItemID,
		"attempt": d.Attempt,
		"kind":    pe.Kind.String(),
		"op":      pe.Op,
		"error":   pe.Error(),
	}
	if pe.Kind == Transient {
		logger.WarnWithFields("requeueing item after transient failure", fields)
		report.Result = ResultRequeued
		report.Message = pe.Error()
		return report, c.settle(ctx, func(ctx context.Context) error { return d.Requeue(ctx, pe.Error()) })
	}

	// 실패 사유를 먼저 남긴다. 기록하지 못하면 나중에 다시 시도하도록 되돌린다.
	if markErr := c.markFailed(ctx, dispatch.ItemID, pe); markErr != nil {
		fields["mark_error"] = markErr.Error()
		logger.ErrorWithFields("failed to record permanent failure, requeueing", fields)
		report.Result = ResultRequeued
		report.Message = fmt.Sprintf("%s (failure not recorded: %v)", pe.Error(), markErr)
		return report, c.settle(ctx, func(ctx context.Context) error { return d.Requeue(ctx, pe.Error()) })
	}
	if pe.LastModel != "" {
		fields["last_model"] = pe.LastModel
	}
	logger.ErrorWithFields("dropping item after permanent failure", fields)
	report.Result = ResultDead
	report.Message = pe.Error()
	return report, c.settle(ctx, func(ctx context.Context) error { return d.Drop(ctx, pe.Error()) })
}

func (c *Consumer) markFailed(ctx context.Context, itemID int64, pe *ProcessError) error {
	markCtx, cancel := bounded(context.WithoutCancel(ctx), c.storeTimeout)
	defer cancel()
	err := c.failures.MarkFailed(markCtx, itemID, pe.Err.Error(), pe.LastModel, c.now())
	if errors.Is(err, repositories.ErrItemNotFound) {
		return nil
	}
	return err
}

// settle 은 호출 ctx 가 이미 끝났어도 정산을 시도한다. 정산하지 못한 메시지는 브로커가 재전달한다.
func (c *Consumer) settle(ctx context.Context, fn func(ctx context.Context) error) error {
	settleCtx, cancel := bounded(context.WithoutCancel(ctx), c.storeTimeout)
	defer cancel()
	if err := fn(settleCtx); err != nil {
		return fmt.Errorf("failed to settle message on %s: %w", c.queue, err)
	}
	return nil
}
