package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"post-digest/config"
)

// RetryDelays는 재시도 횟수(1-based)별로 사용할 고정된 지연 시간 목록입니다.
// Kafka 백엔드만 사용하며, AMQP 는 브로커의 즉시 재전달에 맡깁니다.
var RetryDelays = []time.Duration{
	10 * time.Second, // 1차 재시도
	30 * time.Second, // 2차 재시도
	1 * time.Minute,  // 3차 재시도
	5 * time.Minute,  // 4차 재시도
	10 * time.Minute, // 5차 재시도
}

// AttemptHeader 는 Kafka 메시지에 재시도 횟수를 싣는 헤더 이름입니다.
const AttemptHeader = "x-attempt"

// Topic은 큐의 기본 이름, 재시도 토픽, DLQ 토픽 이름을 관리합니다.
type Topic struct {
	base string
}

func NewTopic(base string) Topic {
	return Topic{base: base}
}

func (t Topic) Base() string {
	return t.base
}

// DLQ는 DLQ 토픽 이름을 반환합니다 (예: dcinside_items.dlq).
func (t Topic) DLQ() string {
	return t.base + ".dlq"
}

// GetRetryTopics는 모든 재시도 토픽의 이름을 반환합니다.
func (t Topic) GetRetryTopics() []string {
	topics := make([]string, len(RetryDelays))
	for i := range RetryDelays {
		topics[i] = fmt.Sprintf("%s.retry.%d", t.base, i+1)
	}
	return topics
}

// GetRetryTopic은 다음 재시도 횟수(1-based)에 해당하는 재시도 토픽 이름을 반환합니다.
func (t Topic) GetRetryTopic(retryCount int) (string, error) {
	if retryCount <= 0 || retryCount > len(RetryDelays) {
		return "", ErrMaxRetryExceeded
	}
	return fmt.Sprintf("%s.retry.%d", t.base, retryCount), nil
}

// Broker 는 소스 계열별 내구 큐를 추상화합니다.
// 큐 계층은 ack / requeue / drop 세 가지 결과만 압니다.
type Broker interface {
	// EnsureQueue 는 큐가 없으면 내구 큐로 선언합니다.
	EnsureQueue(ctx context.Context, queue string) error
	Publish(ctx context.Context, queue string, body []byte) error
	// Lease 는 메시지 한 건을 임대합니다. 큐가 비어 있으면 (nil, nil) 을 반환합니다.
	// 반환된 Delivery 는 Ack, Requeue, Drop 중 하나로 반드시 정산해야 합니다.
	Lease(ctx context.Context, queue string) (*Delivery, error)
	Close() error
}

// settler 는 백엔드별 메시지 정산 방법입니다.
type settler interface {
	ack(ctx context.Context, d *Delivery) error
	requeue(ctx context.Context, d *Delivery, reason string) error
	drop(ctx context.Context, d *Delivery, reason string) error
}

// Delivery 는 임대된 메시지 한 건입니다.
type Delivery struct {
	Queue string
	Body  []byte
	// Attempt 는 이전에 재시도된 횟수입니다(첫 전달은 0).
	Attempt int

	settler settler
	handle  any
	settled bool
}

func (d *Delivery) Ack(ctx context.Context) error {
	if err := d.markSettled(); err != nil {
		return err
	}
	return d.settler.ack(ctx, d)
}

// Requeue 는 메시지를 다시 전달 가능한 상태로 돌려놓습니다.
func (d *Delivery) Requeue(ctx context.Context, reason string) error {
	if err := d.markSettled(); err != nil {
		return err
	}
	return d.settler.requeue(ctx, d, reason)
}

// Drop 은 메시지를 재전달 없이 버립니다(백엔드에 따라 DLQ 로 이동).
func (d *Delivery) Drop(ctx context.Context, reason string) error {
	if err := d.markSettled(); err != nil {
		return err
	}
	return d.settler.drop(ctx, d, reason)
}

func (d *Delivery) markSettled() error {
	if d.settled {
		return ErrAlreadySettled
	}
	d.settled = true
	return nil
}

// New 는 설정된 백엔드(amqp, kafka, memory)로 Broker 를 만듭니다.
func New(cfg config.BrokerConfig) (Broker, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "amqp", "rabbitmq":
		return NewAMQPBroker(cfg.URL), nil
	case "kafka":
		k, err := NewKafkaBroker(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		return k, nil
	case "memory":
		return NewMemoryBroker(), nil
	}
	return nil, fmt.Errorf("unknown broker backend: %q", cfg.Backend)
}

// ErrMaxRetryExceeded는 최대 재시도 횟수를 초과했을 때 반환되는 오류입니다.
var ErrMaxRetryExceeded = errors.New("최대 재시도 횟수 초과")

// ErrRetryScheduleFailed는 재시도 또는 DLQ 발행에 실패했을 때 반환되는 오류입니다.
var ErrRetryScheduleFailed = errors.New("재시도 또는 DLQ 발행 실패")

var (
	ErrAlreadySettled = errors.New("delivery already settled")
	ErrBrokerClosed   = errors.New("broker closed")
)
