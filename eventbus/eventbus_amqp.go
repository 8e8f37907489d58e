package eventbus

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"post-digest/internal/logger"
)

// AMQPBroker 는 RabbitMQ 기반 Broker 입니다.
// 연결은 처음 사용할 때 맺고, 끊어져 있으면 다시 연결합니다.
// 임대마다 채널을 새로 열고 정산하면서 닫습니다.
type AMQPBroker struct {
	url string

	mu       sync.Mutex
	conn     *amqp.Connection
	declared map[string]bool
}

func NewAMQPBroker(url string) *AMQPBroker {
	return &AMQPBroker{url: url, declared: map[string]bool{}}
}

func (b *AMQPBroker) connection() (*amqp.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn, nil
	}
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq 연결 실패: %w", err)
	}
	b.conn = conn
	b.declared = map[string]bool{}
	return conn, nil
}

func (b *AMQPBroker) channel() (*amqp.Channel, error) {
	conn, err := b.connection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq 채널 생성 실패: %w", err)
	}
	return ch, nil
}

func (b *AMQPBroker) declare(ch *amqp.Channel, queue string) error {
	b.mu.Lock()
	done := b.declared[queue]
	b.mu.Unlock()
	if done {
		return nil
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("큐 %s 선언 실패: %w", queue, err)
	}
	b.mu.Lock()
	b.declared[queue] = true
	b.mu.Unlock()
	return nil
}

func (b *AMQPBroker) EnsureQueue(_ context.Context, queue string) error {
	ch, err := b.channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	return b.declare(ch, queue)
}

func (b *AMQPBroker) Publish(ctx context.Context, queue string, body []byte) error {
	ch, err := b.channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := b.declare(ch, queue); err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("큐 %s 발행 실패: %w", queue, err)
	}
	return nil
}

// Lease 는 basic.get 으로 메시지 한 건을 가져옵니다. prefetch 는 1 입니다.
func (b *AMQPBroker) Lease(ctx context.Context, queue string) (*Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch, err := b.channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("qos 설정 실패: %w", err)
	}
	if err := b.declare(ch, queue); err != nil {
		ch.Close()
		return nil, err
	}

	msg, ok, err := ch.Get(queue, false)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("큐 %s 메시지 수신 실패: %w", queue, err)
	}
	if !ok {
		ch.Close()
		return nil, nil
	}

	attempt := 0
	if msg.Redelivered {
		attempt = 1
	}
	return &Delivery{
		Queue:   queue,
		Body:    msg.Body,
		Attempt: attempt,
		settler: b,
		handle:  &amqpLease{ch: ch, msg: msg},
	}, nil
}

type amqpLease struct {
	ch  *amqp.Channel
	msg amqp.Delivery
}

func (b *AMQPBroker) ack(_ context.Context, d *Delivery) error {
	l := d.handle.(*amqpLease)
	defer l.ch.Close()
	return l.msg.Ack(false)
}

func (b *AMQPBroker) requeue(_ context.Context, d *Delivery, reason string) error {
	l := d.handle.(*amqpLease)
	defer l.ch.Close()
	logger.Log.Warnf("큐 %s 메시지 재전달 요청: %s", d.Queue, reason)
	return l.msg.Nack(false, true)
}

func (b *AMQPBroker) drop(_ context.Context, d *Delivery, reason string) error {
	l := d.handle.(*amqpLease)
	defer l.ch.Close()
	logger.Log.Errorf("큐 %s 메시지 폐기: %s", d.Queue, reason)
	return l.msg.Nack(false, false)
}

func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil || b.conn.IsClosed() {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}
