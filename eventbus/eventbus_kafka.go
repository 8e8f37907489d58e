package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"

	"post-digest/config"
	"post-digest/internal/logger"
)

// KafkaBroker는 confluent-kafka-go 라이브러리를 사용한 Broker 구현체입니다.
// 큐 이름이 곧 기본 토픽 이름이며, 재시도는 "<queue>.retry.<n>", 폐기는 "<queue>.dlq" 토픽을 씁니다.
type KafkaBroker struct {
	Producer *kafka.Producer
	cfg      config.KafkaConfig

	mu        sync.Mutex
	consumers map[string]*kafkaConsumer
}

// kafkaConsumer 는 큐 하나를 읽는 컨슈머입니다.
// 오프셋을 순서대로 커밋해야 하므로 임대는 한 번에 한 건만 허용합니다(sem).
type kafkaConsumer struct {
	c   *kafka.Consumer
	sem chan struct{}
}

// NewKafkaBroker는 Kafka Producer를 초기화합니다.
func NewKafkaBroker(cfg config.KafkaConfig) (*KafkaBroker, error) {
	if cfg.Brokers == "" {
		return nil, errors.New("kafka brokers are not configured (KAFKA_BOOTSTRAP_SERVERS)")
	}
	pcfg := &kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "all",
		"retries":           5, // Producer는 일시적인 오류 발생 시 최대 5회 재시도합니다.
	}
	if cfg.MessageMaxBytes > 0 {
		_ = pcfg.SetKey("message.max.bytes", cfg.MessageMaxBytes)
	}
	p, err := kafka.NewProducer(pcfg)
	if err != nil {
		return nil, fmt.Errorf("kafka Producer 생성 실패: %w", err)
	}

	// Producer 이벤트를 처리하는 고루틴 (전달 보고서 외 오류)
	go func() {
		for e := range p.Events() {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					logger.Log.Errorf("메시지 전달 실패 %v: %v", ev.TopicPartition, ev.TopicPartition.Error)
				}
			case kafka.Error:
				logger.Log.Errorf("Kafka 오류: %v", ev)
			}
		}
	}()

	return &KafkaBroker{
		Producer:  p,
		cfg:       cfg,
		consumers: map[string]*kafkaConsumer{},
	}, nil
}

// EnsureQueue 는 기본/재시도/DLQ 토픽을 생성합니다.
func (k *KafkaBroker) EnsureQueue(_ context.Context, queue string) error {
	partitions := k.cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	return EnsureTopics(k.cfg.Brokers, NewTopic(queue), partitions)
}

func (k *KafkaBroker) Publish(ctx context.Context, queue string, body []byte) error {
	return k.produce(ctx, queue, body, nil)
}

// produce는 지정된 토픽에 메시지를 발행하고 전달 보고서를 기다립니다.
func (k *KafkaBroker) produce(ctx context.Context, topic string, body []byte, headers []kafka.Header) error {
	deliveryChan := make(chan kafka.Event, 1)

	err := k.Producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          body,
		Key:            []byte(uuid.NewString()),
		Headers:        headers,
	}, deliveryChan)
	if err != nil {
		return fmt.Errorf("메시지 발행 실패: %w", err)
	}

	// 전달 성공/실패 대기
	select {
	case ev := <-deliveryChan:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("예상하지 못한 전달 이벤트: %v", ev)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("메시지 전달 실패: %w", m.TopicPartition.Error)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (k *KafkaBroker) consumer(queue string) (*kafkaConsumer, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if kc, ok := k.consumers[queue]; ok {
		return kc, nil
	}

	ccfg := &kafka.ConfigMap{
		"bootstrap.servers":             k.cfg.Brokers,
		"group.id":                      k.cfg.GroupID,
		"auto.offset.reset":             "earliest",
		"enable.auto.commit":            false, // 정산 시점에 수동 커밋
		"partition.assignment.strategy": "range",
	}
	if k.cfg.MaxPollIntervalMs > 0 {
		_ = ccfg.SetKey("max.poll.interval.ms", k.cfg.MaxPollIntervalMs)
	}
	c, err := kafka.NewConsumer(ccfg)
	if err != nil {
		return nil, fmt.Errorf("kafka Consumer 생성 실패: %w", err)
	}
	if err := c.SubscribeTopics([]string{queue}, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("토픽 구독 실패 %s: %w", queue, err)
	}
	logger.Log.Infof("kafka 컨슈머 (%s) 시작됨. 구독 토픽: %s", k.cfg.GroupID, queue)

	kc := &kafkaConsumer{c: c, sem: make(chan struct{}, 1)}
	k.consumers[queue] = kc
	return kc, nil
}

// Lease 는 ctx 의 마감 시간까지 메시지 한 건을 기다립니다. 그동안 아무것도 오지 않으면 (nil, nil).
func (k *KafkaBroker) Lease(ctx context.Context, queue string) (*Delivery, error) {
	kc, err := k.consumer(queue)
	if err != nil {
		return nil, err
	}

	select {
	case kc.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil
	}

	wait := time.Second
	if dl, ok := ctx.Deadline(); ok {
		wait = time.Until(dl)
	}
	if wait <= 0 {
		<-kc.sem
		return nil, nil
	}

	msg, err := kc.c.ReadMessage(wait)
	if err != nil {
		<-kc.sem
		var kerr kafka.Error
		if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
			return nil, nil
		}
		return nil, fmt.Errorf("토픽 %s 메시지 수신 실패: %w", queue, err)
	}

	return &Delivery{
		Queue:   queue,
		Body:    msg.Value,
		Attempt: attemptFromHeaders(msg.Headers),
		settler: k,
		handle:  &kafkaLease{kc: kc, msg: msg},
	}, nil
}

type kafkaLease struct {
	kc  *kafkaConsumer
	msg *kafka.Message
}

func (l *kafkaLease) release() { <-l.kc.sem }

// commit 은 처리한 메시지의 오프셋을 커밋합니다.
func (l *kafkaLease) commit() error {
	if _, err := l.kc.c.CommitMessage(l.msg); err != nil {
		return fmt.Errorf("오프셋 커밋 오류: %w", err)
	}
	return nil
}

// rewind 는 발행 실패 시 같은 메시지를 다시 읽도록 오프셋을 되돌립니다.
func (l *kafkaLease) rewind() {
	if err := l.kc.c.Seek(l.msg.TopicPartition, 0); err != nil {
		logger.Log.Errorf("오프셋 되돌리기 실패 %v: %v", l.msg.TopicPartition, err)
	}
}

func (k *KafkaBroker) ack(_ context.Context, d *Delivery) error {
	l := d.handle.(*kafkaLease)
	defer l.release()
	return l.commit()
}

// requeue 는 다음 재시도 토픽으로 메시지를 옮기고 커밋합니다. 재시도 단계를 모두 쓰면 DLQ 로 보냅니다.
func (k *KafkaBroker) requeue(ctx context.Context, d *Delivery, reason string) error {
	l := d.handle.(*kafkaLease)
	defer l.release()

	topic := NewTopic(d.Queue)
	next := d.Attempt + 1
	target, err := topic.GetRetryTopic(next)
	if errors.Is(err, ErrMaxRetryExceeded) {
		logger.Log.Errorf("큐 %s 메시지의 최대 재시도 횟수 초과. DLQ %s로 전송. 최종 오류: %s", d.Queue, topic.DLQ(), reason)
		target = topic.DLQ()
	}

	headers := []kafka.Header{
		{Key: AttemptHeader, Value: []byte(strconv.Itoa(next))},
		{Key: "x-last-error", Value: []byte(reason)},
	}
	if err := k.produce(ctx, target, d.Body, headers); err != nil {
		l.rewind()
		return fmt.Errorf("%w: %s: %v", ErrRetryScheduleFailed, target, err)
	}
	logger.Log.Warnf("큐 %s 메시지 처리 실패. 재시도 %d/%d를 토픽 %s에 예약.", d.Queue, next, len(RetryDelays), target)
	return l.commit()
}

func (k *KafkaBroker) drop(ctx context.Context, d *Delivery, reason string) error {
	l := d.handle.(*kafkaLease)
	defer l.release()

	dlq := NewTopic(d.Queue).DLQ()
	headers := []kafka.Header{
		{Key: AttemptHeader, Value: []byte(strconv.Itoa(d.Attempt))},
		{Key: "x-drop-reason", Value: []byte(reason)},
	}
	if err := k.produce(ctx, dlq, d.Body, headers); err != nil {
		l.rewind()
		return fmt.Errorf("%w: %s: %v", ErrRetryScheduleFailed, dlq, err)
	}
	return l.commit()
}

// StartRetryReinjector는 큐의 모든 재시도 토픽을 구독하고, 지연 시간이 지난 메시지를 기본 토픽으로 재발행합니다.
func (k *KafkaBroker) StartRetryReinjector(ctx context.Context, groupID string, topic Topic) error {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":             k.cfg.Brokers,
		"group.id":                      groupID, // 전용 재주입 그룹 ID
		"auto.offset.reset":             "earliest",
		"enable.auto.commit":            false,
		"partition.assignment.strategy": "range",
	})
	if err != nil {
		return fmt.Errorf("kafka 재시도 재주입기 생성 실패: %w", err)
	}
	defer c.Close()

	retryTopics := topic.GetRetryTopics()
	if err := c.SubscribeTopics(retryTopics, nil); err != nil {
		return fmt.Errorf("재시도 토픽 구독 실패 %v: %w", retryTopics, err)
	}

	logger.Log.Infof("재시도 재주입 컨슈머 (%s) 시작됨. 구독 토픽: %s", groupID, strings.Join(retryTopics, ", "))

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("재시도 재주입 컨슈머 종료 중.")
			return ctx.Err()
		default:
		}

		msg, err := c.ReadMessage(100 * time.Millisecond)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) {
				if kerr.Code() == kafka.ErrTimedOut {
					continue
				}
				if kerr.IsFatal() {
					return fmt.Errorf("재시도 재주입 컨슈머 치명적 오류: %w", err)
				}
			}
			logger.Log.Errorf("재시도 재주입 컨슈머 ReadMessage 오류: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		// 토픽명에서 재시도 지연 시간 추출 및 준비시간 확인
		topicName := *msg.TopicPartition.Topic
		delay, ok := ParseRetryDelayFromTopicName(topicName)
		if !ok {
			logger.Log.Errorf("재시도 토픽 이름 파싱 실패: %s. 메시지를 건너뛰고 커밋합니다.", topicName)
			_, _ = c.CommitMessage(msg)
			continue
		}

		if wait := ReinjectWait(msg.Timestamp, delay, time.Now()); wait > 0 {
			time.Sleep(wait)
			// 오프셋 커밋 없이 같은 위치부터 다시 읽습니다.
			if err := c.Seek(msg.TopicPartition, 0); err != nil {
				logger.Log.Errorf("오프셋 되돌리기 실패 %v: %v", msg.TopicPartition, err)
			}
			continue
		}

		if err := k.produce(ctx, topic.Base(), msg.Value, msg.Headers); err != nil {
			logger.Log.Errorf("%s 메시지 재주입 실패: %v. 오프셋 커밋 안함.", topicName, err)
			if err := c.Seek(msg.TopicPartition, 0); err != nil {
				logger.Log.Errorf("오프셋 되돌리기 실패 %v: %v", msg.TopicPartition, err)
			}
			continue
		}
		logger.Log.Infof("메시지를 %s에서 %s로 재주입. (재시도: %d)", topicName, topic.Base(), attemptFromHeaders(msg.Headers))

		if _, err := c.CommitMessage(msg); err != nil {
			logger.Log.Errorf("재주입 후 커밋 오류: %v", err)
		}
	}
}

// ReinjectWait 는 재시도 메시지를 다시 발행하기 전에 잠시 기다릴 시간을 계산합니다.
// 컨슈머 스레드를 오래 막지 않도록 50ms~500ms 로 제한하며, 준비되었으면 0 입니다.
func ReinjectWait(producedAt time.Time, delay time.Duration, now time.Time) time.Duration {
	readyAt := producedAt.Add(delay)
	if !now.Before(readyAt) {
		return 0
	}
	wait := readyAt.Sub(now)
	if wait > 500*time.Millisecond {
		wait = 500 * time.Millisecond
	} else if wait < 50*time.Millisecond {
		wait = 50 * time.Millisecond
	}
	return wait
}

func attemptFromHeaders(headers []kafka.Header) int {
	for _, h := range headers {
		if h.Key == AttemptHeader {
			if n, err := strconv.Atoi(string(h.Value)); err == nil && n >= 0 {
				return n
			}
		}
	}
	return 0
}

// Close는 컨슈머를 닫고 Producer를 안전하게 종료합니다.
func (k *KafkaBroker) Close() error {
	k.mu.Lock()
	for q, kc := range k.consumers {
		if err := kc.c.Close(); err != nil {
			logger.Log.Warnf("kafka 컨슈머 %s 종료 오류: %v", q, err)
		}
	}
	k.consumers = map[string]*kafkaConsumer{}
	k.mu.Unlock()

	if k.Producer != nil {
		// 5초 동안 남은 메시지를 모두 플러시합니다.
		if remaining := k.Producer.Flush(5000); remaining > 0 {
			logger.Log.Warnf("플러시 후에도 %d개의 메시지가 남아 있습니다.", remaining)
		}
		k.Producer.Close()
		logger.Log.Info("Kafka Producer 종료.")
	}
	return nil
}
