package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const topicCreateTimeout = 30 * time.Second

// TopicSpecs 는 큐 하나에 필요한 토픽 사양을 만든다.
// 재시도 토픽은 기본 토픽과 같은 파티션 수를 쓰고, DLQ 는 1 파티션이다.
func TopicSpecs(topic Topic, partitions int) []kafka.TopicSpecification {
	if partitions <= 0 {
		partitions = 1
	}
	spec := func(name string, n int) kafka.TopicSpecification {
		return kafka.TopicSpecification{Topic: name, NumPartitions: n, ReplicationFactor: 1}
	}

	specs := []kafka.TopicSpecification{spec(topic.Base(), partitions)}
	for _, name := range topic.GetRetryTopics() {
		specs = append(specs, spec(name, partitions))
	}
	return append(specs, spec(topic.DLQ(), 1))
}

// EnsureTopics 는 TopicSpecs 의 토픽을 만든다. 이미 있는 토픽은 성공으로 본다.
func EnsureTopics(brokers string, topic Topic, partitions int) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{"bootstrap.servers": brokers})
	if err != nil {
		return fmt.Errorf("kafka admin client 생성 실패: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), topicCreateTimeout)
	defer cancel()

	results, err := admin.CreateTopics(ctx, TopicSpecs(topic, partitions))
	if err != nil {
		return fmt.Errorf("%s 토픽 생성 요청 실패: %w", topic.Base(), err)
	}
	for _, r := range results {
		switch r.Error.Code() {
		case kafka.ErrNoError, kafka.ErrTopicAlreadyExists:
		default:
			return fmt.Errorf("토픽 %s 생성 실패: %v", r.Topic, r.Error)
		}
	}
	return nil
}
