package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
)

// PublishJSON 은 payload 를 JSON 으로 인코딩해 발행합니다.
func PublishJSON(ctx context.Context, b Broker, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("payload marshal 실패: %w", err)
	}
	return b.Publish(ctx, queue, body)
}
