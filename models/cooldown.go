package models

import "time"

// ModelCooldown 은 한도 초과로 잠시 제외된 모델의 상태다.
// Table: model_cooldown (cooldown_store=postgres 일 때만 사용)
type ModelCooldown struct {
	ModelName         string    `json:"model_name"`
	CooldownUntil     time.Time `json:"cooldown_until"`
	LastFailureReason string    `json:"last_failure_reason"`
	UpdatedAt         time.Time `json:"updated_at"`
}
