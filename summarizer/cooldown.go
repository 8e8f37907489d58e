package summarizer

import (
	"context"
	"sync"
	"time"

	"post-digest/models"
)

// CooldownStore 는 모델별 쿨다운 종료 시각을 보관한다.
type CooldownStore interface {
	// Until 은 모델의 쿨다운 종료 시각을 반환한다. 기록이 없으면 ok=false.
	Until(ctx context.Context, model string) (until time.Time, ok bool, err error)
	Set(ctx context.Context, model string, until time.Time, reason string) error
	Clear(ctx context.Context, model string) error
}

// MemoryCooldowns 는 프로세스 안에서만 공유되는 쿨다운 상태다.
// 여러 워커 인스턴스가 같은 상태를 봐야 하면 PostgresCooldowns 를 쓴다.
type MemoryCooldowns struct {
	mu      sync.Mutex
	entries map[string]models.ModelCooldown
}

func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{entries: map[string]models.ModelCooldown{}}
}

func (m *MemoryCooldowns) Until(_ context.Context, model string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[model]
	return e.CooldownUntil, ok, nil
}

func (m *MemoryCooldowns) Set(_ context.Context, model string, until time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[model] = models.ModelCooldown{
		ModelName:         model,
		CooldownUntil:     until,
		LastFailureReason: reason,
		UpdatedAt:         time.Now(),
	}
	return nil
}

func (m *MemoryCooldowns) Clear(_ context.Context, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, model)
	return nil
}

// Snapshot 은 현재 쿨다운 기록의 복사본이다.
func (m *MemoryCooldowns) Snapshot() []models.ModelCooldown {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ModelCooldown, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out
}

// CooldownRecords 는 model_cooldown 테이블 접근이다. repositories.CooldownRepository 가 만족한다.
type CooldownRecords interface {
	Get(ctx context.Context, model string) (*models.ModelCooldown, error)
	Set(ctx context.Context, model string, until time.Time, reason string) error
	Clear(ctx context.Context, model string) error
}

// PostgresCooldowns 는 워커 인스턴스끼리 model_cooldown 행을 공유한다.
type PostgresCooldowns struct {
	records CooldownRecords
}

func NewPostgresCooldowns(records CooldownRecords) *PostgresCooldowns {
	return &PostgresCooldowns{records: records}
}

func (p *PostgresCooldowns) Until(ctx context.Context, model string) (time.Time, bool, error) {
	rec, err := p.records.Get(ctx, model)
	if err != nil || rec == nil {
		return time.Time{}, false, err
	}
	return rec.CooldownUntil, true, nil
}

func (p *PostgresCooldowns) Set(ctx context.Context, model string, until time.Time, reason string) error {
	return p.records.Set(ctx, model, until, reason)
}

func (p *PostgresCooldowns) Clear(ctx context.Context, model string) error {
	return p.records.Clear(ctx, model)
}
