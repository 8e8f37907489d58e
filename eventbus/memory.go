package eventbus

import (
	"context"
	"sync"
)

// MemoryBroker 는 프로세스 안에서만 동작하는 Broker 입니다. 로컬 실행과 테스트에 씁니다.
// Requeue 된 메시지는 큐 뒤에 다시 붙고, Drop 된 메시지는 Dead 로 옮겨집니다.
type MemoryBroker struct {
	mu       sync.Mutex
	queues   map[string][]memoryMessage
	inflight map[string]int
	dead     map[string][][]byte
	closed   bool
}

type memoryMessage struct {
	body    []byte
	attempt int
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues:   map[string][]memoryMessage{},
		inflight: map[string]int{},
		dead:     map[string][][]byte{},
	}
}

func (m *MemoryBroker) EnsureQueue(_ context.Context, queue string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[queue]; !ok {
		m.queues[queue] = nil
	}
	return nil
}

func (m *MemoryBroker) Publish(_ context.Context, queue string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrBrokerClosed
	}
	m.queues[queue] = append(m.queues[queue], memoryMessage{body: append([]byte(nil), body...)})
	return nil
}

func (m *MemoryBroker) Lease(_ context.Context, queue string) (*Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrBrokerClosed
	}
	q := m.queues[queue]
	if len(q) == 0 {
		return nil, nil
	}
	msg := q[0]
	m.queues[queue] = q[1:]
	m.inflight[queue]++
	return &Delivery{Queue: queue, Body: msg.body, Attempt: msg.attempt, settler: m, handle: msg}, nil
}

func (m *MemoryBroker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryBroker) ack(_ context.Context, d *Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight[d.Queue]--
	return nil
}

func (m *MemoryBroker) requeue(_ context.Context, d *Delivery, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight[d.Queue]--
	msg := d.handle.(memoryMessage)
	msg.attempt++
	m.queues[d.Queue] = append(m.queues[d.Queue], msg)
	return nil
}

func (m *MemoryBroker) drop(_ context.Context, d *Delivery, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight[d.Queue]--
	m.dead[d.Queue] = append(m.dead[d.Queue], d.Body)
	return nil
}

// Pending 은 아직 임대되지 않은 메시지 본문을 순서대로 반환합니다.
func (m *MemoryBroker) Pending(queue string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, 0, len(m.queues[queue]))
	for _, msg := range m.queues[queue] {
		out = append(out, msg.body)
	}
	return out
}

// InFlight 는 임대된 뒤 아직 정산되지 않은 메시지 수입니다.
func (m *MemoryBroker) InFlight(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight[queue]
}

func (m *MemoryBroker) Dead(queue string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.dead[queue]...)
}
