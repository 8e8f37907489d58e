package models

import "time"

// Summary 는 모델이 생성한 요약이다. 아이템당 여러 건이 쌓이며 수정하지 않는다.
// Table: item_summary
type Summary struct {
	ID          int64       `json:"id"`
	ItemID      int64       `json:"item_id"`
	ModelName   string      `json:"model_name"`
	SummaryText string      `json:"summary_text"`
	CreatedAt   time.Time   `json:"created_at"`
	Meta        SummaryMeta `json:"meta"`
}

// SummaryMeta 는 요약 생성 당시의 입력 규모와 호출 통계다.
type SummaryMeta struct {
	ImageCount    int     `json:"image_count"`
	RawTextLength int     `json:"raw_text_length"`
	LastError     *string `json:"last_error"`
	LatencyMs     int64   `json:"latency_ms,omitempty"`
	InputTokens   int64   `json:"input_tokens,omitempty"`
	OutputTokens  int64   `json:"output_tokens,omitempty"`
	ModelVersion  string  `json:"model_version,omitempty"`

	Extra map[string]any `json:"-"`
}

type summaryMetaFields SummaryMeta

func (m SummaryMeta) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(summaryMetaFields(m), m.Extra)
}

func (m *SummaryMeta) UnmarshalJSON(data []byte) error {
	var f summaryMetaFields
	extra, err := unmarshalWithExtra(data, &f)
	if err != nil {
		return err
	}
	*m = SummaryMeta(f)
	m.Extra = extra
	return nil
}

// SummaryUpdate 는 워커가 요약 성공 후 한 트랜잭션으로 기록하는 값이다.
type SummaryUpdate struct {
	ItemID      int64
	RawText     string
	ImageCount  int
	ModelName   string
	SummaryText string
	GeneratedAt time.Time
	Meta        SummaryMeta
}
