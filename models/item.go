package models

import (
	"time"
)

// Item 은 소스에서 수집된 게시물 한 건이다.
// (source_id, external_id) 가 중복 제거 키다.
// Table: item
type Item struct {
	ID          int64        `json:"id"`
	SourceID    int64        `json:"source_id"`
	ExternalID  string       `json:"external_id"`
	URL         string       `json:"url"`
	Title       string       `json:"title"`
	Author      string       `json:"author"`
	Content     *string      `json:"content,omitempty"`
	PublishedAt *time.Time   `json:"published_at,omitempty"`
	FirstSeenAt time.Time    `json:"first_seen_at"`
	Metadata    ItemMetadata `json:"metadata"`
}

// ItemDraft 는 업서트 엔진이 필요로 하는 필드만 담은 수집 레코드다.
// Content 가 nil 이면 기존 본문을 유지한다.
type ItemDraft struct {
	ExternalID  string
	URL         string
	Title       string
	Author      string
	Content     *string
	PublishedAt *time.Time
	Metadata    ItemMetadata
}

// UpsertResult 는 업서트 한 건의 결과다. Inserted 는 커밋된 뒤의 최종 값이다.
type UpsertResult struct {
	ItemID     int64
	ExternalID string
	Inserted   bool
}

// ItemMetadata 는 item.metadata(jsonb) 의 타입 표현이다.
type ItemMetadata struct {
	// 수집 시점 정보
	Subject      string `json:"subject,omitempty"`
	CommentCount *int   `json:"comment_count,omitempty"`
	Views        *int   `json:"views,omitempty"`
	Recommends   *int   `json:"recommends,omitempty"`
	Score        *int   `json:"score,omitempty"`
	DateDisplay  string `json:"date_display,omitempty"`
	Permalink    string `json:"permalink,omitempty"`

	// 요약 처리 결과
	RawTextLength      *int       `json:"raw_text_length,omitempty"`
	ImageCount         *int       `json:"image_count,omitempty"`
	SummaryModel       string     `json:"summary_model,omitempty"`
	SummaryGeneratedAt *time.Time `json:"summary_generated_at,omitempty"`
	SummaryError       *string    `json:"summary_error,omitempty"`
	SummaryLastModel   string     `json:"summary_last_model,omitempty"`
	FailedAt           *time.Time `json:"failed_at,omitempty"`

	Extra map[string]any `json:"-"`
}

type itemMetadataFields ItemMetadata

func (m ItemMetadata) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(itemMetadataFields(m), m.Extra)
}

func (m *ItemMetadata) UnmarshalJSON(data []byte) error {
	var f itemMetadataFields
	extra, err := unmarshalWithExtra(data, &f)
	if err != nil {
		return err
	}
	*m = ItemMetadata(f)
	m.Extra = extra
	return nil
}

// Failed 는 영구 실패 사유가 기록되어 있는지 여부다.
func (m ItemMetadata) Failed() bool {
	return m.SummaryError != nil && *m.SummaryError != ""
}

// IntPtr 는 메타데이터 숫자 필드 작성을 돕는다.
func IntPtr(v int) *int { return &v }

func StringPtr(v string) *string { return &v }
