package models

import "time"

// Comment 는 아이템의 댓글이다. ParentID 로 대댓글 관계를 표현한다.
// Table: comment
type Comment struct {
	ID         int64          `json:"id"`
	ItemID     int64          `json:"item_id"`
	ExternalID string         `json:"external_id"`
	Author     string         `json:"author"`
	Content    string         `json:"content"`
	CreatedAt  *time.Time     `json:"created_at,omitempty"`
	IsDeleted  bool           `json:"is_deleted"`
	ParentID   *int64         `json:"parent_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// CommentDraft 는 상세 페이지에서 다시 읽어 온 댓글이다.
// ParentExternalID 는 같은 목록 안의 다른 댓글 ExternalID 를 가리킨다.
type CommentDraft struct {
	ExternalID       string
	Author           string
	Content          string
	CreatedAt        *time.Time
	IsDeleted        bool
	Depth            int
	Score            *int
	ParentExternalID string
	Metadata         map[string]any
}
