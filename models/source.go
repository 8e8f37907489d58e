package models

import (
	"strings"
	"time"
)

// 소스 계열. 계열마다 큐와 상세 파서가 하나씩 있다.
const (
	FamilyDCInside = "dcinside"
	FamilyReddit   = "reddit"
)

// Source 는 수집 대상(게시판, 서브레딧 등) 설정이다. 처음 등록될 때는 비활성 상태다.
// Table: source
type Source struct {
	ID                   int64          `json:"id"`
	Code                 string         `json:"code"`
	Name                 string         `json:"name"`
	URLPattern           string         `json:"url_pattern"`
	Parser               string         `json:"parser"`
	FetchIntervalMinutes int            `json:"fetch_interval_minutes"`
	IsActive             bool           `json:"is_active"`
	Metadata             SourceMetadata `json:"metadata"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// Family 는 metadata.platform 을 우선하고, 없으면 code 접두사로 계열을 판단한다.
func (s Source) Family() string {
	if s.Metadata.Platform != "" {
		return s.Metadata.Platform
	}
	for _, f := range []string{FamilyDCInside, FamilyReddit} {
		if strings.HasPrefix(s.Code, f+"_") {
			return f
		}
	}
	return ""
}

// SourceConfig 는 시드 파일이나 크롤러가 소스를 등록할 때 쓰는 값이다.
type SourceConfig struct {
	Code                 string         `json:"code"`
	Name                 string         `json:"name"`
	URLPattern           string         `json:"url_pattern"`
	Parser               string         `json:"parser"`
	FetchIntervalMinutes int            `json:"fetch_interval_minutes"`
	Metadata             SourceMetadata `json:"metadata"`
}

type SourceMetadata struct {
	Platform      string `json:"platform,omitempty"`
	BoardID       string `json:"board_id,omitempty"`
	ExceptionMode string `json:"exception_mode,omitempty"`
	Subreddit     string `json:"subreddit,omitempty"`
	TargetURL     string `json:"target_url,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	AssetRoot     string `json:"asset_root,omitempty"`

	Extra map[string]any `json:"-"`
}

type sourceMetadataFields SourceMetadata

func (m SourceMetadata) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(sourceMetadataFields(m), m.Extra)
}

func (m *SourceMetadata) UnmarshalJSON(data []byte) error {
	var f sourceMetadataFields
	extra, err := unmarshalWithExtra(data, &f)
	if err != nil {
		return err
	}
	*m = SourceMetadata(f)
	m.Extra = extra
	return nil
}
