package models

import "time"

const AssetTypeImage = "image"

// Asset 은 아이템에 딸린 첨부(이미지 등)다. 집합 단위로만 교체된다.
// Table: item_asset
type Asset struct {
	ID         int64         `json:"id"`
	ItemID     int64         `json:"item_id"`
	AssetType  string        `json:"asset_type"`
	URL        string        `json:"url"`
	LocalPath  string        `json:"local_path"`
	OrderIndex int           `json:"order_index"`
	Metadata   AssetMetadata `json:"metadata"`
	CreatedAt  time.Time     `json:"created_at"`
}

// AssetDraft 는 교체 대상 목록의 한 항목이다. 목록 순서가 order_index 가 된다.
type AssetDraft struct {
	AssetType  string
	URL        string
	LocalPath  string
	OrderIndex int
	Metadata   AssetMetadata
}

type AssetMetadata struct {
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`

	Extra map[string]any `json:"-"`
}

type assetMetadataFields AssetMetadata

func (m AssetMetadata) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(assetMetadataFields(m), m.Extra)
}

func (m *AssetMetadata) UnmarshalJSON(data []byte) error {
	var f assetMetadataFields
	extra, err := unmarshalWithExtra(data, &f)
	if err != nil {
		return err
	}
	*m = AssetMetadata(f)
	m.Extra = extra
	return nil
}
