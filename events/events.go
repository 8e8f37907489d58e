package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ItemDispatch 는 큐로 전달되는 유일한 페이로드다.
// 나머지 상태는 컨슈머가 저장소에서 다시 읽는다.
type ItemDispatch struct {
	ItemID int64 `json:"item_id"`
}

var ErrInvalidDispatch = errors.New("invalid dispatch payload")

func NewItemDispatch(itemID int64) ItemDispatch {
	return ItemDispatch{ItemID: itemID}
}

func (d ItemDispatch) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// ParseItemDispatch 는 큐 메시지 본문을 해석한다. item_id 가 없거나 정수 리터럴이 아니거나 양수가 아니면 ErrInvalidDispatch.
func ParseItemDispatch(body []byte) (ItemDispatch, error) {
	var raw struct {
		ItemID json.RawMessage `json:"item_id"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return ItemDispatch{}, fmt.Errorf("%w: %v", ErrInvalidDispatch, err)
	}
	if len(raw.ItemID) == 0 || string(raw.ItemID) == "null" {
		return ItemDispatch{}, fmt.Errorf("%w: missing item_id", ErrInvalidDispatch)
	}
	// 문자열 "12" 같은 값은 받지 않는다.
	id, err := strconv.ParseInt(string(raw.ItemID), 10, 64)
	if err != nil || id <= 0 {
		return ItemDispatch{}, fmt.Errorf("%w: item_id=%s", ErrInvalidDispatch, raw.ItemID)
	}
	return ItemDispatch{ItemID: id}, nil
}
