package models

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// 메타데이터 구조체들은 코어가 읽는 필드만 타입으로 두고,
// 나머지 키는 Extra 로 보존한다. JSON 직렬화 시 Extra 와 알려진 필드가 한 객체로 합쳐진다.

var knownKeysCache sync.Map

// knownKeys 는 구조체 json 태그 이름 집합을 반환한다. "-" 태그 필드는 제외한다.
func knownKeys(t reflect.Type) map[string]struct{} {
	if v, ok := knownKeysCache.Load(t); ok {
		return v.(map[string]struct{})
	}
	keys := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name := strings.Split(tag, ",")[0]
		if name == "" || name == "-" {
			continue
		}
		keys[name] = struct{}{}
	}
	knownKeysCache.Store(t, keys)
	return keys
}

// marshalWithExtra 는 known(구조체 값)을 직렬화하고 Extra 키를 덧붙인다.
// 같은 키가 양쪽에 있으면 타입 필드가 이긴다.
func marshalWithExtra(known any, extra map[string]any) ([]byte, error) {
	b, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return b, nil
	}
	merged := map[string]any{}
	for k, v := range extra {
		merged[k] = v
	}
	var typed map[string]any
	if err := json.Unmarshal(b, &typed); err != nil {
		return nil, err
	}
	for k, v := range typed {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// unmarshalWithExtra 는 data 를 known(구조체 포인터)에 채우고, 알려지지 않은 키를 돌려준다.
func unmarshalWithExtra(data []byte, known any) (map[string]any, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(data, known); err != nil {
		return nil, err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	t := reflect.TypeOf(known)
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("metadata target must be a struct pointer, got %s", t)
	}
	keys := knownKeys(t.Elem())
	var extra map[string]any
	for k, v := range all {
		if _, ok := keys[k]; ok {
			continue
		}
		if extra == nil {
			extra = map[string]any{}
		}
		extra[k] = v
	}
	return extra, nil
}
