package services

import (
	"post-digest/parser"
)

// Classification 은 상세 재수집 결과를 요약할지 버릴지에 대한 판정이다.
// Processable 이 아니면 Reason 에 판정한 규칙 이름이 들어 있다.
type Classification struct {
	Processable bool
	Reason      string
}

var processable = Classification{Processable: true}

func unprocessable(reason string) Classification {
	return Classification{Reason: reason}
}

// ClassifyRule 은 하나의 제외 조건이다. 해당하지 않으면 ok=false 를 돌려준다.
type ClassifyRule func(d *parser.Detail) (reason string, ok bool)

// VideoPostRule 은 상세 페이지가 동영상 게시물로 보고한 경우다.
func VideoPostRule(d *parser.Detail) (string, bool) {
	return "video_post", d.IsVideo
}

// VideoURLRule 은 미디어 참조 중 동영상 확장자가 하나라도 있는 경우다.
func VideoURLRule(d *parser.Detail) (string, bool) {
	for _, u := range d.MediaURLs {
		if parser.IsVideoURL(u) {
			return "video_url", true
		}
	}
	return "video_url", false
}

func DefaultRules() []ClassifyRule {
	return []ClassifyRule{VideoPostRule, VideoURLRule}
}

// Classify 는 규칙을 순서대로 적용해 처음 해당한 규칙으로 판정한다.
func Classify(d *parser.Detail, rules []ClassifyRule) Classification {
	if d == nil {
		return processable
	}
	for _, rule := range rules {
		if reason, ok := rule(d); ok {
			return unprocessable(reason)
		}
	}
	return processable
}
