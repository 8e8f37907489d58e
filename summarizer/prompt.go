package summarizer

import (
	"strings"
	"unicode/utf8"
)

const SystemPrompt = "당신은 DCInside나 Reddit 게시물을 한국어로 요약하는 전문가입니다. 출력은 반드시 자연스럽고" +
	" 문어체에 가까운 한국어 문장으로 작성하며 불릿 포인트나 영어 문장은 사용하지 않습니다." +
	" 답변은 3문장 이내로 유지하고 링크는 제외합니다. 이미지에서 확인한 핵심 내용이 있다면 본문" +
	" 맥락에 자연스럽게 녹여 설명합니다. 고유명사는 원문 표기를 유지하세요."

const (
	userPromptHeader = "아래는 게시물 원문과 참고 이미지입니다. 중요 내용을 3문장 이내로 요약해 주세요.\n\n"
	imageOnlyText    = "(본문 텍스트 없음 — 이미지를 기반으로 요약해 주세요.)"
	truncatedMarker  = "\n..."
)

// PrepareText 는 요약 입력 본문을 다듬는다.
// 본문이 비어 있으면 이미지가 있을 때만 안내 문구로 바꾸고, 둘 다 없으면 ErrNoContent.
// maxLen(문자 수)을 넘으면 잘라서 "\n..." 를 붙인다.
func PrepareText(text string, imageCount, maxLen int) (string, error) {
	t := strings.TrimSpace(text)
	if t == "" {
		if imageCount == 0 {
			return "", ErrNoContent
		}
		t = imageOnlyText
	}
	if maxLen > 0 && utf8.RuneCountInString(t) > maxLen {
		t = string([]rune(t)[:maxLen]) + truncatedMarker
	}
	return t, nil
}

// BuildRequest 는 시스템 프롬프트와 사용자 프롬프트를 묶는다. 이미지는 limit 개까지만 첨부한다.
func BuildRequest(text string, imagePaths []string, maxLen, imageLimit, maxOutputTokens int) (Request, error) {
	body, err := PrepareText(text, len(imagePaths), maxLen)
	if err != nil {
		return Request{}, err
	}
	images := imagePaths
	if imageLimit >= 0 && len(images) > imageLimit {
		images = images[:imageLimit]
	}
	return Request{
		SystemPrompt:    SystemPrompt,
		UserPrompt:      userPromptHeader + body,
		ImagePaths:      images,
		MaxOutputTokens: maxOutputTokens,
	}, nil
}
