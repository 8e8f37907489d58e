package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"post-digest/models"
)

const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const mobileUserAgent = "Mozilla/5.0 (Linux; Android 13; Pixel 6) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"

// 상세 페이지 한 번에 읽는 최대 크기
const maxPageBytes = 8 << 20

// ErrNotFound 는 원본 게시물이 삭제되었거나 존재하지 않을 때 반환된다.
// 다시 시도해도 결과가 같으므로 영구 실패로 다룬다.
var ErrNotFound = errors.New("post not found")

// HTTPError 는 2xx 가 아닌 응답이다.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// Detail 은 워커가 상세 페이지를 다시 읽어 얻은 요약 재료다.
type Detail struct {
	// Body 는 댓글을 제외한 요약 입력 본문이다.
	Body string
	// ImageURLs 는 내려받을 이미지 주소다. 순서가 order_index 가 된다.
	ImageURLs []string
	// MediaURLs 는 분류 규칙이 검사하는 모든 미디어 참조다(이미지 포함).
	MediaURLs []string
	Comments  []models.CommentDraft
	IsVideo   bool
	// Referer 는 이미지 요청에 붙일 페이지 주소다.
	Referer string
}

// Fetcher 는 소스 계열별 상세 재수집기다.
type Fetcher interface {
	FetchDetail(ctx context.Context, item models.Item) (*Detail, error)
}

// Renderer 는 JS 로만 본문이 그려지는 페이지를 렌더링한다.
type Renderer interface {
	RenderHTML(ctx context.Context, url string) (string, error)
}

type Options struct {
	UserAgent string
	Client    *http.Client
	// Renderer 가 있으면 링크 본문 정적 추출이 부족할 때 사용한다.
	Renderer Renderer
}

func (o Options) userAgent() string {
	if o.UserAgent == "" {
		return DefaultUserAgent
	}
	return o.UserAgent
}

func (o Options) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// New 는 계열 코드에 맞는 Fetcher 를 만든다.
func New(family string, opts Options) (Fetcher, error) {
	switch family {
	case models.FamilyDCInside:
		return NewDCInsideFetcher(opts), nil
	case models.FamilyReddit:
		return NewRedditFetcher(opts), nil
	}
	return nil, fmt.Errorf("unknown source family: %q", family)
}

func get(ctx context.Context, client *http.Client, target string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
	case resp.StatusCode != http.StatusOK:
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: target}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

var videoSuffixes = map[string]struct{}{
	".mp4":  {},
	".webm": {},
	".mkv":  {},
	".mov":  {},
	".avi":  {},
}

// IsVideoURL 은 경로 확장자가 동영상 형식인지 검사한다.
func IsVideoURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	_, ok := videoSuffixes[strings.ToLower(path.Ext(u.Path))]
	return ok
}

func appendUnique(list []string, seen map[string]struct{}, v string) []string {
	if v == "" {
		return list
	}
	if _, ok := seen[v]; ok {
		return list
	}
	seen[v] = struct{}{}
	return append(list, v)
}
