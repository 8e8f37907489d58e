package feeder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"post-digest/config"
	"post-digest/models"
)

const FEEDER_TIMEOUT = 30 * time.Second

// DefaultUserAgent 는 목록 페이지를 요청할 때 쓰는 브라우저 유사 User-Agent 이다.
// DCInside 와 Reddit 모두 기본 Go HTTP 클라이언트 UA 를 차단한다.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Post 는 소스 계열별 게시물 타입이 공통으로 제공하는 값이다.
// 구현은 이 패키지의 DCInsidePost, RedditPost 뿐이다.
type Post interface {
	// Draft 는 업서트에 필요한 필드만 담은 레코드다.
	Draft() models.ItemDraft
	Subject() string
	PublishedAt() (time.Time, bool)

	sealed()
}

// Crawler 는 소스 하나의 목록을 가져온다.
type Crawler interface {
	Family() string
	Source() models.SourceConfig
	Filter() Filter
	Fetch(ctx context.Context) ([]Post, error)
}

// Crawlers 는 설정에서 켜진 소스마다 Crawler 를 하나씩 만든다.
func Crawlers(cfg config.CrawlConfig, userAgent string) []Crawler {
	var out []Crawler
	if cfg.DCInside.Enabled && cfg.DCInside.BoardID != "" {
		out = append(out, NewDCInsideFeeder(cfg.DCInside, userAgent))
	}
	if cfg.Reddit.Enabled {
		for _, sub := range cfg.Reddit.Subreddits {
			out = append(out, NewRedditFeeder(sub, cfg.Reddit, userAgent))
		}
	}
	return out
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: FEEDER_TIMEOUT,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			// 리다이렉트 시 이전 요청의 헤더를 유지
			for k, v := range via[0].Header {
				req.Header[k] = v
			}
			return nil
		},
	}
}

func fetch(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodySample, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return nil, fmt.Errorf("unexpected status code %d, url: %s, body: %s", resp.StatusCode, url, string(bodySample))
	}
	return io.ReadAll(resp.Body)
}

// XML에서 허용되지 않는 제어 문자 (탭, LF, CR 제외)
var invalidControlCharRegex = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)

func cleanControlCharacters(body []byte) io.Reader {
	return bytes.NewReader(invalidControlCharRegex.ReplaceAll(body, nil))
}
