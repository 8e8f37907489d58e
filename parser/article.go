package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/advancedlogic/GoOse/pkg/goose"
	"github.com/go-shiori/go-readability"
	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"

	"post-digest/internal/logger"
)

// 이보다 짧은 추출 결과는 실패로 보고 다음 추출기로 넘어간다.
const MinArticleRunes = 200

// 요약 입력에 붙이는 링크 기사 본문의 최대 길이
const maxArticleRunes = 6000

// Extractor 는 HTML 에서 본문 텍스트를 뽑는 전략 하나다.
type Extractor struct {
	Name    string
	Extract func(htmlStr string, pageURL *url.URL) (string, error)
}

// DefaultExtractors 는 readability → trafilatura → goose → markdown 변환 순서다.
func DefaultExtractors() []Extractor {
	return []Extractor{
		{Name: "readability", Extract: ParseHtmlWithReadability},
		{Name: "trafilatura", Extract: ParseHtmlWithTrafilatura},
		{Name: "goose", Extract: ParseHtmlWithGoose},
		{Name: "markdown", Extract: ParseHtmlToMarkdown},
	}
}

func ParseHtmlWithReadability(htmlStr string, pageURL *url.URL) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return "", err
	}
	article, err := readability.FromDocument(doc, pageURL)
	if err != nil {
		return "", err
	}
	return article.TextContent, nil
}

func ParseHtmlWithTrafilatura(htmlStr string, pageURL *url.URL) (string, error) {
	opts := trafilatura.Options{OriginalURL: pageURL}
	article, err := trafilatura.Extract(strings.NewReader(htmlStr), opts)
	if err != nil {
		return "", err
	}
	if article == nil {
		return "", nil
	}
	return article.ContentText, nil
}

func ParseHtmlWithGoose(htmlStr string, pageURL *url.URL) (string, error) {
	raw := ""
	if pageURL != nil {
		raw = pageURL.String()
	}
	article, err := goose.New().ExtractFromRawHTML(htmlStr, raw)
	if err != nil {
		return "", err
	}
	return article.CleanedText, nil
}

// ParseHtmlToMarkdown 은 추출기가 모두 실패했을 때 문서 전체를 마크다운으로 바꾼다.
func ParseHtmlToMarkdown(htmlStr string, pageURL *url.URL) (string, error) {
	domain := ""
	if pageURL != nil {
		domain = pageURL.Host
	}
	converter := md.NewConverter(domain, true, nil)
	converter.Remove("script", "style", "nav", "footer", "header", "form")
	return converter.ConvertString(htmlStr)
}

// ExtractArticle 은 추출기를 차례로 시도해 MinArticleRunes 이상인 첫 결과를 고른다.
// 모두 짧으면 그중 가장 긴 결과를 돌려준다.
func ExtractArticle(htmlStr, pageURL string, extractors []Extractor) (text string, by string) {
	u, _ := url.Parse(pageURL)
	for _, ex := range extractors {
		out, err := ex.Extract(htmlStr, u)
		if err != nil {
			logger.Log.Debugf("%s extractor failed for %s: %v", ex.Name, pageURL, err)
			continue
		}
		out = normalizeText(out)
		if utf8.RuneCountInString(out) >= MinArticleRunes {
			return out, ex.Name
		}
		if utf8.RuneCountInString(out) > utf8.RuneCountInString(text) {
			text, by = out, ex.Name
		}
	}
	return text, by
}

func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := false
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// ArticleExtractor 는 링크 게시물이 가리키는 기사 본문을 가져온다.
type ArticleExtractor struct {
	client     *http.Client
	userAgent  string
	renderer   Renderer
	extractors []Extractor
}

func NewArticleExtractor(client *http.Client, userAgent string, renderer Renderer) *ArticleExtractor {
	return &ArticleExtractor{
		client:     client,
		userAgent:  userAgent,
		renderer:   renderer,
		extractors: DefaultExtractors(),
	}
}

// Fetch 는 정적 HTML 로 먼저 추출하고, 결과가 짧으면 렌더러가 있을 때만 렌더링 후 다시 추출한다.
func (a *ArticleExtractor) Fetch(ctx context.Context, pageURL string) (string, error) {
	body, err := get(ctx, a.client, pageURL, map[string]string{
		"User-Agent": a.userAgent,
		"Accept":     "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8",
	})
	var text string
	if err == nil {
		text, _ = ExtractArticle(string(body), pageURL, a.extractors)
	}

	if utf8.RuneCountInString(text) < MinArticleRunes && a.renderer != nil {
		rendered, rerr := a.renderer.RenderHTML(ctx, pageURL)
		if rerr != nil {
			if err != nil {
				return "", fmt.Errorf("static fetch: %v, render: %w", err, rerr)
			}
			logger.Log.Warnf("render fallback failed for %s: %v", pageURL, rerr)
		} else if out, _ := ExtractArticle(rendered, pageURL, a.extractors); utf8.RuneCountInString(out) > utf8.RuneCountInString(text) {
			text, err = out, nil
		}
	}
	if text == "" && err != nil {
		return "", err
	}
	return truncateRunes(text, maxArticleRunes), nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "\n..."
}
