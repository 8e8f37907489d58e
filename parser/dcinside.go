package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"post-digest/internal/logger"
	"post-digest/models"
)

const dcinsideMobileBase = "https://m.dcinside.com"

var kst = time.FixedZone("KST", 9*60*60)

type DCInsideFetcher struct {
	opts       Options
	client     *http.Client
	mobileBase string
}

func NewDCInsideFetcher(opts Options) *DCInsideFetcher {
	return &DCInsideFetcher{opts: opts, client: opts.client(), mobileBase: dcinsideMobileBase}
}

// WithMobileBase 는 모바일 댓글 페이지 호스트를 바꾼다.
func (f *DCInsideFetcher) WithMobileBase(base string) *DCInsideFetcher {
	f.mobileBase = strings.TrimRight(base, "/")
	return f
}

func (f *DCInsideFetcher) FetchDetail(ctx context.Context, item models.Item) (*Detail, error) {
	body, err := get(ctx, f.client, item.URL, map[string]string{"User-Agent": f.opts.userAgent()})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dcinside post %s: %w", item.ExternalID, err)
	}

	detail, err := ParseDCInsideDetail(body, item.URL)
	if err != nil {
		return nil, err
	}

	// 댓글은 보조 자료라 실패해도 본문만으로 진행한다.
	comments, err := f.fetchComments(ctx, item.URL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Log.Warnf("dcinside comments unavailable for %s: %v", item.ExternalID, err)
	}
	detail.Comments = comments
	return detail, nil
}

// ParseDCInsideDetail 은 게시물 상세 HTML 에서 본문 텍스트와 이미지 주소를 읽는다.
func ParseDCInsideDetail(body []byte, pageURL string) (*Detail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse dcinside detail: %w", err)
	}
	base, _ := url.Parse(pageURL)

	detail := &Detail{Referer: pageURL}
	container := doc.Find("div.write_div").First()
	if container.Length() == 0 {
		return detail, nil
	}
	detail.Body = blockText(container)

	seen := map[string]struct{}{}
	container.Find("img").Each(func(_ int, img *goquery.Selection) {
		for _, attr := range []string{"data-origin", "data-original", "data-src", "src"} {
			candidate := strings.TrimSpace(img.AttrOr(attr, ""))
			if candidate == "" || strings.Contains(candidate, "gallview_loading") {
				continue
			}
			full := absoluteURL(base, candidate)
			before := len(detail.ImageURLs)
			detail.ImageURLs = appendUnique(detail.ImageURLs, seen, full)
			if len(detail.ImageURLs) > before {
				break
			}
		}
	})

	media := map[string]struct{}{}
	for _, u := range detail.ImageURLs {
		detail.MediaURLs = appendUnique(detail.MediaURLs, media, u)
	}
	container.Find("video, video source").Each(func(_ int, v *goquery.Selection) {
		if src := strings.TrimSpace(v.AttrOr("src", "")); src != "" {
			detail.MediaURLs = appendUnique(detail.MediaURLs, media, absoluteURL(base, src))
		}
		if goquery.NodeName(v) == "video" {
			detail.IsVideo = true
		}
	})
	return detail, nil
}

// blockText 는 하위 텍스트 노드를 줄 단위로 모은다. 빈 줄은 버린다.
func blockText(sel *goquery.Selection) string {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				lines = append(lines, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(lines, "\n")
}

func absoluteURL(base *url.URL, raw string) string {
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	ref, err := url.Parse(raw)
	if err != nil || base == nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}

// MobileCommentURL 은 PC 상세 주소(id, no 쿼리)에서 모바일 댓글 페이지 주소를 만든다.
func MobileCommentURL(mobileBase, postURL string) (string, bool) {
	u, err := url.Parse(postURL)
	if err != nil {
		return "", false
	}
	q := u.Query()
	boardID, postNo := q.Get("id"), q.Get("no")
	if boardID == "" || postNo == "" {
		return "", false
	}
	return fmt.Sprintf("%s/board/%s/%s", mobileBase, url.PathEscape(boardID), url.PathEscape(postNo)), true
}

func (f *DCInsideFetcher) fetchComments(ctx context.Context, postURL string) ([]models.CommentDraft, error) {
	target, ok := MobileCommentURL(f.mobileBase, postURL)
	if !ok {
		return nil, nil
	}

	// 모바일 페이지는 차단되면 다른 곳으로 리다이렉트한다. 따라가지 않고 댓글 없음으로 본다.
	client := *f.client
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	body, err := get(ctx, &client, target, map[string]string{
		"User-Agent": mobileUserAgent,
		"Referer":    postURL,
	})
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) || errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ParseDCInsideComments(body)
}

// ParseDCInsideComments 는 모바일 게시물 페이지의 전체 댓글 목록을 읽는다.
func ParseDCInsideComments(body []byte) ([]models.CommentDraft, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse dcinside comments: %w", err)
	}

	var comments []models.CommentDraft
	doc.Find("ul.all-comment-lst > li").Each(func(_ int, node *goquery.Selection) {
		classes := strings.Fields(node.AttrOr("class", ""))
		for _, c := range classes {
			if strings.HasPrefix(c, "comment_write") {
				return
			}
		}

		externalID := firstAttr(node, "data-no", "data-cno", "no", "data-no2")
		if externalID == "" {
			if id := node.AttrOr("id", ""); strings.HasPrefix(id, "comment_cnt_") {
				externalID = id[strings.LastIndex(id, "_")+1:]
			}
		}
		if externalID == "" {
			return
		}

		author := "unknown"
		if nick := node.Find("a.nick").First(); nick.Length() > 0 {
			nick = nick.Clone()
			nick.Find(".ip").Remove()
			if t := strings.TrimSpace(nick.Text()); t != "" {
				author = t
			}
		}

		content := ""
		txt := node.Find("p.txt").First()
		if txt.Length() == 0 {
			txt = node.Find(".txt").First()
		}
		if txt.Length() > 0 {
			content = strings.Join(strings.Fields(txt.Text()), " ")
		}

		parent := firstAttr(node, "data-parent", "parent")
		if parent == "0" {
			parent = ""
		}

		deleted := strings.Contains(content, "삭제")
		for _, c := range classes {
			if strings.Contains(c, "del") {
				deleted = true
			}
		}

		depth := 0
		if parent != "" {
			depth = 1
		}
		meta := map[string]any{}
		if v := node.AttrOr("ch", ""); v != "" {
			meta["order"] = v
		}
		if v := node.AttrOr("data-type", ""); v != "" {
			meta["data_type"] = v
		}
		if v := firstAttr(node, "m_no", "data-m_no"); v != "" {
			meta["m_no"] = v
		}

		comments = append(comments, models.CommentDraft{
			ExternalID:       externalID,
			Author:           author,
			Content:          content,
			CreatedAt:        ParseDCInsideTime(node.Find("span.date").First().Text()),
			IsDeleted:        deleted,
			Depth:            depth,
			ParentExternalID: parent,
			Metadata:         meta,
		})
	})
	return comments, nil
}

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(s.AttrOr(n, "")); v != "" {
			return v
		}
	}
	return ""
}

var nonDigit = regexp.MustCompile(`[^0-9]+`)

// ParseDCInsideTime 은 "2025.01.02 09:00", "2025년 1월 2일 09:00" 같은 KST 표기를 읽는다.
// 연월일시분이 모두 있어야 한다.
func ParseDCInsideTime(raw string) *time.Time {
	parts := strings.Fields(nonDigit.ReplaceAllString(strings.TrimSpace(raw), " "))
	if len(parts) < 5 {
		return nil
	}
	var n [5]int
	for i := range n {
		v, err := strconv.Atoi(parts[i])
		if err != nil {
			return nil
		}
		n[i] = v
	}
	if n[1] < 1 || n[1] > 12 || n[2] < 1 || n[2] > 31 || n[3] > 23 || n[4] > 59 {
		return nil
	}
	t := time.Date(n[0], time.Month(n[1]), n[2], n[3], n[4], 0, 0, kst).UTC()
	return &t
}
