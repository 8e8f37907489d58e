package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"post-digest/internal/logger"
	"post-digest/models"
)

const redditBase = "https://www.reddit.com"

const noSelfTextPlaceholder = "(텍스트 본문 없음: 링크/미디어 게시물입니다.)"

var imageSuffixes = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {},
}

type RedditFetcher struct {
	opts    Options
	client  *http.Client
	baseURL string
	article *ArticleExtractor
}

func NewRedditFetcher(opts Options) *RedditFetcher {
	client := opts.client()
	return &RedditFetcher{
		opts:    opts,
		client:  client,
		baseURL: redditBase,
		article: NewArticleExtractor(client, opts.userAgent(), opts.Renderer),
	}
}

// WithBaseURL 은 reddit 호스트를 바꾼다. 상세 JSON 은 아이템 주소의 경로만 사용한다.
func (f *RedditFetcher) WithBaseURL(base string) *RedditFetcher {
	f.baseURL = strings.TrimRight(base, "/")
	return f
}

// DetailURL 은 게시물 주소를 상세 JSON 주소로 바꾼다.
func (f *RedditFetcher) DetailURL(itemURL string) (string, error) {
	u, err := url.Parse(itemURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "", fmt.Errorf("invalid reddit post url: %q", itemURL)
	}
	p := "/" + strings.Trim(u.Path, "/")
	q := url.Values{}
	q.Set("raw_json", "1")
	q.Set("sort", "confidence")
	return f.baseURL + p + ".json?" + q.Encode(), nil
}

type redditListing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []redditThing `json:"children"`
	} `json:"data"`
}

type redditThing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type redditImageSource struct {
	URL string `json:"url"`
}

// RedditPostData 는 상세 JSON 의 t3 노드 중 사용하는 필드다.
type RedditPostData struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Subreddit           string  `json:"subreddit"`
	Title               string  `json:"title"`
	SelfText            string  `json:"selftext"`
	Author              string  `json:"author"`
	Score               int     `json:"score"`
	NumComments         int     `json:"num_comments"`
	Permalink           string  `json:"permalink"`
	URL                 string  `json:"url"`
	URLOverriddenByDest string  `json:"url_overridden_by_dest"`
	IsSelf              bool    `json:"is_self"`
	IsVideo             bool    `json:"is_video"`
	PostHint            string  `json:"post_hint"`
	Domain              string  `json:"domain"`
	CreatedUTC          float64 `json:"created_utc"`
	Media               *struct {
		RedditVideo *struct {
			FallbackURL string `json:"fallback_url"`
		} `json:"reddit_video"`
	} `json:"media"`
	Preview *struct {
		Images []struct {
			Source redditImageSource `json:"source"`
		} `json:"images"`
	} `json:"preview"`
	GalleryData *struct {
		Items []struct {
			MediaID string `json:"media_id"`
		} `json:"items"`
	} `json:"gallery_data"`
	MediaMetadata map[string]struct {
		Status string `json:"status"`
		E      string `json:"e"`
		S      struct {
			U   string `json:"u"`
			GIF string `json:"gif"`
			MP4 string `json:"mp4"`
		} `json:"s"`
	} `json:"media_metadata"`
}

type redditCommentData struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Author      string          `json:"author"`
	Body        string          `json:"body"`
	Score       *int            `json:"score"`
	Ups         *int            `json:"ups"`
	CreatedUTC  float64         `json:"created_utc"`
	Permalink   string          `json:"permalink"`
	ParentID    string          `json:"parent_id"`
	Distinguish *string         `json:"distinguished"`
	Stickied    bool            `json:"stickied"`
	Replies     json.RawMessage `json:"replies"`
}

func (f *RedditFetcher) FetchDetail(ctx context.Context, item models.Item) (*Detail, error) {
	target, err := f.DetailURL(item.URL)
	if err != nil {
		return nil, err
	}
	body, err := get(ctx, f.client, target, map[string]string{
		"User-Agent": f.opts.userAgent(),
		"Accept":     "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reddit post %s: %w", item.ExternalID, err)
	}

	post, comments, err := ParseRedditDetail(body)
	if err != nil {
		return nil, err
	}

	detail := &Detail{
		ImageURLs: redditImageURLs(post),
		Comments:  comments,
		IsVideo:   post.IsVideo || (post.Media != nil && post.Media.RedditVideo != nil),
	}
	detail.Referer = redditBase + post.Permalink
	if post.Permalink == "" {
		detail.Referer = item.URL
	}

	seen := map[string]struct{}{}
	for _, u := range detail.ImageURLs {
		detail.MediaURLs = appendUnique(detail.MediaURLs, seen, u)
	}
	detail.MediaURLs = appendUnique(detail.MediaURLs, seen, html.UnescapeString(post.URLOverriddenByDest))
	if post.Media != nil && post.Media.RedditVideo != nil {
		detail.MediaURLs = appendUnique(detail.MediaURLs, seen, post.Media.RedditVideo.FallbackURL)
	}

	var linked string
	if link := f.articleLink(post); link != "" && !detail.IsVideo {
		text, err := f.article.Fetch(ctx, link)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Log.Warnf("linked article extraction failed for %s: %v", link, err)
		}
		linked = text
	}

	detail.Body = ComposeRedditBody(post, linked)
	return detail, nil
}

// articleLink 는 외부 기사로 연결되는 링크 게시물의 대상 주소다.
func (f *RedditFetcher) articleLink(post *RedditPostData) string {
	if post.IsSelf || post.IsVideo {
		return ""
	}
	link := html.UnescapeString(post.URLOverriddenByDest)
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if strings.HasSuffix(host, "reddit.com") || strings.HasSuffix(host, "redd.it") {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if _, ok := imageSuffixes[ext]; ok {
		return ""
	}
	if _, ok := videoSuffixes[ext]; ok {
		return ""
	}
	return link
}

// ParseRedditDetail 은 [게시물 listing, 댓글 listing] 배열을 읽는다.
func ParseRedditDetail(body []byte) (*RedditPostData, []models.CommentDraft, error) {
	var listings []redditListing
	if err := json.Unmarshal(body, &listings); err != nil {
		return nil, nil, fmt.Errorf("failed to decode reddit detail: %w", err)
	}
	if len(listings) == 0 || len(listings[0].Data.Children) == 0 {
		return nil, nil, fmt.Errorf("%w: empty reddit listing", ErrNotFound)
	}

	var post RedditPostData
	if err := json.Unmarshal(listings[0].Data.Children[0].Data, &post); err != nil {
		return nil, nil, fmt.Errorf("failed to decode reddit post: %w", err)
	}
	if post.ID == "" {
		return nil, nil, fmt.Errorf("%w: reddit post without id", ErrNotFound)
	}

	var comments []models.CommentDraft
	if len(listings) > 1 {
		comments = collectRedditComments(listings[1].Data.Children, 0, comments)
	}
	return &post, comments, nil
}

// collectRedditComments 는 댓글 트리를 깊이 우선 순서로 펼친다. "more" 노드는 건너뛴다.
func collectRedditComments(children []redditThing, depth int, acc []models.CommentDraft) []models.CommentDraft {
	for _, child := range children {
		if child.Kind != "t1" {
			continue
		}
		var c redditCommentData
		if err := json.Unmarshal(child.Data, &c); err != nil {
			continue
		}
		id := c.Name
		if id == "" && c.ID != "" {
			id = "t1_" + c.ID
		}
		if id == "" {
			continue
		}

		body := strings.TrimSpace(c.Body)
		lower := strings.ToLower(body)
		author := c.Author
		if author == "" {
			author = "unknown"
		}
		parent := ""
		if strings.HasPrefix(c.ParentID, "t1_") {
			parent = c.ParentID
		}

		meta := map[string]any{"stickied": c.Stickied}
		if c.Permalink != "" {
			meta["permalink"] = c.Permalink
		}
		if c.Ups != nil {
			meta["ups"] = *c.Ups
		}
		if c.Distinguish != nil {
			meta["distinguished"] = *c.Distinguish
		}

		draft := models.CommentDraft{
			ExternalID:       id,
			Author:           author,
			Content:          body,
			IsDeleted:        lower == "[deleted]" || lower == "[removed]",
			Depth:            depth,
			Score:            c.Score,
			ParentExternalID: parent,
			Metadata:         meta,
		}
		if c.CreatedUTC > 0 {
			t := unixFloat(c.CreatedUTC)
			draft.CreatedAt = &t
		}
		acc = append(acc, draft)

		// replies 는 댓글이 없으면 빈 문자열이다.
		if len(c.Replies) > 0 && c.Replies[0] == '{' {
			var replies redditListing
			if err := json.Unmarshal(c.Replies, &replies); err == nil {
				acc = collectRedditComments(replies.Data.Children, depth+1, acc)
			}
		}
	}
	return acc
}

func unixFloat(v float64) time.Time {
	sec := int64(v)
	return time.Unix(sec, int64((v-float64(sec))*1e9)).UTC()
}

// redditImageURLs 는 미리보기 원본과 갤러리 원본 이미지 주소를 모은다.
// 해상도별 축소본은 같은 이미지이므로 제외한다.
func redditImageURLs(post *RedditPostData) []string {
	var urls []string
	seen := map[string]struct{}{}
	if post.Preview != nil {
		for _, img := range post.Preview.Images {
			urls = appendUnique(urls, seen, html.UnescapeString(img.Source.URL))
		}
	}
	if post.GalleryData != nil {
		for _, it := range post.GalleryData.Items {
			meta, ok := post.MediaMetadata[it.MediaID]
			if !ok || meta.Status != "valid" {
				continue
			}
			urls = appendUnique(urls, seen, html.UnescapeString(meta.S.U))
		}
	}
	if len(urls) == 0 && post.PostHint == "image" {
		urls = appendUnique(urls, seen, html.UnescapeString(post.URLOverriddenByDest))
	}
	return urls
}

// ComposeRedditBody 는 제목, 본문, 링크 기사 발췌, 작성 정보, 원문 주소를 요약 입력으로 묶는다.
func ComposeRedditBody(post *RedditPostData, linkedText string) string {
	title := post.Title
	if title == "" {
		title = "(untitled)"
	}
	parts := []string{title}
	if s := strings.TrimSpace(post.SelfText); s != "" {
		parts = append(parts, s)
	} else {
		parts = append(parts, noSelfTextPlaceholder)
	}
	if s := strings.TrimSpace(linkedText); s != "" {
		parts = append(parts, "링크 원문 발췌:\n"+s)
	}
	author := post.Author
	if author == "" {
		author = "unknown"
	}
	parts = append(parts, fmt.Sprintf("작성자: u/%s | 업보트: %d | 댓글: %d", author, post.Score, post.NumComments))
	if post.Permalink != "" {
		parts = append(parts, "원문: "+redditBase+post.Permalink)
	} else if post.URL != "" {
		parts = append(parts, "원문: "+post.URL)
	}
	return strings.Join(parts, "\n\n")
}
