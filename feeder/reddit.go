package feeder

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"post-digest/config"
	"post-digest/models"
)

const redditBaseURL = "https://www.reddit.com"

// 서브레딧당 한 번에 읽는 피드 항목 수
const redditFeedLimit = 50

// RedditPost 는 서브레딧 /new 피드의 항목이다. 본문과 댓글은 워커가 상세 JSON 으로 다시 읽는다.
type RedditPost struct {
	Subreddit  string
	ExternalID string
	Title      string
	URL        string
	Permalink  string
	Author     string
	Published  time.Time
}

func (p RedditPost) sealed() {}

func (p RedditPost) Subject() string { return p.Subreddit }

func (p RedditPost) PublishedAt() (time.Time, bool) {
	return p.Published, !p.Published.IsZero()
}

func (p RedditPost) Draft() models.ItemDraft {
	title := p.Title
	if title == "" {
		title = "(untitled)"
	}
	author := p.Author
	if author == "" {
		author = "unknown"
	}
	d := models.ItemDraft{
		ExternalID: p.ExternalID,
		URL:        p.URL,
		Title:      title,
		Author:     author,
		Metadata: models.ItemMetadata{
			Subject:   p.Subreddit,
			Permalink: p.Permalink,
		},
	}
	if t, ok := p.PublishedAt(); ok {
		t = t.UTC()
		d.PublishedAt = &t
	}
	return d
}

type RedditFeeder struct {
	subreddit string
	cfg       config.RedditConfig
	baseURL   string
	userAgent string
	client    *http.Client
}

func NewRedditFeeder(subreddit string, cfg config.RedditConfig, userAgent string) *RedditFeeder {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &RedditFeeder{
		subreddit: subreddit,
		cfg:       cfg,
		baseURL:   redditBaseURL,
		userAgent: userAgent,
		client:    newHTTPClient(),
	}
}

// WithBaseURL 은 reddit 호스트를 바꾼다. 테스트 서버를 붙일 때 쓴다.
func (f *RedditFeeder) WithBaseURL(u string) *RedditFeeder {
	f.baseURL = strings.TrimRight(u, "/")
	return f
}

func (f *RedditFeeder) Family() string { return models.FamilyReddit }

func (f *RedditFeeder) FeedURL() string {
	return fmt.Sprintf("%s/r/%s/new/.rss?limit=%d", f.baseURL, url.PathEscape(f.subreddit), redditFeedLimit)
}

func (f *RedditFeeder) Source() models.SourceConfig {
	slug := strings.ToLower(f.subreddit)
	return models.SourceConfig{
		Code:                 fmt.Sprintf("reddit_%s_new", slug),
		Name:                 "Reddit /r/" + f.subreddit,
		URLPattern:           fmt.Sprintf("%s/r/%s/comments/{external_id}", redditBaseURL, f.subreddit),
		Parser:               "reddit_new_v1",
		FetchIntervalMinutes: 60,
		Metadata: models.SourceMetadata{
			Platform:  models.FamilyReddit,
			Subreddit: f.subreddit,
			TargetURL: fmt.Sprintf("%s/r/%s/new/", redditBaseURL, f.subreddit),
			Limit:     redditFeedLimit,
			AssetRoot: "data/reddit/" + slug,
		},
	}
}

// 서브레딧 자체가 주제이므로 말머리 필터는 없다.
func (f *RedditFeeder) Filter() Filter {
	return Filter{
		MinAge:   time.Duration(f.cfg.MinPostAgeHours) * time.Hour,
		MaxAge:   time.Duration(f.cfg.MaxPostAgeHours) * time.Hour,
		MaxPosts: f.cfg.MaxPosts,
	}
}

func (f *RedditFeeder) Fetch(ctx context.Context) ([]Post, error) {
	body, err := fetch(ctx, f.client, f.FeedURL(), map[string]string{
		"User-Agent": f.userAgent,
		"Accept":     "application/atom+xml,application/rss+xml,application/xml;q=0.9,*/*;q=0.8",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch r/%s feed: %w", f.subreddit, err)
	}

	feed, err := gofeed.NewParser().Parse(cleanControlCharacters(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse r/%s feed: %w", f.subreddit, err)
	}

	var posts []Post
	for _, item := range feed.Items {
		p, ok := redditPostFromFeed(f.subreddit, item)
		if !ok {
			continue
		}
		posts = append(posts, p)
	}
	return posts, nil
}

func redditPostFromFeed(subreddit string, item *gofeed.Item) (RedditPost, bool) {
	id := strings.TrimPrefix(strings.TrimSpace(item.GUID), "t3_")
	if id == "" {
		id = commentsIDFromLink(item.Link)
	}
	if id == "" {
		return RedditPost{}, false
	}

	p := RedditPost{
		Subreddit:  subreddit,
		ExternalID: id,
		Title:      strings.TrimSpace(item.Title),
		URL:        item.Link,
	}
	if u, err := url.Parse(item.Link); err == nil {
		p.Permalink = u.Path
	}
	if item.Author != nil {
		p.Author = strings.TrimPrefix(item.Author.Name, "/u/")
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		p.Author = strings.TrimPrefix(item.Authors[0].Name, "/u/")
	}
	if item.PublishedParsed != nil {
		p.Published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		p.Published = *item.UpdatedParsed
	}
	return p, true
}

// /r/<sub>/comments/<id>/<slug>/ 형태의 링크에서 id 를 꺼낸다.
func commentsIDFromLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, s := range segs {
		if s == "comments" && i+1 < len(segs) {
			return segs[i+1]
		}
	}
	return ""
}
